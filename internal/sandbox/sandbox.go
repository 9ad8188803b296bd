// Package sandbox defines the isolated execution context a suite runs in.
//
// The orchestration core only relies on the Handle abstraction: each suite gets
// its own independently destroyed context that posts messages to its owner.
// Concrete technologies live in subpackages (jsvm, process).
package sandbox

import (
	"context"
	"errors"
	"fmt"

	"sbx/internal/domain"
)

var (
	// ErrDestroyed is returned when starting a destroyed sandbox
	ErrDestroyed = errors.New("sandbox destroyed")
	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("sandbox already started")
)

// Namespace is the global scope of a sandbox once its document is ready
type Namespace interface {
	Set(name string, value any) error
}

// Handle is an isolated execution context owned by exactly one suite.
type Handle interface {
	// OnReady registers fn to run once the sandbox namespace exists and
	// before any suite code executes.
	OnReady(fn func(Namespace))
	// Start begins loading the suite resource. It does not block on test
	// execution.
	Start(ctx context.Context) error
	// Destroy tears the sandbox down. It is idempotent and never waits for
	// the sandbox to drain.
	Destroy() error
}

// Message is a payload posted by a sandbox. Data is serialized text (string
// or []byte) or structured data ([]any).
type Message struct {
	Source Handle
	Data   any
}

// Bus receives messages from sandboxes. Post returns false when the message
// could not be delivered because done was closed first.
type Bus interface {
	Post(msg Message, done <-chan struct{}) bool
}

// ChanBus is a Bus backed by a buffered channel
type ChanBus chan Message

// NewChanBus creates a ChanBus with the given buffer size
func NewChanBus(size int) ChanBus {
	return make(ChanBus, size)
}

// Post implements Bus
func (b ChanBus) Post(msg Message, done <-chan struct{}) bool {
	select {
	case b <- msg:
		return true
	case <-done:
		return false
	}
}

// Factory creates the sandbox for a suite descriptor
type Factory interface {
	New(d domain.Descriptor, bus Bus) (Handle, error)
}

// FactoryFunc adapts a function to Factory
type FactoryFunc func(d domain.Descriptor, bus Bus) (Handle, error)

// New implements Factory
func (f FactoryFunc) New(d domain.Descriptor, bus Bus) (Handle, error) { return f(d, bus) }

// Router picks a Factory by descriptor kind
type Router map[domain.Kind]Factory

// New implements Factory
func (r Router) New(d domain.Descriptor, bus Bus) (Handle, error) {
	f, ok := r[d.Kind()]
	if !ok {
		return nil, fmt.Errorf("no sandbox for %s suite %s", d.Kind(), d.Path())
	}
	return f.New(d, bus)
}
