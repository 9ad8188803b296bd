// Package bridge is the side of the relay protocol that runs inside a
// sandbox. It exposes a consumer-shaped interface to suite code and forwards
// every call to the owning suite as a relay envelope.
package bridge

import (
	"errors"
	"sync"

	"sbx/internal/protocol"
)

// ErrNoStarter is returned when the start function is invoked before an
// adapter installed one, or a second time after loaded.
var ErrNoStarter = errors.New("an adapter should provide the start function")

// Poster delivers one relay message to the parent context
type Poster func(action string, args []any) error

// StartFunc starts test execution inside the sandbox
type StartFunc func(config any) error

// Relay forwards consumer calls made inside a sandbox to its parent.
type Relay struct {
	post   Poster
	config any

	mu    sync.Mutex
	start StartFunc
}

// NewRelay creates a Relay posting through post. config is handed to the
// start function on Loaded.
func NewRelay(post Poster, config any) *Relay {
	return &Relay{post: post, config: config}
}

// Config returns the configuration given to the start function
func (r *Relay) Config() any { return r.config }

// SetStart installs the function Loaded will invoke
func (r *Relay) SetStart(fn StartFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = fn
}

// Start invokes the installed start function directly
func (r *Relay) Start(config any) error {
	r.mu.Lock()
	fn := r.start
	r.mu.Unlock()
	if fn == nil {
		return ErrNoStarter
	}
	return fn(config)
}

// Loaded signals that all suite resources are loaded. It runs the installed
// start function exactly once; any later call returns ErrNoStarter.
func (r *Relay) Loaded() error {
	r.mu.Lock()
	fn := r.start
	r.start = nil
	r.mu.Unlock()
	if fn == nil {
		return ErrNoStarter
	}
	return fn(r.config)
}

// Info relays an info payload. A payload carrying a total is relayed as a
// started event so the parent can tell the announcement apart.
func (r *Relay) Info(info any, rest ...any) error {
	if m, ok := info.(map[string]any); ok {
		if total, ok := m["total"]; ok {
			return r.post(protocol.ActionStarted, []any{total})
		}
	}
	return r.post(protocol.ActionInfo, append([]any{info}, rest...))
}

// Result relays one test result
func (r *Relay) Result(args ...any) error { return r.Call(protocol.ActionResult, args...) }

// Complete relays the suite completion
func (r *Relay) Complete(args ...any) error { return r.Call(protocol.ActionComplete, args...) }

// Error relays an error
func (r *Relay) Error(args ...any) error { return r.Call(protocol.ActionError, args...) }

// Log relays a log entry
func (r *Relay) Log(args ...any) error { return r.Call(protocol.ActionLog, args...) }

// Call relays any consumer method
func (r *Relay) Call(method string, args ...any) error {
	if args == nil {
		args = []any{}
	}
	return r.post(method, args)
}
