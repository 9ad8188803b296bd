// Package sandboxtest provides a scripted in-memory sandbox for tests.
package sandboxtest

import (
	"context"
	"sync"
	"sync/atomic"

	"sbx/internal/domain"
	"sbx/internal/protocol"
	"sbx/internal/sandbox"
)

// Fake is a sandbox whose messages are supplied by the test
type Fake struct {
	Descriptor domain.Descriptor

	bus     sandbox.Bus
	factory *Factory
	script  []any

	mu        sync.Mutex
	ready     []func(sandbox.Namespace)
	started   bool
	destroyed bool
	done      chan struct{}
	Globals   map[string]any
}

// namespace records values injected into the fake
type namespace struct{ f *Fake }

func (n namespace) Set(name string, value any) error {
	n.f.mu.Lock()
	defer n.f.mu.Unlock()
	n.f.Globals[name] = value
	return nil
}

// OnReady implements sandbox.Handle
func (f *Fake) OnReady(fn func(sandbox.Namespace)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = append(f.ready, fn)
}

// Start implements sandbox.Handle. The scripted messages, if any, are posted
// from a separate goroutine.
func (f *Fake) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.destroyed {
		f.mu.Unlock()
		return sandbox.ErrDestroyed
	}
	if f.started {
		f.mu.Unlock()
		return sandbox.ErrAlreadyStarted
	}
	f.started = true
	ready := append([]func(sandbox.Namespace){}, f.ready...)
	script := f.script
	f.mu.Unlock()

	for _, fn := range ready {
		fn(namespace{f})
	}
	if f.factory != nil {
		f.factory.live.Add(1)
		f.factory.observe()
	}
	if len(script) > 0 {
		go func() {
			for _, data := range script {
				if !f.Post(data) {
					return
				}
			}
		}()
	}
	return nil
}

// Destroy implements sandbox.Handle
func (f *Fake) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return nil
	}
	f.destroyed = true
	close(f.done)
	if f.factory != nil && f.started {
		f.factory.live.Add(-1)
	}
	return nil
}

// Post sends raw data as if emitted by this sandbox
func (f *Fake) Post(data any) bool {
	return f.bus.Post(sandbox.Message{Source: f, Data: data}, f.done)
}

// Send posts an encoded envelope
func (f *Fake) Send(action string, args ...any) bool {
	return f.Post(protocol.Encode(action, args...))
}

// Started reports whether Start was called
func (f *Fake) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// Destroyed reports whether Destroy was called
func (f *Fake) Destroyed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

// Global returns a value injected through the ready namespace
func (f *Fake) Global(name string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Globals[name]
}

// Factory creates Fakes and tracks how many are live at once
type Factory struct {
	// Scripts maps a suite name to the payloads its sandbox posts on Start
	Scripts map[string][]any

	mu      sync.Mutex
	fakes   map[string]*Fake
	order   []string
	live    atomic.Int64
	maxLive atomic.Int64
}

// NewFactory creates a Factory
func NewFactory() *Factory {
	return &Factory{Scripts: map[string][]any{}, fakes: map[string]*Fake{}}
}

// New implements sandbox.Factory
func (fa *Factory) New(d domain.Descriptor, bus sandbox.Bus) (sandbox.Handle, error) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	f := &Fake{
		Descriptor: d,
		bus:        bus,
		factory:    fa,
		script:     fa.Scripts[d.Name()],
		done:       make(chan struct{}),
		Globals:    map[string]any{},
	}
	fa.fakes[d.Name()] = f
	fa.order = append(fa.order, d.Name())
	return f, nil
}

// Get returns the fake created for a suite name
func (fa *Factory) Get(name string) *Fake {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.fakes[name]
}

// MaxLive is the highest number of started, not yet destroyed fakes observed
func (fa *Factory) MaxLive() int {
	return int(fa.maxLive.Load())
}

func (fa *Factory) observe() {
	for {
		cur, top := fa.live.Load(), fa.maxLive.Load()
		if cur <= top || fa.maxLive.CompareAndSwap(top, cur) {
			return
		}
	}
}

// Script builds a typical suite script: started(total), one passing result per
// test, then complete with the optional completion record.
func Script(total int, complete map[string]any) []any {
	script := []any{protocol.Encode(protocol.ActionStarted, total)}
	for i := 0; i < total; i++ {
		script = append(script, protocol.Encode(protocol.ActionResult, map[string]any{
			"id":          float64(i),
			"description": "test",
			"success":     true,
		}))
	}
	if complete == nil {
		complete = map[string]any{}
	}
	return append(script, protocol.Encode(protocol.ActionComplete, complete))
}
