// Package jsvm runs *.sandbox.js suites in an isolated goja runtime.
//
// Every suite gets its own runtime with browser-like globals (window, dialogs,
// timers) and the __sbx__ bridge. Messages leave the runtime as serialized
// text through the sandbox bus.
package jsvm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"sbx/internal/bridge"
	"sbx/internal/domain"
	"sbx/internal/logging"
	"sbx/internal/protocol"
	"sbx/internal/sandbox"
)

const maxCallStackSize = 1024

// ErrTimeout interrupts a suite that ran longer than Options.Timeout
var ErrTimeout = errors.New("suite timed out")

// Options configures the runtimes created by a Factory
type Options struct {
	Logger *zap.Logger
	// Config is exposed to suite code as __sbx__.config
	Config map[string]any
	// Timeout bounds the whole execution of one suite; zero means no limit
	Timeout time.Duration
}

// Factory creates goja sandboxes
type Factory struct {
	opts Options
}

// NewFactory creates a new Factory
func NewFactory(opts Options) *Factory {
	opts.Logger = logging.OrNop(opts.Logger)
	return &Factory{opts: opts}
}

// New implements sandbox.Factory
func (f *Factory) New(d domain.Descriptor, bus sandbox.Bus) (sandbox.Handle, error) {
	return &Sandbox{
		desc:   d,
		bus:    bus,
		opts:   f.opts,
		logger: f.opts.Logger.With(zap.String("suite", d.Name())),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}, nil
}

// Sandbox is one goja runtime executing one suite file
type Sandbox struct {
	desc   domain.Descriptor
	bus    sandbox.Bus
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	ready     []func(sandbox.Namespace)
	started   bool
	destroyed bool
	done      chan struct{}
	exited    chan struct{}
}

type namespace struct {
	vm *goja.Runtime
}

func (n namespace) Set(name string, value any) error {
	return n.vm.Set(name, value)
}

// OnReady implements sandbox.Handle
func (s *Sandbox) OnReady(fn func(sandbox.Namespace)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = append(s.ready, fn)
}

// Start loads the suite file, prepares the runtime and runs the suite in the
// background. Ready callbacks run before this returns.
func (s *Sandbox) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.destroyed:
		s.mu.Unlock()
		return sandbox.ErrDestroyed
	case s.started:
		s.mu.Unlock()
		return sandbox.ErrAlreadyStarted
	}
	s.started = true
	ready := append([]func(sandbox.Namespace){}, s.ready...)
	s.mu.Unlock()

	src, err := os.ReadFile(s.desc.Path())
	if err != nil {
		close(s.exited)
		return fmt.Errorf("load suite %s: %w", s.desc.Name(), err)
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	vm.SetMaxCallStackSize(maxCallStackSize)

	timers := &timerQueue{}
	s.setupGlobals(vm, timers)
	bridge.Install(vm, bridge.NewRelay(s.post, s.config()))

	ns := namespace{vm: vm}
	for _, fn := range ready {
		fn(ns)
	}

	go s.run(ctx, vm, string(src), timers)
	return nil
}

// Destroy interrupts the runtime. It does not wait for it to stop.
func (s *Sandbox) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil
	}
	s.destroyed = true
	close(s.done)
	return nil
}

func (s *Sandbox) isDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

func (s *Sandbox) config() map[string]any {
	config := map[string]any{
		"suite": s.desc.Name(),
		"path":  s.desc.Path(),
	}
	for k, v := range s.opts.Config {
		config[k] = v
	}
	return config
}

func (s *Sandbox) run(ctx context.Context, vm *goja.Runtime, src string, timers *timerQueue) {
	defer close(s.exited)

	stop := make(chan struct{})
	defer close(stop)
	go s.watch(ctx, vm, stop)

	prog, err := goja.Compile(s.desc.Path(), src, false)
	if err != nil {
		_ = s.post(protocol.ActionError, []any{fmt.Sprintf("%s: %v", s.desc.Name(), err)})
		return
	}
	if _, err := vm.RunProgram(prog); err != nil && !s.uncaught(vm, err) {
		return
	}
	for !s.isDestroyed() {
		t, ok := timers.next()
		if !ok {
			return
		}
		if _, err := t.fn(goja.Undefined(), t.args...); err != nil && !s.uncaught(vm, err) {
			return
		}
	}
}

func (s *Sandbox) watch(ctx context.Context, vm *goja.Runtime, stop <-chan struct{}) {
	var timeout <-chan time.Time
	if s.opts.Timeout > 0 {
		timer := time.NewTimer(s.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		vm.Interrupt(ctx.Err())
	case <-timeout:
		vm.Interrupt(ErrTimeout)
	case <-s.done:
		vm.Interrupt(sandbox.ErrDestroyed)
	case <-stop:
	}
}

// uncaught handles an error that escaped suite code and reports whether the
// runtime may keep going.
func (s *Sandbox) uncaught(vm *goja.Runtime, err error) bool {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, _ := interrupted.Value().(error); errors.Is(cause, ErrTimeout) {
			_ = s.post(protocol.ActionError, []any{fmt.Sprintf("%s: %s after %s", s.desc.Name(), ErrTimeout, s.opts.Timeout)})
		}
		return false
	}

	var ex *goja.Exception
	if !errors.As(err, &ex) {
		_ = s.post(protocol.ActionError, []any{fmt.Sprintf("%s: %v", s.desc.Name(), err)})
		return false
	}

	message := "Uncaught " + ex.Value().String()
	if onerror, ok := goja.AssertFunction(vm.Get("onerror")); ok {
		handled, callErr := onerror(goja.Undefined(), vm.ToValue(message), vm.ToValue(s.desc.Path()),
			vm.ToValue(0), vm.ToValue(0), ex.Value())
		if callErr == nil && handled != nil && handled.ToBoolean() {
			return true
		}
		if callErr != nil {
			s.logger.Warn("onerror handler failed", zap.Error(callErr))
		}
	}
	s.logger.Warn(message)
	return true
}

func (s *Sandbox) post(action string, args []any) error {
	data, err := protocol.Marshal(action, args...)
	if err != nil {
		s.logger.Warn("cannot serialize relay message", zap.String("action", action), zap.Error(err))
		return fmt.Errorf("serialize %s: %w", action, err)
	}
	if !s.bus.Post(sandbox.Message{Source: s, Data: string(data)}, s.done) {
		return sandbox.ErrDestroyed
	}
	return nil
}

// setupGlobals installs the browser-like globals suite code expects
func (s *Sandbox) setupGlobals(vm *goja.Runtime, timers *timerQueue) {
	global := vm.GlobalObject()
	_ = vm.Set("window", global)
	_ = vm.Set("self", global)
	_ = vm.Set("require", goja.Undefined())
	_ = vm.Set("process", goja.Undefined())

	// native dialogs; nobody is there to answer
	_ = vm.Set("alert", func(call goja.FunctionCall) goja.Value {
		s.logger.Debug("alert", zap.String("message", call.Argument(0).String()))
		return goja.Undefined()
	})
	_ = vm.Set("confirm", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(false)
	})
	_ = vm.Set("prompt", func(goja.FunctionCall) goja.Value {
		return goja.Null()
	})

	timers.install(vm)
}
