// Package process runs executable *.sandbox suites as child processes.
//
// The child speaks the relay protocol on stdout, one serialized envelope per
// line. Values injected through the ready namespace reach it as SBX_*
// environment variables.
package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"sbx/internal/domain"
	"sbx/internal/logging"
	"sbx/internal/protocol"
	"sbx/internal/sandbox"
)

// Options configures the processes created by a Factory
type Options struct {
	Logger *zap.Logger
	// Dir is the working directory of the child; empty means the current one
	Dir string
	// Env is appended to the parent environment
	Env []string
}

// Factory creates process sandboxes
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
		env:    map[string]string{},
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}, nil
}

// Sandbox is one child process executing one suite
type Sandbox struct {
	desc   domain.Descriptor
	bus    sandbox.Bus
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	ready     []func(sandbox.Namespace)
	env       map[string]string
	output    io.Writer
	cancel    context.CancelFunc
	started   bool
	destroyed bool
	done      chan struct{}
	exited    chan struct{}
}

type namespace struct {
	s *Sandbox
}

// Set maps a value onto the child: strings and stringers become SBX_<NAME>
// environment variables, an io.Writer receives the child's stderr.
func (n namespace) Set(name string, value any) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()

	key := "SBX_" + strings.ToUpper(name)
	switch v := value.(type) {
	case string:
		n.s.env[key] = v
	case fmt.Stringer:
		n.s.env[key] = v.String()
	case io.Writer:
		n.s.output = v
	default:
		return fmt.Errorf("cannot pass %T to a process suite", value)
	}
	return nil
}

// OnReady implements sandbox.Handle
func (s *Sandbox) OnReady(fn func(sandbox.Namespace)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = append(s.ready, fn)
}

// Start launches the child process
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

	ns := namespace{s: s}
	for _, fn := range ready {
		fn(ns)
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, s.desc.Path())
	cmd.Dir = s.opts.Dir

	s.mu.Lock()
	// Set environment variables
	cmd.Env = append(os.Environ(), s.opts.Env...)
	cmd.Env = append(cmd.Env, "SBX_SUITE="+s.desc.Name())
	for k, v := range s.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	output := s.output
	s.cancel = cancel
	s.mu.Unlock()

	if output == nil {
		output = io.Discard
	}
	cmd.Stderr = output
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		close(s.exited)
		return fmt.Errorf("pipe suite %s: %w", s.desc.Name(), err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		close(s.exited)
		return fmt.Errorf("start suite %s: %w", s.desc.Name(), err)
	}

	go s.pump(cmd, stdout, output)
	return nil
}

// pump relays envelope lines until the child exits
func (s *Sandbox) pump(cmd *exec.Cmd, stdout io.Reader, output io.Writer) {
	defer close(s.exited)

	// Lines are read without a size cap; stdout must be drained before Wait.
	reader := bufio.NewReader(stdout)
	for {
		raw, err := reader.ReadString('\n')
		if raw != "" {
			line := strings.TrimRight(raw, "\r\n")
			if !strings.HasPrefix(line, "[") {
				fmt.Fprintln(output, line)
			} else if !s.bus.Post(sandbox.Message{Source: s, Data: line}, s.done) {
				// destroyed; let the child drain into the void
				_, _ = io.Copy(io.Discard, stdout)
				break
			}
		}
		if err != nil {
			if err != io.EOF {
				s.logger.Warn("reading suite output", zap.Error(err))
				_, _ = io.Copy(io.Discard, stdout)
			}
			break
		}
	}

	err := cmd.Wait()
	s.mu.Lock()
	s.cancel()
	destroyed := s.destroyed
	s.mu.Unlock()

	if err != nil && !destroyed {
		data, _ := protocol.Marshal(protocol.ActionError, fmt.Sprintf("%s: suite process exited: %v", s.desc.Name(), err))
		s.bus.Post(sandbox.Message{Source: s, Data: string(data)}, s.done)
	}
}

// Destroy kills the child process if it is still running
func (s *Sandbox) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil
	}
	s.destroyed = true
	close(s.done)
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
