// Package suite tracks one isolated suite execution: it owns the suite's
// sandbox, follows its lifecycle and turns relay messages into run events.
package suite

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sbx/internal/coverage"
	"sbx/internal/domain"
	"sbx/internal/logging"
	"sbx/internal/metrics"
	"sbx/internal/protocol"
	"sbx/internal/sandbox"
)

// ErrNotInitialized is returned by Run before Init
var ErrNotInitialized = errors.New("suite not initialized")

// Host is the run a suite belongs to. All calls happen on the run's event
// loop.
type Host interface {
	// Register adds the suite to the registry under its descriptor path
	Register(s *Suite) error
	// NewSandbox creates the sandbox the suite will own
	NewSandbox(d domain.Descriptor) (sandbox.Handle, error)
	// Listen subscribes fn to every sandbox message of the run
	Listen(fn func(sandbox.Message)) (remove func())
	// Console returns the logging handle injected into the suite's sandbox
	Console(s *Suite) *logging.Console

	SuiteStarted(s *Suite)
	SuiteResult(s *Suite, rec domain.Record)
	SuiteComplete(s *Suite, rec domain.Record, cov coverage.Report)
	// Forward passes any other consumer method through
	Forward(s *Suite, method string, args []any)
	// Dropped is told about every message the suite rejects
	Dropped(s *Suite, reason string)
}

// Suite is one suite execution
type Suite struct {
	desc   domain.Descriptor
	logger *zap.Logger
	host   Host

	state    domain.State
	expected int
	finished int
	handle   sandbox.Handle
	remove   func()

	// OnComplete is called once the suite completed, before its resources are
	// released.
	OnComplete func()
}

// New creates a pending Suite for d
func New(d domain.Descriptor, logger *zap.Logger) *Suite {
	return &Suite{
		desc:       d,
		logger:     logging.OrNop(logger).With(zap.String("suite", d.Name())),
		OnComplete: func() {},
	}
}

// Descriptor returns the suite descriptor
func (s *Suite) Descriptor() domain.Descriptor { return s.desc }

// Name returns the suite name
func (s *Suite) Name() string { return s.desc.Name() }

// State returns the lifecycle state
func (s *Suite) State() domain.State { return s.state }

// Expected returns the declared total; ok is false while pending
func (s *Suite) Expected() (total int, ok bool) {
	return s.expected, s.state != domain.StatePending
}

// Finished returns the number of results received
func (s *Suite) Finished() int { return s.finished }

// Init creates the sandbox, registers the suite with host and subscribes to
// sandbox messages. Once the sandbox namespace is ready the console and the
// trace id are injected into it.
func (s *Suite) Init(host Host) error {
	handle, err := host.NewSandbox(s.desc)
	if err != nil {
		return fmt.Errorf("create sandbox for %s: %w", s.Name(), err)
	}
	if err := host.Register(s); err != nil {
		_ = handle.Destroy()
		return err
	}

	s.host = host
	s.handle = handle
	handle.OnReady(func(ns sandbox.Namespace) {
		console := host.Console(s)
		if err := ns.Set("console", console); err != nil {
			s.logger.Warn("cannot inject console", zap.Error(err))
		}
		if err := ns.Set("traceId", console.TraceID()); err != nil {
			s.logger.Warn("cannot inject trace id", zap.Error(err))
		}
	})
	s.remove = host.Listen(s.receive)
	return nil
}

// Run starts the sandbox. It is the only way test execution begins.
func (s *Suite) Run(ctx context.Context) error {
	if s.handle == nil {
		return ErrNotInitialized
	}
	if err := s.handle.Start(ctx); err != nil {
		return fmt.Errorf("run suite %s: %w", s.Name(), err)
	}
	return nil
}

// Fail reports err to the consumer and completes the suite without a record.
// It does nothing for completed suites.
func (s *Suite) Fail(err error) {
	if s.state == domain.StateComplete {
		return
	}
	s.host.Forward(s, protocol.ActionError, []any{fmt.Sprintf("%s: %v", s.Name(), err)})
	s.complete(domain.Record{}, nil)
}

// Close releases the sandbox and the message subscription. It is safe to
// call more than once.
func (s *Suite) Close() {
	if s.remove != nil {
		s.remove()
		s.remove = nil
	}
	if s.handle != nil {
		if err := s.handle.Destroy(); err != nil {
			s.logger.Warn("destroy sandbox", zap.Error(err))
		}
		s.handle = nil
	}
}

func (s *Suite) receive(msg sandbox.Message) {
	if s.handle == nil || msg.Source != s.handle {
		return
	}

	m, err := protocol.Decode(msg.Data)
	if errors.Is(err, protocol.ErrNotRelay) {
		return
	}
	if err != nil {
		s.logger.Warn("dropping malformed message", zap.Error(err))
		s.host.Dropped(s, metrics.DropMalformed)
		return
	}

	s.logger.Debug("received", zap.String("action", protocol.Action(m)))
	switch m := m.(type) {
	case protocol.Started:
		s.start(m.Total)
	case protocol.Result:
		s.result(m.Record)
	case protocol.Complete:
		if m.CoverageErr != nil {
			s.logger.Warn("ignoring unreadable coverage",
				zap.String("action", protocol.Action(m)),
				zap.Error(m.CoverageErr),
			)
			s.host.Dropped(s, metrics.DropCoverage)
		}
		s.complete(m.Record, m.Coverage)
	case protocol.Forwarded:
		s.host.Forward(s, m.Method, m.Args)
	}
}

func (s *Suite) start(total int) {
	if !s.state.Next(domain.StateStarted) {
		s.logger.Warn("ignoring started", zap.Stringer("state", s.state))
		s.host.Dropped(s, metrics.DropState)
		return
	}
	s.state = domain.StateStarted
	s.expected = total
	s.host.SuiteStarted(s)
}

func (s *Suite) result(rec domain.Record) {
	if s.state != domain.StateStarted {
		s.logger.Warn("dropping result", zap.Stringer("state", s.state), zap.String("id", rec.ID()))
		s.host.Dropped(s, metrics.DropState)
		s.host.Forward(s, protocol.ActionError, []any{
			fmt.Sprintf("%s: result %q received before the suite started", s.Name(), rec.ID()),
		})
		return
	}

	s.finished++
	if s.finished > s.expected {
		s.host.Forward(s, protocol.ActionError, []any{
			fmt.Sprintf("%s: %d results exceed the declared total of %d", s.Name(), s.finished, s.expected),
		})
	}
	rec.Stamp(s.Name())
	s.host.SuiteResult(s, rec)
}

func (s *Suite) complete(rec domain.Record, cov coverage.Report) {
	if s.state == domain.StatePending {
		s.start(0)
	}
	s.state = domain.StateComplete
	s.host.SuiteComplete(s, rec, cov)
	if s.OnComplete != nil {
		s.OnComplete()
	}
	s.Close()
}
