// Package orchestrator runs a set of suites as one unified test run.
//
// A Run owns the suite registry, schedules suite launches under a concurrency
// cap, holds results back until every suite announced its total and reports
// a single aggregate completion. All run state is touched from one event loop
// goroutine; sandboxes only talk to it through the message bus.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sbx/internal/coverage"
	"sbx/internal/domain"
	"sbx/internal/logging"
	"sbx/internal/metrics"
	"sbx/internal/report"
	"sbx/internal/sandbox"
	"sbx/internal/suite"
)

// DefaultConcurrency applies when no positive cap is configured
const DefaultConcurrency = 10

const busSize = 256

// ErrDeadline fails the suites still running when Config.Deadline passes
var ErrDeadline = errors.New("run deadline exceeded")

// Config holds the run options
type Config struct {
	// ID names the run; a random uuid is used when empty
	ID string
	// Concurrency caps the suites holding a live sandbox
	Concurrency int
	// ShowFrameTitle is passed to sandboxes; it has no effect on scheduling
	ShowFrameTitle bool
	// Deadline fails every incomplete suite once passed; zero means none
	Deadline time.Duration
}

// Run is one orchestrated run. It is single use.
type Run struct {
	id       string
	cfg      Config
	factory  sandbox.Factory
	consumer report.Reporter
	logger   *zap.Logger
	metrics  *metrics.Metrics

	ctx       context.Context
	bus       sandbox.ChanBus
	tasks     []func()
	listeners map[int]func(sandbox.Message)
	nextID    int

	suites    []*suite.Suite
	index     map[string]*suite.Suite
	queue     []*suite.Suite
	running   int
	pending   []domain.Record
	coverage  *coverage.Aggregator
	announced bool
	completed bool
	startedAt time.Time
}

// New creates a Run. m may be nil.
func New(cfg Config, factory sandbox.Factory, consumer report.Reporter, logger *zap.Logger, m *metrics.Metrics) *Run {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Run{
		id:        id,
		cfg:       cfg,
		factory:   factory,
		consumer:  consumer,
		logger:    logging.OrNop(logger).With(zap.String("run_id", id)),
		metrics:   m,
		bus:       sandbox.NewChanBus(busSize),
		listeners: map[int]func(sandbox.Message){},
		index:     map[string]*suite.Suite{},
		coverage:  coverage.NewAggregator(),
	}
}

// ID returns the run id, also used as the trace id handed to sandboxes
func (r *Run) ID() string { return r.id }

// Config returns the effective configuration
func (r *Run) Config() Config { return r.cfg }

// Execute creates one suite per descriptor, runs them all and returns once
// the aggregate completion was reported to the consumer. Descriptors are
// launched in the given order.
//
// Cancelling ctx tears every sandbox down and returns ctx.Err() without a
// completion.
func (r *Run) Execute(ctx context.Context, descriptors []domain.Descriptor) error {
	if r.ctx != nil {
		return errors.New("run already executed")
	}
	r.ctx = ctx
	r.startedAt = time.Now()

	for _, d := range descriptors {
		s := suite.New(d, r.logger)
		if err := s.Init(r); err != nil {
			r.closeAll()
			return fmt.Errorf("initialize suites: %w", err)
		}
	}
	r.logger.Info("starting run",
		zap.Int("suites", len(r.suites)),
		zap.Int("concurrency", r.cfg.Concurrency),
	)

	if len(r.suites) == 0 {
		r.consumer.Info(report.Info{Total: 0})
		r.finish(domain.Record{})
		return nil
	}

	r.queue = append([]*suite.Suite{}, r.suites...)
	r.later(r.schedule)
	return r.loop(ctx)
}

func (r *Run) loop(ctx context.Context) error {
	var deadline <-chan time.Time
	if r.cfg.Deadline > 0 {
		timer := time.NewTimer(r.cfg.Deadline)
		defer timer.Stop()
		deadline = timer.C
	}

	for !r.completed {
		if len(r.tasks) > 0 {
			task := r.tasks[0]
			r.tasks = r.tasks[1:]
			task()
			continue
		}

		select {
		case msg := <-r.bus:
			r.dispatch(msg)
		case <-deadline:
			r.expire()
		case <-ctx.Done():
			r.closeAll()
			r.metrics.RecordRun("cancelled", time.Since(r.startedAt))
			return ctx.Err()
		}
	}
	return nil
}

// later queues fn to run on a later turn of the loop
func (r *Run) later(fn func()) {
	r.tasks = append(r.tasks, fn)
}

func (r *Run) dispatch(msg sandbox.Message) {
	for _, fn := range r.listeners {
		fn(msg)
	}
}

// schedule launches the next queued suite if a slot is free
func (r *Run) schedule() {
	if r.running >= r.cfg.Concurrency || len(r.queue) == 0 {
		return
	}
	s := r.queue[0]
	r.queue = r.queue[1:]

	s.OnComplete = func() {
		r.running--
		r.metrics.SuiteReleased()
		r.later(r.schedule)
	}
	r.running++
	r.metrics.SuiteLaunched()
	r.logger.Debug("launching suite", zap.String("suite", s.Name()), zap.Int("running", r.running))
	if err := s.Run(r.ctx); err != nil {
		r.logger.Warn("suite failed to start", zap.String("suite", s.Name()), zap.Error(err))
		s.Fail(err)
	}

	if r.running < r.cfg.Concurrency {
		r.later(r.schedule)
	}
}

// expire fails every suite that has not completed yet
func (r *Run) expire() {
	r.logger.Warn("run deadline exceeded", zap.Duration("deadline", r.cfg.Deadline))
	r.queue = nil
	for _, s := range r.suites {
		s.Fail(ErrDeadline)
	}
}

func (r *Run) closeAll() {
	for _, s := range r.suites {
		s.Close()
	}
}

// SuitesWithState returns the registered suites in the given state. A
// leading "!" negates the filter, so "!pending" matches started and complete
// suites.
func (r *Run) SuitesWithState(name string) ([]*suite.Suite, error) {
	negate := strings.HasPrefix(name, "!")
	state, err := domain.ParseState(strings.TrimPrefix(name, "!"))
	if err != nil {
		return nil, err
	}

	var out []*suite.Suite
	for _, s := range r.suites {
		if (s.State() == state) != negate {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Run) countWithState(state domain.State) int {
	n := 0
	for _, s := range r.suites {
		if s.State() == state {
			n++
		}
	}
	return n
}

// countTests sums declared totals and finished counts. ok is false while a
// suite has not declared its total yet.
func (r *Run) countTests() (total, finished int, ok bool) {
	for _, s := range r.suites {
		expected, known := s.Expected()
		if !known {
			return 0, 0, false
		}
		total += expected
		finished += s.Finished()
	}
	return total, finished, true
}
