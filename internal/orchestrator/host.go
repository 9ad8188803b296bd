package orchestrator

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"sbx/internal/coverage"
	"sbx/internal/domain"
	"sbx/internal/logging"
	"sbx/internal/report"
	"sbx/internal/sandbox"
	"sbx/internal/suite"
)

// Register implements suite.Host
func (r *Run) Register(s *suite.Suite) error {
	key := s.Descriptor().Path()
	if _, ok := r.index[key]; ok {
		return fmt.Errorf("suite %s registered twice", key)
	}
	r.index[key] = s
	r.suites = append(r.suites, s)
	return nil
}

// NewSandbox implements suite.Host
func (r *Run) NewSandbox(d domain.Descriptor) (sandbox.Handle, error) {
	return r.factory.New(d, r.bus)
}

// Listen implements suite.Host
func (r *Run) Listen(fn func(sandbox.Message)) func() {
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	return func() { delete(r.listeners, id) }
}

// Console implements suite.Host
func (r *Run) Console(s *suite.Suite) *logging.Console {
	return logging.NewConsole(r.logger, s.Name(), r.id)
}

// SuiteStarted implements suite.Host. The first time no suite is pending any
// more the total is announced and held back results are flushed.
func (r *Run) SuiteStarted(s *suite.Suite) {
	r.metrics.RecordTransition(domain.StateStarted)
	if r.announced || r.countWithState(domain.StatePending) > 0 {
		return
	}

	total, finished, ok := r.countTests()
	if !ok {
		return
	}
	r.announced = true
	r.logger.Info("all suites started",
		zap.Int("total", total),
		zap.Int("finished", finished),
		zap.Int("buffered", len(r.pending)),
	)
	r.consumer.Info(report.Info{Total: total})

	pending := r.pending
	r.pending = nil
	for _, rec := range pending {
		r.deliver(rec)
	}
}

// SuiteResult implements suite.Host
func (r *Run) SuiteResult(s *suite.Suite, rec domain.Record) {
	if !r.announced {
		r.pending = append(r.pending, rec)
		return
	}
	r.deliver(rec)
}

// SuiteComplete implements suite.Host. Coverage is merged on every
// completion; only the last one reaches the consumer.
func (r *Run) SuiteComplete(s *suite.Suite, rec domain.Record, cov coverage.Report) {
	r.metrics.RecordTransition(domain.StateComplete)
	if cov != nil {
		r.coverage.AddCoverage(cov)
	}
	if r.completed || r.countWithState(domain.StateComplete) < len(r.suites) {
		r.logger.Debug("suite complete", zap.String("suite", s.Name()))
		return
	}
	r.finish(rec)
}

// Forward implements suite.Host
func (r *Run) Forward(s *suite.Suite, method string, args []any) {
	if !report.Dispatch(r.consumer, method, args) {
		r.logger.Debug("consumer does not accept method",
			zap.String("suite", s.Name()),
			zap.String("method", method),
		)
	}
}

// Dropped implements suite.Host
func (r *Run) Dropped(s *suite.Suite, reason string) {
	r.metrics.RecordDropped(reason)
}

func (r *Run) deliver(rec domain.Record) {
	r.metrics.RecordResult(rec)
	r.consumer.Result(rec)
}

func (r *Run) finish(rec domain.Record) {
	if rec == nil {
		rec = domain.Record{}
	}
	if r.coverage.HasCoverage() {
		rec[domain.FieldCoverage] = r.coverage.Coverage()
	} else {
		delete(rec, domain.FieldCoverage)
	}
	r.completed = true
	r.consumer.Complete(rec)

	elapsed := time.Since(r.startedAt)
	r.metrics.RecordRun("complete", elapsed)
	r.logger.Info("run complete", zap.Duration("duration", elapsed))
}
