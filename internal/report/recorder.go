package report

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"sbx/internal/coverage"
	"sbx/internal/domain"
	"sbx/internal/logging"
	"sbx/internal/storage"
)

// Recorder builds the RunRecord of a run and saves it once the run is
// complete. A failed save is reported by Close.
type Recorder struct {
	storage storage.Storage
	logger  *zap.Logger
	started time.Time
	record  *domain.RunRecord
	saved   bool
	err     error
}

// NewRecorder creates a Recorder for a run over the given number of suites
func NewRecorder(st storage.Storage, runID string, concurrency, suites int, logger *zap.Logger) *Recorder {
	return &Recorder{
		storage: st,
		logger:  logging.OrNop(logger),
		started: time.Now(),
		record: &domain.RunRecord{
			Meta: domain.RunMeta{
				RunID:       runID,
				TotalSuites: suites,
				Concurrency: concurrency,
			},
			Details: []domain.Failure{},
		},
	}
}

func (r *Recorder) Info(Info) {}

func (r *Recorder) Result(rec domain.Record) {
	meta := &r.record.Meta
	meta.TotalTests++
	switch {
	case rec.Skipped():
		meta.SkippedTests++
	case rec.Success():
		meta.PassedTests++
	default:
		meta.FailedTests++
		r.record.Details = append(r.record.Details, domain.FailureFromRecord(rec))
	}
}

func (r *Recorder) Complete(rec domain.Record) {
	meta := &r.record.Meta
	report, err := coverage.Decode(rec[domain.FieldCoverage])
	if err != nil {
		r.logger.Warn("unreadable coverage in completion record", zap.Error(err))
	}
	meta.CoveredFiles = len(report)

	elapsed := time.Since(r.started)
	meta.Duration = elapsed.Round(time.Millisecond).String()
	meta.DurationSeconds = elapsed.Seconds()
	meta.Timestamp = time.Now().Format(time.RFC3339)

	if r.storage == nil {
		return
	}
	if err := r.storage.Save(r.record); err != nil {
		r.err = fmt.Errorf("failed to save run record: %w", err)
		r.logger.Error("failed to save run record", zap.Error(err))
		return
	}
	r.saved = true
}

func (r *Recorder) Error(...any) {
	r.record.Meta.Errors++
}

func (r *Recorder) Log(...any) {}

// Record returns the record built so far
func (r *Recorder) Record() *domain.RunRecord {
	return r.record
}

// Saved reports whether the record reached storage
func (r *Recorder) Saved() bool {
	return r.saved
}

// Close returns the save error, if any
func (r *Recorder) Close() error {
	return r.err
}
