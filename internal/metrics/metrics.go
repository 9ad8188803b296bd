// Package metrics exposes run and suite counters to prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sbx/internal/domain"
)

const Namespace = "sbx"

// Drop reasons
const (
	DropMalformed = "malformed"
	DropState     = "state"
	DropCoverage  = "coverage"
)

// Metrics holds the collectors of one registry. A nil *Metrics records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	suitesRunning    prometheus.Gauge
	suiteTransitions *prometheus.CounterVec
	results          *prometheus.CounterVec
	droppedMessages  *prometheus.CounterVec
	runs             *prometheus.CounterVec
	runDuration      prometheus.Histogram
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		suitesRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "suites_running",
			Help:      "Number of suites holding a live sandbox",
		}),
		suiteTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "suite_transitions_total",
			Help:      "Suite state transitions",
		}, []string{"state"}),
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "results_total",
			Help:      "Test results relayed to the consumer",
		}, []string{"status"}),
		droppedMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dropped_messages_total",
			Help:      "Sandbox messages dropped by a suite",
		}, []string{"reason"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Finished runs",
		}, []string{"outcome"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a whole run",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordTransition counts a suite reaching state
func (m *Metrics) RecordTransition(state domain.State) {
	if m == nil {
		return
	}
	m.suiteTransitions.WithLabelValues(state.String()).Inc()
}

// SuiteLaunched marks one more live sandbox
func (m *Metrics) SuiteLaunched() {
	if m == nil {
		return
	}
	m.suitesRunning.Inc()
}

// SuiteReleased marks a sandbox as gone
func (m *Metrics) SuiteReleased() {
	if m == nil {
		return
	}
	m.suitesRunning.Dec()
}

// RecordResult counts one relayed result
func (m *Metrics) RecordResult(rec domain.Record) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(status(rec)).Inc()
}

// RecordDropped counts a dropped message
func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.droppedMessages.WithLabelValues(reason).Inc()
}

// RecordRun counts a finished run and observes its duration
func (m *Metrics) RecordRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(d.Seconds())
}

func status(rec domain.Record) string {
	switch {
	case rec.Skipped():
		return "skipped"
	case rec.Success():
		return "passed"
	default:
		return "failed"
	}
}
