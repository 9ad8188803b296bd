package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sbx/internal/domain"
)

func TestRecordResult(t *testing.T) {
	m := New()

	m.RecordResult(domain.Record{"success": true})
	m.RecordResult(domain.Record{"success": true})
	m.RecordResult(domain.Record{"success": false})
	m.RecordResult(domain.Record{"skipped": true})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.results.WithLabelValues("passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.results.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.results.WithLabelValues("skipped")))
}

func TestSuiteGauge(t *testing.T) {
	m := New()

	m.SuiteLaunched()
	m.SuiteLaunched()
	m.SuiteReleased()
	m.RecordTransition(domain.StateStarted)
	m.RecordDropped(DropMalformed)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.suitesRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.suiteTransitions.WithLabelValues("started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedMessages.WithLabelValues(DropMalformed)))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SuiteLaunched()
		m.SuiteReleased()
		m.RecordTransition(domain.StateComplete)
		m.RecordResult(domain.Record{})
		m.RecordDropped(DropState)
		m.RecordRun("passed", time.Second)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordRun("passed", 2*time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `sbx_runs_total{outcome="passed"} 1`))
	assert.Contains(t, body, "sbx_run_duration_seconds_count 1")
}
