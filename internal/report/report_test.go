package report

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sbx/internal/coverage"
	"sbx/internal/domain"
)

type recorded struct {
	calls []string
}

func (r *recorded) Info(info Info)               { r.calls = append(r.calls, "info") }
func (r *recorded) Result(domain.Record)         { r.calls = append(r.calls, "result") }
func (r *recorded) Complete(domain.Record)       { r.calls = append(r.calls, "complete") }
func (r *recorded) Error(...any)                 { r.calls = append(r.calls, "error") }
func (r *recorded) Log(...any)                   { r.calls = append(r.calls, "log") }
func (r *recorded) Call(method string, _ ...any) { r.calls = append(r.calls, "call:"+method) }

type plain struct{ recorded }

// Call shadows the promoted method so plain is not a Caller
func (plain) Call() {}

type closer struct {
	recorded
	err error
}

func (c *closer) Close() error { return c.err }

func TestDispatch(t *testing.T) {
	r := &recorded{}
	assert.True(t, Dispatch(r, "error", []any{"boom"}))
	assert.True(t, Dispatch(r, "log", []any{"hi"}))
	assert.True(t, Dispatch(r, "coverageReady", nil))
	assert.Equal(t, []string{"error", "log", "call:coverageReady"}, r.calls)

	p := &plain{}
	assert.False(t, Dispatch(p, "coverageReady", nil))
	assert.True(t, Dispatch(p, "log", nil))
}

func TestMulti(t *testing.T) {
	a, b := &recorded{}, &closer{err: errors.New("b failed")}
	m := NewMulti(a, nil, b)
	require.Len(t, m, 2)

	m.Info(Info{Total: 1})
	m.Result(domain.Record{})
	m.Call("custom")
	m.Complete(domain.Record{})

	want := []string{"info", "result", "call:custom", "complete"}
	assert.Equal(t, want, a.calls)
	assert.Equal(t, want, b.calls)
	assert.EqualError(t, m.Close(), "b failed")
}

func TestConsole(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	c := NewConsole(&buf, nil)

	c.Info(Info{Total: 3})
	c.Result(domain.Record{"success": true})
	c.Result(domain.Record{"success": false})
	c.Result(domain.Record{"skipped": true})
	c.Error("auth", ": boom")
	c.Log("hello")
	c.Complete(domain.Record{})

	passed, failed, skipped, errs := c.Counts()
	assert.Equal(t, []int{1, 1, 1, 1}, []int{passed, failed, skipped, errs})
	out := buf.String()
	assert.Contains(t, out, "error: auth: boom")
	assert.Contains(t, out, "hello\n")
}

type memory struct {
	saved *domain.RunRecord
	err   error
}

func (m *memory) Save(record *domain.RunRecord) error {
	m.saved = record
	return m.err
}

func (m *memory) Load() (*domain.RunRecord, error) { return m.saved, nil }

func TestRecorder(t *testing.T) {
	st := &memory{}
	r := NewRecorder(st, "run-1", 4, 2, nil)

	failed := domain.Record{"id": "1", "description": "rejects", "success": false, "log": []any{"expected 401"}}
	failed.Stamp("auth")
	r.Info(Info{Total: 3})
	r.Result(domain.Record{"success": true})
	r.Result(failed)
	r.Result(domain.Record{"skipped": true})
	r.Error("auth: boom")
	r.Complete(domain.Record{domain.FieldCoverage: coverage.Report{
		"a.js": {S: map[string]int{"0": 1}},
		"b.js": {S: map[string]int{"0": 0}},
	}})

	require.NoError(t, r.Close())
	require.True(t, r.Saved())
	require.Same(t, r.Record(), st.saved)

	meta := st.saved.Meta
	assert.Equal(t, "run-1", meta.RunID)
	assert.Equal(t, 2, meta.TotalSuites)
	assert.Equal(t, 4, meta.Concurrency)
	assert.Equal(t, 3, meta.TotalTests)
	assert.Equal(t, 1, meta.PassedTests)
	assert.Equal(t, 1, meta.FailedTests)
	assert.Equal(t, 1, meta.SkippedTests)
	assert.Equal(t, 1, meta.Errors)
	assert.Equal(t, 2, meta.CoveredFiles)
	assert.NotEmpty(t, meta.Timestamp)

	require.Len(t, st.saved.Details, 1)
	assert.Equal(t, "auth#1", st.saved.Details[0].ID)
	assert.Equal(t, []string{"expected 401"}, st.saved.Details[0].Log)
}

func TestRecorderSaveError(t *testing.T) {
	st := &memory{err: errors.New("disk full")}
	r := NewRecorder(st, "run-1", 1, 0, nil)

	r.Complete(domain.Record{})

	assert.False(t, r.Saved())
	err := r.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, r.Record().Details)
}

func TestWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan Call, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var c Call
			if err := conn.ReadJSON(&c); err != nil {
				close(received)
				return
			}
			received <- c
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, err := DialWebSocket(context.Background(), url, nil)
	require.NoError(t, err)

	ws.Info(Info{Total: 1})
	ws.Result(domain.Record{"id": "auth#1", "success": true})
	ws.Call("custom", "x")
	ws.Log()
	ws.Complete(domain.Record{})
	require.NoError(t, ws.Close())

	var calls []Call
	for c := range received {
		calls = append(calls, c)
	}
	require.Len(t, calls, 5)
	assert.Equal(t, "info", calls[0].Method)
	assert.Equal(t, []any{map[string]any{"total": float64(1)}}, calls[0].Args)
	assert.Equal(t, "result", calls[1].Method)
	assert.Equal(t, []any{"x"}, calls[2].Args)
	assert.Equal(t, []any{}, calls[3].Args)
	assert.Equal(t, "complete", calls[4].Method)
}

func TestDialWebSocketError(t *testing.T) {
	_, err := DialWebSocket(context.Background(), "ws://127.0.0.1:1/none", nil)
	assert.Error(t, err)
}
