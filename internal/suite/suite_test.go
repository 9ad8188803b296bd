package suite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sbx/internal/coverage"
	"sbx/internal/domain"
	"sbx/internal/logging"
	"sbx/internal/protocol"
	"sbx/internal/sandbox"
	"sbx/internal/sandbox/sandboxtest"
)

type event struct {
	kind   string
	record domain.Record
	cov    coverage.Report
	method string
	args   []any
}

// host is a minimal single-suite run
type host struct {
	bus        sandbox.ChanBus
	factory    *sandboxtest.Factory
	listeners  map[int]func(sandbox.Message)
	next       int
	registered []*Suite
	events     []event
	dropped    []string
	failCreate error
}

func newHost() *host {
	return &host{
		bus:       sandbox.NewChanBus(32),
		factory:   sandboxtest.NewFactory(),
		listeners: map[int]func(sandbox.Message){},
	}
}

func (h *host) Register(s *Suite) error {
	for _, r := range h.registered {
		if r.Descriptor().Path() == s.Descriptor().Path() {
			return errors.New("duplicate suite")
		}
	}
	h.registered = append(h.registered, s)
	return nil
}

func (h *host) NewSandbox(d domain.Descriptor) (sandbox.Handle, error) {
	if h.failCreate != nil {
		return nil, h.failCreate
	}
	return h.factory.New(d, h.bus)
}

func (h *host) Listen(fn func(sandbox.Message)) func() {
	id := h.next
	h.next++
	h.listeners[id] = fn
	return func() { delete(h.listeners, id) }
}

func (h *host) Console(s *Suite) *logging.Console {
	return logging.NewConsole(nil, s.Name(), "trace-1")
}

func (h *host) SuiteStarted(s *Suite) { h.events = append(h.events, event{kind: "started"}) }

func (h *host) SuiteResult(s *Suite, rec domain.Record) {
	h.events = append(h.events, event{kind: "result", record: rec})
}

func (h *host) SuiteComplete(s *Suite, rec domain.Record, cov coverage.Report) {
	h.events = append(h.events, event{kind: "complete", record: rec, cov: cov})
}

func (h *host) Forward(s *Suite, method string, args []any) {
	h.events = append(h.events, event{kind: "forward", method: method, args: args})
}

func (h *host) Dropped(s *Suite, reason string) { h.dropped = append(h.dropped, reason) }

// deliver hands a message to every listener like the run loop does
func (h *host) deliver(msg sandbox.Message) {
	for _, fn := range h.listeners {
		fn(msg)
	}
}

// pump delivers n posted messages
func (h *host) pump(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case msg := <-h.bus:
			h.deliver(msg)
		case <-time.After(5 * time.Second):
			t.Fatalf("delivered %d of %d messages", i, n)
		}
	}
}

func (h *host) kinds() []string {
	var out []string
	for _, e := range h.events {
		out = append(out, e.kind)
	}
	return out
}

func newSuite(t *testing.T, h *host, path string) (*Suite, *sandboxtest.Fake) {
	t.Helper()
	d, ok := domain.NewDescriptor(path)
	require.True(t, ok)
	s := New(d, nil)
	require.NoError(t, s.Init(h))
	return s, h.factory.Get(d.Name())
}

func TestSuiteLifecycle(t *testing.T) {
	h := newHost()
	s, fake := newSuite(t, h, "suites/math.sandbox.js")

	completed := 0
	s.OnComplete = func() {
		completed++
		assert.False(t, fake.Destroyed(), "callback runs before cleanup")
	}

	require.NoError(t, s.Run(context.Background()))
	assert.True(t, fake.Started())
	assert.NotNil(t, fake.Global("console"))
	assert.Equal(t, "trace-1", fake.Global("traceId"))

	fake.Send(protocol.ActionStarted, 2)
	fake.Send(protocol.ActionResult, map[string]any{"id": float64(1), "suite": []any{"inner"}})
	fake.Send(protocol.ActionLog, "hello")
	fake.Send(protocol.ActionResult, map[string]any{"id": "b"})
	fake.Send(protocol.ActionComplete, map[string]any{
		"coverage": map[string]any{"a.js": map[string]any{"s": map[string]any{"0": 1}}},
	})
	h.pump(t, 5)

	assert.Equal(t, []string{"started", "result", "forward", "result", "complete"}, h.kinds())
	assert.Equal(t, domain.StateComplete, s.State())
	assert.Equal(t, 2, s.Finished())
	total, ok := s.Expected()
	assert.True(t, ok)
	assert.Equal(t, 2, total)

	first := h.events[1].record
	assert.Equal(t, "math#1", first.ID())
	assert.Equal(t, []string{"math", "inner"}, first.SuitePath())
	assert.Equal(t, "math#b", h.events[3].record.ID())
	assert.Equal(t, "log", h.events[2].method)
	assert.Equal(t, []any{"hello"}, h.events[2].args)
	assert.Equal(t, 1, h.events[4].cov["a.js"].S["0"])

	assert.Equal(t, 1, completed)
	assert.True(t, fake.Destroyed())
	assert.Empty(t, h.listeners)
}

func TestSuiteIgnoresForeignSources(t *testing.T) {
	h := newHost()
	s, fake := newSuite(t, h, "a.sandbox.js")
	require.NoError(t, s.Run(context.Background()))

	h.deliver(sandbox.Message{Source: nil, Data: protocol.Encode(protocol.ActionStarted, 1)})
	other := &sandboxtest.Fake{}
	h.deliver(sandbox.Message{Source: other, Data: protocol.Encode(protocol.ActionStarted, 1)})
	h.deliver(sandbox.Message{Source: fake, Data: `{"not":"relay"}`})
	h.deliver(sandbox.Message{Source: fake, Data: []any{"other-tag", "started", []any{1}}})

	assert.Empty(t, h.events)
	assert.Empty(t, h.dropped)
	assert.Equal(t, domain.StatePending, s.State())
}

func TestSuiteDropsMalformedMessages(t *testing.T) {
	h := newHost()
	s, fake := newSuite(t, h, "a.sandbox.js")

	h.deliver(sandbox.Message{Source: fake, Data: `["sandbox-test-results", "started"`})
	h.deliver(sandbox.Message{Source: fake, Data: protocol.Encode(protocol.ActionStarted, -1)})

	assert.Empty(t, h.events)
	assert.Equal(t, []string{"malformed", "malformed"}, h.dropped)
	assert.Equal(t, domain.StatePending, s.State())
}

func TestSuiteCompletesDespiteUnreadableCoverage(t *testing.T) {
	h := newHost()
	s, fake := newSuite(t, h, "a.sandbox.js")

	h.deliver(sandbox.Message{Source: fake, Data: protocol.Encode(protocol.ActionStarted, 0)})
	h.deliver(sandbox.Message{Source: fake, Data: protocol.Encode(protocol.ActionComplete, map[string]any{"coverage": false})})

	assert.Equal(t, []string{"started", "complete"}, h.kinds())
	assert.Nil(t, h.events[1].cov)
	assert.Equal(t, []string{"coverage"}, h.dropped)
	assert.Equal(t, domain.StateComplete, s.State())
	assert.True(t, fake.Destroyed())
}

func TestSuiteResultBeforeStarted(t *testing.T) {
	h := newHost()
	s, fake := newSuite(t, h, "a.sandbox.js")

	h.deliver(sandbox.Message{Source: fake, Data: protocol.Encode(protocol.ActionResult, map[string]any{"id": "x"})})

	assert.Equal(t, 0, s.Finished())
	assert.Equal(t, []string{"state"}, h.dropped)
	require.Equal(t, []string{"forward"}, h.kinds())
	assert.Equal(t, "error", h.events[0].method)
}

func TestSuiteDuplicateStarted(t *testing.T) {
	h := newHost()
	s, fake := newSuite(t, h, "a.sandbox.js")

	h.deliver(sandbox.Message{Source: fake, Data: protocol.Encode(protocol.ActionStarted, 1)})
	h.deliver(sandbox.Message{Source: fake, Data: protocol.Encode(protocol.ActionStarted, 5)})

	total, _ := s.Expected()
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"started"}, h.kinds())
	assert.Equal(t, []string{"state"}, h.dropped)
}

func TestSuiteOverrunIsSurfaced(t *testing.T) {
	h := newHost()
	s, fake := newSuite(t, h, "a.sandbox.js")

	h.deliver(sandbox.Message{Source: fake, Data: protocol.Encode(protocol.ActionStarted, 1)})
	h.deliver(sandbox.Message{Source: fake, Data: protocol.Encode(protocol.ActionResult, map[string]any{"id": "1"})})
	h.deliver(sandbox.Message{Source: fake, Data: protocol.Encode(protocol.ActionResult, map[string]any{"id": "2"})})

	assert.Equal(t, 2, s.Finished())
	assert.Equal(t, []string{"started", "result", "forward", "result"}, h.kinds())
	assert.Contains(t, h.events[2].args[0], "exceed the declared total of 1")
}

func TestSuiteCompleteWhilePending(t *testing.T) {
	h := newHost()
	s, fake := newSuite(t, h, "a.sandbox.js")

	h.deliver(sandbox.Message{Source: fake, Data: protocol.Encode(protocol.ActionComplete, map[string]any{})})

	assert.Equal(t, []string{"started", "complete"}, h.kinds())
	assert.Equal(t, domain.StateComplete, s.State())
	assert.True(t, fake.Destroyed())
}

func TestSuiteCleanupRunsOnce(t *testing.T) {
	h := newHost()
	s, fake := newSuite(t, h, "a.sandbox.js")
	completed := 0
	s.OnComplete = func() { completed++ }

	msg := sandbox.Message{Source: fake, Data: protocol.Encode(protocol.ActionComplete, nil)}
	h.deliver(msg)
	// late message from the same sandbox after cleanup
	h.deliver(msg)
	s.Close()
	s.Fail(errors.New("late"))

	assert.Equal(t, 1, completed)
	assert.Equal(t, []string{"started", "complete"}, h.kinds())
}

func TestSuiteFail(t *testing.T) {
	h := newHost()
	s, fake := newSuite(t, h, "a.sandbox.js")

	s.Fail(errors.New("no start"))

	assert.Equal(t, []string{"forward", "started", "complete"}, h.kinds())
	assert.Equal(t, []any{"a: no start"}, h.events[0].args)
	assert.True(t, fake.Destroyed())
}

func TestSuiteInitErrors(t *testing.T) {
	h := newHost()
	h.failCreate = errors.New("no sandbox")
	d, _ := domain.NewDescriptor("a.sandbox.js")
	assert.ErrorContains(t, New(d, nil).Init(h), "create sandbox for a")

	h = newHost()
	newSuite(t, h, "a.sandbox.js")
	dup := New(d, nil)
	assert.Error(t, dup.Init(h))
	assert.ErrorIs(t, dup.Run(context.Background()), ErrNotInitialized)
}
