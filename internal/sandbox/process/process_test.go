package process

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sbx/internal/domain"
	"sbx/internal/protocol"
	"sbx/internal/sandbox"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeSuite(t *testing.T, script string) domain.Descriptor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shell.sandbox")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	d, ok := domain.NewDescriptor(path)
	require.True(t, ok)
	require.Equal(t, domain.KindProcess, d.Kind())
	return d
}

func receive(t *testing.T, bus sandbox.ChanBus, n int) []protocol.Message {
	t.Helper()
	var out []protocol.Message
	for len(out) < n {
		select {
		case msg := <-bus:
			m, err := protocol.Decode(msg.Data)
			require.NoError(t, err)
			out = append(out, m)
		case <-time.After(5 * time.Second):
			t.Fatalf("got %d of %d messages", len(out), n)
		}
	}
	return out
}

func waitExit(t *testing.T, s *Sandbox) {
	t.Helper()
	select {
	case <-s.exited:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not stop")
	}
}

func TestProcessRelaysEnvelopes(t *testing.T) {
	d := writeSuite(t, `
echo '["sandbox-test-results","started",[1]]'
echo "plain output"
echo "to stderr" >&2
echo '["sandbox-test-results","result",[{"id":0,"success":true,"description":"'"$SBX_TRACEID"'"}]]'
echo '["sandbox-test-results","complete",[{"suite":"'"$SBX_SUITE"'"}]]'
`)
	bus := sandbox.NewChanBus(8)
	h, err := NewFactory(Options{}).New(d, bus)
	require.NoError(t, err)
	s := h.(*Sandbox)
	defer s.Destroy()

	console := &syncBuffer{}
	s.OnReady(func(ns sandbox.Namespace) {
		require.NoError(t, ns.Set("traceId", "trace-1"))
		require.NoError(t, ns.Set("console", console))
	})
	require.NoError(t, s.Start(context.Background()))

	msgs := receive(t, bus, 3)
	assert.Equal(t, protocol.Started{Total: 1}, msgs[0])
	assert.Equal(t, "trace-1", msgs[1].(protocol.Result).Record.Description())
	assert.Equal(t, "shell", msgs[2].(protocol.Complete).Record["suite"])

	waitExit(t, s)
	assert.Contains(t, console.String(), "plain output")
	assert.Contains(t, console.String(), "to stderr")
}

func TestProcessRelaysOversizedLines(t *testing.T) {
	const size = 5 << 20
	d := writeSuite(t, `
echo '["sandbox-test-results","started",[0]]'
printf '["sandbox-test-results","complete",[{"blob":"'
head -c 5242880 /dev/zero | tr '\0' 'a'
printf '"}]]\n'
echo "bye"
`)
	bus := sandbox.NewChanBus(8)
	h, err := NewFactory(Options{}).New(d, bus)
	require.NoError(t, err)
	s := h.(*Sandbox)
	defer s.Destroy()

	console := &syncBuffer{}
	s.OnReady(func(ns sandbox.Namespace) {
		require.NoError(t, ns.Set("console", console))
	})
	require.NoError(t, s.Start(context.Background()))

	msgs := receive(t, bus, 2)
	assert.Equal(t, protocol.Started{Total: 0}, msgs[0])
	done, ok := msgs[1].(protocol.Complete)
	require.True(t, ok)
	blob, _ := done.Record["blob"].(string)
	assert.Len(t, blob, size)

	waitExit(t, s)
	assert.Contains(t, console.String(), "bye")
}

func TestProcessFailureIsReported(t *testing.T) {
	bus := sandbox.NewChanBus(8)
	h, err := NewFactory(Options{}).New(writeSuite(t, "exit 3\n"), bus)
	require.NoError(t, err)
	defer h.Destroy()
	require.NoError(t, h.Start(context.Background()))

	msgs := receive(t, bus, 1)
	failed := msgs[0].(protocol.Forwarded)
	assert.Equal(t, "error", failed.Method)
	assert.Contains(t, failed.Args[0], "exit status 3")
}

func TestProcessDestroyKills(t *testing.T) {
	bus := sandbox.NewChanBus(8)
	h, err := NewFactory(Options{}).New(writeSuite(t, "exec sleep 30\n"), bus)
	require.NoError(t, err)
	s := h.(*Sandbox)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Destroy())
	require.NoError(t, s.Destroy())
	waitExit(t, s)
	assert.Empty(t, bus)
}

func TestProcessStartErrors(t *testing.T) {
	bus := sandbox.NewChanBus(8)
	f := NewFactory(Options{})

	h, err := f.New(writeSuite(t, "exit 0\n"), bus)
	require.NoError(t, err)
	require.NoError(t, h.Destroy())
	assert.ErrorIs(t, h.Start(context.Background()), sandbox.ErrDestroyed)

	h, err = f.New(writeSuite(t, "exit 0\n"), bus)
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	assert.ErrorIs(t, h.Start(context.Background()), sandbox.ErrAlreadyStarted)
	require.NoError(t, h.Destroy())

	missing, ok := domain.NewDescriptor(filepath.Join(t.TempDir(), "missing.sandbox"))
	require.True(t, ok)
	h, err = f.New(missing, bus)
	require.NoError(t, err)
	assert.ErrorContains(t, h.Start(context.Background()), "start suite missing")
}

func TestNamespaceRejectsUnsupportedValues(t *testing.T) {
	h, err := NewFactory(Options{}).New(writeSuite(t, "exit 0\n"), sandbox.NewChanBus(1))
	require.NoError(t, err)

	assert.Error(t, namespace{s: h.(*Sandbox)}.Set("n", 42))
}
