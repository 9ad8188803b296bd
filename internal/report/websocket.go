package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"sbx/internal/domain"
	"sbx/internal/logging"
)

// writeWait bounds each frame written to the remote consumer
const writeWait = 10 * time.Second

// Call is one consumer method call as streamed over the websocket
type Call struct {
	Method string `json:"method"`
	Args   []any  `json:"args"`
}

// WebSocket streams every consumer call to a remote consumer as a JSON
// Call frame. The first write error stops the stream and is returned by
// Close.
type WebSocket struct {
	conn   *websocket.Conn
	logger *zap.Logger
	mu     sync.Mutex
	err    error
}

// DialWebSocket connects to the consumer at url
func DialWebSocket(ctx context.Context, url string, logger *zap.Logger) (*WebSocket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil) // nolint:bodyclose
	if err != nil {
		return nil, fmt.Errorf("failed to dial consumer %s: %w", url, err)
	}
	return &WebSocket{conn: conn, logger: logging.OrNop(logger)}, nil
}

func (w *WebSocket) send(method string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	if args == nil {
		args = []any{}
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteJSON(Call{Method: method, Args: args}); err != nil {
		w.err = fmt.Errorf("failed to send %s to consumer: %w", method, err)
		w.logger.Warn("consumer stream stopped", zap.String("method", method), zap.Error(err))
	}
}

func (w *WebSocket) Info(info Info) { w.send("info", info) }

func (w *WebSocket) Result(rec domain.Record) { w.send("result", rec) }

func (w *WebSocket) Complete(rec domain.Record) { w.send("complete", rec) }

func (w *WebSocket) Error(args ...any) { w.send("error", args...) }

func (w *WebSocket) Log(args ...any) { w.send("log", args...) }

// Call implements Caller
func (w *WebSocket) Call(method string, args ...any) { w.send(method, args...) }

// Close sends a normal closure and closes the connection
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run complete")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return errors.Join(w.err, w.conn.Close())
}
