package logging

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Console is the logging handle shared with sandboxes. Inside a JS sandbox it
// replaces the global console; for subprocess sandboxes it receives stderr.
type Console struct {
	logger  *zap.Logger
	traceID string

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewConsole creates a Console that tags every entry with suite and trace id
func NewConsole(logger *zap.Logger, suite, traceID string) *Console {
	return &Console{
		logger:  OrNop(logger).Named("sandbox").With(zap.String("suite", suite), zap.String("trace_id", traceID)),
		traceID: traceID,
	}
}

// TraceID returns the trace id of the run the console belongs to
func (c *Console) TraceID() string { return c.traceID }

// Log writes an info entry
func (c *Console) Log(args ...any) { c.logger.Info(join(args)) }

// Info writes an info entry
func (c *Console) Info(args ...any) { c.logger.Info(join(args)) }

// Debug writes a debug entry
func (c *Console) Debug(args ...any) { c.logger.Debug(join(args)) }

// Warn writes a warn entry
func (c *Console) Warn(args ...any) { c.logger.Warn(join(args)) }

// Error writes an error entry
func (c *Console) Error(args ...any) { c.logger.Error(join(args)) }

// Write implements io.Writer; every complete line becomes one info entry.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf.Write(p)
	for {
		line, err := c.buf.ReadString('\n')
		if err != nil {
			// incomplete line, keep it for the next write
			c.buf.Reset()
			c.buf.WriteString(line)
			break
		}
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			c.logger.Info(line)
		}
	}
	return len(p), nil
}

func join(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, " ")
}
