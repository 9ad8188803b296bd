package report

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"sbx/internal/domain"
	"sbx/internal/logging"
	"sbx/internal/ui"
)

// Console prints the run to a terminal: a progress bar over the announced
// tests, suite errors in red and forwarded log lines.
type Console struct {
	out    io.Writer
	logger *zap.Logger
	bar    *ui.ProgressBar

	passed, failed, skipped, errors int
}

// NewConsole creates a Console writing to w (stderr when nil)
func NewConsole(w io.Writer, logger *zap.Logger) *Console {
	if w == nil {
		w = os.Stderr
	}
	return &Console{out: w, logger: logging.OrNop(logger)}
}

func (c *Console) Info(info Info) {
	if info.Total == 0 {
		color.New(color.FgYellow).Fprintln(c.out, "No tests announced")
		return
	}
	c.bar = ui.NewProgressBar(c.out, info.Total)
}

func (c *Console) Result(rec domain.Record) {
	switch {
	case rec.Skipped():
		c.skipped++
	case rec.Success():
		c.passed++
	default:
		c.failed++
	}
	if c.bar != nil {
		c.bar.Update(c.passed, c.failed, c.skipped)
	}
}

func (c *Console) Complete(domain.Record) {
	if c.bar != nil {
		c.bar.Finish()
	}
	c.logger.Debug("run complete",
		zap.Int("passed", c.passed),
		zap.Int("failed", c.failed),
		zap.Int("skipped", c.skipped),
		zap.Int("errors", c.errors),
	)
}

func (c *Console) Error(args ...any) {
	c.errors++
	color.New(color.FgRed).Fprintf(c.out, "\nerror: %s\n", fmt.Sprint(args...))
}

func (c *Console) Log(args ...any) {
	fmt.Fprintln(c.out, args...)
}

// Counts returns the tallies seen so far
func (c *Console) Counts() (passed, failed, skipped, errors int) {
	return c.passed, c.failed, c.skipped, c.errors
}
