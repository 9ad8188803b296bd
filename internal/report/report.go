// Package report contains the consumers a run reports to.
package report

import (
	"errors"
	"io"

	"sbx/internal/domain"
)

// Info is the run announcement sent once every suite has started
type Info struct {
	Total int `json:"total"`
}

// Reporter is the consumer of a run: the single destination of the unified
// test stream.
type Reporter interface {
	Info(info Info)
	Result(rec domain.Record)
	Complete(rec domain.Record)
	Error(args ...any)
	Log(args ...any)
}

// Caller is implemented by reporters that accept consumer methods beyond the
// Reporter set.
type Caller interface {
	Call(method string, args ...any)
}

// Dispatch delivers a forwarded consumer method to r. Methods r does not
// support are reported as false.
func Dispatch(r Reporter, method string, args []any) bool {
	switch method {
	case "error":
		r.Error(args...)
	case "log":
		r.Log(args...)
	default:
		c, ok := r.(Caller)
		if !ok {
			return false
		}
		c.Call(method, args...)
	}
	return true
}

// Close closes r if it holds resources
func Close(r Reporter) error {
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Multi fans every call out to several reporters in order
type Multi []Reporter

// NewMulti creates a Multi, skipping nil reporters
func NewMulti(reporters ...Reporter) Multi {
	m := make(Multi, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m Multi) Info(info Info) {
	for _, r := range m {
		r.Info(info)
	}
}

func (m Multi) Result(rec domain.Record) {
	for _, r := range m {
		r.Result(rec)
	}
}

func (m Multi) Complete(rec domain.Record) {
	for _, r := range m {
		r.Complete(rec)
	}
}

func (m Multi) Error(args ...any) {
	for _, r := range m {
		r.Error(args...)
	}
}

func (m Multi) Log(args ...any) {
	for _, r := range m {
		r.Log(args...)
	}
}

// Call implements Caller for the reporters that support it
func (m Multi) Call(method string, args ...any) {
	for _, r := range m {
		if c, ok := r.(Caller); ok {
			c.Call(method, args...)
		}
	}
}

// Close closes every reporter and joins their errors
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := Close(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
