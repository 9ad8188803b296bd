// Package protocol encodes and decodes the relay envelope exchanged between a
// sandbox and its suite: a three element sequence [tag, action, args].
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"sbx/internal/coverage"
	"sbx/internal/domain"
)

// Tag identifies relay traffic
const Tag = "sandbox-test-results"

// Actions with dedicated handling; any other action is a consumer method name.
const (
	ActionStarted  = "started"
	ActionResult   = "result"
	ActionComplete = "complete"
	ActionInfo     = "info"
	ActionError    = "error"
	ActionLog      = "log"
)

// ErrNotRelay is returned for well-formed payloads that are not relay envelopes
var ErrNotRelay = errors.New("not a relay envelope")

// Message is one decoded relay message: Started, Result, Complete or Forwarded.
type Message interface {
	action() string
}

// Started announces the number of tests a suite will run
type Started struct {
	Total int
}

// Result carries one test result
type Result struct {
	Record domain.Record
}

// Complete signals the end of a suite. Coverage is nil when the record has
// none or when it cannot be read; CoverageErr tells the two apart.
type Complete struct {
	Record      domain.Record
	Coverage    coverage.Report
	CoverageErr error
}

// Forwarded is any other consumer method with its arguments
type Forwarded struct {
	Method string
	Args   []any
}

func (Started) action() string { return ActionStarted }

func (Result) action() string { return ActionResult }

func (Complete) action() string { return ActionComplete }

func (f Forwarded) action() string { return f.Method }

// Action returns the action name of a message
func Action(m Message) string { return m.action() }

// Encode builds an envelope for action and args
func Encode(action string, args ...any) []any {
	if args == nil {
		args = []any{}
	}
	return []any{Tag, action, args}
}

// Marshal encodes an envelope as serialized text
func Marshal(action string, args ...any) ([]byte, error) {
	return json.Marshal(Encode(action, args...))
}

// Decode turns a raw payload into a Message. data is either serialized text
// ([]byte or string) or an already structured []any.
//
// A payload that cannot be deserialized returns a wrapped json error. A payload
// that is valid but not relay traffic returns ErrNotRelay.
func Decode(data any) (Message, error) {
	var envelope []any
	switch v := data.(type) {
	case string:
		if err := unmarshal([]byte(v), &envelope); err != nil {
			return nil, err
		}
	case []byte:
		if err := unmarshal(v, &envelope); err != nil {
			return nil, err
		}
	case []any:
		envelope = v
	default:
		return nil, ErrNotRelay
	}

	if len(envelope) < 2 {
		return nil, ErrNotRelay
	}
	if tag, _ := envelope[0].(string); tag != Tag {
		return nil, ErrNotRelay
	}
	action, ok := envelope[1].(string)
	if !ok || action == "" {
		return nil, ErrNotRelay
	}
	args := arguments(envelope[2:])

	switch action {
	case ActionStarted:
		total, err := number(first(args))
		if err != nil {
			return nil, fmt.Errorf("started total: %w", err)
		}
		return Started{Total: total}, nil
	case ActionResult:
		rec, err := record(first(args))
		if err != nil {
			return nil, fmt.Errorf("result record: %w", err)
		}
		return Result{Record: rec}, nil
	case ActionComplete:
		rec, err := record(first(args))
		if err != nil {
			return nil, fmt.Errorf("complete record: %w", err)
		}
		cov, err := coverage.Decode(rec[domain.FieldCoverage])
		if err != nil {
			// the suite still completes, only its coverage is lost
			delete(rec, domain.FieldCoverage)
			return Complete{Record: rec, CoverageErr: err}, nil
		}
		return Complete{Record: rec, Coverage: cov}, nil
	default:
		return Forwarded{Method: action, Args: args}, nil
	}
}

func unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			// valid JSON that is not an array
			return ErrNotRelay
		}
		return fmt.Errorf("deserialize relay payload: %w", err)
	}
	return nil
}

// arguments accepts both [tag, action, [args...]] and the flat
// [tag, action, arg1, arg2, ...] layout.
func arguments(rest []any) []any {
	if len(rest) == 1 {
		if args, ok := rest[0].([]any); ok {
			return args
		}
	}
	return rest
}

func first(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func number(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 || n != math.Trunc(n) {
			return 0, fmt.Errorf("invalid count %v", n)
		}
		return int(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("invalid count %d", n)
		}
		return n, nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("invalid count %d", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil || i < 0 {
			return 0, fmt.Errorf("invalid count %s", n)
		}
		return int(i), nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func record(v any) (domain.Record, error) {
	switch r := v.(type) {
	case nil:
		return domain.Record{}, nil
	case domain.Record:
		return r, nil
	case map[string]any:
		return domain.Record(r), nil
	}
	return nil, fmt.Errorf("expected an object, got %T", v)
}
