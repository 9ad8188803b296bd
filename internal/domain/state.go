package domain

import "fmt"

// State is the lifecycle state of a suite. Transitions are monotonic:
// Pending -> Started -> Complete.
type State int

const (
	StatePending State = iota
	StateStarted
	StateComplete
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStarted:
		return "started"
	case StateComplete:
		return "complete"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState parses a state name
func ParseState(name string) (State, error) {
	switch name {
	case "pending":
		return StatePending, nil
	case "started":
		return StateStarted, nil
	case "complete":
		return StateComplete, nil
	}
	return 0, fmt.Errorf("unknown suite state %q", name)
}

// Next reports whether moving from s to next is a legal single-step transition
func (s State) Next(next State) bool {
	return next == s+1
}
