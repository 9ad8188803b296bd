package domain

import (
	"strconv"
	"strings"
)

// Failure represents a failed test result
type Failure struct {
	ID        string   `json:"id"`
	TestName  string   `json:"test_name"`
	SuitePath []string `json:"suite_path"`
	Log       []string `json:"log"`
	Resolved  bool     `json:"resolved,omitempty"` // Track if the failure is marked as resolved
}

// FailureFromRecord builds a Failure from a stamped result record
func FailureFromRecord(r Record) Failure {
	return Failure{
		ID:        r.ID(),
		TestName:  r.Description(),
		SuitePath: r.SuitePath(),
		Log:       r.Log(),
	}
}

// Suite returns the top-level suite name of the failure
func (f Failure) Suite() string {
	if len(f.SuitePath) == 0 {
		return ""
	}
	return f.SuitePath[0]
}

// Path joins the suite path with " > "
func (f Failure) Path() string {
	return strings.Join(f.SuitePath, " > ")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
