package domain

// Record is an opaque test-result or completion record as emitted by a suite.
// Only the fields the orchestrator augments are accessed by name.
type Record map[string]any

// Well-known record fields
const (
	FieldID       = "id"
	FieldSuite    = "suite"
	FieldCoverage = "coverage"
	FieldSuccess  = "success"
	FieldSkipped  = "skipped"
	FieldDesc     = "description"
	FieldLog      = "log"
	FieldTime     = "time"
)

// ID returns the record id rendered as a string ("" when absent)
func (r Record) ID() string {
	switch v := r[FieldID].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return formatNumber(v)
	case int:
		return formatNumber(float64(v))
	case int64:
		return formatNumber(float64(v))
	default:
		return ""
	}
}

// SuitePath returns the nested suite path of the record
func (r Record) SuitePath() []string {
	switch v := r[FieldSuite].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// Stamp prepends the suite name to the nested suite path and prefixes the id
// with "<suite>#", making the id unique across the whole run.
func (r Record) Stamp(suite string) {
	r[FieldSuite] = append([]string{suite}, r.SuitePath()...)
	r[FieldID] = suite + "#" + r.ID()
}

// Success reports the success flag of a result record
func (r Record) Success() bool {
	b, _ := r[FieldSuccess].(bool)
	return b
}

// Skipped reports the skipped flag of a result record
func (r Record) Skipped() bool {
	b, _ := r[FieldSkipped].(bool)
	return b
}

// Description returns the test description
func (r Record) Description() string {
	s, _ := r[FieldDesc].(string)
	return s
}

// Log returns the log lines attached to a failed result
func (r Record) Log() []string {
	switch v := r[FieldLog].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, l := range v {
			if s, ok := l.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RunMeta contains metadata about a run
type RunMeta struct {
	RunID           string  `json:"run_id"`
	TotalSuites     int     `json:"total_suites"`
	TotalTests      int     `json:"total_tests"`
	PassedTests     int     `json:"passed_tests"`
	FailedTests     int     `json:"failed_tests"`
	SkippedTests    int     `json:"skipped_tests"`
	Errors          int     `json:"errors"`
	CoveredFiles    int     `json:"covered_files"`
	Duration        string  `json:"duration"`
	DurationSeconds float64 `json:"duration_seconds"`
	Concurrency     int     `json:"concurrency"`
	Timestamp       string  `json:"timestamp"`
}

// RunRecord is the persisted outcome of one run
type RunRecord struct {
	Meta    RunMeta   `json:"meta"`
	Details []Failure `json:"details"`
}
