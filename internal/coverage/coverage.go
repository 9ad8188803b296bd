// Package coverage merges per-suite statement/branch/function counters into
// one aggregate report.
package coverage

import (
	"encoding/json"
	"fmt"
)

// Report maps a source-file key to its counters
type Report map[string]*FileCoverage

// FileCoverage holds the counters of one instrumented source file. Fields
// other than the counters (path, statementMap, fnMap, branchMap, ...) are kept
// verbatim in Extra.
type FileCoverage struct {
	B     map[string][]int
	F     map[string]int
	S     map[string]int
	Extra map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler
func (fc *FileCoverage) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*fc = FileCoverage{}
	for key, value := range raw {
		var err error
		switch key {
		case "b":
			err = json.Unmarshal(value, &fc.B)
		case "f":
			err = json.Unmarshal(value, &fc.F)
		case "s":
			err = json.Unmarshal(value, &fc.S)
		default:
			if fc.Extra == nil {
				fc.Extra = make(map[string]json.RawMessage)
			}
			fc.Extra[key] = value
		}
		if err != nil {
			return fmt.Errorf("decode %q counters: %w", key, err)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (fc *FileCoverage) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(fc.Extra)+3)
	for k, v := range fc.Extra {
		out[k] = v
	}
	if fc.B != nil {
		out["b"] = fc.B
	}
	if fc.F != nil {
		out["f"] = fc.F
	}
	if fc.S != nil {
		out["s"] = fc.S
	}
	return json.Marshal(out)
}

// Clone returns a deep copy
func (fc *FileCoverage) Clone() *FileCoverage {
	out := &FileCoverage{}
	if fc.B != nil {
		out.B = make(map[string][]int, len(fc.B))
		for id, paths := range fc.B {
			out.B[id] = append([]int(nil), paths...)
		}
	}
	out.F = cloneCounts(fc.F)
	out.S = cloneCounts(fc.S)
	if fc.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(fc.Extra))
		for k, v := range fc.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// merge adds the counters of other into fc
func (fc *FileCoverage) merge(other *FileCoverage) {
	if len(other.B) > 0 && fc.B == nil {
		fc.B = make(map[string][]int, len(other.B))
	}
	for id, paths := range other.B {
		master := fc.B[id]
		if len(paths) > len(master) {
			master = append(master, make([]int, len(paths)-len(master))...)
		}
		for i, hits := range paths {
			master[i] += hits
		}
		fc.B[id] = master
	}
	fc.F = addCounts(fc.F, other.F)
	fc.S = addCounts(fc.S, other.S)
}

func addCounts(dst, src map[string]int) map[string]int {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]int, len(src))
	}
	for id, hits := range src {
		dst[id] += hits
	}
	return dst
}

func cloneCounts(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Decode converts a structured payload (as decoded from a relay message) into
// a Report. A nil payload yields a nil Report.
func Decode(payload any) (Report, error) {
	if payload == nil {
		return nil, nil
	}
	if r, ok := payload.(Report); ok {
		return r, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode coverage payload: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode coverage payload: %w", err)
	}
	return r, nil
}
