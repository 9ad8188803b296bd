package domain

import (
	"path/filepath"
	"regexp"
)

// SuitePattern matches the resource names treated as sandboxed suite documents.
var SuitePattern = regexp.MustCompile(`\.sandbox(\.js)?$`)

// Kind selects the sandbox technology a suite runs in
type Kind int

const (
	// KindProcess is an executable `*.sandbox` suite
	KindProcess Kind = iota
	// KindJS is a `*.sandbox.js` suite run inside a JS VM
	KindJS
)

func (k Kind) String() string {
	if k == KindJS {
		return "js"
	}
	return "process"
}

// Descriptor identifies one suite resource. It is immutable once created.
type Descriptor struct {
	path string
	name string
	kind Kind
}

// NewDescriptor creates a Descriptor for a path matching SuitePattern.
// The second return value is false when the path is not a suite.
func NewDescriptor(path string) (Descriptor, bool) {
	loc := SuitePattern.FindStringSubmatchIndex(path)
	if loc == nil {
		return Descriptor{}, false
	}
	kind := KindProcess
	if loc[2] >= 0 {
		kind = KindJS
	}
	base := filepath.Base(path[:loc[0]])
	return Descriptor{path: path, name: base, kind: kind}, true
}

// Path is the descriptor identity (the suite resource path)
func (d Descriptor) Path() string { return d.path }

// Name is the file name with the suite suffix stripped
func (d Descriptor) Name() string { return d.name }

// Kind returns the sandbox kind
func (d Descriptor) Kind() Kind { return d.kind }

// TestCase represents a single test case declared within a suite file
type TestCase struct {
	Name     string // Test name as written in the suite
	FilePath string // Path to the suite file containing this case
}
