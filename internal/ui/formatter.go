package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
	"sbx/internal/config"
	"sbx/internal/discovery"
	"sbx/internal/domain"
)

var (
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	white  = color.New(color.FgWhite)
)

// Formatter formats and displays output
type Formatter struct {
	config *config.Config
	parser *discovery.Parser
	out    io.Writer
}

// NewFormatter creates a new Formatter writing to stdout
func NewFormatter(cfg *config.Config, parser *discovery.Parser) *Formatter {
	return &Formatter{
		config: cfg,
		parser: parser,
		out:    os.Stdout,
	}
}

// SetOutput redirects the formatter
func (f *Formatter) SetOutput(w io.Writer) {
	f.out = w
}

// PrintMetaStats displays the statistics of a finished run followed by its
// failures grouped by suite.
func (f *Formatter) PrintMetaStats(record *domain.RunRecord) {
	meta := record.Meta

	fmt.Fprint(f.out, "\n")
	cyan.Fprintln(f.out, "╔═══════════════════════════════════════════════════════════════╗")
	cyan.Fprintln(f.out, "║                    Suite Execution Statistics                 ║")
	cyan.Fprintln(f.out, "╚═══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(f.out)

	rows := []struct {
		label string
		value string
		color *color.Color
	}{
		{"Total Suites", fmt.Sprint(meta.TotalSuites), white},
		{"Total Tests", fmt.Sprint(meta.TotalTests), white},
		{"Passed Tests", fmt.Sprint(meta.PassedTests), green},
		{"Failed Tests", fmt.Sprint(meta.FailedTests), red},
		{"Skipped Tests", fmt.Sprint(meta.SkippedTests), yellow},
		{"Errors", fmt.Sprint(meta.Errors), red},
		{"Covered Files", fmt.Sprint(meta.CoveredFiles), white},
		{"Duration", fmt.Sprintf("%.2fs", meta.DurationSeconds), white},
		{"Concurrency", fmt.Sprint(meta.Concurrency), white},
		{"Timestamp", meta.Timestamp, white},
	}

	fmt.Fprintln(f.out, "┌─────────────────────────────────┬─────────────────────────────┐")
	for i, row := range rows {
		fmt.Fprintf(f.out, "│ %-31s │ ", row.label)
		row.color.Fprintf(f.out, "%-27s", row.value)
		fmt.Fprintln(f.out, " │")
		if i < len(rows)-1 {
			fmt.Fprintln(f.out, "├─────────────────────────────────┼─────────────────────────────┤")
		}
	}
	fmt.Fprintln(f.out, "└─────────────────────────────────┴─────────────────────────────┘")

	fmt.Fprintln(f.out)
	switch {
	case meta.FailedTests == 0 && meta.Errors == 0:
		green.Fprintln(f.out, "✓ All tests passed!")
	case meta.FailedTests == 0:
		red.Fprintf(f.out, "✗ %d error(s) reported by suites\n", meta.Errors)
	default:
		red.Fprintf(f.out, "✗ %d test(s) failed\n", meta.FailedTests)
		fmt.Fprintln(f.out)
		f.printFailureTree(record.Details)
	}
}

// TreeNode is one suite level of the failure tree
type TreeNode struct {
	Name     string
	Children map[string]*TreeNode
	Failures []domain.Failure
}

func newTreeNode(name string) *TreeNode {
	return &TreeNode{Name: name, Children: make(map[string]*TreeNode)}
}

// BuildFailureTree groups failures by their suite path
func BuildFailureTree(failures []domain.Failure) *TreeNode {
	root := newTreeNode("")
	for _, failure := range failures {
		current := root
		for _, part := range failure.SuitePath {
			if current.Children[part] == nil {
				current.Children[part] = newTreeNode(part)
			}
			current = current.Children[part]
		}
		current.Failures = append(current.Failures, failure)
	}
	return root
}

func (f *Formatter) printFailureTree(failures []domain.Failure) {
	if len(failures) == 0 {
		return
	}
	f.printTreeNode(BuildFailureTree(failures), "")
}

func (f *Formatter) printTreeNode(node *TreeNode, prefix string) {
	keys := make([]string, 0, len(node.Children))
	for key := range node.Children {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	// Failures come first, then nested suites
	total := len(node.Failures) + len(keys)
	i := 0
	for _, failure := range node.Failures {
		i++
		connector, _ := branch(prefix, i == total)
		name := failure.TestName
		if name == "" {
			name = failure.ID
		}
		red.Fprintf(f.out, "%s%s\n", connector, name)
	}
	for _, key := range keys {
		i++
		connector, next := branch(prefix, i == total)
		cyan.Fprintf(f.out, "%s%s\n", connector, key)
		f.printTreeNode(node.Children[key], next)
	}
}

func branch(prefix string, last bool) (connector, next string) {
	if last {
		return prefix + "└── ", prefix + "    "
	}
	return prefix + "├── ", prefix + "│   "
}

// CountTestCases returns the total number of test cases across the given suites.
func (f *Formatter) CountTestCases(suites []domain.Descriptor) (int, error) {
	var total int
	for _, suite := range suites {
		cases, err := f.parser.FindTestCases(suite)
		if err != nil {
			return 0, err
		}
		total += len(cases)
	}
	return total, nil
}

// PrintSuiteList prints the discovered suites, optionally with their test
// cases. Suites named in failed (from the last run) are marked with [F].
func (f *Formatter) PrintSuiteList(suites []domain.Descriptor, showTestCases bool, failed map[string]struct{}) {
	if showTestCases {
		green.Fprintf(f.out, "Found %d suite(s) with test cases:\n\n", len(suites))
	} else {
		green.Fprintf(f.out, "Found %d suite(s):\n\n", len(suites))
	}

	for i, suite := range suites {
		connector, prefix := branch("", i == len(suites)-1)

		relPath, err := filepath.Rel(f.config.ProjectPath, suite.Path())
		if err != nil {
			relPath = suite.Path()
		}

		failMarker := ""
		if _, ok := failed[suite.Name()]; ok {
			failMarker = " " + red.Sprint("[F]")
		}
		kind := yellow.Sprintf("(%s)", suite.Kind())
		fmt.Fprintf(f.out, "%s%s %s%s\n", connector, cyan.Sprint(relPath), kind, failMarker)

		if !showTestCases {
			continue
		}

		if suite.Kind() == domain.KindProcess {
			fmt.Fprintf(f.out, "%s└── %s\n", prefix, yellow.Sprint("(executable suite)"))
			continue
		}

		testCases, err := f.parser.FindTestCases(suite)
		if err != nil {
			fmt.Fprintf(f.out, "%s└── %s\n", prefix, red.Sprintf("error reading suite: %v", err))
			continue
		}
		if len(testCases) == 0 {
			fmt.Fprintf(f.out, "%s└── %s\n", prefix, red.Sprint("(no test cases found)"))
			continue
		}
		for j, testCase := range testCases {
			caseConnector, _ := branch(prefix, j == len(testCases)-1)
			fmt.Fprintf(f.out, "%s%s\n", caseConnector, testCase.Name)
		}
	}
}
