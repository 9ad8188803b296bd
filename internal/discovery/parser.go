package discovery

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"sbx/internal/domain"
)

// testCallPattern matches it("..."), test('...') and their .only/.skip forms
var testCallPattern = regexp.MustCompile(
	"(?m)(?:^|[^.\\w])(?:it|test)(?:\\.only|\\.skip)?\\s*\\(\\s*(?:'([^'\\n]*)'|\"([^\"\\n]*)\"|`([^`]*)`)",
)

// Parser parses suite files to extract test cases
type Parser struct{}

// NewParser creates a new Parser
func NewParser() *Parser {
	return &Parser{}
}

// FindTestCases lists the test names declared in a JS suite, sorted and
// without duplicates. Process suites are opaque and yield no cases.
func (p *Parser) FindTestCases(d domain.Descriptor) ([]domain.TestCase, error) {
	if d.Kind() != domain.KindJS {
		return nil, nil
	}

	content, err := os.ReadFile(d.Path())
	if err != nil {
		return nil, fmt.Errorf("error reading file %s: %w", d.Path(), err)
	}

	seen := make(map[string]bool) // Use map to avoid duplicates
	for _, match := range testCallPattern.FindAllStringSubmatch(string(content), -1) {
		for _, name := range match[1:] {
			if name != "" {
				seen[name] = true
				break
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	// Sort for consistent output
	sort.Strings(names)

	cases := make([]domain.TestCase, len(names))
	for i, name := range names {
		cases[i] = domain.TestCase{Name: name, FilePath: d.Path()}
	}
	return cases, nil
}
