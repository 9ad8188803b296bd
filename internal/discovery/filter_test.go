package discovery

import (
	"testing"

	"sbx/internal/domain"
)

func descriptors(t *testing.T, paths ...string) []domain.Descriptor {
	t.Helper()
	var out []domain.Descriptor
	for _, p := range paths {
		d, ok := domain.NewDescriptor(p)
		if !ok {
			t.Fatalf("%s is not a suite path", p)
		}
		out = append(out, d)
	}
	return out
}

func TestFilter_FilterByName(t *testing.T) {
	filter := NewFilter()
	all := []string{
		"suites/ui/login.sandbox.js",
		"suites/ui/logout.sandbox.js",
		"suites/api/payment.sandbox.js",
		"suites/api/payment-refund.sandbox",
	}

	tests := []struct {
		name     string
		pattern  string
		expected int // Expected number of matches
	}{
		{
			name:     "empty pattern returns all",
			pattern:  "",
			expected: 4,
		},
		{
			name:     "wildcard pattern matches file name",
			pattern:  "login.*",
			expected: 1,
		},
		{
			name:     "wildcard pattern matches substring",
			pattern:  "*payment*",
			expected: 2,
		},
		{
			name:     "simple contains match",
			pattern:  "log",
			expected: 2,
		},
		{
			name:     "doublestar matches directories",
			pattern:  "**/ui/*",
			expected: 2,
		},
		{
			name:     "alternatives",
			pattern:  "{login,payment}.sandbox.js",
			expected: 2,
		},
		{
			name:     "no matches",
			pattern:  "*NonExistent*",
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := filter.FilterByName(descriptors(t, all...), tt.pattern)
			if len(result) != tt.expected {
				t.Errorf("expected %d matches, got %d", tt.expected, len(result))
			}
		})
	}
}

func TestSharedNames(t *testing.T) {
	shared := SharedNames(descriptors(t,
		"suites/ui/login.sandbox.js",
		"suites/api/login.sandbox",
		"suites/api/payment.sandbox.js",
	))

	if len(shared) != 1 {
		t.Fatalf("expected one shared name, got %v", shared)
	}
	paths := shared["login"]
	if len(paths) != 2 || paths[0] != "suites/ui/login.sandbox.js" || paths[1] != "suites/api/login.sandbox" {
		t.Errorf("unexpected paths for login: %v", paths)
	}

	if got := SharedNames(descriptors(t, "a.sandbox.js", "b.sandbox.js")); len(got) != 0 {
		t.Errorf("expected no shared names, got %v", got)
	}
}
