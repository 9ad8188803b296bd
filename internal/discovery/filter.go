package discovery

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"sbx/internal/domain"
)

// Filter filters suites by name pattern
type Filter struct{}

// NewFilter creates a new Filter
func NewFilter() *Filter {
	return &Filter{}
}

// FilterByName keeps the suites matching pattern. The pattern is a
// doublestar glob tried against the file name and the slash separated path,
// so both "*login*" and "**/ui/*.sandbox.js" work. A pattern without glob
// characters matches by substring of the file name.
func (f *Filter) FilterByName(suites []domain.Descriptor, pattern string) []domain.Descriptor {
	if pattern == "" {
		return suites
	}

	glob := strings.ContainsAny(pattern, "*?[{")
	var filtered []domain.Descriptor
	for _, s := range suites {
		base := filepath.Base(s.Path())
		if !glob {
			if strings.Contains(base, pattern) {
				filtered = append(filtered, s)
			}
			continue
		}

		if ok, _ := doublestar.Match(pattern, base); ok {
			filtered = append(filtered, s)
			continue
		}
		if ok, _ := doublestar.Match(pattern, strings.TrimPrefix(filepath.ToSlash(s.Path()), "/")); ok {
			filtered = append(filtered, s)
		}
	}

	return filtered
}
