package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"

	"sbx/internal/domain"
)

// FileMeta describes one scanned file
type FileMeta struct {
	Size    int64
	ModTime time.Time
}

// Manifest maps every scanned file path to its metadata
type Manifest map[string]FileMeta

// Paths returns the manifest paths in lexical order
func (m Manifest) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Suites returns a descriptor for every path that names a sandboxed suite,
// in lexical path order.
func (m Manifest) Suites() []domain.Descriptor {
	var suites []domain.Descriptor
	for _, p := range m.Paths() {
		if d, ok := domain.NewDescriptor(p); ok {
			suites = append(suites, d)
		}
	}
	return suites
}

// SharedNames groups the paths of suites whose names collide. Result ids
// and failure markers are keyed by name, so such suites cannot be told
// apart in a report.
func SharedNames(suites []domain.Descriptor) map[string][]string {
	byName := make(map[string][]string)
	for _, d := range suites {
		byName[d.Name()] = append(byName[d.Name()], d.Path())
	}
	for name, paths := range byName {
		if len(paths) < 2 {
			delete(byName, name)
		}
	}
	return byName
}

// Scanner scans for suite files in a directory
type Scanner struct {
	skipDirs map[string]bool
}

// NewScanner creates a new Scanner with the given directories to skip
func NewScanner(skipDirs []string) *Scanner {
	skipMap := make(map[string]bool)
	for _, dir := range skipDirs {
		skipMap[dir] = true
	}
	return &Scanner{skipDirs: skipMap}
}

// Scan walks root and returns every regular file below it. Paths are
// absolute so process suites can be executed from any working directory.
func (s *Scanner) Scan(root string) (Manifest, error) {
	// Clean and validate the root path
	root, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return nil, fmt.Errorf("invalid test path %s: %w", root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("test path does not exist: %s", root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("test path is not a directory: %s", root)
	}

	var mu sync.Mutex
	manifest := Manifest{}
	conf := fastwalk.Config{Follow: false}

	err = fastwalk.Walk(&conf, root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			name := d.Name()
			// Skip hidden directories (starting with .)
			if strings.HasPrefix(name, ".") {
				return fastwalk.SkipDir
			}
			if s.skipDirs[name] {
				return fastwalk.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		mu.Lock()
		manifest[path] = FileMeta{Size: fi.Size(), ModTime: fi.ModTime()}
		mu.Unlock()
		return nil
	})

	return manifest, err
}
