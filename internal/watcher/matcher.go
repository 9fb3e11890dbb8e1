package watcher

import (
	"path/filepath"
	"strings"

	"github.com/juju/collections/set"
)

// Matcher decides which file system events concern the package database.
// A path is either an exact file or a glob over the base names of one
// directory, such as /var/lib/apt/lists/*_Packages.
type Matcher struct {
	files    set.Strings
	patterns []string
	dirs     set.Strings
}

// NewMatcher builds a matcher over paths.
func NewMatcher(paths []string) *Matcher {
	m := &Matcher{
		files: set.NewStrings(),
		dirs:  set.NewStrings(),
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		p = filepath.Clean(p)
		m.dirs.Add(filepath.Dir(p))
		if strings.ContainsAny(filepath.Base(p), "*?[") {
			m.patterns = append(m.patterns, p)
			continue
		}
		m.files.Add(p)
	}
	return m
}

// Dirs returns the directories to watch, sorted.
func (m *Matcher) Dirs() []string {
	return m.dirs.SortedValues()
}

// Match reports whether path is one of the watched files.
func (m *Matcher) Match(path string) bool {
	path = filepath.Clean(path)
	if m.files.Contains(path) {
		return true
	}
	for _, pattern := range m.patterns {
		if ok, err := filepath.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}
