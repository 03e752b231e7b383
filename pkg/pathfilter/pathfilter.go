// Package pathfilter decides which entries of a source tree end up in a
// snapshot. The filter is a pure predicate; it never touches the filesystem.
package pathfilter

import (
	"path/filepath"
	"strings"
)

// Decision is the outcome of evaluating one entry.
type Decision int

const (
	// Include archives the entry.
	Include Decision = iota
	// Skip leaves the entry out but does not affect its siblings.
	Skip
	// SkipDir leaves the directory out and prunes its whole subtree from the walk.
	SkipDir
)

func (d Decision) String() string {
	switch d {
	case Include:
		return "include"
	case Skip:
		return "skip"
	case SkipDir:
		return "skip-dir"
	}
	return "unknown"
}

// Entry is the view of a walked path the filter needs.
type Entry struct {
	// RelPath is relative to the source root, forward-slash separated. Empty for the root.
	RelPath string
	// AbsPath is the OS path of the entry.
	AbsPath string
	IsDir   bool
}

// Rules holds the substring rules. Matching is case-sensitive and applied to
// the entry's base name.
type Rules struct {
	DirSubstrings  []string
	FileSubstrings []string
}

// DefaultRules excludes shared "common" directories and dynamic libraries.
func DefaultRules() Rules {
	return Rules{
		DirSubstrings:  []string{"common"},
		FileSubstrings: []string{".dll"},
	}
}

// Filter applies Rules plus a set of excluded absolute paths.
type Filter struct {
	rules    Rules
	excluded map[string]struct{}
	names    []nameRule
}

type nameRule struct {
	dir   string
	match func(name string) bool
}

// New returns a filter for the given rules.
func New(rules Rules) *Filter {
	return &Filter{rules: rules, excluded: make(map[string]struct{})}
}

// WithExcludedPaths registers absolute paths that are always left out. It is
// used to keep the destination folder out of the snapshot when it lives
// inside the source tree.
func (f *Filter) WithExcludedPaths(paths ...string) *Filter {
	for _, p := range paths {
		if p == "" {
			continue
		}
		f.excluded[filepath.Clean(p)] = struct{}{}
	}
	return f
}

// WithExcludedNames leaves out the direct children of dir whose base name
// satisfies match. Deeper entries are not affected.
func (f *Filter) WithExcludedNames(dir string, match func(name string) bool) *Filter {
	if dir == "" || match == nil {
		return f
	}
	f.names = append(f.names, nameRule{dir: filepath.Clean(dir), match: match})
	return f
}

// Include evaluates e. Directory rules run before file rules, and the
// substring rules run before the excluded paths.
func (f *Filter) Include(e Entry) Decision {
	// The root is walked but never recorded.
	if e.RelPath == "" {
		return Skip
	}

	name := filepath.Base(filepath.FromSlash(e.RelPath))

	if e.IsDir {
		if containsAny(name, f.rules.DirSubstrings) {
			return SkipDir
		}
	} else if containsAny(name, f.rules.FileSubstrings) {
		return Skip
	}

	if len(f.excluded) > 0 && e.AbsPath != "" {
		if _, ok := f.excluded[filepath.Clean(e.AbsPath)]; ok {
			if e.IsDir {
				return SkipDir
			}
			return Skip
		}
	}

	if len(f.names) > 0 && e.AbsPath != "" {
		abs := filepath.Clean(e.AbsPath)
		parent, base := filepath.Dir(abs), filepath.Base(abs)
		for _, r := range f.names {
			if parent == r.dir && r.match(base) {
				if e.IsDir {
					return SkipDir
				}
				return Skip
			}
		}
	}
	return Include
}

func containsAny(name string, substrings []string) bool {
	for _, s := range substrings {
		if s != "" && strings.Contains(name, s) {
			return true
		}
	}
	return false
}
