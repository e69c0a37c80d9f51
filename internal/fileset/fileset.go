// Package fileset expands source glob patterns into ordered file lists.
//
// Patterns use doublestar syntax. A pattern prefixed with '!' excludes every
// path it matches from the positive patterns' results. Each match remembers
// the static directory prefix of the pattern that produced it (its base), so
// outputs can mirror the source tree below that point.
package fileset

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// File is a matched source path and the base directory of its pattern.
type File struct {
	Path string
	Base string
}

// Rel returns the path relative to its base.
func (f File) Rel() string {
	if f.Base == "." || f.Base == "" {
		return f.Path
	}
	return strings.TrimPrefix(f.Path, f.Base+"/")
}

// Split partitions patterns into positive and negated lists, stripping the
// leading '!' from the latter.
func Split(patterns []string) (includes, excludes []string) {
	for _, p := range patterns {
		if rest, ok := strings.CutPrefix(p, "!"); ok {
			excludes = append(excludes, rest)
			continue
		}
		includes = append(includes, p)
	}
	return includes, excludes
}

// Validate checks that every pattern is well formed.
func Validate(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(strings.TrimPrefix(p, "!")) {
			return fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	return nil
}

// Base returns the static directory prefix of a pattern. A literal file
// pattern's base is its parent directory.
func Base(pattern string) string {
	base, _ := doublestar.SplitPattern(pattern)
	return base
}

// Expand resolves patterns against fsys. Results follow pattern order, and
// within a pattern lexical path order. A path matched by several patterns is
// listed once, under the first.
func Expand(fsys fs.FS, patterns []string) ([]File, error) {
	includes, excludes := Split(patterns)
	seen := make(map[string]bool)
	var out []File
	for _, p := range includes {
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", p, err)
		}
		sort.Strings(matches)
		base := Base(p)
		for _, m := range matches {
			if seen[m] || excluded(m, excludes) {
				continue
			}
			seen[m] = true
			out = append(out, File{Path: m, Base: base})
		}
	}
	return out, nil
}

// Match reports whether name is selected by patterns: it matches at least
// one positive pattern and no negated one.
func Match(patterns []string, name string) bool {
	includes, excludes := Split(patterns)
	for _, p := range includes {
		if ok, _ := doublestar.Match(p, name); ok {
			return !excluded(name, excludes)
		}
	}
	return false
}

// Under reports whether the directory name lies below the base of any
// positive pattern, or on the way to one. It is used to notice new
// directories that may later contain matches. A "." base selects nothing:
// such patterns only match at the top level.
func Under(patterns []string, name string) bool {
	includes, _ := Split(patterns)
	for _, p := range includes {
		base := Base(p)
		if base == "." {
			continue
		}
		if name == base || strings.HasPrefix(name, base+"/") || strings.HasPrefix(base, name+"/") {
			return true
		}
	}
	return false
}

func excluded(name string, excludes []string) bool {
	for _, ex := range excludes {
		if ok, _ := doublestar.Match(ex, name); ok {
			return true
		}
	}
	return false
}
