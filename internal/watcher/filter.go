package watcher

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// defaultIgnorePatterns are always ignored regardless of configuration.
var defaultIgnorePatterns = []string{
	".git",
	"node_modules",
	".idea",
	".vscode",
	"__pycache__",
	"*.swp",
	"*.swo",
	"*~",
	"*.tmp",
	"*.tmp.*",
	".DS_Store",
	"dist",
	"target",
}

// Filter checks root-relative paths against ignore patterns and, when set,
// the session's watch patterns.
//
// Ignore patterns are matched against each path component, so
// "node_modules" matches "web/node_modules/x.js". Watch patterns are
// doublestar globs over the whole relative path ("src/**/*.ts").
type Filter struct {
	ignore []string
	watch  []string
}

// NewFilter merges the defaults with extra ignore patterns, dropping
// duplicates. An empty watch list accepts every non-ignored file.
func NewFilter(extra, watch []string) *Filter {
	seen := make(map[string]struct{}, len(defaultIgnorePatterns)+len(extra))
	var merged []string
	for _, list := range [][]string{defaultIgnorePatterns, extra} {
		for _, p := range list {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				merged = append(merged, p)
			}
		}
	}
	var globs []string
	for _, w := range watch {
		if w = strings.TrimSpace(w); w != "" {
			globs = append(globs, strings.TrimPrefix(w, "./"))
		}
	}
	return &Filter{ignore: merged, watch: globs}
}

// ShouldIgnore reports whether any component of rel matches an ignore pattern.
func (f *Filter) ShouldIgnore(rel string) bool {
	for _, component := range strings.Split(path.Clean(rel), "/") {
		for _, pattern := range f.ignore {
			if matched, _ := path.Match(pattern, component); matched {
				return true
			}
		}
	}
	return false
}

// Wants reports whether a file at rel matches the watch patterns. A pattern
// without a slash also matches the basename, so "*.go" selects Go files at
// any depth.
func (f *Filter) Wants(rel string) bool {
	if len(f.watch) == 0 {
		return true
	}
	base := path.Base(rel)
	for _, pattern := range f.watch {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if ok, _ := doublestar.Match(pattern, base); ok {
				return true
			}
		}
	}
	return false
}

// ValidatePatterns reports the first malformed watch pattern.
func ValidatePatterns(patterns []string) (string, bool) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return p, false
		}
	}
	return "", true
}
