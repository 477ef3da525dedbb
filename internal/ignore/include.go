package ignore

import (
	"path"
	"strings"
)

// IncludeSet restricts a scan to files matching at least one glob.
// An empty set admits everything.
type IncludeSet struct {
	patterns []string
}

func NewIncludeSet(patterns []string) *IncludeSet {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = normalizePath(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return &IncludeSet{patterns: out}
}

func (s *IncludeSet) Empty() bool {
	return s == nil || len(s.patterns) == 0
}

// Allows reports whether relPath matches. Patterns without a slash match the base name.
func (s *IncludeSet) Allows(relPath string) bool {
	if s.Empty() {
		return true
	}
	relPath = normalizePath(relPath)
	base := path.Base(relPath)
	for _, pattern := range s.patterns {
		if matchPathPattern(pattern, relPath) {
			return true
		}
		if !strings.Contains(pattern, "/") && matchPathPattern(pattern, base) {
			return true
		}
	}
	return false
}
