// Package oracle turns stated intent into seed files and propagates them
// through the dependency graph, history and configuration.
package oracle

import "github.com/skelly-dev/distill/internal/fileutil"

// Seed reasons.
const (
	ReasonExplicitFocus     = "Explicit Focus"
	ReasonSemanticResonance = "Semantic Resonance"
	ReasonForensicTrace     = "Forensic Trace"
	ReasonRecursiveGap      = "Recursive Gap"
)

// SymbolReason and PathReason format the keyword-specific reasons.
func SymbolReason(keyword string) string { return "Symbol: " + keyword }
func PathReason(keyword string) string   { return "Path Resonance: " + keyword }

// SeedSet maps a seed path to the set of reasons it was selected for.
type SeedSet map[string]map[string]bool

// Add records path as a seed for reason. Reasons merge by set union.
func (s SeedSet) Add(path, reason string) {
	reasons, ok := s[path]
	if !ok {
		reasons = make(map[string]bool)
		s[path] = reasons
	}
	if reason != "" {
		reasons[reason] = true
	}
}

// Merge adds every seed and reason of other.
func (s SeedSet) Merge(other SeedSet) {
	for path, reasons := range other {
		s.Add(path, "")
		for reason := range reasons {
			s.Add(path, reason)
		}
	}
}

func (s SeedSet) Has(path string) bool {
	_, ok := s[path]
	return ok
}

// Paths returns seed paths in sorted order.
func (s SeedSet) Paths() []string {
	return fileutil.MapKeysSorted(s)
}

// Reasons returns the sorted reasons for path.
func (s SeedSet) Reasons(path string) []string {
	return fileutil.MapKeysSorted(s[path])
}

// Clone returns an independent copy.
func (s SeedSet) Clone() SeedSet {
	out := make(SeedSet, len(s))
	out.Merge(s)
	return out
}
