// Package cost predicts how many tokens a file costs at each fidelity tier.
package cost

import (
	"github.com/skelly-dev/distill/internal/record"
)

// DefaultOverhead is the per-entry framing cost (path line, legend row).
const DefaultOverhead = 10

const (
	// symbolTokens is the estimated cost of one collapsed signature line.
	symbolTokens = 35
	// skeletonBodyShare is the share of the full cost kept by a skeleton.
	skeletonBodyShare = 0.05
	// skeletonFallbackShare is used when no structural facts exist.
	skeletonFallbackShare = 0.25
	// interfaceShare scales the skeleton estimate down to an interface.
	interfaceShare = 0.70
	// summaryTokens is the fixed cost of a one-paragraph summary.
	summaryTokens = 150
)

// charsPerToken is the heuristic ratio used for token estimation.
const charsPerToken = 4

// Counter measures the token cost of rendered text.
type Counter interface {
	Count(text string) int
}

// HeuristicCounter counts one token per four bytes, rounded up.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// Estimator predicts tier costs for planning. Rendering measures the real cost.
type Estimator struct {
	Overhead int
}

// NewEstimator returns an estimator with the default overhead.
func NewEstimator() *Estimator {
	return &Estimator{Overhead: DefaultOverhead}
}

// Estimate returns the predicted token cost of rendering rec at tier t.
func (e *Estimator) Estimate(rec record.FileRecord, t record.Tier) int {
	switch t {
	case record.TierFull:
		return rec.TokenCost + e.Overhead
	case record.TierSkeleton:
		return e.skeleton(rec)
	case record.TierInterface:
		return int(interfaceShare * float64(e.skeleton(rec)))
	case record.TierSummary:
		return summaryTokens + e.Overhead
	case record.TierPathOnly:
		return e.Overhead
	default:
		return 0
	}
}

// Marginal returns the cost of moving rec from one tier to another.
func (e *Estimator) Marginal(rec record.FileRecord, from, to record.Tier) int {
	return e.Estimate(rec, to) - e.Estimate(rec, from)
}

func (e *Estimator) skeleton(rec record.FileRecord) int {
	full := float64(rec.TokenCost)
	if !rec.Facts.HasStructure() {
		return int(skeletonFallbackShare*full) + e.Overhead
	}
	symbols := rec.FunctionCount() + rec.ClassCount()
	return symbols*symbolTokens + int(skeletonBodyShare*full) + e.Overhead
}
