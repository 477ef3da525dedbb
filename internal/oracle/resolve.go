package oracle

import (
	"context"
	"log/slog"
	"strings"

	"github.com/skelly-dev/distill/internal/graph"
	"github.com/skelly-dev/distill/internal/slogutil"
)

// SemanticLimit is the number of semantic hits turned into seeds.
const SemanticLimit = 5

// SemanticSearcher finds files related to a natural-language request.
type SemanticSearcher interface {
	SearchPaths(ctx context.Context, query string, limit int) ([]string, error)
}

// Intent is what the user asked to focus on.
type Intent struct {
	FocusKeywords  []string
	Feature        string
	ProblemContext string
}

// Resolver maps intent onto seed paths.
type Resolver struct {
	Graph     *graph.DependencyGraph
	Searcher  SemanticSearcher // optional
	Forensics ForensicAnalyzer // optional
	Logger    *slog.Logger
}

// NewResolver creates a resolver with the default stack-trace analyzer.
func NewResolver(g *graph.DependencyGraph, searcher SemanticSearcher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Resolver{
		Graph:     g,
		Searcher:  searcher,
		Forensics: StackTraceAnalyzer{},
		Logger:    logger,
	}
}

// Resolve returns the seeds for intent. Failures of optional collaborators are
// logged and skipped.
func (r *Resolver) Resolve(ctx context.Context, intent Intent) SeedSet {
	seeds := make(SeedSet)

	for _, keyword := range intent.FocusKeywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		if !r.resolveKeyword(seeds, keyword) {
			r.Logger.Debug("no resonance for focus keyword", "keyword", keyword)
		}
	}

	if feature := strings.TrimSpace(intent.Feature); feature != "" && r.Searcher != nil {
		hits, err := r.Searcher.SearchPaths(ctx, feature, SemanticLimit)
		if err != nil {
			r.Logger.Warn("semantic search failed", "error", err)
		}
		for _, p := range hits {
			if r.Graph.Has(p) {
				seeds.Add(p, ReasonSemanticResonance)
			}
		}
	}

	if problem := strings.TrimSpace(intent.ProblemContext); problem != "" && r.Forensics != nil {
		scores, err := r.Forensics.Analyze(ctx, problem, r.Graph.Files())
		if err != nil {
			r.Logger.Warn("forensic analysis failed", "error", err)
		}
		for p, score := range scores {
			if score > 0 && r.Graph.Has(p) {
				seeds.Add(p, ReasonForensicTrace)
			}
		}
	}

	if len(seeds) > 0 {
		r.Logger.Info("seeds resolved", "count", len(seeds))
	}
	return seeds
}

func (r *Resolver) resolveKeyword(seeds SeedSet, keyword string) bool {
	found := false

	normalized := strings.TrimPrefix(strings.ReplaceAll(keyword, `\`, "/"), "./")
	if r.Graph.Has(normalized) {
		seeds.Add(normalized, ReasonExplicitFocus)
		found = true
	}

	if paths := r.Graph.Lookup(keyword); len(paths) > 0 {
		for _, p := range paths {
			seeds.Add(p, SymbolReason(keyword))
		}
		found = true
	}

	if !found && strings.Contains(keyword, ".") {
		last := keyword[strings.LastIndex(keyword, ".")+1:]
		if paths := r.Graph.Lookup(last); len(paths) > 0 {
			for _, p := range paths {
				seeds.Add(p, SymbolReason(keyword))
			}
			found = true
		}
	}

	if !found {
		lower := strings.ToLower(normalized)
		for _, p := range r.Graph.Files() {
			if strings.Contains(strings.ToLower(p), lower) {
				seeds.Add(p, PathReason(keyword))
				found = true
			}
		}
	}

	return found
}
