package graph

import "sort"

// Default PageRank parameters.
const (
	DefaultIterations = 10
	DefaultDamping    = 0.85
)

// PageRank computes file importance over import edges. Every file starts at 1.0;
// files with no dependencies pass nothing on.
func (g *DependencyGraph) PageRank(iterations int, damping float64) map[string]float64 {
	ranks := make(map[string]float64, len(g.files))
	if len(g.files) == 0 {
		return ranks
	}

	for _, file := range g.files {
		ranks[file] = 1.0
	}

	for i := 0; i < iterations; i++ {
		next := make(map[string]float64, len(g.files))
		for _, file := range g.files {
			rank := 1 - damping

			// Sum contributions from importers
			for _, importer := range g.Reverse[file] {
				if importer == file {
					continue
				}
				outDegree := float64(len(g.Forward[importer]))
				if outDegree > 0 {
					rank += damping * (ranks[importer] / outDegree)
				}
			}

			next[file] = rank
		}
		ranks = next
	}

	return ranks
}

// Ranked pairs a file with its PageRank.
type Ranked struct {
	Path string
	Rank float64
}

// TopFiles returns the n most important files by PageRank.
func TopFiles(ranks map[string]float64, n int) []Ranked {
	out := make([]Ranked, 0, len(ranks))
	for path, rank := range ranks {
		out = append(out, Ranked{Path: path, Rank: rank})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank == out[j].Rank {
			return out[i].Path < out[j].Path
		}
		return out[i].Rank > out[j].Rank
	})

	if n > len(out) {
		n = len(out)
	}
	return out[:n]
}
