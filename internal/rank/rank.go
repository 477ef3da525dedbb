// Package rank scores every file by structural, historical and intent signals.
package rank

import (
	"log/slog"
	"math"
	"path"
	"sort"
	"strings"

	"github.com/skelly-dev/distill/internal/graph"
	"github.com/skelly-dev/distill/internal/record"
	"github.com/skelly-dev/distill/internal/slogutil"
)

// Focus boosts and thresholds.
const (
	SeedBoost = 10000.0
	// DependencyBoost lifts a seed's direct dependencies past the structural
	// threshold (40) once scores are normalized against the seed.
	DependencyBoost = 4500.0
	DependentBoost  = 500.0
	KeystoneBoost   = 20.0
	OrphanFloor     = 15.0
	GravityShare    = 0.10

	// DiversityExemptScore marks focus-boosted files that keep their score.
	DiversityExemptScore = 5000.0
	DiversityDecay       = 0.9
	DiversityFreeFiles   = 3

	SeedScore     = 100.0
	MaxOtherScore = 99.0
)

// Weights of the base score factors.
type Weights struct {
	InDegree   float64
	PageRank   float64
	Complexity float64
	Recency    float64
	Churn      float64
	Keyword    float64
}

func DefaultWeights() Weights {
	return Weights{
		InDegree:   2.0,
		PageRank:   1.0,
		Complexity: 0.5,
		Recency:    1.0,
		Churn:      1.0,
		Keyword:    15.0,
	}
}

// WeightsFor picks a weight profile from free intent text such as a persona name
// or feature description. Debugging favours recent churn, architecture favours
// graph structure, security audits favour keyword matches and complexity.
func WeightsFor(intent string) Weights {
	w := DefaultWeights()
	lower := strings.ToLower(intent)
	switch {
	case strings.Contains(lower, "bug") || strings.Contains(lower, "debug"):
		w.Recency = 3.0
		w.Churn = 2.0
		w.Complexity = 1.0
	case strings.Contains(lower, "arch") || strings.Contains(lower, "structure"):
		w.InDegree = 4.0
		w.PageRank = 2.0
		w.Recency = 0.5
		w.Churn = 0.5
	case strings.Contains(lower, "security") || strings.Contains(lower, "audit"):
		w.Keyword = 10.0
		w.Complexity = 2.0
		w.Recency = 2.0
	}
	return w
}

var directoryMultipliers = []struct {
	pattern    string
	multiplier float64
}{
	{"/core/", 1.5},
	{"/src/", 1.2},
	{"/tests/", 0.5},
	{"/test/", 0.5},
	{"/docs/", 0.7},
	{"/examples/", 0.6},
}

var vitalDirs = map[string]bool{
	"src": true, "app": true, "lib": true, "core": true,
	"internal": true, "pkg": true, "cmd": true,
}

const (
	testPenalty = 0.5
	docPenalty  = 0.7
)

// Intent carries the focus signals produced by seed resolution and propagation.
type Intent struct {
	FocusKeywords []string
	SeedPaths     []string
	Impact        map[string]float64
}

// Ranked is one file with its normalized score.
type Ranked struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// Result is the ranked inventory, highest score first.
type Result struct {
	Files []Ranked
	Raw   map[string]float64 // pre-normalization scores
}

// Scores returns path -> normalized score.
func (r Result) Scores() map[string]float64 {
	out := make(map[string]float64, len(r.Files))
	for _, f := range r.Files {
		out[f.Path] = f.Score
	}
	return out
}

// Ranker computes significance scores.
type Ranker struct {
	Weights    Weights
	Iterations int
	Damping    float64
	Logger     *slog.Logger
}

func NewRanker(logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Ranker{
		Weights:    DefaultWeights(),
		Iterations: graph.DefaultIterations,
		Damping:    graph.DefaultDamping,
		Logger:     logger,
	}
}

// Rank scores records against the graph and intent.
func (r *Ranker) Rank(records []record.FileRecord, g *graph.DependencyGraph, intent Intent) Result {
	if len(records) == 0 {
		return Result{Files: []Ranked{}, Raw: map[string]float64{}}
	}
	if g == nil {
		g = graph.Build(records, graph.Options{})
	}

	pageRank := g.PageRank(r.Iterations, r.Damping)
	keywords := lowerAll(intent.FocusKeywords)

	scores := make(map[string]float64, len(records))
	for _, rec := range records {
		score := r.baseScore(rec, g.InDegree(rec.Path), pageRank[rec.Path], keywords)
		score += intent.Impact[rec.Path]
		if score < OrphanFloor && (rec.IsCode() || inVitalDir(rec.Path)) {
			score = OrphanFloor
		}
		scores[rec.Path] = score
	}

	scores = gravityWave(scores, g)

	seeds := make(map[string]bool, len(intent.SeedPaths))
	for _, seed := range intent.SeedPaths {
		if _, ok := scores[seed]; ok {
			seeds[seed] = true
		}
	}
	applyFocusBoost(scores, seeds, g)
	applyDiversity(scores)

	result := Result{Files: normalize(scores, seeds), Raw: scores}
	r.Logger.Debug("ranking complete", "files", len(result.Files), "seeds", len(seeds))
	return result
}

func (r *Ranker) baseScore(rec record.FileRecord, inDegree int, pageRank float64, keywords []string) float64 {
	w := r.Weights
	score := w.InDegree * float64(inDegree)
	score += w.PageRank * pageRank * 100
	if lines := rec.Lines(); lines > 0 {
		score += w.Complexity * float64(rec.Complexity()) / float64(lines) * 100
	}
	score += w.Recency * math.Exp(-float64(rec.History.DaysSinceChange)/30) * 10
	score += w.Churn * math.Log1p(float64(rec.History.Churn)) * 5
	score += w.Keyword * float64(keywordMatches(rec, keywords))

	padded := "/" + rec.Path
	for _, dm := range directoryMultipliers {
		if strings.Contains(padded, dm.pattern) {
			score *= dm.multiplier
		}
	}

	keystone := rec.IsKeystone()
	if rec.IsTest() && !keystone {
		score *= testPenalty
	}
	if rec.IsDoc() && !keystone {
		score *= docPenalty
	}
	if record.IsBoostedDoc(rec.Base()) {
		score += KeystoneBoost
	}
	return score
}

// keywordMatches counts the focus keywords found in the path or tags of rec.
func keywordMatches(rec record.FileRecord, keywords []string) int {
	if len(keywords) == 0 {
		return 0
	}
	lowerPath := strings.ToLower(rec.Path)
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lowerPath, kw) || rec.HasTag(kw) {
			n++
		}
	}
	return n
}

func inVitalDir(p string) bool {
	for _, segment := range strings.Split(path.Dir(p), "/") {
		if vitalDirs[segment] {
			return true
		}
	}
	return false
}

// gravityWave pushes a share of every file's score onto its dependencies.
func gravityWave(scores map[string]float64, g *graph.DependencyGraph) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for p, score := range scores {
		out[p] += score
		for _, dep := range g.Dependencies(p) {
			if _, ok := scores[dep]; ok {
				out[dep] += score * GravityShare
			}
		}
	}
	return out
}

func applyFocusBoost(scores map[string]float64, seeds map[string]bool, g *graph.DependencyGraph) {
	for seed := range seeds {
		scores[seed] += SeedBoost
		for _, dep := range g.Dependencies(seed) {
			if _, ok := scores[dep]; ok {
				scores[dep] += DependencyBoost
			}
		}
		for _, dependent := range g.Dependents(seed) {
			if _, ok := scores[dependent]; ok {
				scores[dependent] += DependentBoost
			}
		}
	}
}

// applyDiversity damps the 4th and later file of each directory by 0.9^(n-3).
// Focus-boosted files are neither damped nor counted.
func applyDiversity(scores map[string]float64) {
	perDir := make(map[string]int)
	for _, p := range sortedByScore(scores) {
		if scores[p] > DiversityExemptScore {
			continue
		}
		dir := path.Dir(p)
		perDir[dir]++
		n := perDir[dir]
		if n <= DiversityFreeFiles {
			continue
		}
		scores[p] *= math.Pow(DiversityDecay, float64(n-DiversityFreeFiles))
	}
}

// normalize clamps seeds to 100 and scales the rest against the highest score present.
func normalize(scores map[string]float64, seeds map[string]bool) []Ranked {
	maxScore := 0.0
	for _, score := range scores {
		if score > maxScore {
			maxScore = score
		}
	}

	out := make([]Ranked, 0, len(scores))
	for p, score := range scores {
		normalized := 0.0
		switch {
		case seeds[p]:
			normalized = SeedScore
		case maxScore > 0:
			normalized = math.Min(MaxOtherScore, score/maxScore*100)
		}
		out = append(out, Ranked{Path: p, Score: normalized})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Path < out[j].Path
	})
	return out
}

func sortedByScore(scores map[string]float64) []string {
	paths := make([]string, 0, len(scores))
	for p := range scores {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		if scores[paths[i]] != scores[paths[j]] {
			return scores[paths[i]] > scores[paths[j]]
		}
		return paths[i] < paths[j]
	})
	return paths
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
