// Package pipeline runs the distillation stages in order over one shared context.
package pipeline

import (
	"fmt"
	"time"

	"github.com/skelly-dev/distill/internal/config"
	"github.com/skelly-dev/distill/internal/fileutil"
	"github.com/skelly-dev/distill/internal/governor"
	"github.com/skelly-dev/distill/internal/graph"
	"github.com/skelly-dev/distill/internal/oracle"
	"github.com/skelly-dev/distill/internal/perception"
	"github.com/skelly-dev/distill/internal/rank"
	"github.com/skelly-dev/distill/internal/record"
	"github.com/skelly-dev/distill/internal/render"
)

// Stage names used in timings and logs.
const (
	StagePerception  = "perception"
	StageIndex       = "index"
	StageResolve     = "resolve"
	StagePropagation = "propagation"
	StageRanking     = "ranking"
	StageGovernance  = "governance"
	StageReview      = "review"
	StageAssembly    = "assembly"
)

// Scoreboard maps a path to its significance score. Each path is written once.
type Scoreboard struct {
	scores map[string]float64
}

func NewScoreboard() *Scoreboard {
	return &Scoreboard{scores: make(map[string]float64)}
}

// Set records score for path and refuses a second write.
func (s *Scoreboard) Set(path string, score float64) error {
	if _, ok := s.scores[path]; ok {
		return fmt.Errorf("score for %s already set", path)
	}
	s.scores[path] = score
	return nil
}

func (s *Scoreboard) Get(path string) (float64, bool) {
	score, ok := s.scores[path]
	return score, ok
}

func (s *Scoreboard) Len() int {
	return len(s.scores)
}

// Paths returns scored paths in sorted order.
func (s *Scoreboard) Paths() []string {
	return fileutil.MapKeysSorted(s.scores)
}

// Timing is the wall time one stage took.
type Timing struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// Context is the per-invocation state every stage reads from and writes into.
type Context struct {
	Config *config.Config
	Root   string

	Records   []record.FileRecord
	ScanStats perception.ScanStats
	Graph     *graph.DependencyGraph
	Seeds     oracle.SeedSet
	Trace     *oracle.Trace
	Ranked    []rank.Ranked
	Scores    *Scoreboard
	Plan      *governor.Plan
	Document  *render.Document

	// Gaps are the paths added by the recursive review pass.
	Gaps    []string
	Passes  int
	Timings []Timing
	Started time.Time

	history  perception.HistoryProvider
	searcher oracle.SemanticSearcher
}

func newContext(root string, cfg *config.Config) *Context {
	return &Context{
		Config:  cfg,
		Root:    root,
		Seeds:   make(oracle.SeedSet),
		Scores:  NewScoreboard(),
		Started: time.Now(),
	}
}

func (c *Context) track(stage string, started time.Time) {
	c.Timings = append(c.Timings, Timing{Stage: stage, Duration: time.Since(started)})
}

// Record returns the record for path.
func (c *Context) Record(path string) (record.FileRecord, bool) {
	for _, rec := range c.Records {
		if rec.Path == path {
			return rec, true
		}
	}
	return record.FileRecord{}, false
}
