package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/skelly-dev/distill/internal/config"
	"github.com/skelly-dev/distill/internal/cost"
	"github.com/skelly-dev/distill/internal/errs"
	"github.com/skelly-dev/distill/internal/governor"
	"github.com/skelly-dev/distill/internal/graph"
	"github.com/skelly-dev/distill/internal/ignore"
	"github.com/skelly-dev/distill/internal/languages"
	"github.com/skelly-dev/distill/internal/oracle"
	"github.com/skelly-dev/distill/internal/perception"
	"github.com/skelly-dev/distill/internal/rank"
	"github.com/skelly-dev/distill/internal/record"
	"github.com/skelly-dev/distill/internal/render"
	"github.com/skelly-dev/distill/internal/search"
	"github.com/skelly-dev/distill/internal/slogutil"
)

// Engine wires the stages together. Collaborators left nil get defaults.
type Engine struct {
	Root    string
	Config  *config.Config
	Scanner *perception.Scanner

	// History overrides the git history provider.
	History perception.HistoryProvider
	// Searcher overrides the BM25 index built from the scanned records.
	Searcher  oracle.SemanticSearcher
	Forensics oracle.ForensicAnalyzer
	Counter   cost.Counter
	Logger    *slog.Logger

	// Progress is told when a stage starts.
	Progress func(stage string)
}

// NewEngine creates an engine rooted at root.
func NewEngine(root string, cfg *config.Config, scanner *perception.Scanner, logger *slog.Logger) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if scanner == nil {
		scanner = perception.NewScanner(root, perception.Options{Registry: languages.NewDefaultRegistry(), Logger: logger})
	}
	return &Engine{
		Root:    root,
		Config:  cfg,
		Scanner: scanner,
		Counter: cost.HeuristicCounter{},
		Logger:  logger,
	}
}

// Run executes every stage and returns the context holding the assembled document.
// Only fatal errors and cancellation escape.
func (e *Engine) Run(ctx context.Context) (*Context, error) {
	pc, err := e.Plan(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.assemble(ctx, pc); err != nil {
		return nil, err
	}
	return pc, nil
}

// Plan executes every stage up to and including governance.
func (e *Engine) Plan(ctx context.Context) (*Context, error) {
	pc := newContext(e.Root, e.Config)

	if err := e.perceive(ctx, pc); err != nil {
		return nil, err
	}
	e.index(pc)
	e.resolve(ctx, pc)
	e.decide(pc)

	if e.Config.RecursiveAgent {
		e.stage(StageReview)
		started := time.Now()
		gaps := findGaps(pc)
		pc.track(StageReview, started)
		if len(gaps) > 0 {
			e.Logger.Info("recursive pass", "gaps", len(gaps))
			for _, gap := range gaps {
				pc.Seeds.Add(gap, oracle.ReasonRecursiveGap)
			}
			pc.Gaps = gaps
			pc.Scores = NewScoreboard()
			e.decide(pc)
		}
	}
	return pc, nil
}

func (e *Engine) stage(name string) {
	if e.Progress != nil {
		e.Progress(name)
	}
	e.Logger.Debug("stage start", "stage", name)
}

func (e *Engine) perceive(ctx context.Context, pc *Context) error {
	e.stage(StagePerception)
	started := time.Now()
	defer pc.track(StagePerception, started)

	if base := filepath.Base(e.Root); ignore.NewMatcher(e.Config.Ignore).ShouldIgnore(base, true) {
		return errs.Fatalf("root %s is excluded by the ignore rules", e.Root)
	}

	history := e.History
	if history == nil {
		history = perception.LoadGitHistory(ctx, e.Root, e.Logger)
	}
	e.Scanner.SetHistory(history)
	pc.history = history

	records, stats, err := e.Scanner.Scan(ctx, perception.ScanOptions{
		Ignore:       e.Config.Ignore,
		Include:      e.Config.Include,
		ForceRefresh: e.Config.ForceRefresh,
	})
	if err != nil {
		if errs.IsFatal(err) {
			return err
		}
		return fmt.Errorf("perception: %w", err)
	}
	pc.Records = records
	pc.ScanStats = stats
	return nil
}

func (e *Engine) index(pc *Context) {
	e.stage(StageIndex)
	started := time.Now()
	defer pc.track(StageIndex, started)

	opts := graph.Options{}
	if content, err := os.ReadFile(filepath.Join(e.Root, "go.mod")); err == nil {
		opts.ModulePath = graph.ModulePathFromGoMod(content)
	}
	if source, ok := pc.history.(perception.CoChangeSource); ok {
		opts.CoChange = source.CoChanges()
	}
	pc.Graph = graph.Build(pc.Records, opts)

	pc.searcher = e.Searcher
	if pc.searcher == nil {
		pc.searcher = search.Build(pc.Records)
	}
}

func (e *Engine) resolve(ctx context.Context, pc *Context) {
	e.stage(StageResolve)
	started := time.Now()
	defer pc.track(StageResolve, started)

	resolver := oracle.NewResolver(pc.Graph, pc.searcher, e.Logger)
	if e.Forensics != nil {
		resolver.Forensics = e.Forensics
	}
	pc.Seeds = resolver.Resolve(ctx, oracle.Intent{
		FocusKeywords:  e.Config.FocusKeywords,
		Feature:        e.Config.Feature,
		ProblemContext: e.Config.ProblemContext,
	})
	e.Logger.Info("seeds resolved", "seeds", len(pc.Seeds))
}

// decide runs propagation, ranking and governance from the current seeds.
func (e *Engine) decide(pc *Context) {
	pc.Passes++

	e.stage(StagePropagation)
	started := time.Now()
	pc.Trace = oracle.NewPropagator(e.Root, e.Logger).Propagate(pc.Seeds, pc.Graph, pc.Records, oracle.Options{
		Depth:     e.Config.Depth,
		Direction: e.Config.Direction,
		Coverage:  e.Config.CoverageMap,
		Surgical:  e.Config.Surgical(),
	})
	pc.track(StagePropagation, started)

	e.stage(StageRanking)
	started = time.Now()
	ranker := rank.NewRanker(e.Logger)
	ranker.Weights = rank.WeightsFor(rankingIntent(e.Config))
	result := ranker.Rank(pc.Records, pc.Graph, rank.Intent{
		FocusKeywords: e.Config.FocusKeywords,
		SeedPaths:     pc.Seeds.Paths(),
		Impact:        pc.Trace.Impact,
	})
	pc.Ranked = result.Files
	for _, ranked := range result.Files {
		if err := pc.Scores.Set(ranked.Path, ranked.Score); err != nil {
			e.Logger.Warn("duplicate ranking", "path", ranked.Path, "error", err)
		}
	}
	pc.track(StageRanking, started)

	e.stage(StageGovernance)
	started = time.Now()
	pc.Plan = governor.New(cost.NewEstimator(), e.Logger).Govern(pc.Ranked, pc.Records, governor.Options{
		Budget:   e.Config.PlanningBudget(),
		Strategy: e.Config.Strategy,
	})
	pc.track(StageGovernance, started)
}

// rankingIntent is the text the ranker picks its weight profile from. A stack
// trace implies debugging.
func rankingIntent(cfg *config.Config) string {
	switch {
	case cfg.Persona != "":
		return cfg.Persona
	case cfg.ProblemContext != "":
		return "debug"
	}
	return cfg.Feature
}

// findGaps returns dependencies of FULL and SKELETON files that ended at PATH_ONLY.
func findGaps(pc *Context) []string {
	seen := make(map[string]bool)
	gaps := make([]string, 0)
	for _, p := range pc.Plan.Order {
		tier := pc.Plan.Tier(p)
		if tier != record.TierFull && tier != record.TierSkeleton {
			continue
		}
		for _, dep := range pc.Graph.Dependencies(p) {
			if seen[dep] || pc.Seeds.Has(dep) || pc.Plan.Tier(dep) != record.TierPathOnly {
				continue
			}
			seen[dep] = true
			gaps = append(gaps, dep)
		}
	}
	return gaps
}

func (e *Engine) assemble(ctx context.Context, pc *Context) error {
	e.stage(StageAssembly)
	started := time.Now()
	defer pc.track(StageAssembly, started)

	seeds := make(map[string][]string, len(pc.Seeds))
	for _, p := range pc.Seeds.Paths() {
		seeds[p] = pc.Seeds.Reasons(p)
	}
	active := make(map[string]map[string]bool, len(pc.Trace.Active))
	for p, names := range pc.Trace.Active {
		active[p] = names
	}

	doc, err := render.NewAssembler(e.Root, e.Counter, e.Logger).Assemble(ctx, render.Input{
		Project:       filepath.Base(e.Root),
		Strategy:      e.Config.Strategy,
		Plan:          pc.Plan,
		Records:       pc.Records,
		Seeds:         seeds,
		Active:        active,
		FocusKeywords: e.Config.FocusKeywords,
		Annotate:      e.Config.Annotate,
		Started:       pc.Started,
	})
	if err != nil {
		return fmt.Errorf("assembly: %w", err)
	}
	pc.Document = doc
	return nil
}
