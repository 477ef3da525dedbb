// Package governor assigns a fidelity tier to every file under a token budget.
//
// Allocation is a deterministic greedy pass in five phases: census, vitality,
// context, structural and saturation. A file's tier only ever goes up.
package governor

import (
	"log/slog"
	"math"

	"github.com/skelly-dev/distill/internal/config"
	"github.com/skelly-dev/distill/internal/cost"
	"github.com/skelly-dev/distill/internal/rank"
	"github.com/skelly-dev/distill/internal/record"
	"github.com/skelly-dev/distill/internal/slogutil"
)

// SafetyMarginPercent of the raw budget is kept in reserve.
const SafetyMarginPercent = 2

// Score thresholds for the vitality, context and structural phases.
const (
	VitalScore      = 99.0
	ContextScore    = 20.0
	StructuralScore = 40.0
)

// Phase names a governance phase.
type Phase string

const (
	PhaseCensus     Phase = "census"
	PhaseVitality   Phase = "vitality"
	PhaseContext    Phase = "context"
	PhaseStructural Phase = "structural"
	PhaseSaturation Phase = "saturation"
	PhaseFaithful   Phase = "faithful"
)

// Reasons recorded on plan entries.
const (
	ReasonCensus     = "Low Significance"
	ReasonFocus      = "Explicit Focus"
	ReasonKeystone   = "Keystone"
	ReasonLockfile   = "Lockfile"
	ReasonContext    = "Context"
	ReasonStructural = "Structure"
	ReasonSaturation = "Saturation"
	ReasonFaithful   = "Faithful"
)

// Entry is the plan for one file.
type Entry struct {
	Tier   record.Tier `json:"tier"`
	Cost   int         `json:"cost"`
	Reason string      `json:"reason"`
	Score  float64     `json:"score"`
}

// Stats summarizes a plan.
type Stats struct {
	PerTier     map[record.Tier]int `json:"per_tier"`
	Utilization float64             `json:"utilization"` // percent of the effective budget
}

// Transition is one committed tier change.
type Transition struct {
	Path     string
	Phase    Phase
	From     record.Tier
	To       record.Tier
	Marginal int
	Forced   bool
}

// Plan is the outcome of governance.
type Plan struct {
	Entries   map[string]Entry
	Order     []string // ranked order, highest score first
	Spend     int
	Budget    int // effective budget, math.MaxInt when unlimited
	RawBudget int
	Unlimited bool
	Stats     Stats
}

// Tier returns the planned tier of path, TierExcluded when unplanned.
func (p *Plan) Tier(path string) record.Tier {
	entry, ok := p.Entries[path]
	if !ok {
		return record.TierExcluded
	}
	return entry.Tier
}

// Options configures one governance run.
type Options struct {
	Budget   int
	Strategy config.Strategy
	// Trace, when set, receives every committed transition in order.
	Trace func(Transition)
}

// Governor allocates tiers.
type Governor struct {
	Estimator *cost.Estimator
	Logger    *slog.Logger
}

func New(estimator *cost.Estimator, logger *slog.Logger) *Governor {
	if estimator == nil {
		estimator = cost.NewEstimator()
	}
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Governor{Estimator: estimator, Logger: logger}
}

// EffectiveBudget applies the safety margin to raw.
func EffectiveBudget(raw int) int {
	if raw <= 0 {
		return 0
	}
	return raw * (100 - SafetyMarginPercent) / 100
}

type run struct {
	gov     *Governor
	plan    *Plan
	records map[string]record.FileRecord
	trace   func(Transition)
}

// Govern plans every record. Ranked order drives every phase; records absent from
// ranked are appended with a zero score.
func (g *Governor) Govern(ranked []rank.Ranked, records []record.FileRecord, opts Options) *Plan {
	r := &run{
		gov:     g,
		records: make(map[string]record.FileRecord, len(records)),
		trace:   opts.Trace,
		plan: &Plan{
			Entries:   make(map[string]Entry, len(records)),
			Order:     make([]string, 0, len(records)),
			RawBudget: opts.Budget,
			Unlimited: opts.Strategy == config.StrategyFaithful,
		},
	}
	for _, rec := range records {
		r.records[rec.Path] = rec
	}

	scores := make(map[string]float64, len(ranked))
	for _, item := range ranked {
		if _, ok := r.records[item.Path]; !ok {
			continue
		}
		if _, dup := scores[item.Path]; dup {
			continue
		}
		scores[item.Path] = item.Score
		r.plan.Order = append(r.plan.Order, item.Path)
	}
	for _, rec := range records {
		if _, ok := scores[rec.Path]; !ok {
			scores[rec.Path] = 0
			r.plan.Order = append(r.plan.Order, rec.Path)
		}
	}

	if r.plan.Unlimited {
		r.plan.Budget = math.MaxInt
	} else {
		r.plan.Budget = EffectiveBudget(opts.Budget)
	}

	r.census(scores)
	switch {
	case r.plan.Unlimited:
		r.faithful()
	case r.plan.Budget > 0:
		r.vitality()
		r.context()
		r.structural()
		r.saturation()
	}

	r.finish()
	g.Logger.Debug("governance complete",
		"files", len(r.plan.Order),
		"spend", r.plan.Spend,
		"budget", r.plan.RawBudget,
		"utilization", r.plan.Stats.Utilization,
	)
	return r.plan
}

func (r *run) census(scores map[string]float64) {
	for _, path := range r.plan.Order {
		r.plan.Entries[path] = Entry{Tier: record.TierExcluded, Score: scores[path]}
		r.upgrade(PhaseCensus, path, record.TierPathOnly, ReasonCensus, true)
	}
}

func (r *run) faithful() {
	for _, path := range r.plan.Order {
		r.upgrade(PhaseFaithful, path, record.TierFull, ReasonFaithful, true)
	}
}

func (r *run) vitality() {
	for _, path := range r.plan.Order {
		rec := r.records[path]
		switch {
		case r.plan.Entries[path].Score >= VitalScore:
			r.upgrade(PhaseVitality, path, record.TierFull, ReasonFocus, true)
		case rec.IsKeystone() && rec.IsLockfile():
			r.upgrade(PhaseVitality, path, record.TierSummary, ReasonLockfile, true)
		case rec.IsKeystone():
			r.upgrade(PhaseVitality, path, record.TierFull, ReasonKeystone, true)
		}
	}
}

func (r *run) context() {
	for _, path := range r.plan.Order {
		if r.plan.Entries[path].Score > ContextScore {
			r.upgrade(PhaseContext, path, record.TierSummary, ReasonContext, false)
		}
	}
}

func (r *run) structural() {
	for _, path := range r.plan.Order {
		if r.records[path].IsCode() && r.plan.Entries[path].Score > StructuralScore {
			r.upgrade(PhaseStructural, path, record.TierSkeleton, ReasonStructural, false)
		}
	}
}

func (r *run) saturation() {
	for _, path := range r.plan.Order {
		if r.plan.Spend >= r.plan.Budget {
			break
		}
		rec := r.records[path]
		if rec.IsLockfile() {
			continue
		}
		if r.upgrade(PhaseSaturation, path, record.TierFull, ReasonSaturation, false) {
			continue
		}
		if rec.IsCode() && r.upgrade(PhaseSaturation, path, record.TierSkeleton, ReasonSaturation, false) {
			continue
		}
		r.upgrade(PhaseSaturation, path, record.TierSummary, ReasonSaturation, false)
	}
}

// upgrade commits path to target when forced, free, or affordable. It never downgrades.
func (r *run) upgrade(phase Phase, path string, target record.Tier, reason string, forced bool) bool {
	entry := r.plan.Entries[path]
	if target <= entry.Tier {
		return false
	}
	rec := r.records[path]
	marginal := r.gov.Estimator.Marginal(rec, entry.Tier, target)
	if !forced && marginal > 0 && r.plan.Spend+marginal > r.plan.Budget {
		return false
	}

	from := entry.Tier
	entry.Tier = target
	entry.Cost += marginal
	entry.Reason = reason
	r.plan.Entries[path] = entry
	r.plan.Spend += marginal

	if r.trace != nil {
		r.trace(Transition{Path: path, Phase: phase, From: from, To: target, Marginal: marginal, Forced: forced})
	}
	return true
}

func (r *run) finish() {
	stats := Stats{PerTier: make(map[record.Tier]int)}
	for _, entry := range r.plan.Entries {
		stats.PerTier[entry.Tier]++
	}
	if !r.plan.Unlimited && r.plan.Budget > 0 {
		stats.Utilization = math.Round(float64(r.plan.Spend)/float64(r.plan.Budget)*10000) / 100
	}
	r.plan.Stats = stats
}
