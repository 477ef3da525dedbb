package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/skelly-dev/distill/internal/config"
	"github.com/skelly-dev/distill/internal/fileutil"
	"github.com/skelly-dev/distill/internal/pipeline"
	"github.com/skelly-dev/distill/internal/record"
)

type RunSummary struct {
	Mode       string           `json:"mode"`
	RootPath   string           `json:"root_path"`
	Output     string           `json:"output,omitempty"`
	Written    bool             `json:"written"`
	Strategy   string           `json:"strategy"`
	Budget     int              `json:"budget"`
	Tokens     int              `json:"tokens"`
	Scanned    int              `json:"scanned"`
	CacheHits  int              `json:"cache_hits"`
	Parsed     int              `json:"parsed"`
	Degraded   int              `json:"degraded"`
	Included   int              `json:"included"`
	Omitted    int              `json:"omitted"`
	Passes     int              `json:"passes"`
	PerTier    map[string]int   `json:"per_tier"`
	Seeds      []string         `json:"seeds,omitempty"`
	Gaps       []string         `json:"gaps,omitempty"`
	Failures   []string         `json:"failures,omitempty"`
	RunID      string           `json:"run_id,omitempty"`
	Checksum   string           `json:"checksum,omitempty"`
	DurationMS int64            `json:"duration_ms"`
	TimingsMS  map[string]int64 `json:"timings_ms,omitempty"`
}

// NewRunSummary collects the reportable facts of a finished pipeline run.
func NewRunSummary(mode string, pc *pipeline.Context) RunSummary {
	summary := RunSummary{
		Mode:      mode,
		RootPath:  pc.Root,
		Strategy:  string(pc.Config.Strategy),
		Budget:    pc.Config.TokenBudget,
		Scanned:   pc.ScanStats.Files,
		CacheHits: pc.ScanStats.CacheHits,
		Parsed:    pc.ScanStats.Parsed,
		Degraded:  pc.ScanStats.Degraded,
		Passes:    pc.Passes,
		Seeds:     pc.Seeds.Paths(),
		Gaps:      pc.Gaps,
		TimingsMS: make(map[string]int64, len(pc.Timings)),
	}
	for _, timing := range pc.Timings {
		summary.TimingsMS[timing.Stage] += timing.Duration.Milliseconds()
	}

	if doc := pc.Document; doc != nil {
		summary.Tokens = doc.Tokens
		summary.Included = doc.Included
		summary.Omitted = doc.Omitted
		summary.PerTier = tierCounts(doc.PerTier)
		summary.RunID = doc.RunID
		summary.Checksum = doc.Checksum
		summary.DurationMS = doc.Duration.Milliseconds()
		for _, failure := range doc.Failures {
			summary.Failures = append(summary.Failures, failure.Error())
		}
		return summary
	}

	counts := make(map[record.Tier]int)
	for _, p := range pc.Plan.Order {
		counts[pc.Plan.Tier(p)]++
	}
	summary.PerTier = tierCounts(counts)
	summary.Tokens = pc.Plan.Spend
	for _, timing := range pc.Timings {
		summary.DurationMS += timing.Duration.Milliseconds()
	}
	return summary
}

func PrintRunSummary(w io.Writer, summary RunSummary, asJSON bool) error {
	if asJSON {
		return fileutil.PrintJSON(w, summary)
	}

	fmt.Fprintf(w, "%s complete in %dms\n", summary.Mode, summary.DurationMS)
	if summary.Output != "" {
		state := "unchanged"
		if summary.Written {
			state = "written"
		}
		fmt.Fprintf(w, "output: %s (%s)\n", summary.Output, state)
	}
	fmt.Fprintf(w, "files: scanned=%d cache_hits=%d parsed=%d degraded=%d\n",
		summary.Scanned, summary.CacheHits, summary.Parsed, summary.Degraded)
	fmt.Fprintf(w, "document: tokens=%d budget=%s included=%d omitted=%d passes=%d\n",
		summary.Tokens, budgetLabel(summary), summary.Included, summary.Omitted, summary.Passes)

	tiers := make([]string, 0, len(summary.PerTier))
	for _, tier := range record.AllTiers() {
		if n := summary.PerTier[tier.String()]; n > 0 {
			tiers = append(tiers, fmt.Sprintf("%s=%d", tier, n))
		}
	}
	if len(tiers) > 0 {
		fmt.Fprintf(w, "tiers: %s\n", strings.Join(tiers, " "))
	}
	if len(summary.Seeds) > 0 {
		fmt.Fprintf(w, "seeds (%d): %s\n", len(summary.Seeds), SummarizePaths(summary.Seeds, 8))
	}
	if len(summary.Gaps) > 0 {
		fmt.Fprintf(w, "gaps (%d): %s\n", len(summary.Gaps), SummarizePaths(summary.Gaps, 8))
	}
	for _, failure := range summary.Failures {
		fmt.Fprintf(w, "  failed: %s\n", failure)
	}
	return nil
}

func budgetLabel(summary RunSummary) string {
	if summary.Strategy == string(config.StrategyFaithful) {
		return "unlimited"
	}
	return fmt.Sprintf("%d", summary.Budget)
}

func SummarizePaths(paths []string, max int) string {
	if len(paths) <= max {
		return strings.Join(paths, ", ")
	}
	return fmt.Sprintf("%s ... (+%d more)", strings.Join(paths[:max], ", "), len(paths)-max)
}
