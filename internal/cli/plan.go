package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skelly-dev/distill/internal/fileutil"
	"github.com/skelly-dev/distill/internal/pipeline"
	"github.com/skelly-dev/distill/internal/record"
)

// PlanRow is one governance decision.
type PlanRow struct {
	Path    string      `json:"path"`
	Tier    record.Tier `json:"tier"`
	Score   float64     `json:"score"`
	Cost    int         `json:"cost"`
	Reason  string      `json:"reason"`
	Seed    bool        `json:"seed,omitempty"`
	Reasons []string    `json:"reasons,omitempty"`
}

// PlanRows lists the plan in governance order.
func PlanRows(pc *pipeline.Context) []PlanRow {
	rows := make([]PlanRow, 0, len(pc.Plan.Order))
	for _, p := range pc.Plan.Order {
		entry := pc.Plan.Entries[p]
		score, _ := pc.Scores.Get(p)
		row := PlanRow{
			Path:   p,
			Tier:   entry.Tier,
			Score:  score,
			Cost:   entry.Cost,
			Reason: entry.Reason,
			Seed:   pc.Seeds.Has(p),
		}
		if row.Seed {
			row.Reasons = pc.Seeds.Reasons(p)
		} else if pc.Trace != nil {
			row.Reasons = pc.Trace.Reasons[p]
		}
		rows = append(rows, row)
	}
	return rows
}

// RunPlan prints the governance plan as JSONL without rendering anything.
func RunPlan(cmd *cobra.Command, args []string) error {
	outputPath, err := OptionalStringFlag(cmd, "output")
	if err != nil {
		return err
	}

	s, err := openSession(cmd, args)
	if err != nil {
		return err
	}
	pc, err := s.plan(commandContext(cmd))
	if err != nil {
		return err
	}

	data, err := fileutil.EncodeJSONL(PlanRows(pc))
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	if outputPath == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	path, err := filepath.Abs(outputPath)
	if err != nil {
		return fmt.Errorf("failed to resolve output %q: %w", outputPath, err)
	}
	if err := fileutil.WriteIfChanged(path, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	s.logger.Info("plan written", "path", path, "entries", len(pc.Plan.Order))
	return nil
}
