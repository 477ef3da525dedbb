package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skelly-dev/distill/internal/fileutil"
	"github.com/skelly-dev/distill/internal/pipeline"
)

// RunDistill writes the distilled document to --output or stdout. The run summary
// goes to stdout when the document is written to a file, otherwise to stderr.
func RunDistill(cmd *cobra.Command, args []string) error {
	outputPath, err := OptionalStringFlag(cmd, "output")
	if err != nil {
		return err
	}
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}

	s, err := openSession(cmd, args)
	if err != nil {
		return err
	}
	pc, err := s.run(commandContext(cmd))
	if err != nil {
		return err
	}

	summary := NewRunSummary("run", pc)
	if outputPath == "" {
		if _, err := io.WriteString(cmd.OutOrStdout(), pc.Document.Text); err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
		if s.quiet && !asJSON {
			return nil
		}
		return PrintRunSummary(cmd.ErrOrStderr(), summary, asJSON)
	}

	summary.Output, err = filepath.Abs(outputPath)
	if err != nil {
		return fmt.Errorf("failed to resolve output %q: %w", outputPath, err)
	}
	summary.Written, err = writeDocument(summary.Output, pc)
	if err != nil {
		return err
	}
	if s.quiet && !asJSON {
		return nil
	}
	return PrintRunSummary(cmd.OutOrStdout(), summary, asJSON)
}

func writeDocument(path string, pc *pipeline.Context) (bool, error) {
	written, err := fileutil.WriteIfChangedTracked(path, []byte(pc.Document.Text))
	if err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return written, nil
}
