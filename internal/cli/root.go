package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "distill",
		Short: "Distill a codebase into one token-budgeted context document",
		Long: `Distill perceives every file in a project, ranks it by structural and
historical significance, and assigns each file a rendering tier (full source,
skeleton, interface, summary or path only) so the whole document fits a token
budget. Focus keywords, feature descriptions and stack traces pull the files
that matter to the top.

Settings are read from distill.yaml, distill.toml or .distill/config.yaml in the
project root, DISTILL_* environment variables and flags, in increasing priority.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error")
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress logs, progress and summaries")

	runCmd := &cobra.Command{
		Use:   "run [path]",
		Short: "Write the distilled context document",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunDistill,
	}
	addPipelineFlags(runCmd)
	runCmd.Flags().StringP("output", "o", "", "Write the document to this file instead of stdout")
	runCmd.Flags().Bool("json", false, "Print machine-readable run summary")

	planCmd := &cobra.Command{
		Use:   "plan [path]",
		Short: "Print the governance plan as JSONL without rendering",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunPlan,
	}
	addPipelineFlags(planCmd)
	planCmd.Flags().StringP("output", "o", "", "Write the plan to this file instead of stdout")

	watchCmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Regenerate the document whenever files change",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunWatch,
	}
	addPipelineFlags(watchCmd)
	watchCmd.Flags().StringP("output", "o", "", "Document path (default: <cache-dir>/"+WatchOutputFile+")")
	watchCmd.Flags().Duration("debounce", DefaultDebounce, "Quiet period before regenerating")

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the perception cache",
	}
	cacheShowCmd := &cobra.Command{
		Use:   "show [path]",
		Short: "Show what the cache holds",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunCacheShow,
	}
	cacheShowCmd.Flags().String("cache-dir", "", "Cache directory, relative to the project root")
	cacheShowCmd.Flags().Bool("json", false, "Print machine-readable cache summary")
	cacheClearCmd := &cobra.Command{
		Use:   "clear [path]",
		Short: "Delete the persisted cache",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunCacheClear,
	}
	cacheClearCmd.Flags().String("cache-dir", "", "Cache directory, relative to the project root")
	cacheCmd.AddCommand(cacheShowCmd, cacheClearCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "distill %s\n", version)
		},
	}

	rootCmd.AddCommand(
		runCmd,
		planCmd,
		watchCmd,
		cacheCmd,
		versionCmd,
	)

	return rootCmd
}
