package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// pipelineFlags maps flag names onto config keys.
var pipelineFlags = map[string]string{
	"budget":          "token_budget",
	"strategy":        "strategy",
	"focus":           "focus_keywords",
	"feature":         "feature",
	"problem-context": "problem_context",
	"persona":         "persona",
	"coverage":        "coverage_map",
	"coverage-file":   "coverage_file",
	"recursive":       "recursive_agent",
	"depth":           "depth",
	"direction":       "direction",
	"annotate":        "annotate",
	"force-refresh":   "force_refresh",
	"ignore":          "ignore",
	"include":         "include",
	"cache-dir":       "cache_dir",
}

func addPipelineFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("budget", "b", "", "Token budget, e.g. 32000 or 128k")
	flags.StringP("strategy", "s", "", "Strategy: faithful|balanced|surgical|aggressive")
	flags.StringSliceP("focus", "f", nil, "Focus keywords: paths, symbols or path fragments")
	flags.String("feature", "", "Free-text feature description used for semantic seeds")
	flags.String("problem-context", "", "Error message or stack trace used for forensic seeds")
	flags.String("persona", "", "Ranking profile: debug|architecture|security (default balanced)")
	flags.StringSlice("coverage", nil, "Executed file paths; restricts propagation to them")
	flags.String("coverage-file", "", "File listing executed paths, one per line")
	flags.Bool("recursive", false, "Run a second pass that seeds omitted dependencies")
	flags.Int("depth", 0, "Propagation depth")
	flags.String("direction", "", "Propagation direction: dependencies|dependents|both")
	flags.Bool("annotate", false, "Add role, vitality, import and debt metadata to FULL entries")
	flags.Bool("force-refresh", false, "Ignore the perception cache")
	flags.StringSlice("ignore", nil, "Extra gitignore-style rules")
	flags.StringSlice("include", nil, "Only include paths matching these globs")
	flags.String("cache-dir", "", "Cache directory, relative to the project root")
}

// bindPipelineFlags binds the flags cmd defines onto v. Unset flags fall through to
// the config file, environment and defaults.
func bindPipelineFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range pipelineFlags {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return nil
}

func OptionalStringFlag(cmd *cobra.Command, name string) (string, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return "", nil
	}
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return strings.TrimSpace(value), nil
}

func OptionalBoolFlag(cmd *cobra.Command, name string) (bool, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return false, nil
	}
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		return false, fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return value, nil
}

func optionalCountFlag(cmd *cobra.Command, name string) int {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return 0
	}
	value, err := cmd.Flags().GetCount(name)
	if err != nil {
		return 0
	}
	return value
}
