package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skelly-dev/distill/internal/cache"
	"github.com/skelly-dev/distill/internal/config"
	"github.com/skelly-dev/distill/internal/fileutil"
)

type CacheSummary struct {
	Path      string         `json:"path"`
	Exists    bool           `json:"exists"`
	SizeBytes int64          `json:"size_bytes"`
	Entries   int            `json:"entries"`
	Degraded  int            `json:"degraded"`
	Languages map[string]int `json:"languages,omitempty"`
}

func cacheDirFor(cmd *cobra.Command, args []string) (string, error) {
	root, err := resolveRoot(args)
	if err != nil {
		return "", err
	}
	v := config.NewViper()
	if err := bindPipelineFlags(cmd, v); err != nil {
		return "", err
	}
	cfg, err := config.Load(root, v)
	if err != nil {
		return "", err
	}
	return resolveUnder(root, cfg.CacheDir), nil
}

// RunCacheShow reports what the persisted perception cache holds.
func RunCacheShow(cmd *cobra.Command, args []string) error {
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}
	dir, err := cacheDirFor(cmd, args)
	if err != nil {
		return err
	}

	summary := CacheSummary{Path: cache.Path(dir), Languages: make(map[string]int)}
	if info, err := os.Stat(summary.Path); err == nil {
		summary.Exists = true
		summary.SizeBytes = info.Size()
	}
	store, err := cache.Load(dir)
	if err != nil {
		return fmt.Errorf("failed to load cache: %w", err)
	}
	for _, rec := range store.Records() {
		summary.Entries++
		if rec.Degraded {
			summary.Degraded++
		}
		if rec.Language != "" {
			summary.Languages[rec.Language]++
		}
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return fileutil.PrintJSON(out, summary)
	}
	if !summary.Exists {
		fmt.Fprintf(out, "cache: %s (missing)\n", summary.Path)
		return nil
	}
	fmt.Fprintf(out, "cache: %s (%d bytes)\n", summary.Path, summary.SizeBytes)
	fmt.Fprintf(out, "entries: %d degraded=%d\n", summary.Entries, summary.Degraded)
	for _, lang := range fileutil.MapKeysSorted(summary.Languages) {
		fmt.Fprintf(out, "  %s: %d\n", lang, summary.Languages[lang])
	}
	return nil
}

// RunCacheClear deletes the persisted perception cache.
func RunCacheClear(cmd *cobra.Command, args []string) error {
	dir, err := cacheDirFor(cmd, args)
	if err != nil {
		return err
	}
	if err := cache.Remove(dir); err != nil {
		return fmt.Errorf("failed to remove cache: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cache: removed %s\n", cache.Path(dir))
	return nil
}
