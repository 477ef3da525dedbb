package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/skelly-dev/distill/internal/cache"
	"github.com/skelly-dev/distill/internal/config"
	"github.com/skelly-dev/distill/internal/languages"
	"github.com/skelly-dev/distill/internal/perception"
	"github.com/skelly-dev/distill/internal/pipeline"
	"github.com/skelly-dev/distill/internal/record"
	"github.com/skelly-dev/distill/internal/slogutil"
)

// session is everything one command invocation needs.
type session struct {
	root     string
	cacheDir string
	cfg      *config.Config
	logger   *slog.Logger
	quiet    bool
	scanner  *perception.Scanner
	engine   *pipeline.Engine
	progress *stageProgressReporter
}

func openSession(cmd *cobra.Command, args []string) (*session, error) {
	root, err := resolveRoot(args)
	if err != nil {
		return nil, err
	}

	v := config.NewViper()
	if err := bindPipelineFlags(cmd, v); err != nil {
		return nil, err
	}
	cfg, err := config.Load(root, v)
	if err != nil {
		return nil, err
	}
	rules, err := LoadIgnoreRules(root)
	if err != nil {
		return nil, err
	}
	cfg.Ignore = append(cfg.Ignore, rules...)

	quiet, err := OptionalBoolFlag(cmd, "quiet")
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd, cfg, quiet)
	if err != nil {
		return nil, err
	}

	s := &session{
		root:     root,
		cacheDir: resolveUnder(root, cfg.CacheDir),
		cfg:      cfg,
		logger:   logger,
		quiet:    quiet,
		progress: newStageProgressReporter("distill", quiet),
	}

	store, err := cache.Load(s.cacheDir)
	if err != nil {
		logger.Warn("cache unreadable, starting empty", "path", cache.Path(s.cacheDir), "error", err)
	}
	s.scanner = perception.NewScanner(root, perception.Options{
		Registry: languages.NewDefaultRegistry(),
		Cache:    store,
		Logger:   logger,
	})
	s.engine = pipeline.NewEngine(root, cfg, s.scanner, logger)
	s.engine.Progress = s.progress.Stage
	return s, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config, quiet bool) (*slog.Logger, error) {
	levelName, err := OptionalStringFlag(cmd, "log-level")
	if err != nil {
		return nil, err
	}
	verbosity := optionalCountFlag(cmd, "verbose")

	var level slog.Level
	switch {
	case levelName != "":
		level = slogutil.LevelFromString(levelName)
	case quiet || verbosity > 0:
		level = slogutil.LevelFromVerbosity(verbosity, quiet)
	default:
		level = slogutil.LevelFromString(cfg.LogLevel)
	}
	return slogutil.NewLogger(os.Stderr, level), nil
}

// run executes the pipeline and persists the cache after a successful run.
func (s *session) run(ctx context.Context) (*pipeline.Context, error) {
	pc, err := s.engine.Run(ctx)
	s.progress.Done()
	if err != nil {
		return nil, err
	}
	s.saveCache()
	return pc, nil
}

func (s *session) plan(ctx context.Context) (*pipeline.Context, error) {
	pc, err := s.engine.Plan(ctx)
	s.progress.Done()
	if err != nil {
		return nil, err
	}
	s.saveCache()
	return pc, nil
}

func (s *session) saveCache() {
	if err := s.scanner.Cache().Save(s.cacheDir); err != nil {
		s.logger.Warn("failed to persist cache", "path", cache.Path(s.cacheDir), "error", err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

func tierCounts(counts map[record.Tier]int) map[string]int {
	out := make(map[string]int, len(counts))
	for tier, n := range counts {
		out[tier.String()] = n
	}
	return out
}
