package cli

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/skelly-dev/distill/internal/errs"
)

const (
	DefaultDebounce = 300 * time.Millisecond
	// WatchOutputFile is written inside the cache directory when --output is not set.
	WatchOutputFile = "context.txt"
)

// projectWatcher collects file events and replays them into the perception cache.
type projectWatcher struct {
	s        *session
	fw       *fsnotify.Watcher
	output   string
	debounce time.Duration

	// pending maps a changed path to whether it was removed.
	pending map[string]bool
	last    time.Time
}

func newProjectWatcher(s *session, output string, debounce time.Duration) *projectWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &projectWatcher{
		s:        s,
		output:   output,
		debounce: debounce,
		pending:  make(map[string]bool),
	}
}

// RunWatch regenerates the document whenever files under the root change.
func RunWatch(cmd *cobra.Command, args []string) error {
	outputPath, err := OptionalStringFlag(cmd, "output")
	if err != nil {
		return err
	}
	debounce := DefaultDebounce
	if cmd.Flags().Lookup("debounce") != nil {
		if debounce, err = cmd.Flags().GetDuration("debounce"); err != nil {
			return fmt.Errorf("failed to read --debounce flag: %w", err)
		}
	}

	s, err := openSession(cmd, args)
	if err != nil {
		return err
	}
	if outputPath == "" {
		outputPath = filepath.Join(s.cacheDir, WatchOutputFile)
	}
	if outputPath, err = filepath.Abs(outputPath); err != nil {
		return fmt.Errorf("failed to resolve output: %w", err)
	}

	ctx := commandContext(cmd)
	w := newProjectWatcher(s, outputPath, debounce)
	if err := w.regenerate(ctx); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer fw.Close()
	w.fw = fw
	if err := w.addTree(s.root); err != nil {
		return err
	}
	s.logger.Info("watching", "root", s.root, "output", outputPath, "debounce", debounce)
	return w.loop(ctx)
}

func (w *projectWatcher) loop(ctx context.Context) error {
	ticker := time.NewTicker(max(w.debounce/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.s.logger.Warn("watch error", "error", err)

		case <-ticker.C:
			if len(w.pending) == 0 || time.Since(w.last) < w.debounce {
				continue
			}
			w.flush(ctx)
			if err := w.regenerate(ctx); err != nil {
				if errs.IsFatal(err) || ctx.Err() != nil {
					return err
				}
				w.s.logger.Warn("regeneration failed", "error", err)
			}
		}
	}
}

// handle records one event. New directories are added to the watch set.
func (w *projectWatcher) handle(event fsnotify.Event) {
	rel, ok := w.relative(event.Name)
	if !ok {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.s.scanner.Excluded(rel, true) && w.fw != nil {
				if err := w.addTree(event.Name); err != nil {
					w.s.logger.Warn("failed to watch directory", "path", rel, "error", err)
				}
			}
			return
		}
	}
	if w.s.scanner.Excluded(rel, false) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		w.pending[rel] = true
	case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
		w.pending[rel] = false
	default:
		return
	}
	w.last = time.Now()
}

// flush replays pending changes into the cache.
func (w *projectWatcher) flush(ctx context.Context) {
	for rel, removed := range w.pending {
		if removed {
			w.s.scanner.ForgetFile(rel)
			w.s.logger.Debug("forgot file", "path", rel)
			continue
		}
		if _, err := w.s.scanner.IngestFile(ctx, rel); err != nil {
			w.s.logger.Debug("ingest skipped", "path", rel, "error", err)
		}
	}
	clear(w.pending)
}

func (w *projectWatcher) regenerate(ctx context.Context) error {
	pc, err := w.s.run(ctx)
	if err != nil {
		return err
	}
	written, err := writeDocument(w.output, pc)
	if err != nil {
		return err
	}
	w.s.logger.Info("context refreshed",
		"written", written,
		"tokens", pc.Document.Tokens,
		"included", pc.Document.Included,
		"cache_hits", pc.ScanStats.CacheHits,
	)
	return nil
}

// relative maps an absolute event path into the root. Paths outside the root and
// the output file itself are rejected.
func (w *projectWatcher) relative(name string) (string, bool) {
	if name == w.output {
		return "", false
	}
	rel, err := filepath.Rel(w.s.root, name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

func (w *projectWatcher) addTree(start string) error {
	return filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.relative(path); ok && w.s.scanner.Excluded(rel, true) {
			return filepath.SkipDir
		}
		if err := w.fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
