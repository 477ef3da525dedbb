package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/skelly-dev/distill/internal/config"
)

func newRunCmdForTest() *cobra.Command {
	cmd := &cobra.Command{Use: "run"}
	addPipelineFlags(cmd)
	cmd.Flags().StringP("output", "o", "", "")
	cmd.Flags().Bool("json", false, "")
	cmd.Flags().BoolP("quiet", "q", true, "")
	return cmd
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "distill.yaml"), `token_budget: 64k
strategy: surgical
depth: 3
focus_keywords: [billing]
`)
	mustWriteFile(t, filepath.Join(root, "a.go"), "package a\n")

	cmd := newRunCmdForTest()
	mustSetFlag(t, cmd, "strategy", "aggressive")
	mustSetFlag(t, cmd, "focus", "auth,session")

	s, err := openSession(cmd, []string{root})
	if err != nil {
		t.Fatalf("openSession failed: %v", err)
	}
	if s.cfg.TokenBudget != 64000 {
		t.Fatalf("expected budget from file, got %d", s.cfg.TokenBudget)
	}
	if s.cfg.Strategy != config.StrategyAggressive {
		t.Fatalf("expected flag to override strategy, got %q", s.cfg.Strategy)
	}
	if s.cfg.Depth != 3 {
		t.Fatalf("expected depth from file, got %d", s.cfg.Depth)
	}
	if !reflect.DeepEqual(s.cfg.FocusKeywords, []string{"auth", "session"}) {
		t.Fatalf("expected focus from flag, got %#v", s.cfg.FocusKeywords)
	}
	if s.cfg.Direction != config.DirectionDependencies {
		t.Fatalf("expected default direction, got %q", s.cfg.Direction)
	}
	if s.cacheDir != filepath.Join(root, config.DefaultCacheDir) {
		t.Fatalf("unexpected cache dir %q", s.cacheDir)
	}
}

func TestOpenSessionAppendsIgnoreFile(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, IgnoreFile), "# generated\n\ngen/\n*.pb.go\n")

	cmd := newRunCmdForTest()
	mustSetFlag(t, cmd, "ignore", "tmp/")
	s, err := openSession(cmd, []string{root})
	if err != nil {
		t.Fatalf("openSession failed: %v", err)
	}
	if !reflect.DeepEqual(s.cfg.Ignore, []string{"tmp/", "gen/", "*.pb.go"}) {
		t.Fatalf("unexpected ignore rules %#v", s.cfg.Ignore)
	}
}

func TestRunDistillWritesOutputOnce(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "main.py"), "def main():\n    return 1\n")
	outPath := filepath.Join(t.TempDir(), "out", "context.txt")

	cmd := newRunCmdForTest()
	mustSetFlag(t, cmd, "output", outPath)
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)

	if err := RunDistill(cmd, []string{root}); err != nil {
		t.Fatalf("RunDistill failed: %v", err)
	}
	assertExists(t, outPath)
	assertExists(t, filepath.Join(root, config.DefaultCacheDir, "cache.json.zst"))
	if stdout.Len() != 0 {
		t.Fatalf("expected quiet run to print nothing, got %q", stdout.String())
	}
}

func TestPrintRunSummaryText(t *testing.T) {
	summary := RunSummary{
		Mode:       "run",
		Output:     "/tmp/context.txt",
		Written:    true,
		Strategy:   "balanced",
		Budget:     32000,
		Tokens:     1200,
		Scanned:    12,
		CacheHits:  10,
		Parsed:     2,
		Included:   11,
		Omitted:    1,
		Passes:     1,
		PerTier:    map[string]int{"FULL": 3, "PATH_ONLY": 8},
		Seeds:      []string{"app/auth.py"},
		DurationMS: 42,
	}
	var out bytes.Buffer
	if err := PrintRunSummary(&out, summary, false); err != nil {
		t.Fatalf("PrintRunSummary failed: %v", err)
	}
	expected := strings.Join([]string{
		"run complete in 42ms",
		"output: /tmp/context.txt (written)",
		"files: scanned=12 cache_hits=10 parsed=2 degraded=0",
		"document: tokens=1200 budget=32000 included=11 omitted=1 passes=1",
		"tiers: FULL=3 PATH_ONLY=8",
		"seeds (1): app/auth.py",
		"",
	}, "\n")
	if out.String() != expected {
		t.Fatalf("unexpected summary:\n%s", out.String())
	}

	summary.Strategy = string(config.StrategyFaithful)
	if got := budgetLabel(summary); got != "unlimited" {
		t.Fatalf("expected unlimited budget label, got %q", got)
	}
}

func TestSummarizePaths(t *testing.T) {
	if got := SummarizePaths([]string{"a", "b"}, 3); got != "a, b" {
		t.Fatalf("unexpected summary %q", got)
	}
	if got := SummarizePaths([]string{"a", "b", "c", "d"}, 2); got != "a, b ... (+2 more)" {
		t.Fatalf("unexpected truncated summary %q", got)
	}
}

func TestWatcherReplaysChangesIntoCache(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.py"), "def a():\n    return 1\n")
	mustWriteFile(t, filepath.Join(root, "b.py"), "def b():\n    return 2\n")

	s, err := openSession(newRunCmdForTest(), []string{root})
	if err != nil {
		t.Fatalf("openSession failed: %v", err)
	}
	outPath := filepath.Join(t.TempDir(), "context.txt")
	w := newProjectWatcher(s, outPath, 10*time.Millisecond)
	ctx := context.Background()
	if err := w.regenerate(ctx); err != nil {
		t.Fatalf("regenerate failed: %v", err)
	}

	mustWriteFile(t, filepath.Join(root, "a.py"), "def a():\n    return 10\n\n\ndef c():\n    return 3\n")
	if err := os.Remove(filepath.Join(root, "b.py")); err != nil {
		t.Fatalf("failed to remove b.py: %v", err)
	}
	w.handle(fsnotify.Event{Name: filepath.Join(root, "a.py"), Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: filepath.Join(root, "b.py"), Op: fsnotify.Remove})
	w.handle(fsnotify.Event{Name: outPath, Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: filepath.Join(root, ".distill", "cache.json.zst"), Op: fsnotify.Write})

	if !reflect.DeepEqual(w.pending, map[string]bool{"a.py": false, "b.py": true}) {
		t.Fatalf("unexpected pending changes %#v", w.pending)
	}

	w.flush(ctx)
	if len(w.pending) != 0 {
		t.Fatalf("expected pending changes cleared")
	}
	if _, ok := s.scanner.Cache().Get("b.py"); ok {
		t.Fatalf("expected removed file forgotten")
	}
	entry, ok := s.scanner.Cache().Get("a.py")
	if !ok || entry.Record.FunctionCount() != 2 {
		t.Fatalf("expected a.py re-ingested with two functions, got %+v", entry)
	}

	if err := w.regenerate(ctx); err != nil {
		t.Fatalf("regenerate failed: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	if strings.Contains(string(data), "b.py") || !strings.Contains(string(data), "return 10") {
		t.Fatalf("expected regenerated document to reflect changes, got:\n%s", data)
	}
}

func mustSetFlag(t *testing.T, cmd *cobra.Command, key, value string) {
	t.Helper()
	if err := cmd.Flags().Set(key, value); err != nil {
		t.Fatalf("failed to set --%s: %v", key, err)
	}
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
