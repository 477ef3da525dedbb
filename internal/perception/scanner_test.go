package perception

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/skelly-dev/distill/internal/cache"
	"github.com/skelly-dev/distill/internal/errs"
	"github.com/skelly-dev/distill/internal/languages"
	"github.com/skelly-dev/distill/internal/parser"
	"github.com/skelly-dev/distill/internal/record"
)

func TestScanClassifiesAndParses(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "go.mod"), "module example.com/demo\n\ngo 1.22\n")
	mustWriteFile(t, filepath.Join(root, "go.sum"), "example.com/x v1.0.0 h1:abc=\n")
	mustWriteFile(t, filepath.Join(root, "main.go"), "package main\n\nfunc main() {\n\trun()\n}\n\nfunc run() {}\n")
	mustWriteFile(t, filepath.Join(root, "README.md"), "# Demo\n\nA demo project.\n")
	mustWriteFile(t, filepath.Join(root, "app", "service.py"), "def handle(req):\n    return req\n")
	mustWriteFile(t, filepath.Join(root, "assets", "logo.dat"), "PNG\x00\x01\x02")
	mustWriteFile(t, filepath.Join(root, "node_modules", "pkg", "index.js"), "module.exports = 1\n")
	if err := os.Symlink("main.go", filepath.Join(root, "entry.go")); err != nil {
		t.Fatalf("symlink failed: %v", err)
	}

	s := NewScanner(root, Options{Registry: languages.NewDefaultRegistry()})
	records, stats, err := s.Scan(context.Background(), ScanOptions{})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	byPath := indexRecords(records)
	if _, ok := byPath["node_modules/pkg/index.js"]; ok {
		t.Fatalf("expected node_modules to be ignored")
	}
	if stats.Files != 7 || len(records) != 7 {
		t.Fatalf("expected 7 files, got %d (%v)", len(records), paths(records))
	}

	mainRec := byPath["main.go"]
	if mainRec.Category != record.CategoryCode || mainRec.Language != "go" {
		t.Fatalf("unexpected main.go classification: %s/%s", mainRec.Category, mainRec.Language)
	}
	if mainRec.FunctionCount() != 2 {
		t.Fatalf("expected 2 functions in main.go, got %d", mainRec.FunctionCount())
	}
	if !mainRec.HasTag(record.TagEntryPoint) || !mainRec.IsKeystone() {
		t.Fatalf("expected main.go in package main to be an entry point")
	}
	if mainRec.TokenCost == 0 || len(mainRec.Hash) != 64 {
		t.Fatalf("expected token cost and sha256 hash, got %d/%q", mainRec.TokenCost, mainRec.Hash)
	}
	if mainRec.History.DaysSinceChange != record.UntrackedDays {
		t.Fatalf("expected untracked history by default")
	}

	if got := byPath["go.sum"].Category; got != record.CategoryLock {
		t.Fatalf("expected go.sum to be a lockfile, got %s", got)
	}
	if got := byPath["go.mod"].Category; got != record.CategoryConfig {
		t.Fatalf("expected go.mod to be config, got %s", got)
	}
	readme := byPath["README.md"]
	if readme.Category != record.CategoryDoc || readme.Facts == nil || len(readme.Facts.Symbols) != 1 {
		t.Fatalf("expected README outline, got %#v", readme)
	}
	if got := byPath["assets/logo.dat"].Category; got != record.CategoryBinary {
		t.Fatalf("expected null byte to mark binary, got %s", got)
	}
	link := byPath["entry.go"]
	if link.Category != record.CategorySymlink || link.SymlinkTarget != "main.go" {
		t.Fatalf("expected symlink record, got %#v", link)
	}
}

func TestSecondScanIsServedFromCache(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.go"), "package a\n\nfunc A() {}\n")
	mustWriteFile(t, filepath.Join(root, "b.py"), "def b():\n    pass\n")

	s := NewScanner(root, Options{Registry: languages.NewDefaultRegistry(), Cache: cache.New()})
	first, stats, err := s.Scan(context.Background(), ScanOptions{})
	if err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	if stats.Interrogated != 2 || stats.CacheHits != 0 {
		t.Fatalf("unexpected first scan stats %#v", stats)
	}
	parses := s.ParseCount()

	second, stats, err := s.Scan(context.Background(), ScanOptions{})
	if err != nil {
		t.Fatalf("second scan failed: %v", err)
	}
	if stats.CacheHits != 2 || stats.Interrogated != 0 {
		t.Fatalf("expected 100%% cache hits, got %#v", stats)
	}
	if s.ParseCount() != parses {
		t.Fatalf("expected zero parser invocations on second scan")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical records across scans")
	}
}

func TestChangedFileIsReinterrogated(t *testing.T) {
	root := t.TempDir()
	aPath := filepath.Join(root, "a.go")
	mustWriteFile(t, aPath, "package a\n\nfunc A() {}\n")
	mustWriteFile(t, filepath.Join(root, "b.go"), "package a\n\nfunc B() {}\n")

	s := NewScanner(root, Options{Registry: languages.NewDefaultRegistry()})
	if _, _, err := s.Scan(context.Background(), ScanOptions{}); err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	mustWriteFile(t, aPath, "package a\n\nfunc A() {}\n\nfunc A2() {}\n")
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(aPath, later, later); err != nil {
		t.Fatalf("chtimes failed: %v", err)
	}

	records, stats, err := s.Scan(context.Background(), ScanOptions{})
	if err != nil {
		t.Fatalf("rescan failed: %v", err)
	}
	if stats.Interrogated != 1 || stats.CacheHits != 1 {
		t.Fatalf("expected exactly one re-interrogation, got %#v", stats)
	}
	if got := indexRecords(records)["a.go"].FunctionCount(); got != 2 {
		t.Fatalf("expected refreshed facts, got %d functions", got)
	}
}

func TestForceRefreshBypassesCache(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.go"), "package a\n")

	s := NewScanner(root, Options{Registry: languages.NewDefaultRegistry()})
	if _, _, err := s.Scan(context.Background(), ScanOptions{}); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	_, stats, err := s.Scan(context.Background(), ScanOptions{ForceRefresh: true})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if stats.CacheHits != 0 || stats.Interrogated != 1 {
		t.Fatalf("expected forced interrogation, got %#v", stats)
	}
}

func TestScanFatalRoots(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	_, _, err := NewScanner(missing, Options{}).Scan(context.Background(), ScanOptions{})
	if !errs.IsFatal(err) {
		t.Fatalf("expected fatal error for missing root, got %v", err)
	}

	empty := t.TempDir()
	mustWriteFile(t, filepath.Join(empty, ".git", "HEAD"), "ref: refs/heads/main\n")
	_, _, err = NewScanner(empty, Options{}).Scan(context.Background(), ScanOptions{})
	if !errs.IsFatal(err) {
		t.Fatalf("expected fatal error for root without candidates, got %v", err)
	}

	file := filepath.Join(t.TempDir(), "plain.txt")
	mustWriteFile(t, file, "x")
	_, _, err = NewScanner(file, Options{}).Scan(context.Background(), ScanOptions{})
	if !errs.IsFatal(err) {
		t.Fatalf("expected fatal error for file root, got %v", err)
	}
}

type failingParser struct{}

func (failingParser) Language() string     { return "broken" }
func (failingParser) Extensions() []string { return []string{".bad"} }
func (failingParser) Parse(string, []byte) (*parser.Facts, error) {
	return nil, errors.New("unexpected token")
}

func TestParseFailureDegradesRecordAndContinues(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "x.bad"), "???")
	mustWriteFile(t, filepath.Join(root, "ok.txt"), "fine")

	registry := parser.NewRegistry()
	registry.Register(parser.FamilyBrace, failingParser{})

	records, stats, err := NewScanner(root, Options{Registry: registry}).Scan(context.Background(), ScanOptions{})
	if err != nil {
		t.Fatalf("scan must not fail on a bad file: %v", err)
	}
	bad := indexRecords(records)["x.bad"]
	if !bad.Degraded || bad.Facts != nil || bad.Hash == "" || bad.Size != 3 {
		t.Fatalf("expected degraded minimal record, got %#v", bad)
	}
	if stats.Degraded != 1 {
		t.Fatalf("expected 1 degraded file, got %d", stats.Degraded)
	}
}

func TestTransientReadFailureIsNotCached(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "app.py"), "def handle(req):\n    return req\n")
	mustWriteFile(t, filepath.Join(root, "util.py"), "def helper():\n    return 1\n")

	restore := readFile
	t.Cleanup(func() { readFile = restore })
	readFile = func(path string) ([]byte, error) {
		if filepath.Base(path) == "app.py" {
			return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrPermission}
		}
		return restore(path)
	}

	s := NewScanner(root, Options{Registry: languages.NewDefaultRegistry()})
	records, stats, err := s.Scan(context.Background(), ScanOptions{})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if !indexRecords(records)["app.py"].Degraded || stats.Degraded != 1 {
		t.Fatalf("expected app.py degraded, got %+v", stats)
	}
	if _, ok := s.Cache().Get("app.py"); ok {
		t.Fatalf("expected transient failure to stay out of the cache")
	}
	if _, ok := s.Cache().Get("util.py"); !ok {
		t.Fatalf("expected healthy file cached")
	}

	// the file is readable again without any mtime change
	readFile = restore
	records, stats, err = s.Scan(context.Background(), ScanOptions{})
	if err != nil {
		t.Fatalf("second scan failed: %v", err)
	}
	app := indexRecords(records)["app.py"]
	if app.Degraded || app.FunctionCount() != 1 {
		t.Fatalf("expected app.py re-interrogated, got %+v", app)
	}
	if stats.CacheHits != 1 || stats.Degraded != 0 {
		t.Fatalf("expected only util.py from cache, got %+v", stats)
	}
}

func TestIncludeGlobsAndIgnoreRules(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "src", "a.py"), "x = 1\n")
	mustWriteFile(t, filepath.Join(root, "src", "gen", "b.py"), "y = 2\n")
	mustWriteFile(t, filepath.Join(root, "docs", "c.md"), "# C\n")

	records, _, err := NewScanner(root, Options{Registry: languages.NewDefaultRegistry()}).Scan(
		context.Background(),
		ScanOptions{Include: []string{"src/**"}, Ignore: []string{"gen/"}},
	)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if got := paths(records); !reflect.DeepEqual(got, []string{"src/a.py"}) {
		t.Fatalf("unexpected paths %v", got)
	}
}

func TestIngestAndForgetFile(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.go"), "package a\n")

	s := NewScanner(root, Options{Registry: languages.NewDefaultRegistry()})
	if _, _, err := s.Scan(context.Background(), ScanOptions{}); err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	mustWriteFile(t, filepath.Join(root, "b.go"), "package a\n\nfunc B() {}\n")
	rec, err := s.IngestFile(context.Background(), "b.go")
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if rec.FunctionCount() != 1 {
		t.Fatalf("expected parsed record, got %#v", rec)
	}
	if _, ok := s.Cache().Get("b.go"); !ok {
		t.Fatalf("expected ingested file in cache")
	}

	s.ForgetFile("b.go")
	if _, ok := s.Cache().Get("b.go"); ok {
		t.Fatalf("expected forgotten file to leave the cache")
	}

	if err := os.Remove(filepath.Join(root, "a.go")); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := s.IngestFile(context.Background(), "a.go"); err == nil {
		t.Fatalf("expected error ingesting a deleted file")
	}
	if s.Cache().Len() != 0 {
		t.Fatalf("expected deleted file to be forgotten, cache has %v", s.Cache().Paths())
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

func indexRecords(records []record.FileRecord) map[string]record.FileRecord {
	out := make(map[string]record.FileRecord, len(records))
	for _, rec := range records {
		out[rec.Path] = rec
	}
	return out
}

func paths(records []record.FileRecord) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Path)
	}
	return out
}
