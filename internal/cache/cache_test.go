package cache

import (
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/skelly-dev/distill/internal/parser"
	"github.com/skelly-dev/distill/internal/record"
)

func TestLookupRequiresExactMtimeAndSize(t *testing.T) {
	c := New()
	mtime := time.Unix(1700000000, 123456789)
	rec := record.FileRecord{Path: "a.go", Size: 10, Hash: "h1"}
	c.Put("a.go", mtime, 10, rec)

	if got, ok := c.Lookup("a.go", mtime, 10); !ok || got.Hash != "h1" {
		t.Fatalf("expected hit, got ok=%v rec=%#v", ok, got)
	}
	if _, ok := c.Lookup("a.go", mtime.Add(time.Nanosecond), 10); ok {
		t.Fatalf("expected miss on mtime change")
	}
	if _, ok := c.Lookup("a.go", mtime, 11); ok {
		t.Fatalf("expected miss on size change")
	}
	if _, ok := c.Lookup("b.go", mtime, 10); ok {
		t.Fatalf("expected miss on unknown path")
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 3 {
		t.Fatalf("expected 1 hit and 3 misses, got %d/%d", hits, misses)
	}
}

func TestPruneReturnsDeletedPaths(t *testing.T) {
	c := New()
	now := time.Now()
	c.Put("a.go", now, 1, record.FileRecord{Path: "a.go"})
	c.Put("b.go", now, 1, record.FileRecord{Path: "b.go"})
	c.Put("c.go", now, 1, record.FileRecord{Path: "c.go"})

	deleted := c.Prune(map[string]bool{"a.go": true, "b.go": true, "d.go": true})
	if !reflect.DeepEqual(deleted, []string{"c.go"}) {
		t.Fatalf("expected [c.go], got %v", deleted)
	}
	if !reflect.DeepEqual(c.Paths(), []string{"a.go", "b.go"}) {
		t.Fatalf("unexpected remaining paths %v", c.Paths())
	}
}

func TestSaveLoadRoundTripThroughZstd(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Unix(1700000000, 42)
	rec := record.FileRecord{
		Path:      "pkg/a.go",
		Size:      120,
		Hash:      "abc",
		Language:  "go",
		Category:  record.CategoryCode,
		TokenCost: 30,
		Facts: &parser.Facts{
			Language: "go",
			Family:   parser.FamilyBrace,
			Symbols:  []parser.Symbol{{Name: "Run", Kind: parser.SymbolFunction, Line: 3, EndLine: 9}},
			Imports:  []string{"fmt"},
		},
		History: record.NoHistory(),
	}

	c := New()
	c.Put(rec.Path, mtime, rec.Size, rec)
	if err := c.Save(dir); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	got, ok := loaded.Lookup(rec.Path, mtime, rec.Size)
	if !ok {
		t.Fatalf("expected persisted entry to hit")
	}
	if got.Facts == nil || len(got.Facts.Symbols) != 1 || got.Facts.Symbols[0].Name != "Run" {
		t.Fatalf("unexpected facts after round trip: %#v", got.Facts)
	}
	if got.Hash != rec.Hash || got.TokenCost != rec.TokenCost || got.History != rec.History {
		t.Fatalf("record changed across round trip: %#v", got)
	}
}

func TestLoadMissingAndCorruptFiles(t *testing.T) {
	dir := t.TempDir()

	c, err := Load(dir)
	if err != nil || c.Len() != 0 {
		t.Fatalf("expected empty cache without error, got len=%d err=%v", c.Len(), err)
	}

	if err := os.WriteFile(Path(dir), []byte("not zstd"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	c, err = Load(dir)
	if err == nil {
		t.Fatalf("expected decode error for corrupt cache")
	}
	if c == nil || c.Len() != 0 {
		t.Fatalf("expected usable empty cache alongside the error")
	}
}

func TestMigrateSnapshot(t *testing.T) {
	current := &snapshot{
		Version:       CurrentVersion,
		ParserVersion: CurrentParserVersion,
		Entries:       map[string]Entry{"a.go": {Size: 5}},
	}
	migrateSnapshot(current)
	if len(current.Entries) != 1 {
		t.Fatalf("expected current entries to be kept")
	}

	for _, version := range []string{"", "0", "99"} {
		other := &snapshot{Version: version, ParserVersion: CurrentParserVersion, Entries: map[string]Entry{"a.go": {}}}
		migrateSnapshot(other)
		if len(other.Entries) != 0 {
			t.Fatalf("expected entries from cache version %q to be dropped", version)
		}
		if other.Version != CurrentVersion {
			t.Fatalf("expected version %q, got %q", CurrentVersion, other.Version)
		}
	}

	stale := &snapshot{Version: CurrentVersion, ParserVersion: "tree-sitter-v1", Entries: map[string]Entry{"a.go": {}}}
	migrateSnapshot(stale)
	if len(stale.Entries) != 0 {
		t.Fatalf("expected entries from another parser version to be dropped")
	}
	if stale.ParserVersion != CurrentParserVersion {
		t.Fatalf("expected parser version %q, got %q", CurrentParserVersion, stale.ParserVersion)
	}
}
