package fileutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteIfChangedTrackedSkipsIdenticalContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "doc.txt")

	changed, err := WriteIfChangedTracked(path, []byte("hello\n"))
	if err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if !changed {
		t.Fatalf("expected first write to report a change")
	}

	changed, err = WriteIfChangedTracked(path, []byte("hello\n"))
	if err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if changed {
		t.Fatalf("expected identical write to be skipped")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "hello\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestHashBytesMatchesHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("abc"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	fromFile, err := HashFile(path)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if fromFile != HashBytes([]byte("abc")) {
		t.Fatalf("expected file and byte hashes to match")
	}
	if got := ShortHash(fromFile, 16); len(got) != 16 || !strings.HasPrefix(fromFile, got) {
		t.Fatalf("unexpected short hash %q", got)
	}
}

func TestEncodeJSONLWritesOneRecordPerLine(t *testing.T) {
	type row struct {
		Path string `json:"path"`
	}
	data, err := EncodeJSONL([]row{{Path: "a<b>.go"}, {Path: "c.go"}})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if string(lines[0]) != `{"path":"a<b>.go"}` {
		t.Fatalf("expected unescaped html, got %s", lines[0])
	}
}

func TestMapKeysSortedAndDedupe(t *testing.T) {
	keys := MapKeysSorted(map[string]int{"b": 1, "a": 2})
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("unexpected keys %#v", keys)
	}
	if got := DedupeStrings([]string{"x", "y", "x"}); len(got) != 2 {
		t.Fatalf("expected dedupe to drop repeats, got %#v", got)
	}
}
