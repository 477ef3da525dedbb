package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/skelly-dev/distill/internal/fileutil"
)

const (
	FileName             = "cache.json.zst"
	CurrentVersion       = "1"
	CurrentParserVersion = "tree-sitter-v2"
)

// snapshot is the persisted form of a Cache.
type snapshot struct {
	Version       string           `json:"version"`
	ParserVersion string           `json:"parser_version,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Entries       map[string]Entry `json:"entries"`
}

// Path returns the cache file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads the persisted cache from dir. A missing file yields an empty cache.
// A corrupt file yields an empty cache together with the decode error.
func Load(dir string) (*Cache, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return New(), err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return New(), err
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return New(), fmt.Errorf("failed to decompress %s: %w", Path(dir), err)
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return New(), fmt.Errorf("failed to decode %s: %w", Path(dir), err)
	}

	migrateSnapshot(&snap)

	c := New()
	for path, entry := range snap.Entries {
		c.entries[path] = entry
	}
	return c, nil
}

// Save writes the cache to dir as zstd-compressed JSON.
func (c *Cache) Save(dir string) error {
	c.mu.RLock()
	snap := snapshot{
		Version:       CurrentVersion,
		ParserVersion: CurrentParserVersion,
		UpdatedAt:     time.Now().UTC(),
		Entries:       make(map[string]Entry, len(c.entries)),
	}
	for path, entry := range c.entries {
		snap.Entries[path] = entry
	}
	c.mu.RUnlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer encoder.Close()

	return fileutil.WriteAtomic(Path(dir), encoder.EncodeAll(raw, nil), 0644)
}

// Remove deletes the persisted cache file, if any.
func Remove(dir string) error {
	err := os.Remove(Path(dir))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// migrateSnapshot drops every entry written by another cache or parser version.
func migrateSnapshot(s *snapshot) {
	if s.Entries == nil || s.Version != CurrentVersion || s.ParserVersion != CurrentParserVersion {
		s.Entries = make(map[string]Entry)
	}
	s.Version = CurrentVersion
	s.ParserVersion = CurrentParserVersion
}
