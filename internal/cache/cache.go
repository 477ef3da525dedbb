// Package cache keeps perception results keyed by (path, mtime, size).
package cache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skelly-dev/distill/internal/record"
)

// Entry is one cached file. A hit requires exact mtime and size.
type Entry struct {
	ModTime int64             `json:"mtime"` // unix nanoseconds
	Size    int64             `json:"size"`
	Record  record.FileRecord `json:"record"`
}

// Cache maps relative paths to entries. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Lookup returns the cached record when mtime and size both match.
func (c *Cache) Lookup(path string, modTime time.Time, size int64) (record.FileRecord, bool) {
	c.mu.RLock()
	entry, ok := c.entries[path]
	c.mu.RUnlock()
	if !ok || entry.ModTime != modTime.UnixNano() || entry.Size != size {
		c.misses.Add(1)
		return record.FileRecord{}, false
	}
	c.hits.Add(1)
	return entry.Record, true
}

// Put stores rec for path, replacing any previous entry.
func (c *Cache) Put(path string, modTime time.Time, size int64, rec record.FileRecord) {
	c.mu.Lock()
	c.entries[path] = Entry{ModTime: modTime.UnixNano(), Size: size, Record: rec}
	c.mu.Unlock()
}

// Get returns the entry for path regardless of freshness.
func (c *Cache) Get(path string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[path]
	return entry, ok
}

// Delete removes path from the cache.
func (c *Cache) Delete(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Paths returns the cached paths in sorted order.
func (c *Cache) Paths() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.entries))
	for path := range c.entries {
		out = append(out, path)
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Records returns every cached record sorted by path.
func (c *Cache) Records() []record.FileRecord {
	c.mu.RLock()
	out := make([]record.FileRecord, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry.Record)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Prune drops entries whose paths are not in current and returns them sorted.
func (c *Cache) Prune(current map[string]bool) []string {
	c.mu.Lock()
	deleted := make([]string, 0)
	for path := range c.entries {
		if !current[path] {
			deleted = append(deleted, path)
			delete(c.entries, path)
		}
	}
	c.mu.Unlock()
	sort.Strings(deleted)
	return deleted
}

// Stats reports lookup counters since creation or the last ResetStats.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
}
