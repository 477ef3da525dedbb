// Package perception walks a source tree and turns every candidate file into an
// immutable record, reusing cached records for unchanged files.
package perception

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skelly-dev/distill/internal/cache"
	"github.com/skelly-dev/distill/internal/cost"
	"github.com/skelly-dev/distill/internal/errs"
	"github.com/skelly-dev/distill/internal/fileutil"
	"github.com/skelly-dev/distill/internal/ignore"
	"github.com/skelly-dev/distill/internal/parser"
	"github.com/skelly-dev/distill/internal/record"
	"github.com/skelly-dev/distill/internal/slogutil"
)

const (
	// HeaderSize is read first to sniff binary content and shebangs.
	HeaderSize = 8 * 1024
	// MaxParseSize is the largest file handed to a structural parser.
	MaxParseSize = 1 << 20
)

// readFile is replaced in tests to simulate I/O failures.
var readFile = os.ReadFile

// transientOps are failures that can clear without the file changing, so their
// records are never cached.
var transientOps = map[string]bool{"stat": true, "read": true, "readlink": true, "hash": true}

// ScanOptions filter a scan.
type ScanOptions struct {
	Ignore       []string // gitignore-style rules, appended to the defaults
	Include      []string // doublestar globs; empty admits everything
	ForceRefresh bool     // bypass cache lookups
}

// ScanStats summarizes one scan.
type ScanStats struct {
	Files        int           `json:"files"`
	CacheHits    int           `json:"cache_hits"`
	Interrogated int           `json:"interrogated"`
	Parsed       int           `json:"parsed"`
	Degraded     int           `json:"degraded"`
	Removed      int           `json:"removed"`
	Duration     time.Duration `json:"duration"`
}

// Options configures a Scanner. Nil collaborators get defaults.
type Options struct {
	Registry *parser.Registry
	Cache    *cache.Cache
	Counter  cost.Counter
	History  HistoryProvider
	Logger   *slog.Logger
	Workers  int
}

// Scanner owns the cache for the duration of a scan.
type Scanner struct {
	root     string
	registry *parser.Registry
	cache    *cache.Cache
	counter  cost.Counter
	history  HistoryProvider
	logger   *slog.Logger
	workers  int

	matcher *ignore.Matcher
	include *ignore.IncludeSet

	parses atomic.Int64
}

// NewScanner creates a scanner rooted at root.
func NewScanner(root string, opts Options) *Scanner {
	s := &Scanner{
		root:     root,
		registry: opts.Registry,
		cache:    opts.Cache,
		counter:  opts.Counter,
		history:  opts.History,
		logger:   opts.Logger,
		workers:  opts.Workers,
		matcher:  ignore.NewMatcher(nil),
	}
	if s.registry == nil {
		s.registry = parser.NewRegistry()
	}
	if s.cache == nil {
		s.cache = cache.New()
	}
	if s.counter == nil {
		s.counter = cost.HeuristicCounter{}
	}
	if s.history == nil {
		s.history = NoHistory{}
	}
	if s.logger == nil {
		s.logger = slogutil.NewDiscardLogger()
	}
	if s.workers <= 0 {
		s.workers = runtime.NumCPU()
	}
	return s
}

// Root returns the scan root.
func (s *Scanner) Root() string {
	return s.root
}

// Cache returns the cache the scanner fills.
func (s *Scanner) Cache() *cache.Cache {
	return s.cache
}

// SetHistory replaces the history provider for subsequent interrogations.
func (s *Scanner) SetHistory(h HistoryProvider) {
	if h != nil {
		s.history = h
	}
}

// ParseCount returns how many times a structural parser has been invoked.
func (s *Scanner) ParseCount() int64 {
	return s.parses.Load()
}

type perceived struct {
	rec     record.FileRecord
	modTime time.Time
	size    int64
	hit     bool
	parsed  bool
	// transient marks a degraded record that must not be cached.
	transient bool
}

// Scan walks the root and returns one record per candidate file, sorted by path.
// Only a missing, non-directory or empty root is fatal.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) ([]record.FileRecord, ScanStats, error) {
	started := time.Now()
	stats := ScanStats{}

	info, err := os.Stat(s.root)
	if err != nil {
		return nil, stats, errs.Fatalf("root %s is not accessible: %w", s.root, err)
	}
	if !info.IsDir() {
		return nil, stats, errs.Fatalf("root %s is not a directory", s.root)
	}

	s.matcher = ignore.NewMatcher(opts.Ignore)
	s.include = ignore.NewIncludeSet(opts.Include)

	candidates, err := s.collect()
	if err != nil {
		return nil, stats, errs.Fatalf("failed to walk %s: %w", s.root, err)
	}
	if len(candidates) == 0 {
		return nil, stats, errs.Fatalf("no candidate files under %s", s.root)
	}

	results := make([]perceived, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, rel := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.perceive(rel, opts.ForceRefresh)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	// Workers only wrote their own slots; the cache is updated here.
	records := make([]record.FileRecord, 0, len(results))
	current := make(map[string]bool, len(results))
	for _, res := range results {
		current[res.rec.Path] = true
		records = append(records, res.rec)
		if res.hit {
			stats.CacheHits++
			continue
		}
		stats.Interrogated++
		if res.parsed {
			stats.Parsed++
		}
		if res.rec.Degraded {
			stats.Degraded++
		}
		s.store(res)
	}
	stats.Removed = len(s.cache.Prune(current))
	stats.Files = len(records)
	stats.Duration = time.Since(started)

	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })

	s.logger.Info("scan complete",
		"root", s.root,
		"files", stats.Files,
		"cache_hits", stats.CacheHits,
		"interrogated", stats.Interrogated,
		"degraded", stats.Degraded,
		"duration", stats.Duration,
	)
	return records, stats, nil
}

// IngestFile re-interrogates one file and updates its cache entry.
func (s *Scanner) IngestFile(ctx context.Context, relPath string) (record.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return record.FileRecord{}, err
	}
	relPath = filepath.ToSlash(filepath.Clean(relPath))
	if _, err := os.Lstat(filepath.Join(s.root, filepath.FromSlash(relPath))); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.ForgetFile(relPath)
		}
		return record.FileRecord{}, fmt.Errorf("ingest %s: %w", relPath, err)
	}
	if s.matcher.ShouldIgnore(relPath, false) || !s.include.Allows(relPath) {
		return record.FileRecord{}, fmt.Errorf("ingest %s: path is excluded", relPath)
	}

	res := s.perceive(relPath, true)
	s.store(res)
	return res.rec, nil
}

// store caches res unless its failure was transient.
func (s *Scanner) store(res perceived) {
	if res.transient {
		s.cache.Delete(res.rec.Path)
		return
	}
	s.cache.Put(res.rec.Path, res.modTime, res.size, res.rec)
}

// ForgetFile drops one file from the cache.
func (s *Scanner) ForgetFile(relPath string) {
	s.cache.Delete(filepath.ToSlash(filepath.Clean(relPath)))
}

// Excluded reports whether relPath falls outside the last scan's filters.
func (s *Scanner) Excluded(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(relPath)
	if s.matcher.ShouldIgnore(relPath, isDir) {
		return true
	}
	return !isDir && !s.include.Allows(relPath)
}

func (s *Scanner) collect() ([]string, error) {
	candidates := make([]string, 0)
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == s.root {
				return walkErr
			}
			s.logger.Warn("skipping unreadable path", "path", path, "err", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if s.matcher.ShouldIgnore(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.matcher.ShouldIgnore(rel, false) || !s.include.Allows(rel) {
			return nil
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		candidates = append(candidates, rel)
		return nil
	})
	return candidates, err
}

// perceive never fails: any error degrades the record.
func (s *Scanner) perceive(relPath string, force bool) perceived {
	absPath := filepath.Join(s.root, filepath.FromSlash(relPath))

	info, err := os.Lstat(absPath)
	if err != nil {
		return perceived{rec: s.degraded(record.FileRecord{Path: relPath, History: record.NoHistory()}, "stat", err), transient: true}
	}
	res := perceived{modTime: info.ModTime(), size: info.Size()}

	if !force {
		if cached, ok := s.cache.Lookup(relPath, info.ModTime(), info.Size()); ok {
			res.rec = cached
			res.hit = true
			return res
		}
	}

	rec := record.FileRecord{
		Path:    relPath,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		History: s.history.History(relPath),
	}

	if info.Mode()&fs.ModeSymlink != 0 {
		rec.Category = record.CategorySymlink
		rec.Language = "link"
		target, err := os.Readlink(absPath)
		if err != nil {
			return s.fail(res, rec, "readlink", err)
		}
		rec.SymlinkTarget = filepath.ToSlash(target)
		res.rec = rec
		return res
	}

	header, err := readHeader(absPath)
	if err != nil {
		return s.fail(res, rec, "read", err)
	}

	class := classify(s.registry, relPath, header)
	rec.Category = class.category
	rec.Language = class.language

	switch class.category {
	case record.CategoryBinary, record.CategoryNoise, record.CategoryLock:
		hash, err := fileutil.HashFile(absPath)
		if err != nil {
			return s.fail(res, rec, "hash", err)
		}
		rec.Hash = hash
		rec.Tags = semanticTags(relPath, rec.Language, header)
		if class.category == record.CategoryLock {
			rec.TokenCost = s.counter.Count(string(header))
		}
		res.rec = rec
		return res
	}

	raw, err := readFile(absPath)
	if err != nil {
		return s.fail(res, rec, "read", err)
	}
	rec.Hash = fileutil.HashBytes(raw)

	content, latin1, err := decode(raw)
	if err != nil {
		return s.fail(res, rec, "decode", err)
	}
	rec.TokenCost = s.counter.Count(string(content))
	rec.Tags = semanticTags(relPath, rec.Language, content)
	if latin1 {
		s.logger.Debug("decoded as latin-1", "path", relPath)
	}

	if info.Size() > MaxParseSize {
		if rec.Category == record.CategoryCode {
			rec.Category = record.CategoryText
		}
		rec.Tags = append(rec.Tags, record.TagLarge)
		res.rec = rec
		return res
	}

	if class.parse {
		s.parses.Add(1)
		res.parsed = true
		facts, err := s.registry.Extract(relPath, content)
		if err != nil {
			return s.fail(res, rec, "parse", err)
		}
		rec.Facts = facts
	}

	res.rec = rec
	return res
}

func (s *Scanner) fail(res perceived, rec record.FileRecord, op string, err error) perceived {
	res.rec = s.degraded(rec, op, err)
	res.transient = transientOps[op]
	return res
}

func (s *Scanner) degraded(rec record.FileRecord, op string, err error) record.FileRecord {
	failure := &errs.PerFileFailure{Path: rec.Path, Op: op, Err: err}
	s.logger.Warn("file degraded", "path", rec.Path, "op", op, "err", err)
	rec.Degraded = true
	rec.DegradedReason = failure.Error()
	if rec.Category == "" {
		rec.Category = record.CategoryText
	}
	rec.Facts = nil
	return rec
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, HeaderSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:n], nil
}
