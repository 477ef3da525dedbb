package oracle

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/skelly-dev/distill/internal/config"
	"github.com/skelly-dev/distill/internal/fileutil"
	"github.com/skelly-dev/distill/internal/graph"
	"github.com/skelly-dev/distill/internal/record"
	"github.com/skelly-dev/distill/internal/slogutil"
)

// Propagation constants.
const (
	CoverageImpact     = 1000.0
	HopBaseScore       = 100.0
	MinHopScore        = 10.0
	CoChangeThreshold  = 5
	CoChangeImpact     = 20.0
	ConfigLinkImpact   = 30.0
	maxConfigKeyReason = 3
)

// ActiveSymbols maps a traced path to the symbol names other traced files use.
// A nil set means the whole file stays visible.
type ActiveSymbols map[string]map[string]bool

// Restricted reports whether path has an active-symbol restriction and returns it.
func (a ActiveSymbols) Restricted(path string) (map[string]bool, bool) {
	set, ok := a[path]
	if !ok || set == nil {
		return nil, false
	}
	return set, true
}

// Trace is the outcome of propagation.
type Trace struct {
	Impact  map[string]float64  // traced path -> impact delta
	Reasons map[string][]string // why a non-seed file was traced
	Active  ActiveSymbols
}

func newTrace() *Trace {
	return &Trace{
		Impact:  make(map[string]float64),
		Reasons: make(map[string][]string),
		Active:  make(ActiveSymbols),
	}
}

// Has reports whether path is traced.
func (t *Trace) Has(path string) bool {
	_, ok := t.Impact[path]
	return ok
}

// Paths returns traced paths in sorted order.
func (t *Trace) Paths() []string {
	return fileutil.MapKeysSorted(t.Impact)
}

func (t *Trace) add(path string, reason string) bool {
	if t.Has(path) {
		return false
	}
	t.Impact[path] = 0
	if reason != "" {
		t.Reasons[path] = append(t.Reasons[path], reason)
	}
	return true
}

// Options configures one propagation run.
type Options struct {
	Depth     int
	Direction config.Direction
	Coverage  []string
	Surgical  bool
}

// Propagator expands seeds into the traced set.
type Propagator struct {
	// ReadFile loads a file by relative path for config linkage.
	ReadFile func(rel string) ([]byte, error)
	Logger   *slog.Logger
}

// NewPropagator reads file content from root.
func NewPropagator(root string, logger *slog.Logger) *Propagator {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Propagator{
		ReadFile: func(rel string) ([]byte, error) {
			return os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		},
		Logger: logger,
	}
}

// Propagate runs coverage filtering, graph expansion, co-change, config linkage and
// active-symbol computation in that order.
func (p *Propagator) Propagate(seeds SeedSet, g *graph.DependencyGraph, records []record.FileRecord, opts Options) *Trace {
	trace := newTrace()
	for _, seed := range seeds.Paths() {
		trace.add(seed, "")
	}

	p.applyCoverage(trace, seeds, opts.Coverage)
	p.expandGraph(trace, g, opts)
	p.expandCoChange(trace, g)
	p.linkConfigs(trace, records)
	p.computeActiveSymbols(trace, seeds, g, records, opts.Surgical)

	p.Logger.Debug("propagation complete", "seeds", len(seeds), "traced", len(trace.Impact))
	return trace
}

func (p *Propagator) applyCoverage(trace *Trace, seeds SeedSet, coverage []string) {
	if len(coverage) == 0 {
		return
	}
	covered := fileutil.ToSet(coverage)
	for _, path := range trace.Paths() {
		if !covered[path] && !seeds.Has(path) {
			delete(trace.Impact, path)
			delete(trace.Reasons, path)
		}
	}
	for _, path := range trace.Paths() {
		if covered[path] {
			trace.Impact[path] = CoverageImpact
			trace.Reasons[path] = append(trace.Reasons[path], "Executed Code")
		}
	}
}

// expandGraph walks the graph from every traced file. Hop h scores 100/2^h and
// files scoring above MinHopScore join the trace.
func (p *Propagator) expandGraph(trace *Trace, g *graph.DependencyGraph, opts Options) {
	depth := opts.Depth
	if depth <= 0 {
		return
	}
	best := make(map[string]int)
	frontier := trace.Paths()
	for _, path := range frontier {
		best[path] = 0
	}

	for hop := 1; hop <= depth && len(frontier) > 0; hop++ {
		next := make([]string, 0)
		for _, path := range frontier {
			for _, neighbor := range neighbors(g, path, opts.Direction) {
				if _, seen := best[neighbor]; seen {
					continue
				}
				best[neighbor] = hop
				next = append(next, neighbor)
			}
		}
		sort.Strings(next)
		frontier = next
	}

	for path, hop := range best {
		if hop == 0 {
			continue
		}
		score := HopBaseScore / math.Pow(2, float64(hop))
		if score <= MinHopScore {
			continue
		}
		trace.add(path, fmt.Sprintf("Static Causality (hop %d)", hop))
		if score > trace.Impact[path] {
			trace.Impact[path] = score
		}
	}
}

func neighbors(g *graph.DependencyGraph, path string, direction config.Direction) []string {
	switch direction {
	case config.DirectionDependents:
		return g.Dependents(path)
	case config.DirectionBoth:
		out := append([]string{}, g.Dependencies(path)...)
		return append(out, g.Dependents(path)...)
	default:
		return g.Dependencies(path)
	}
}

func (p *Propagator) expandCoChange(trace *Trace, g *graph.DependencyGraph) {
	for _, path := range trace.Paths() {
		for _, partner := range g.CoChangePartners(path) {
			if partner.Count <= CoChangeThreshold {
				break
			}
			if trace.add(partner.Path, fmt.Sprintf("Temporal Cohesion with %s (%d co-edits)", path, partner.Count)) {
				trace.Impact[partner.Path] += CoChangeImpact
			}
		}
	}
}

// linkConfigs traces config files whose keys appear in traced file content.
func (p *Propagator) linkConfigs(trace *Trace, records []record.FileRecord) {
	consumers := trace.Paths()
	contents := make(map[string]string, len(consumers))
	load := func(path string) string {
		if text, ok := contents[path]; ok {
			return text
		}
		data, err := p.ReadFile(path)
		if err != nil {
			p.Logger.Debug("skip unreadable consumer", "path", path, "error", err)
		}
		contents[path] = string(data)
		return contents[path]
	}

	for _, rec := range records {
		if rec.Category != record.CategoryConfig || !IsConfigLinkable(rec.Path) || trace.Has(rec.Path) || rec.Degraded {
			continue
		}
		data, err := p.ReadFile(rec.Path)
		if err != nil {
			p.Logger.Debug("skip unreadable config", "path", rec.Path, "error", err)
			continue
		}
		keys, err := ConfigKeys(rec.Path, data)
		if err != nil {
			p.Logger.Debug("skip undecodable config", "path", rec.Path, "error", err)
			continue
		}
		if len(keys) == 0 {
			continue
		}

		used := make([]string, 0)
		for _, key := range keys {
			for _, consumer := range consumers {
				if consumer == rec.Path || IsConfigLinkable(consumer) {
					continue
				}
				if containsWord(load(consumer), key) {
					used = append(used, key)
					break
				}
			}
		}
		if len(used) == 0 {
			continue
		}
		if len(used) > maxConfigKeyReason {
			used = used[:maxConfigKeyReason]
		}
		trace.add(rec.Path, "Config Provider ("+strings.Join(used, ", ")+")")
		trace.Impact[rec.Path] += ConfigLinkImpact
	}
}

// computeActiveSymbols records, per traced provider, the names other traced files use.
func (p *Propagator) computeActiveSymbols(trace *Trace, seeds SeedSet, g *graph.DependencyGraph, records []record.FileRecord, surgical bool) {
	byPath := make(map[string]record.FileRecord, len(records))
	for _, rec := range records {
		byPath[rec.Path] = rec
	}

	for _, path := range trace.Paths() {
		if !seeds.Has(path) {
			trace.Active[path] = make(map[string]bool)
		}
	}

	for _, consumer := range trace.Paths() {
		rec, ok := byPath[consumer]
		if !ok || rec.Facts == nil {
			continue
		}
		for _, name := range usedNames(rec) {
			providers := g.Lookup(name)
			if len(providers) == 0 && strings.Contains(name, ".") {
				providers = g.Lookup(lastSegment(name))
			}
			for _, provider := range providers {
				if provider == consumer || !trace.Has(provider) {
					continue
				}
				set := trace.Active[provider]
				if set == nil {
					set = make(map[string]bool)
					trace.Active[provider] = set
				}
				set[lastSegment(name)] = true
			}
		}
	}

	for _, seed := range seeds.Paths() {
		if !surgical || len(trace.Active[seed]) == 0 {
			trace.Active[seed] = nil
		}
	}
}

// usedNames lists the names a file references: called names and imported members.
func usedNames(rec record.FileRecord) []string {
	names := make([]string, 0, len(rec.Facts.References))
	names = append(names, rec.Facts.References...)
	for alias, target := range rec.Facts.ImportAliases {
		if idx := strings.Index(target, "#"); idx != -1 {
			names = append(names, target[idx+1:])
			continue
		}
		names = append(names, alias)
	}
	return fileutil.DedupeStrings(names)
}

func lastSegment(name string) string {
	if idx := strings.LastIndex(name, "."); idx != -1 {
		return name[idx+1:]
	}
	return name
}
