package graph

import (
	"sort"

	"github.com/skelly-dev/distill/internal/parser"
	"github.com/skelly-dev/distill/internal/record"
)

// DependencyGraph is the file-level import graph plus the symbol table.
// It is built once per perception pass and read-only afterwards.
type DependencyGraph struct {
	Forward  map[string][]string // path -> paths it imports
	Reverse  map[string][]string // path -> paths importing it
	Symbols  map[string][]string // symbol name -> defining paths, ordered by path
	CoChange map[[2]string]int   // ordered pair -> commits touching both
	files    []string
	known    map[string]bool
}

// Options configures graph construction.
type Options struct {
	// ModulePath is the Go module path from go.mod, used to resolve Go imports.
	ModulePath string
	CoChange   map[[2]string]int
}

// New creates an empty graph over the given paths.
func New(paths []string) *DependencyGraph {
	g := &DependencyGraph{
		Forward:  make(map[string][]string),
		Reverse:  make(map[string][]string),
		Symbols:  make(map[string][]string),
		CoChange: make(map[[2]string]int),
		known:    make(map[string]bool, len(paths)),
	}
	for _, p := range paths {
		if g.known[p] {
			continue
		}
		g.known[p] = true
		g.files = append(g.files, p)
	}
	sort.Strings(g.files)
	return g
}

// Build constructs the graph from perception records.
func Build(records []record.FileRecord, opts Options) *DependencyGraph {
	sorted := make([]record.FileRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	paths := make([]string, 0, len(sorted))
	for _, rec := range sorted {
		paths = append(paths, rec.Path)
	}
	g := New(paths)
	resolver := NewResolver(paths, opts.ModulePath)

	for _, rec := range sorted {
		lang := rec.Language
		if rec.Facts != nil && rec.Facts.Language != "" {
			lang = rec.Facts.Language
		}
		for _, imp := range rec.Imports() {
			for _, target := range resolver.Resolve(rec.Path, lang, imp) {
				g.AddEdge(rec.Path, target)
			}
		}
		g.addSymbols(rec.Path, rec.Facts)
	}

	for pair, count := range opts.CoChange {
		if g.known[pair[0]] && g.known[pair[1]] && pair[0] != pair[1] {
			g.CoChange[record.PairKey(pair[0], pair[1])] += count
		}
	}

	g.normalizeEdges()
	return g
}

// AddEdge records that from imports to. Self-edges and unknown paths are ignored.
func (g *DependencyGraph) AddEdge(from, to string) {
	if from == to || !g.known[from] || !g.known[to] {
		return
	}
	g.Forward[from] = append(g.Forward[from], to)
	g.Reverse[to] = append(g.Reverse[to], from)
}

func (g *DependencyGraph) addSymbols(path string, facts *parser.Facts) {
	if facts == nil {
		return
	}
	for _, sym := range facts.Symbols {
		if !indexedKind(sym.Kind) {
			continue
		}
		g.addSymbol(sym.Name, path)
		if sym.Parent != "" {
			g.addSymbol(sym.QualifiedName(), path)
		}
	}
}

func (g *DependencyGraph) addSymbol(name, path string) {
	if name == "" {
		return
	}
	paths := g.Symbols[name]
	if len(paths) > 0 && paths[len(paths)-1] == path {
		return
	}
	g.Symbols[name] = append(paths, path)
}

func indexedKind(kind parser.SymbolKind) bool {
	switch kind {
	case parser.SymbolFunction, parser.SymbolMethod, parser.SymbolClass,
		parser.SymbolStruct, parser.SymbolInterface:
		return true
	}
	return false
}

func (g *DependencyGraph) normalizeEdges() {
	for path, edges := range g.Forward {
		g.Forward[path] = dedupeAndSort(edges)
	}
	for path, edges := range g.Reverse {
		g.Reverse[path] = dedupeAndSort(edges)
	}
}

// Files returns every path in the graph, sorted.
func (g *DependencyGraph) Files() []string {
	return g.files
}

// Has reports whether path is part of the graph.
func (g *DependencyGraph) Has(path string) bool {
	return g.known[path]
}

// Dependencies returns the paths imported by path.
func (g *DependencyGraph) Dependencies(path string) []string {
	return g.Forward[path]
}

// Dependents returns the paths importing path.
func (g *DependencyGraph) Dependents(path string) []string {
	return g.Reverse[path]
}

// InDegree is the number of files importing path.
func (g *DependencyGraph) InDegree(path string) int {
	return len(g.Reverse[path])
}

// Lookup returns the paths defining name. Ambiguous names keep every candidate.
func (g *DependencyGraph) Lookup(name string) []string {
	return g.Symbols[name]
}

// Partner is a file that historically changes together with another.
type Partner struct {
	Path  string
	Count int
}

// CoChangePartners returns the co-change partners of path, most frequent first.
func (g *DependencyGraph) CoChangePartners(path string) []Partner {
	out := make([]Partner, 0)
	for pair, count := range g.CoChange {
		switch path {
		case pair[0]:
			out = append(out, Partner{Path: pair[1], Count: count})
		case pair[1]:
			out = append(out, Partner{Path: pair[0], Count: count})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})
	return out
}

func dedupeAndSort(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
