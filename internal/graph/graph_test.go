package graph

import (
	"math"
	"reflect"
	"testing"

	"github.com/skelly-dev/distill/internal/parser"
	"github.com/skelly-dev/distill/internal/record"
)

func codeRecord(path, language string, imports []string, symbols ...parser.Symbol) record.FileRecord {
	return record.FileRecord{
		Path:     path,
		Language: language,
		Category: record.CategoryCode,
		Facts: &parser.Facts{
			Language: language,
			Imports:  imports,
			Symbols:  symbols,
		},
	}
}

func TestBuildResolvesPythonImports(t *testing.T) {
	records := []record.FileRecord{
		codeRecord("pkg/__init__.py", "python", nil),
		codeRecord("pkg/a.py", "python", []string{".b", "os"}),
		codeRecord("pkg/b.py", "python", nil),
		codeRecord("pkg/sub/c.py", "python", []string{"..a", "."}),
		codeRecord("pkg/sub/__init__.py", "python", nil),
		codeRecord("main.py", "python", []string{"pkg.sub.c", "lib.util"}),
		codeRecord("src/lib/util.py", "python", nil),
	}

	g := Build(records, Options{})

	if got := g.Dependencies("pkg/a.py"); !reflect.DeepEqual(got, []string{"pkg/b.py"}) {
		t.Fatalf("expected pkg/a.py -> pkg/b.py only, got %#v", got)
	}
	if got := g.Dependencies("pkg/sub/c.py"); !reflect.DeepEqual(got, []string{"pkg/a.py", "pkg/sub/__init__.py"}) {
		t.Fatalf("unexpected relative import edges %#v", got)
	}
	if got := g.Dependencies("main.py"); !reflect.DeepEqual(got, []string{"pkg/sub/c.py", "src/lib/util.py"}) {
		t.Fatalf("unexpected absolute import edges %#v", got)
	}
	if got := g.Dependents("pkg/a.py"); !reflect.DeepEqual(got, []string{"pkg/sub/c.py"}) {
		t.Fatalf("unexpected reverse edges %#v", got)
	}
}

func TestBuildResolvesGoPackagesWithoutTests(t *testing.T) {
	records := []record.FileRecord{
		codeRecord("cmd/app/main.go", "go", []string{"example.com/demo/internal/store", "fmt"}),
		codeRecord("internal/store/store.go", "go", []string{"example.com/demo"}),
		codeRecord("internal/store/load.go", "go", nil),
		codeRecord("internal/store/store_test.go", "go", []string{"example.com/demo/internal/store"}),
		codeRecord("demo.go", "go", nil),
	}

	g := Build(records, Options{ModulePath: "example.com/demo"})

	want := []string{"internal/store/load.go", "internal/store/store.go"}
	if got := g.Dependencies("cmd/app/main.go"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected edges %v, got %v", want, got)
	}
	if got := g.Dependencies("internal/store/store.go"); !reflect.DeepEqual(got, []string{"demo.go"}) {
		t.Fatalf("expected root package edge, got %v", got)
	}
	if got := g.InDegree("internal/store/store.go"); got != 2 {
		t.Fatalf("expected in-degree 2, got %d", got)
	}
}

func TestBuildResolvesScriptImportsAndDropsSelfEdges(t *testing.T) {
	records := []record.FileRecord{
		codeRecord("web/app.ts", "typescript", []string{"./util", "./components", "react", "./app"}),
		codeRecord("web/util.ts", "typescript", nil),
		codeRecord("web/components/index.tsx", "typescript", []string{"../util.ts"}),
	}

	g := Build(records, Options{})

	want := []string{"web/components/index.tsx", "web/util.ts"}
	if got := g.Dependencies("web/app.ts"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected edges %v, got %v", want, got)
	}
	if got := g.Dependencies("web/components/index.tsx"); !reflect.DeepEqual(got, []string{"web/util.ts"}) {
		t.Fatalf("expected explicit extension import to resolve, got %v", got)
	}
}

func TestBuildFallsBackToUniqueSuffix(t *testing.T) {
	records := []record.FileRecord{
		codeRecord("src/main.rs", "rust", []string{"crate::ops::add", "mod:ops", "std::fmt"}),
		codeRecord("src/ops.rs", "rust", nil),
		codeRecord("java/com/acme/Widget.java", "java", nil),
		codeRecord("java/com/acme/App.java", "java", []string{"com.acme.Widget"}),
		codeRecord("a/util.rb", "ruby", nil),
		codeRecord("b/util.rb", "ruby", nil),
		codeRecord("lib/main.rb", "ruby", []string{"util"}),
	}

	g := Build(records, Options{})

	if got := g.Dependencies("src/main.rs"); !reflect.DeepEqual(got, []string{"src/ops.rs"}) {
		t.Fatalf("unexpected rust edges %v", got)
	}
	if got := g.Dependencies("java/com/acme/App.java"); !reflect.DeepEqual(got, []string{"java/com/acme/Widget.java"}) {
		t.Fatalf("unexpected java edges %v", got)
	}
	if got := g.Dependencies("lib/main.rb"); len(got) != 0 {
		t.Fatalf("expected ambiguous suffix to stay unresolved, got %v", got)
	}
}

func TestSymbolTableKeepsAmbiguousCandidatesInPathOrder(t *testing.T) {
	records := []record.FileRecord{
		codeRecord("z.py", "python", nil, parser.Symbol{Name: "load", Kind: parser.SymbolFunction}),
		codeRecord("a.py", "python", nil,
			parser.Symbol{Name: "Store", Kind: parser.SymbolClass},
			parser.Symbol{Name: "load", Kind: parser.SymbolMethod, Parent: "Store"},
			parser.Symbol{Name: "Usage", Kind: parser.SymbolSection},
		),
	}

	g := Build(records, Options{})

	if got := g.Lookup("load"); !reflect.DeepEqual(got, []string{"a.py", "z.py"}) {
		t.Fatalf("expected both candidates in path order, got %v", got)
	}
	if got := g.Lookup("Store.load"); !reflect.DeepEqual(got, []string{"a.py"}) {
		t.Fatalf("expected qualified name to be indexed, got %v", got)
	}
	if got := g.Lookup("Usage"); got != nil {
		t.Fatalf("did not expect sections in the symbol table, got %v", got)
	}
}

func TestCoChangeKeepsKnownPairs(t *testing.T) {
	records := []record.FileRecord{
		codeRecord("a.go", "go", nil),
		codeRecord("b.go", "go", nil),
		codeRecord("c.go", "go", nil),
	}
	g := Build(records, Options{CoChange: map[[2]string]int{
		{"a.go", "b.go"}:    7,
		{"a.go", "c.go"}:    2,
		{"a.go", "gone.go"}: 9,
	}})

	partners := g.CoChangePartners("a.go")
	want := []Partner{{Path: "b.go", Count: 7}, {Path: "c.go", Count: 2}}
	if !reflect.DeepEqual(partners, want) {
		t.Fatalf("expected partners %v, got %v", want, partners)
	}
}

func TestPageRankFavorsSharedDependencies(t *testing.T) {
	g := New([]string{"a", "b", "c", "d"})
	g.AddEdge("a", "b")
	g.AddEdge("c", "b")
	g.AddEdge("b", "b")
	g.normalizeEdges()

	ranks := g.PageRank(DefaultIterations, DefaultDamping)
	if ranks["b"] <= ranks["a"] || ranks["b"] <= ranks["d"] {
		t.Fatalf("expected b to outrank its importers, got %v", ranks)
	}
	if ranks["a"] != ranks["c"] {
		t.Fatalf("expected symmetric importers to tie, got %v", ranks)
	}
	// a and c receive nothing: 1 - damping
	if math.Abs(ranks["a"]-0.15) > 1e-9 {
		t.Fatalf("expected importer rank 0.15, got %f", ranks["a"])
	}
	if math.Abs(ranks["b"]-(0.15+0.85*0.15*2)) > 1e-9 {
		t.Fatalf("unexpected rank for b: %f", ranks["b"])
	}

	top := TopFiles(ranks, 1)
	if len(top) != 1 || top[0].Path != "b" {
		t.Fatalf("expected b on top, got %v", top)
	}
}

func TestPageRankEmptyGraph(t *testing.T) {
	if ranks := New(nil).PageRank(DefaultIterations, DefaultDamping); len(ranks) != 0 {
		t.Fatalf("expected no ranks, got %v", ranks)
	}
}

func TestResolverMemoizesLookups(t *testing.T) {
	r := NewResolver([]string{"pkg/a.py", "pkg/b.py"}, "")
	first := r.Resolve("pkg/a.py", "python", ".b")
	second := r.Resolve("pkg/a.py", "python", ".b")
	if !reflect.DeepEqual(first, second) || len(first) != 1 {
		t.Fatalf("expected stable resolution, got %v and %v", first, second)
	}
	if r.memo.Len() != 1 {
		t.Fatalf("expected one memo entry, got %d", r.memo.Len())
	}
}

func TestModulePathFromGoMod(t *testing.T) {
	content := []byte("// comment\nmodule github.com/acme/tool // trailing\n\ngo 1.22\n")
	if got := ModulePathFromGoMod(content); got != "github.com/acme/tool" {
		t.Fatalf("unexpected module path %q", got)
	}
	if got := ModulePathFromGoMod([]byte("module \"example.com/quoted\"\n")); got != "example.com/quoted" {
		t.Fatalf("unexpected quoted module path %q", got)
	}
	if got := ModulePathFromGoMod([]byte("go 1.22\n")); got != "" {
		t.Fatalf("expected empty module path, got %q", got)
	}
}
