package oracle

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skelly-dev/distill/internal/config"
	"github.com/skelly-dev/distill/internal/graph"
	"github.com/skelly-dev/distill/internal/parser"
	"github.com/skelly-dev/distill/internal/record"
)

func pyRecord(path string, imports []string, refs []string, symbols ...parser.Symbol) record.FileRecord {
	return record.FileRecord{
		Path:     path,
		Language: "python",
		Category: record.CategoryCode,
		Facts: &parser.Facts{
			Language:   "python",
			Imports:    imports,
			References: refs,
			Symbols:    symbols,
		},
	}
}

func fn(name string) parser.Symbol {
	return parser.Symbol{Name: name, Kind: parser.SymbolFunction}
}

type fakeSearcher struct {
	hits []string
	err  error
}

func (f fakeSearcher) SearchPaths(context.Context, string, int) ([]string, error) {
	return f.hits, f.err
}

func seedFixture() []record.FileRecord {
	return []record.FileRecord{
		pyRecord("src/auth/service.py", nil, nil,
			parser.Symbol{Name: "AuthService", Kind: parser.SymbolClass},
			parser.Symbol{Name: "login", Kind: parser.SymbolMethod, Parent: "AuthService"},
		),
		pyRecord("src/auth/models.py", nil, nil, parser.Symbol{Name: "User", Kind: parser.SymbolClass}),
		pyRecord("src/api/routes.py", nil, nil, fn("index")),
		{Path: "README.md", Category: record.CategoryDoc},
	}
}

func TestResolveFocusKeywords(t *testing.T) {
	g := graph.Build(seedFixture(), graph.Options{})
	r := NewResolver(g, nil, nil)

	seeds := r.Resolve(context.Background(), Intent{
		FocusKeywords: []string{"src/api/routes.py", "AuthService", "models.User", "auth", "nothing"},
	})

	require.Equal(t, []string{"src/api/routes.py", "src/auth/models.py", "src/auth/service.py"}, seeds.Paths())
	require.Equal(t, []string{ReasonExplicitFocus}, seeds.Reasons("src/api/routes.py"))
	require.Equal(t, []string{"Path Resonance: auth", "Symbol: AuthService"}, seeds.Reasons("src/auth/service.py"))
	require.Equal(t, []string{"Path Resonance: auth", "Symbol: models.User"}, seeds.Reasons("src/auth/models.py"))
}

func TestResolveQualifiedSymbolPrefersExactEntry(t *testing.T) {
	g := graph.Build(seedFixture(), graph.Options{})
	seeds := NewResolver(g, nil, nil).Resolve(context.Background(), Intent{FocusKeywords: []string{"AuthService.login"}})

	require.Equal(t, []string{"src/auth/service.py"}, seeds.Paths())
	require.Equal(t, []string{"Symbol: AuthService.login"}, seeds.Reasons("src/auth/service.py"))
}

func TestResolveSemanticAndForensicSeeds(t *testing.T) {
	g := graph.Build(seedFixture(), graph.Options{})
	r := NewResolver(g, fakeSearcher{hits: []string{"README.md", "ghost.py"}}, nil)

	trace := `Traceback (most recent call last):
  File "/srv/app/src/api/routes.py", line 10, in index
  File "/usr/lib/python3.12/json/decoder.py", line 337, in decode
ValueError: boom`
	seeds := r.Resolve(context.Background(), Intent{Feature: "document the readme", ProblemContext: trace})

	require.Equal(t, []string{"README.md", "src/api/routes.py"}, seeds.Paths())
	require.Equal(t, []string{ReasonSemanticResonance}, seeds.Reasons("README.md"))
	require.Equal(t, []string{ReasonForensicTrace}, seeds.Reasons("src/api/routes.py"))
}

func TestResolveIgnoresFailingSearcher(t *testing.T) {
	g := graph.Build(seedFixture(), graph.Options{})
	r := NewResolver(g, fakeSearcher{err: errors.New("index offline")}, nil)

	seeds := r.Resolve(context.Background(), Intent{FocusKeywords: []string{"User"}, Feature: "users"})
	require.Equal(t, []string{"src/auth/models.py"}, seeds.Paths())
}

func TestSeedSetMergesReasons(t *testing.T) {
	seeds := make(SeedSet)
	seeds.Add("a.py", ReasonExplicitFocus)
	seeds.Add("a.py", ReasonExplicitFocus)

	other := make(SeedSet)
	other.Add("a.py", ReasonRecursiveGap)
	other.Add("b.py", ReasonRecursiveGap)
	seeds.Merge(other)

	require.Equal(t, []string{ReasonExplicitFocus, ReasonRecursiveGap}, seeds.Reasons("a.py"))
	require.True(t, seeds.Has("b.py"))

	clone := seeds.Clone()
	clone.Add("c.py", "x")
	require.False(t, seeds.Has("c.py"))
}

func TestStackTraceAnalyzerFrames(t *testing.T) {
	known := []string{"internal/store/store.go", "web/app.js", "src/main/java/com/acme/Widget.java", "cmd/main.go"}
	text := `panic: runtime error
goroutine 1 [running]:
main.run()
	/home/dev/proj/internal/store/store.go:42 +0x1d
    at render (web/app.js:10:5)
	at com.acme.Widget.draw(Widget.java:88)
	/usr/local/go/src/runtime/main.go:250`

	scores, err := StackTraceAnalyzer{}.Analyze(context.Background(), text, known)
	require.NoError(t, err)
	require.Equal(t, map[string]float64{
		"internal/store/store.go":            1,
		"web/app.js":                         1,
		"src/main/java/com/acme/Widget.java": 1,
	}, scores)
}

func TestConfigKeys(t *testing.T) {
	yamlKeys, err := ConfigKeys("settings.yaml", []byte("db:\n  database_url: postgres://x\n  pool: 5\nid: 1\nfeatures: [a, b]\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"database_url", "features", "pool"}, yamlKeys)

	tomlKeys, err := ConfigKeys("app.toml", []byte("[server]\nlisten_addr = \":8080\"\n\n[[workers]]\nqueue_name = \"jobs\"\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"listen_addr", "queue_name"}, tomlKeys)

	jsonKeys, err := ConfigKeys("package.json", []byte(`{"name": "x", "scripts": {"build": "tsc"}}`))
	require.NoError(t, err)
	require.Equal(t, []string{"build", "name"}, jsonKeys)

	_, err = ConfigKeys("broken.json", []byte(`{`))
	require.Error(t, err)
}

func TestContainsWord(t *testing.T) {
	require.True(t, containsWord(`cfg["database_url"]`, "database_url"))
	require.False(t, containsWord(`my_database_url_v2`, "database_url"))
	require.True(t, containsWord(`x := pool; pool2 := 1`, "pool"))
}

type memoryFiles map[string]string

func (m memoryFiles) read(rel string) ([]byte, error) {
	content, ok := m[rel]
	if !ok {
		return nil, fmt.Errorf("%s: not found", rel)
	}
	return []byte(content), nil
}

func propagationFixture() ([]record.FileRecord, memoryFiles) {
	records := []record.FileRecord{
		pyRecord("a.py", []string{"b"}, []string{"load", "Widget.render"}, fn("seed_fn")),
		pyRecord("b.py", []string{"c"}, []string{"seed_fn"}, fn("load"), fn("unused")),
		pyRecord("c.py", []string{"d"}, nil,
			parser.Symbol{Name: "Widget", Kind: parser.SymbolClass},
			parser.Symbol{Name: "render", Kind: parser.SymbolMethod, Parent: "Widget"},
		),
		pyRecord("d.py", nil, nil),
		pyRecord("e.py", nil, nil),
		pyRecord("f.py", nil, nil),
		{Path: "settings.yaml", Category: record.CategoryConfig, Language: "yaml"},
		{Path: "unused.json", Category: record.CategoryConfig, Language: "json"},
	}
	files := memoryFiles{
		"a.py":          "import b\nurl = cfg['database_url']\n",
		"b.py":          "import c\n",
		"c.py":          "import d\n",
		"settings.yaml": "db:\n  database_url: postgres://x\n",
		"unused.json":   `{"zzz_key": 1}`,
	}
	return records, files
}

func newTestPropagator(files memoryFiles) *Propagator {
	p := NewPropagator("", nil)
	p.ReadFile = files.read
	return p
}

func TestPropagateGraphCoChangeAndConfig(t *testing.T) {
	records, files := propagationFixture()
	g := graph.Build(records, graph.Options{CoChange: map[[2]string]int{
		{"a.py", "e.py"}: 6,
		{"a.py", "f.py"}: 5,
	}})
	seeds := SeedSet{}
	seeds.Add("a.py", ReasonExplicitFocus)

	trace := newTestPropagator(files).Propagate(seeds, g, records, Options{Depth: 2, Direction: config.DirectionDependencies})

	require.Equal(t, []string{"a.py", "b.py", "c.py", "e.py", "settings.yaml"}, trace.Paths())
	require.Equal(t, 0.0, trace.Impact["a.py"])
	require.Equal(t, 50.0, trace.Impact["b.py"])
	require.Equal(t, 25.0, trace.Impact["c.py"])
	require.Equal(t, CoChangeImpact, trace.Impact["e.py"])
	require.Equal(t, ConfigLinkImpact, trace.Impact["settings.yaml"])
	require.Equal(t, []string{"Config Provider (database_url)"}, trace.Reasons["settings.yaml"])
}

func TestPropagateDepthAndDirection(t *testing.T) {
	records, files := propagationFixture()
	g := graph.Build(records, graph.Options{})

	seeds := SeedSet{}
	seeds.Add("a.py", ReasonExplicitFocus)
	deep := newTestPropagator(files).Propagate(seeds, g, records, Options{Depth: 3})
	require.Equal(t, 12.5, deep.Impact["d.py"])

	upstream := SeedSet{}
	upstream.Add("c.py", ReasonExplicitFocus)
	trace := newTestPropagator(files).Propagate(upstream, g, records, Options{Depth: 2, Direction: config.DirectionDependents})
	require.Equal(t, []string{"a.py", "b.py", "c.py", "settings.yaml"}, trace.Paths())
	require.Equal(t, 50.0, trace.Impact["b.py"])
}

func TestPropagateCoverageFiltersAndBoosts(t *testing.T) {
	records, files := propagationFixture()
	g := graph.Build(records, graph.Options{})
	seeds := SeedSet{}
	seeds.Add("a.py", ReasonExplicitFocus)

	trace := newTestPropagator(files).Propagate(seeds, g, records, Options{Coverage: []string{"a.py", "z.py"}})

	require.Equal(t, CoverageImpact, trace.Impact["a.py"])
	require.False(t, trace.Has("z.py"))
}

func TestPropagateActiveSymbols(t *testing.T) {
	records, files := propagationFixture()
	g := graph.Build(records, graph.Options{})
	seeds := SeedSet{}
	seeds.Add("a.py", ReasonExplicitFocus)

	trace := newTestPropagator(files).Propagate(seeds, g, records, Options{Depth: 2})
	require.Nil(t, trace.Active["a.py"])
	require.Contains(t, trace.Active, "a.py")
	require.Equal(t, map[string]bool{"load": true}, trace.Active["b.py"])
	require.Equal(t, map[string]bool{"render": true}, trace.Active["c.py"])

	_, restricted := trace.Active.Restricted("a.py")
	require.False(t, restricted)
	set, restricted := trace.Active.Restricted("b.py")
	require.True(t, restricted)
	require.True(t, set["load"])

	surgical := newTestPropagator(files).Propagate(seeds, g, records, Options{Depth: 2, Surgical: true})
	require.Equal(t, map[string]bool{"seed_fn": true}, surgical.Active["a.py"])

	lonely := SeedSet{}
	lonely.Add("d.py", ReasonExplicitFocus)
	alone := newTestPropagator(files).Propagate(lonely, g, records, Options{Surgical: true})
	require.Nil(t, alone.Active["d.py"])
}
