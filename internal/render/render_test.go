package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skelly-dev/distill/internal/parser"
	"github.com/skelly-dev/distill/internal/record"
)

const authSource = `"""Auth helpers."""


class Service:
    def __init__(self):
        self.x = 1

    def login(self, user):
        check(user)
        return True

    def logout(self):
        return False


def helper():
    return 42
`

func authRecord() record.FileRecord {
	return record.FileRecord{
		Path:      "app/auth.py",
		Language:  "python",
		Category:  record.CategoryCode,
		Size:      int64(len(authSource)),
		TokenCost: 60,
		History:   record.NoHistory(),
		Facts: &parser.Facts{
			Language: "python",
			Family:   parser.FamilyPython,
			Imports:  []string{"os.path", "app.models"},
			Doc:      "Auth helpers.",
			Lines:    17,
			Symbols: []parser.Symbol{
				{Name: "Service", Kind: parser.SymbolClass, Line: 4, EndLine: 13},
				{Name: "__init__", Kind: parser.SymbolMethod, Parent: "Service", Line: 5, EndLine: 6},
				{Name: "login", Kind: parser.SymbolMethod, Parent: "Service", Line: 8, EndLine: 10},
				{Name: "logout", Kind: parser.SymbolMethod, Parent: "Service", Line: 12, EndLine: 13},
				{Name: "helper", Kind: parser.SymbolFunction, Line: 16, EndLine: 17},
			},
		},
	}
}

func TestFullBodyRoundTrips(t *testing.T) {
	body, annotations, err := NewRenderer().Body(authRecord(), []byte(authSource), record.TierFull, RenderOptions{})
	require.NoError(t, err)
	require.Equal(t, authSource, body)
	require.Empty(t, annotations)
}

func TestFullBodyAnnotations(t *testing.T) {
	content := authSource + "# TODO: rate limit\n# FIXME: lockout\n"
	body, annotations, err := NewRenderer().Body(authRecord(), []byte(content), record.TierFull, RenderOptions{Annotate: true})
	require.NoError(t, err)
	require.Equal(t, content, body)
	require.Equal(t, []Annotation{
		{Key: "@role", Value: "Entrypoint"},
		{Key: "@vitality", Value: "Fresh (Untracked)"},
		{Key: "@imports", Value: "models, path"},
		{Key: "@debt", Value: "1 FIXME, 1 TODO"},
	}, annotations)
}

func TestSkeletonStandard(t *testing.T) {
	body, _, err := NewRenderer().Body(authRecord(), []byte(authSource), record.TierSkeleton, RenderOptions{})
	require.NoError(t, err)
	require.Equal(t, `"""Auth helpers."""


class Service:
    def __init__(self):
        self.x = 1

    def login(self, user):
        ...

    def logout(self):
        ...


def helper():
    ...
`, body)
}

func TestSkeletonActiveSymbolsAndFocus(t *testing.T) {
	r := NewRenderer()

	active, _, err := r.Body(authRecord(), []byte(authSource), record.TierSkeleton, RenderOptions{Active: map[string]bool{"login": true}})
	require.NoError(t, err)
	require.Contains(t, active, "check(user)")
	require.NotContains(t, active, "return False")

	focused, _, err := r.Body(authRecord(), []byte(authSource), record.TierSkeleton, RenderOptions{FocusKeywords: []string{"Logout"}})
	require.NoError(t, err)
	require.Contains(t, focused, "return False")
	require.NotContains(t, focused, "check(user)")

	all, _, err := r.Body(authRecord(), []byte(authSource), record.TierSkeleton, RenderOptions{ShowAll: true})
	require.NoError(t, err)
	require.Equal(t, authSource, all)
}

func TestInterfaceCollapsesEveryBody(t *testing.T) {
	body, _, err := NewRenderer().Body(authRecord(), []byte(authSource), record.TierInterface, RenderOptions{ShowAll: true})
	require.NoError(t, err)
	require.Contains(t, body, "class Service:")
	require.Contains(t, body, "    def __init__(self):\n        ...")
	require.NotContains(t, body, "self.x = 1")
	require.NotContains(t, body, "return 42")
}

func TestSkeletonWithoutStructureTruncates(t *testing.T) {
	rec := record.FileRecord{Path: "notes.txt", Category: record.CategoryText}
	content := strings.Repeat("line of prose\n", 20)

	body, _, err := NewRenderer().Body(rec, []byte(content), record.TierSkeleton, RenderOptions{})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(body, "line of prose\n"))
	require.Contains(t, body, "more lines)")
	require.Less(t, len(body), len(content)/2)
}

func TestSummary(t *testing.T) {
	require.Equal(t, "Auth helpers.", Summary(authRecord()))

	rec := authRecord()
	rec.Facts.Doc = ""
	require.Equal(t, "Python code with 4 functions and 1 classes.", Summary(rec))

	bare := record.FileRecord{Path: "x.unknownlang", Language: "zig", Category: record.CategoryText}
	require.Equal(t, "Zig text with 0 functions and 0 classes.", Summary(bare))
}

func TestRenderPathOnlyAndUnknownTier(t *testing.T) {
	r := NewRenderer()
	text, err := r.Render(authRecord(), nil, record.TierPathOnly, RenderOptions{Reason: "Low Significance"})
	require.NoError(t, err)
	require.Equal(t, "app/auth.py # [Omitted: Low Significance]", text)

	_, err = r.Render(authRecord(), nil, record.TierExcluded, RenderOptions{})
	require.Error(t, err)
}

func TestFormatterForms(t *testing.T) {
	f := NewFormatter()

	inline := f.Block(record.FileRecord{Path: "VERSION", Category: record.CategoryText}, "1.2.3\n", nil)
	require.Equal(t, `VERSION :: "1.2.3"`, inline)

	link := f.Block(record.FileRecord{Path: "current", Category: record.CategorySymlink, SymlinkTarget: "releases/v2"}, "", nil)
	require.Equal(t, "current -> releases/v2 # [Symlink]", link)

	binary := f.Block(record.FileRecord{Path: "logo.png", Category: record.CategoryBinary, Size: 2048}, "", nil)
	require.Equal(t, "logo.png << logo.png # [Binary | 2.0KB]", binary)

	rec := record.FileRecord{Path: "main.go", Language: "go", Category: record.CategoryCode, Size: 120, TokenCost: 30}
	block := f.Block(rec, "package main\n\n\n\nfunc main() {\n\tprintln(1)\n}\n", []Annotation{
		{Key: "@role", Value: "Entrypoint"},
		{Key: "@vitality", Value: "Stable"},
	})
	require.Equal(t, strings.Join([]string{
		"# @role:     Entrypoint",
		"# @vitality: Stable",
		"main.go: # [Go | 120B | 30 tk]",
		"    package main",
		"",
		"    func main() {",
		"    \tprintln(1)",
		"    }",
	}, "\n"), block)

	empty := f.Block(record.FileRecord{Path: "empty.py", Category: record.CategoryCode}, "\n\n", nil)
	require.Equal(t, "empty.py: # [Empty]", empty)
}

func TestVitalityLabels(t *testing.T) {
	rec := record.FileRecord{Facts: &parser.Facts{Complexity: 10}}

	rec.History = record.History{Churn: 20, DaysSinceChange: 1}
	require.Equal(t, "Volatile", Vitality(rec))

	rec.History = record.History{Churn: 6, DaysSinceChange: 1}
	require.Equal(t, "Active", Vitality(rec))

	rec.History = record.History{Churn: 1, DaysSinceChange: 400}
	require.Equal(t, "Ancient", Vitality(rec))

	rec.History = record.History{Churn: 1, DaysSinceChange: 10}
	require.Equal(t, "Stable", Vitality(rec))
}

func TestRoleAndHumanSize(t *testing.T) {
	require.Equal(t, "Test", Role("tests/test_api.py"))
	require.Equal(t, "Controller", Role("web/routes.ts"))
	require.Equal(t, "", Role("lib/parser.rb"))

	require.Equal(t, "512B", HumanSize(512))
	require.Equal(t, "1.5KB", HumanSize(1536))
	require.Equal(t, "2.0MB", HumanSize(2*1024*1024))
}

func TestImportListTruncates(t *testing.T) {
	imports := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	require.Equal(t, "a, b, c, d, e, f, g, h (+2)", importList(imports))
	require.Equal(t, "errors, http", importList([]string{"net/http", "errors"}))
}
