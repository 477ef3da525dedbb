package ignore

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMatcher_DefaultAndUserOverrides(t *testing.T) {
	m := NewMatcher([]string{
		"vendor/**",
		"!vendor/keep/file.go",
		"*.tmp",
	})

	cases := []struct {
		path    string
		isDir   bool
		ignored bool
	}{
		{path: ".git/config", isDir: false, ignored: true},
		{path: ".distill/cache.json.zst", isDir: false, ignored: true},
		{path: "node_modules/pkg/index.js", isDir: false, ignored: true},
		{path: "web/node_modules/pkg/index.js", isDir: false, ignored: true},
		{path: "vendor/lib/a.go", isDir: false, ignored: true},
		{path: "vendor/keep/file.go", isDir: false, ignored: false},
		{path: "nested/cache.tmp", isDir: false, ignored: true},
		{path: "src/main.go", isDir: false, ignored: false},
		{path: "src/build.go", isDir: false, ignored: false},
		{path: ".", isDir: true, ignored: false},
	}

	for _, tc := range cases {
		got := m.ShouldIgnore(tc.path, tc.isDir)
		if got != tc.ignored {
			t.Fatalf("path %s: expected ignored=%v, got %v", tc.path, tc.ignored, got)
		}
	}
}

func TestMatcher_NegatedDirectoryRule(t *testing.T) {
	m := NewMatcher([]string{
		"build/",
		"!build/include/",
	})

	if !m.ShouldIgnore("build/out/file.go", false) {
		t.Fatalf("expected build/out/file.go to be ignored")
	}
	if m.ShouldIgnore("build/include/file.go", false) {
		t.Fatalf("expected build/include/file.go to be included")
	}
}

func TestMatcher_AnchoredAndDoubleStar(t *testing.T) {
	m := NewMatcher([]string{
		"/docs/generated/",
		"**/*.pb.go",
	})

	if !m.ShouldIgnore("docs/generated/api.md", false) {
		t.Fatalf("expected anchored directory to be ignored")
	}
	if m.ShouldIgnore("site/docs/generated/api.md", false) {
		t.Fatalf("anchored rule must not match nested directories")
	}
	if !m.ShouldIgnore("api/v1/service.pb.go", false) {
		t.Fatalf("expected generated protobuf file to be ignored")
	}
}

func TestIncludeSet(t *testing.T) {
	empty := NewIncludeSet(nil)
	if !empty.Allows("anything/at/all.txt") {
		t.Fatalf("empty include set must admit everything")
	}

	s := NewIncludeSet([]string{"src/**/*.py", "*.md"})
	cases := map[string]bool{
		"src/app/models.py": true,
		"src/app.py":        true,
		"docs/guide.md":     true,
		"tests/test_app.py": false,
		"src/app/models.rb": false,
	}
	for path, want := range cases {
		if got := s.Allows(path); got != want {
			t.Fatalf("%s: expected %v, got %v", path, want, got)
		}
	}
}

func TestLoadRules(t *testing.T) {
	root := t.TempDir()
	rules, err := LoadRules(root)
	if err != nil || rules != nil {
		t.Fatalf("expected no rules for missing file, got %v err=%v", rules, err)
	}

	content := "# generated\n*.gen.go\n\n!keep.gen.go\n"
	if err := os.WriteFile(filepath.Join(root, FileName), []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	rules, err = LoadRules(root)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !reflect.DeepEqual(rules, []string{"*.gen.go", "!keep.gen.go"}) {
		t.Fatalf("unexpected rules %v", rules)
	}
}
