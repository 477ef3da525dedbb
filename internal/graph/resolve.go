package graph

import (
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const resolveMemoSize = 4096

var scriptExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}

// relative specifiers from other languages also try their own extensions
var relativeExtensions = append(append([]string{}, scriptExtensions...), ".rb", ".py", ".css", ".scss", ".md")

type resolveKey struct {
	dir      string
	language string
	spec     string
}

// Resolver maps raw import strings onto repository paths.
type Resolver struct {
	modulePath string
	files      map[string]bool
	byDir      map[string][]string
	stems      map[string][]string // path without extension -> paths
	memo       *lru.Cache[resolveKey, []string]
}

// NewResolver indexes paths for import resolution.
func NewResolver(paths []string, modulePath string) *Resolver {
	memo, _ := lru.New[resolveKey, []string](resolveMemoSize)
	r := &Resolver{
		modulePath: strings.TrimSuffix(strings.TrimSpace(modulePath), "/"),
		files:      make(map[string]bool, len(paths)),
		byDir:      make(map[string][]string),
		stems:      make(map[string][]string),
		memo:       memo,
	}
	for _, p := range paths {
		if r.files[p] {
			continue
		}
		r.files[p] = true
		r.byDir[path.Dir(p)] = append(r.byDir[path.Dir(p)], p)
		stem := strings.TrimSuffix(p, path.Ext(p))
		r.stems[stem] = append(r.stems[stem], p)
	}
	return r
}

// Resolve returns the repository paths that spec, imported from file `from`, refers to.
// External packages resolve to nothing.
func (r *Resolver) Resolve(from, language, spec string) []string {
	spec = strings.TrimSpace(strings.Trim(spec, `"'`+"`"))
	if spec == "" {
		return nil
	}
	key := resolveKey{dir: path.Dir(from), language: language, spec: spec}
	if cached, ok := r.memo.Get(key); ok {
		return cached
	}
	resolved := r.resolve(key)
	r.memo.Add(key, resolved)
	return resolved
}

func (r *Resolver) resolve(key resolveKey) []string {
	switch key.language {
	case "python":
		return r.resolvePython(key.dir, key.spec)
	case "go":
		return r.resolveGo(key.spec)
	}
	if isRelativeSpec(key.spec) {
		return r.resolveRelative(key.dir, key.spec)
	}
	if strings.HasPrefix(key.spec, "mod:") {
		name := strings.TrimPrefix(key.spec, "mod:")
		return r.firstExisting(path.Join(key.dir, name+".rs"), path.Join(key.dir, name, "mod.rs"))
	}
	return r.resolveSuffix(genericSpecPath(key.spec))
}

func isRelativeSpec(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

// resolvePython handles "pkg.mod" and relative ".mod" / "..pkg.mod" imports.
func (r *Resolver) resolvePython(dir, spec string) []string {
	if strings.HasPrefix(spec, ".") {
		levels := len(spec) - len(strings.TrimLeft(spec, "."))
		base := dir
		for i := 1; i < levels; i++ {
			if base == "." {
				return nil
			}
			base = path.Dir(base)
		}
		rest := strings.TrimLeft(spec, ".")
		if rest == "" {
			return r.firstExisting(path.Join(base, "__init__.py"))
		}
		return r.pythonModule(path.Join(base, strings.ReplaceAll(rest, ".", "/")))
	}

	rel := strings.ReplaceAll(spec, ".", "/")
	if found := r.pythonModule(rel); len(found) > 0 {
		return found
	}
	if found := r.pythonModule(path.Join("src", rel)); len(found) > 0 {
		return found
	}
	return r.resolveSuffix(rel)
}

func (r *Resolver) pythonModule(rel string) []string {
	return r.firstExisting(rel+".py", path.Join(rel, "__init__.py"))
}

// resolveGo maps a package import onto every non-test Go file of the package directory.
func (r *Resolver) resolveGo(spec string) []string {
	var dir string
	switch {
	case r.modulePath != "" && spec == r.modulePath:
		dir = "."
	case r.modulePath != "" && strings.HasPrefix(spec, r.modulePath+"/"):
		dir = strings.TrimPrefix(spec, r.modulePath+"/")
	case r.modulePath == "" && strings.Contains(firstSegment(spec), "."):
		dir = r.uniqueDirSuffix(spec)
	}
	if dir == "" {
		return nil
	}

	out := make([]string, 0)
	for _, p := range r.byDir[dir] {
		if strings.HasSuffix(p, ".go") && !strings.HasSuffix(p, "_test.go") {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (r *Resolver) uniqueDirSuffix(spec string) string {
	match := ""
	for dir := range r.byDir {
		if dir == "." || !strings.HasSuffix(spec, "/"+dir) {
			continue
		}
		if match != "" {
			return ""
		}
		match = dir
	}
	return match
}

// resolveRelative handles "./x" style specifiers for scripts, markup and stylesheets.
func (r *Resolver) resolveRelative(dir, spec string) []string {
	joined := path.Join(dir, spec)
	if strings.HasPrefix(joined, "../") || joined == ".." {
		return nil
	}
	candidates := []string{joined}
	for _, ext := range relativeExtensions {
		candidates = append(candidates, joined+ext)
	}
	for _, ext := range scriptExtensions {
		candidates = append(candidates, path.Join(joined, "index"+ext))
	}
	return r.firstExisting(candidates...)
}

// resolveSuffix is the fallback: a unique file whose extensionless path ends with rel.
func (r *Resolver) resolveSuffix(rel string) []string {
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return nil
	}
	if found := r.uniqueStemSuffix(rel); found != "" {
		return []string{found}
	}
	// "pkg/module/member" style specifiers name a member of a module file
	if idx := strings.LastIndex(rel, "/"); idx > 0 {
		if found := r.uniqueStemSuffix(rel[:idx]); found != "" {
			return []string{found}
		}
	}
	return nil
}

func (r *Resolver) uniqueStemSuffix(rel string) string {
	match := ""
	for stem, paths := range r.stems {
		if stem != rel && !strings.HasSuffix(stem, "/"+rel) {
			continue
		}
		if match != "" || len(paths) != 1 {
			return ""
		}
		match = paths[0]
	}
	return match
}

func (r *Resolver) firstExisting(candidates ...string) []string {
	for _, candidate := range candidates {
		if r.files[candidate] {
			return []string{candidate}
		}
	}
	return nil
}

// genericSpecPath turns "crate::a::b", "com.x.Y" or "@/a/b" into a slash path.
func genericSpecPath(spec string) string {
	spec = strings.TrimPrefix(spec, "@/")
	spec = strings.TrimPrefix(spec, "~/")
	spec = strings.ReplaceAll(spec, "::", "/")
	for _, prefix := range []string{"crate/", "self/", "super/"} {
		spec = strings.TrimPrefix(spec, prefix)
	}
	if !strings.Contains(spec, "/") {
		spec = strings.ReplaceAll(spec, ".", "/")
	}
	spec = strings.TrimSuffix(spec, "/*")
	return strings.TrimSuffix(spec, path.Ext(spec))
}

func firstSegment(spec string) string {
	if idx := strings.Index(spec, "/"); idx != -1 {
		return spec[:idx]
	}
	return spec
}
