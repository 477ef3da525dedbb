package graph

import "golang.org/x/mod/modfile"

// ModulePathFromGoMod returns the module path declared in go.mod content, or ""
// when there is none.
func ModulePathFromGoMod(content []byte) string {
	return modfile.ModulePath(content)
}
