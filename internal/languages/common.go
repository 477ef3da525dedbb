package languages

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/skelly-dev/distill/internal/parser"
	sitter "github.com/smacker/go-tree-sitter"
)

// treeParser hands out tree-sitter parsers from a pool; a sitter.Parser is
// not safe for concurrent use and perception parses on many goroutines.
type treeParser struct {
	pool sync.Pool
}

func newTreeParser(lang *sitter.Language) *treeParser {
	return &treeParser{pool: sync.Pool{New: func() any {
		p := sitter.NewParser()
		p.SetLanguage(lang)
		return p
	}}}
}

func (t *treeParser) parse(content []byte) (*sitter.Tree, error) {
	p := t.pool.Get().(*sitter.Parser)
	defer t.pool.Put(p)
	return p.ParseCtx(context.Background(), nil, content)
}

func lineSpan(node *sitter.Node) (start, end int) {
	return int(node.StartPoint().Row) + 1, int(node.EndPoint().Row) + 1
}

// cyclomatic returns 1 + the number of decision nodes under root.
// binary_expression only counts when its operator is && or ||.
func cyclomatic(root *sitter.Node, content []byte, decisions map[string]bool) int {
	if root == nil {
		return 1
	}
	count := 1
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if decisions[n.Type()] {
			if n.Type() != "binary_expression" || isBooleanOperator(n, content) {
				count++
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return count
}

func isBooleanOperator(node *sitter.Node, content []byte) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil || child.IsNamed() {
			continue
		}
		switch child.Content(content) {
		case "&&", "||":
			return true
		}
	}
	return false
}

func decisionSet(types ...string) map[string]bool {
	out := make(map[string]bool, len(types))
	for _, t := range types {
		out[t] = true
	}
	return out
}

// collectIdentifiers returns the distinct contents of every node of the
// given types, used to record type references for active-symbol tracing.
func collectIdentifiers(root *sitter.Node, content []byte, types ...string) []string {
	if root == nil {
		return nil
	}
	want := decisionSet(types...)
	seen := make(map[string]bool)
	out := make([]string, 0)
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if want[n.Type()] {
			name := strings.TrimSpace(n.Content(content))
			if name != "" && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return out
}

func dedupeCallSites(calls []parser.CallSite) []parser.CallSite {
	if len(calls) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(calls))
	out := make([]parser.CallSite, 0, len(calls))
	for _, call := range calls {
		call.Name = strings.TrimSpace(call.Name)
		call.Qualifier = strings.TrimSpace(call.Qualifier)
		call.Receiver = strings.TrimSpace(call.Receiver)
		call.Raw = strings.TrimSpace(call.Raw)
		if call.Name == "" {
			continue
		}

		key := strings.Join([]string{
			call.Name,
			call.Qualifier,
			call.Receiver,
			strconv.Itoa(call.Line),
			strconv.Itoa(call.Arity),
		}, "|")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, call)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		if out[i].Qualifier != out[j].Qualifier {
			return out[i].Qualifier < out[j].Qualifier
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Raw < out[j].Raw
	})
	return out
}

func splitQualifiedName(raw string) (qualifier, name string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	if idx := strings.LastIndex(raw, "."); idx != -1 {
		qualifier = strings.TrimSpace(raw[:idx])
		name = strings.TrimSpace(raw[idx+1:])
		return qualifier, name
	}
	return "", raw
}

func defaultImportAlias(path string) string {
	base := filepath.Base(strings.TrimSpace(path))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSpace(base)
}

func mergeImportAliases(dst map[string]string, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for alias, target := range src {
		alias = strings.TrimSpace(alias)
		target = strings.TrimSpace(target)
		if alias == "" || target == "" {
			continue
		}
		dst[alias] = target
	}
	return dst
}

func splitAliasByAs(raw string) (base string, alias string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	parts := strings.Split(raw, " as ")
	if len(parts) == 1 {
		return strings.TrimSpace(parts[0]), ""
	}
	base = strings.TrimSpace(strings.Join(parts[:len(parts)-1], " as "))
	alias = strings.TrimSpace(parts[len(parts)-1])
	return base, alias
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'' || first == '`') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
