package languages

import (
	"strings"

	"github.com/skelly-dev/distill/internal/parser"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"
)

var rubyDecisions = decisionSet(
	"if",
	"elsif",
	"unless",
	"while",
	"until",
	"for",
	"when",
	"rescue",
	"conditional",
	"if_modifier",
	"unless_modifier",
	"binary",
)

// RubyParser implements parsing for Ruby source files
type RubyParser struct {
	trees *treeParser
}

// NewRubyParser creates a new Ruby parser
func NewRubyParser() *RubyParser {
	return &RubyParser{trees: newTreeParser(ruby.GetLanguage())}
}

func (r *RubyParser) Language() string {
	return "ruby"
}

func (r *RubyParser) Extensions() []string {
	return []string{".rb", ".rake", ".gemspec", "Rakefile", "Gemfile"}
}

func (r *RubyParser) Interpreters() []string {
	return []string{"ruby"}
}

func (r *RubyParser) Parse(filename string, content []byte) (*parser.Facts, error) {
	tree, err := r.trees.parse(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	result := &parser.Facts{
		Language:      "ruby",
		Symbols:       make([]parser.Symbol, 0),
		Imports:       make([]string, 0),
		ImportAliases: make(map[string]string),
	}

	root := tree.RootNode()
	r.extractSymbols(root, content, result, "", "")
	result.Complexity = rubyComplexity(root, content)

	return result, nil
}

// rubyComplexity counts "binary" nodes only for and/or/&&/||.
func rubyComplexity(root *sitter.Node, content []byte) int {
	count := 1
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if rubyDecisions[n.Type()] {
			if n.Type() != "binary" {
				count++
			} else if op := n.ChildByFieldName("operator"); op != nil {
				switch op.Content(content) {
				case "&&", "||", "and", "or":
					count++
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return count
}

func (r *RubyParser) extractSymbols(node *sitter.Node, content []byte, result *parser.Facts, modulePath string, className string) {
	switch node.Type() {
	case "method":
		if sym := r.extractMethod(node, content, className); sym != nil {
			result.Symbols = append(result.Symbols, *sym)
		}
		return

	case "singleton_method":
		if sym := r.extractSingletonMethod(node, content, className); sym != nil {
			result.Symbols = append(result.Symbols, *sym)
		}
		return

	case "class":
		sym := r.extractContainer(node, content, parser.SymbolClass, modulePath)
		if sym != nil {
			result.Symbols = append(result.Symbols, *sym)
			if bodyNode := node.ChildByFieldName("body"); bodyNode != nil {
				for i := 0; i < int(bodyNode.ChildCount()); i++ {
					r.extractSymbols(bodyNode.Child(i), content, result, modulePath, sym.Name)
				}
			}
		}
		return

	case "module":
		sym := r.extractContainer(node, content, parser.SymbolModule, modulePath)
		if sym != nil {
			result.Symbols = append(result.Symbols, *sym)
			if bodyNode := node.ChildByFieldName("body"); bodyNode != nil {
				newModulePath := sym.Name
				if modulePath != "" {
					newModulePath = modulePath + "::" + sym.Name
				}
				for i := 0; i < int(bodyNode.ChildCount()); i++ {
					r.extractSymbols(bodyNode.Child(i), content, result, newModulePath, "")
				}
			}
		}
		return

	case "call":
		methodNode := node.ChildByFieldName("method")
		if methodNode != nil {
			method := methodNode.Content(content)
			if method == "require" || method == "require_relative" {
				r.extractRequire(node, content, method == "require_relative", result)
			}
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		r.extractSymbols(node.Child(i), content, result, modulePath, className)
	}
}

func (r *RubyParser) extractRequire(node *sitter.Node, content []byte, relative bool, result *parser.Facts) {
	args := node.ChildByFieldName("arguments")
	if args == nil {
		return
	}
	for i := 0; i < int(args.ChildCount()); i++ {
		arg := args.Child(i)
		if arg.Type() != "string" {
			continue
		}
		imp := unquote(arg.Content(content))
		if imp == "" {
			continue
		}
		if relative && !strings.HasPrefix(imp, ".") {
			imp = "./" + imp
		}
		result.Imports = append(result.Imports, imp)
		if alias := defaultImportAlias(imp); alias != "" {
			result.ImportAliases[alias] = imp
		}
	}
}

func (r *RubyParser) extractMethod(node *sitter.Node, content []byte, className string) *parser.Symbol {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	kind := parser.SymbolFunction
	if className != "" {
		kind = parser.SymbolMethod
	}

	start, end := lineSpan(node)
	return &parser.Symbol{
		Name:      nameNode.Content(content),
		Kind:      kind,
		Parent:    className,
		Signature: "def " + nameNode.Content(content) + r.extractParams(node, content),
		Line:      start,
		EndLine:   end,
		Calls:     r.extractCalls(node, content),
	}
}

func (r *RubyParser) extractSingletonMethod(node *sitter.Node, content []byte, className string) *parser.Symbol {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	name := nameNode.Content(content)
	start, end := lineSpan(node)
	return &parser.Symbol{
		Name:      "self." + name,
		Kind:      parser.SymbolMethod,
		Parent:    className,
		Signature: "def self." + name + r.extractParams(node, content),
		Line:      start,
		EndLine:   end,
		Calls:     r.extractCalls(node, content),
	}
}

func (r *RubyParser) extractContainer(node *sitter.Node, content []byte, kind parser.SymbolKind, modulePath string) *parser.Symbol {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	name := nameNode.Content(content)
	sig := "module " + name
	if kind == parser.SymbolClass {
		sig = "class " + name
		if superclassNode := node.ChildByFieldName("superclass"); superclassNode != nil {
			sig += " " + strings.TrimSpace(superclassNode.Content(content))
		}
	}

	start, end := lineSpan(node)
	return &parser.Symbol{
		Name:      name,
		Kind:      kind,
		Parent:    strings.ReplaceAll(modulePath, "::", "."),
		Signature: sig,
		Line:      start,
		EndLine:   end,
	}
}

func (r *RubyParser) extractParams(node *sitter.Node, content []byte) string {
	paramsNode := node.ChildByFieldName("parameters")
	if paramsNode == nil {
		return ""
	}
	return paramsNode.Content(content)
}

func (r *RubyParser) extractCalls(methodNode *sitter.Node, content []byte) []parser.CallSite {
	calls := make([]parser.CallSite, 0)
	for i := 0; i < int(methodNode.NamedChildCount()); i++ {
		child := methodNode.NamedChild(i)
		if child.Type() == "identifier" || child.Type() == "method_parameters" {
			continue
		}
		r.collectCalls(child, content, &calls)
	}
	return dedupeCallSites(calls)
}

func (r *RubyParser) collectCalls(node *sitter.Node, content []byte, calls *[]parser.CallSite) {
	if node == nil {
		return
	}

	if node.Type() == "call" {
		if callSite := r.extractCallSite(node, content); callSite.Name != "" {
			*calls = append(*calls, callSite)
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		r.collectCalls(node.Child(i), content, calls)
	}
}

func (r *RubyParser) extractCallSite(node *sitter.Node, content []byte) parser.CallSite {
	name := ""
	if methodNode := node.ChildByFieldName("method"); methodNode != nil {
		name = strings.TrimSpace(methodNode.Content(content))
	}
	qualifier := ""
	if receiverNode := node.ChildByFieldName("receiver"); receiverNode != nil {
		qualifier = strings.TrimSpace(receiverNode.Content(content))
	}

	callSite := parser.CallSite{
		Name:      name,
		Qualifier: qualifier,
		Raw:       strings.TrimSpace(node.Content(content)),
		Line:      int(node.StartPoint().Row) + 1,
	}
	if argsNode := node.ChildByFieldName("arguments"); argsNode != nil {
		callSite.Arity = int(argsNode.NamedChildCount())
	}
	if qualifier == "self" {
		callSite.Receiver = qualifier
	}
	return callSite
}
