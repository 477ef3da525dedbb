package languages

import (
	"strings"

	"github.com/skelly-dev/distill/internal/parser"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/rust"
)

// grammarSpec describes a brace language by its node types, so languages
// without bespoke parsers share one extractor.
type grammarSpec struct {
	language     string
	extensions   []string
	functions    map[string]bool // node types declaring callables
	containers   map[string]parser.SymbolKind
	bodies       map[string]bool // container body node types to descend into
	imports      map[string]bool
	calls        map[string]bool
	decisions    map[string]bool
	typeRefNodes []string
}

var rustGrammar = grammarSpec{
	language:   "rust",
	extensions: []string{".rs"},
	functions:  decisionSet("function_item", "function_signature_item"),
	containers: map[string]parser.SymbolKind{
		"struct_item": parser.SymbolStruct,
		"enum_item":   parser.SymbolStruct,
		"trait_item":  parser.SymbolInterface,
		"impl_item":   parser.SymbolClass,
		"mod_item":    parser.SymbolModule,
	},
	bodies:  decisionSet("declaration_list"),
	imports: decisionSet("use_declaration", "mod_item"),
	calls:   decisionSet("call_expression", "macro_invocation"),
	decisions: decisionSet(
		"if_expression",
		"match_arm",
		"while_expression",
		"loop_expression",
		"for_expression",
		"binary_expression",
	),
	typeRefNodes: []string{"type_identifier"},
}

var javaGrammar = grammarSpec{
	language:   "java",
	extensions: []string{".java"},
	functions:  decisionSet("method_declaration", "constructor_declaration"),
	containers: map[string]parser.SymbolKind{
		"class_declaration":     parser.SymbolClass,
		"interface_declaration": parser.SymbolInterface,
		"enum_declaration":      parser.SymbolClass,
		"record_declaration":    parser.SymbolClass,
	},
	bodies:  decisionSet("class_body", "interface_body", "enum_body", "enum_body_declarations"),
	imports: decisionSet("import_declaration"),
	calls:   decisionSet("method_invocation", "object_creation_expression"),
	decisions: decisionSet(
		"if_statement",
		"for_statement",
		"enhanced_for_statement",
		"while_statement",
		"do_statement",
		"switch_block_statement_group",
		"catch_clause",
		"ternary_expression",
		"binary_expression",
	),
	typeRefNodes: []string{"type_identifier"},
}

// GrammarParser extracts facts using a grammarSpec.
type GrammarParser struct {
	spec  grammarSpec
	trees *treeParser
}

// NewRustParser creates a parser for Rust source files
func NewRustParser() *GrammarParser {
	return &GrammarParser{spec: rustGrammar, trees: newTreeParser(rust.GetLanguage())}
}

// NewJavaParser creates a parser for Java source files
func NewJavaParser() *GrammarParser {
	return &GrammarParser{spec: javaGrammar, trees: newTreeParser(java.GetLanguage())}
}

func (g *GrammarParser) Language() string {
	return g.spec.language
}

func (g *GrammarParser) Extensions() []string {
	return g.spec.extensions
}

func (g *GrammarParser) Parse(filename string, content []byte) (*parser.Facts, error) {
	tree, err := g.trees.parse(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	result := &parser.Facts{
		Language: g.spec.language,
		Symbols:  make([]parser.Symbol, 0),
		Imports:  make([]string, 0),
	}

	root := tree.RootNode()
	g.extractSymbols(root, content, result, "")
	result.Complexity = cyclomatic(root, content, g.spec.decisions)
	result.References = collectIdentifiers(root, content, g.spec.typeRefNodes...)

	return result, nil
}

func (g *GrammarParser) extractSymbols(node *sitter.Node, content []byte, result *parser.Facts, parent string) {
	nodeType := node.Type()

	if g.spec.imports[nodeType] {
		if imp := g.importTarget(node, content); imp != "" {
			result.Imports = append(result.Imports, imp)
		}
		if nodeType != "mod_item" {
			return
		}
	}

	if g.spec.functions[nodeType] {
		if sym := g.extractFunction(node, content, parent); sym != nil {
			result.Symbols = append(result.Symbols, *sym)
		}
		return
	}

	if kind, ok := g.spec.containers[nodeType]; ok {
		name := g.containerName(node, content)
		if name == "" {
			return
		}
		start, end := lineSpan(node)
		result.Symbols = append(result.Symbols, parser.Symbol{
			Name:      name,
			Kind:      kind,
			Parent:    parent,
			Signature: firstLine(node.Content(content)),
			Line:      start,
			EndLine:   end,
		})
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if g.spec.bodies[child.Type()] {
				for j := 0; j < int(child.NamedChildCount()); j++ {
					g.extractSymbols(child.NamedChild(j), content, result, name)
				}
			}
		}
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		g.extractSymbols(node.NamedChild(i), content, result, parent)
	}
}

func (g *GrammarParser) extractFunction(node *sitter.Node, content []byte, parent string) *parser.Symbol {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	kind := parser.SymbolFunction
	if parent != "" {
		kind = parser.SymbolMethod
	}

	sig := node.Content(content)
	if body := node.ChildByFieldName("body"); body != nil {
		sig = string(content[node.StartByte():body.StartByte()])
	}

	start, end := lineSpan(node)
	return &parser.Symbol{
		Name:      nameNode.Content(content),
		Kind:      kind,
		Parent:    parent,
		Signature: strings.Join(strings.Fields(sig), " "),
		Line:      start,
		EndLine:   end,
		Calls:     g.extractCalls(node.ChildByFieldName("body"), content),
	}
}

func (g *GrammarParser) containerName(node *sitter.Node, content []byte) string {
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		return nameNode.Content(content)
	}
	// impl blocks are named by the implemented type
	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		name := typeNode.Content(content)
		if idx := strings.Index(name, "<"); idx != -1 {
			name = name[:idx]
		}
		return name
	}
	return ""
}

func (g *GrammarParser) importTarget(node *sitter.Node, content []byte) string {
	switch node.Type() {
	case "use_declaration":
		if arg := node.ChildByFieldName("argument"); arg != nil {
			target := arg.Content(content)
			if idx := strings.Index(target, "::{"); idx != -1 {
				target = target[:idx]
			}
			return target
		}
	case "mod_item":
		// "mod foo;" declares a file module; inline modules have a body
		if node.ChildByFieldName("body") == nil {
			if nameNode := node.ChildByFieldName("name"); nameNode != nil {
				return "mod:" + nameNode.Content(content)
			}
		}
		return ""
	case "import_declaration":
		text := strings.TrimSpace(node.Content(content))
		text = strings.TrimPrefix(text, "import")
		text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "static"))
		return strings.TrimSpace(strings.TrimSuffix(text, ";"))
	}
	return ""
}

func (g *GrammarParser) extractCalls(body *sitter.Node, content []byte) []parser.CallSite {
	if body == nil {
		return nil
	}
	calls := make([]parser.CallSite, 0)
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if g.spec.calls[n.Type()] {
			if call := g.callSite(n, content); call.Name != "" {
				calls = append(calls, call)
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(body)
	return dedupeCallSites(calls)
}

func (g *GrammarParser) callSite(node *sitter.Node, content []byte) parser.CallSite {
	call := parser.CallSite{Line: int(node.StartPoint().Row) + 1}
	switch node.Type() {
	case "method_invocation":
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			call.Name = nameNode.Content(content)
		}
		if objectNode := node.ChildByFieldName("object"); objectNode != nil {
			call.Qualifier = objectNode.Content(content)
		}
	case "object_creation_expression":
		if typeNode := node.ChildByFieldName("type"); typeNode != nil {
			call.Name = typeNode.Content(content)
		}
	case "macro_invocation":
		if macroNode := node.ChildByFieldName("macro"); macroNode != nil {
			call.Name = macroNode.Content(content) + "!"
		}
	default:
		if fn := node.ChildByFieldName("function"); fn != nil {
			raw := strings.ReplaceAll(fn.Content(content), "::", ".")
			call.Raw = raw
			call.Qualifier, call.Name = splitQualifiedName(raw)
		}
	}
	if args := node.ChildByFieldName("arguments"); args != nil {
		call.Arity = int(args.NamedChildCount())
	}
	return call
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "{"))
}
