package languages

import (
	"strings"

	"github.com/skelly-dev/distill/internal/parser"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

var goDecisions = decisionSet(
	"if_statement",
	"for_statement",
	"expression_case",
	"type_case",
	"communication_case",
	"binary_expression",
)

// GoParser implements parsing for Go source files
type GoParser struct {
	trees *treeParser
}

// NewGoParser creates a new Go parser
func NewGoParser() *GoParser {
	return &GoParser{trees: newTreeParser(golang.GetLanguage())}
}

func (g *GoParser) Language() string {
	return "go"
}

func (g *GoParser) Extensions() []string {
	return []string{".go"}
}

func (g *GoParser) Parse(filename string, content []byte) (*parser.Facts, error) {
	tree, err := g.trees.parse(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	result := &parser.Facts{
		Language:      "go",
		Symbols:       make([]parser.Symbol, 0),
		Imports:       make([]string, 0),
		ImportAliases: make(map[string]string),
	}

	root := tree.RootNode()
	g.extractSymbols(root, content, result)
	result.Complexity = cyclomatic(root, content, goDecisions)
	result.References = collectIdentifiers(root, content, "type_identifier")

	return result, nil
}

func (g *GoParser) extractSymbols(node *sitter.Node, content []byte, result *parser.Facts) {
	switch node.Type() {
	case "function_declaration":
		if sym := g.extractFunction(node, content); sym != nil {
			result.Symbols = append(result.Symbols, *sym)
		}
		return

	case "method_declaration":
		if sym := g.extractMethod(node, content); sym != nil {
			result.Symbols = append(result.Symbols, *sym)
		}
		return

	case "type_declaration":
		result.Symbols = append(result.Symbols, g.extractTypeDecl(node, content)...)
		return

	case "import_declaration":
		imports, aliases := g.extractImports(node, content)
		result.Imports = append(result.Imports, imports...)
		result.ImportAliases = mergeImportAliases(result.ImportAliases, aliases)
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		g.extractSymbols(node.Child(i), content, result)
	}
}

func (g *GoParser) extractFunction(node *sitter.Node, content []byte) *parser.Symbol {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	start, end := lineSpan(node)
	return &parser.Symbol{
		Name:      nameNode.Content(content),
		Kind:      parser.SymbolFunction,
		Signature: g.buildFunctionSignature(node, content, ""),
		Line:      start,
		EndLine:   end,
		Doc:       precedingLineComment(node, content),
		Calls:     g.extractCalls(node.ChildByFieldName("body"), content),
	}
}

func (g *GoParser) extractMethod(node *sitter.Node, content []byte) *parser.Symbol {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	receiver := ""
	if receiverNode := node.ChildByFieldName("receiver"); receiverNode != nil {
		receiver = receiverNode.Content(content)
	}

	start, end := lineSpan(node)
	return &parser.Symbol{
		Name:      nameNode.Content(content),
		Kind:      parser.SymbolMethod,
		Parent:    goReceiverType(receiver),
		Signature: g.buildFunctionSignature(node, content, receiver),
		Line:      start,
		EndLine:   end,
		Doc:       precedingLineComment(node, content),
		Calls:     g.extractCalls(node.ChildByFieldName("body"), content),
	}
}

func (g *GoParser) extractTypeDecl(node *sitter.Node, content []byte) []parser.Symbol {
	symbols := make([]parser.Symbol, 0)

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "type_spec" && child.Type() != "type_alias" {
			continue
		}
		nameNode := child.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}

		kind := parser.SymbolStruct
		if typeNode := child.ChildByFieldName("type"); typeNode != nil && typeNode.Type() == "interface_type" {
			kind = parser.SymbolInterface
		}

		// a single spec owns the whole declaration span, including "type"
		spanNode := child
		if node.NamedChildCount() == 1 {
			spanNode = node
		}
		start, end := lineSpan(spanNode)
		symbols = append(symbols, parser.Symbol{
			Name:      nameNode.Content(content),
			Kind:      kind,
			Signature: g.buildTypeSignature(child, content),
			Line:      start,
			EndLine:   end,
			Doc:       precedingLineComment(node, content),
		})
	}

	return symbols
}

func (g *GoParser) extractImports(node *sitter.Node, content []byte) ([]string, map[string]string) {
	imports := make([]string, 0)
	aliases := make(map[string]string)

	add := func(spec *sitter.Node) {
		importPath, alias := g.readImportSpec(spec, content)
		if importPath == "" {
			return
		}
		imports = append(imports, importPath)
		if alias != "" {
			aliases[alias] = importPath
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "import_spec":
			add(child)
		case "import_spec_list":
			for j := 0; j < int(child.ChildCount()); j++ {
				if spec := child.Child(j); spec.Type() == "import_spec" {
					add(spec)
				}
			}
		}
	}

	return imports, aliases
}

func (g *GoParser) buildFunctionSignature(node *sitter.Node, content []byte, receiver string) string {
	nameNode := node.ChildByFieldName("name")
	paramsNode := node.ChildByFieldName("parameters")
	resultNode := node.ChildByFieldName("result")

	sig := "func"
	if receiver != "" {
		sig += " " + receiver
	}
	if nameNode != nil {
		sig += " " + nameNode.Content(content)
	}
	if paramsNode != nil {
		sig += paramsNode.Content(content)
	}
	if resultNode != nil {
		sig += " " + resultNode.Content(content)
	}

	return sig
}

func (g *GoParser) buildTypeSignature(node *sitter.Node, content []byte) string {
	nameNode := node.ChildByFieldName("name")
	typeNode := node.ChildByFieldName("type")

	if nameNode == nil {
		return ""
	}

	sig := "type " + nameNode.Content(content)
	if typeNode != nil {
		switch typeNode.Type() {
		case "struct_type":
			sig += " struct"
		case "interface_type":
			sig += " interface"
		default:
			sig += " " + typeNode.Content(content)
		}
	}

	return sig
}

func (g *GoParser) extractCalls(bodyNode *sitter.Node, content []byte) []parser.CallSite {
	if bodyNode == nil {
		return nil
	}

	calls := make([]parser.CallSite, 0)
	g.collectCalls(bodyNode, content, &calls)
	return dedupeCallSites(calls)
}

func (g *GoParser) collectCalls(node *sitter.Node, content []byte, calls *[]parser.CallSite) {
	if node == nil {
		return
	}

	if node.Type() == "call_expression" {
		if callSite := g.extractCallSite(node, content); callSite.Name != "" {
			*calls = append(*calls, callSite)
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		g.collectCalls(node.Child(i), content, calls)
	}
}

func (g *GoParser) extractCallSite(callNode *sitter.Node, content []byte) parser.CallSite {
	fnNode := callNode.ChildByFieldName("function")
	name, qualifier := g.extractCallName(fnNode, content)
	callSite := parser.CallSite{
		Name:      name,
		Qualifier: qualifier,
		Receiver:  qualifier,
		Line:      int(callNode.StartPoint().Row) + 1,
	}
	if args := callNode.ChildByFieldName("arguments"); args != nil {
		callSite.Arity = int(args.NamedChildCount())
	}
	if fnNode != nil {
		callSite.Raw = strings.TrimSpace(fnNode.Content(content))
	}
	return callSite
}

func (g *GoParser) extractCallName(node *sitter.Node, content []byte) (name, qualifier string) {
	if node == nil {
		return "", ""
	}

	switch node.Type() {
	case "identifier":
		return node.Content(content), ""
	case "selector_expression":
		operandNode := node.ChildByFieldName("operand")
		if fieldNode := node.ChildByFieldName("field"); fieldNode != nil {
			qualifierValue := ""
			if operandNode != nil {
				qualifierValue = strings.TrimSpace(operandNode.Content(content))
			}
			return fieldNode.Content(content), qualifierValue
		}
	case "parenthesized_expression":
		return g.extractCallName(node.NamedChild(0), content)
	case "index_expression", "type_instantiation_expression":
		return g.extractCallName(node.ChildByFieldName("operand"), content)
	}

	qualifierValue, nameValue := splitQualifiedName(node.Content(content))
	return nameValue, qualifierValue
}

func (g *GoParser) readImportSpec(spec *sitter.Node, content []byte) (importPath, alias string) {
	pathNode := spec.ChildByFieldName("path")
	if pathNode == nil {
		return "", ""
	}

	importPath = unquote(pathNode.Content(content))

	if aliasNode := spec.ChildByFieldName("name"); aliasNode != nil {
		alias = strings.TrimSpace(aliasNode.Content(content))
	}
	if alias == "_" || alias == "." {
		alias = ""
	}
	if alias == "" {
		alias = defaultImportAlias(importPath)
	}
	return importPath, alias
}

// goReceiverType turns "(s *Store[T])" into "Store".
func goReceiverType(receiver string) string {
	receiver = strings.Trim(strings.TrimSpace(receiver), "()")
	fields := strings.Fields(receiver)
	if len(fields) == 0 {
		return ""
	}
	typ := fields[len(fields)-1]
	typ = strings.TrimLeft(typ, "*")
	if idx := strings.Index(typ, "["); idx != -1 {
		typ = typ[:idx]
	}
	return typ
}

// precedingLineComment returns the first line of the // comment block
// directly above node.
func precedingLineComment(node *sitter.Node, content []byte) string {
	first := ""
	for prev := node.PrevSibling(); prev != nil && prev.Type() == "comment"; prev = prev.PrevSibling() {
		if int(node.StartPoint().Row)-int(prev.EndPoint().Row) > 1 {
			break
		}
		text := strings.TrimSpace(strings.TrimPrefix(prev.Content(content), "//"))
		if text != "" {
			first = text
		}
		node = prev
	}
	return first
}
