package languages

import (
	"path/filepath"
	"strings"

	"github.com/skelly-dev/distill/internal/parser"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

var scriptDecisions = decisionSet(
	"if_statement",
	"for_statement",
	"for_in_statement",
	"while_statement",
	"do_statement",
	"switch_case",
	"catch_clause",
	"ternary_expression",
	"binary_expression",
)

// TypeScriptParser implements parsing for TypeScript/JavaScript source files
type TypeScriptParser struct {
	tsTrees  *treeParser
	tsxTrees *treeParser
	jsTrees  *treeParser
}

// NewTypeScriptParser creates a new TypeScript/JavaScript parser
func NewTypeScriptParser() *TypeScriptParser {
	return &TypeScriptParser{
		tsTrees:  newTreeParser(typescript.GetLanguage()),
		tsxTrees: newTreeParser(tsx.GetLanguage()),
		jsTrees:  newTreeParser(javascript.GetLanguage()),
	}
}

func (t *TypeScriptParser) Language() string {
	return "typescript"
}

func (t *TypeScriptParser) Extensions() []string {
	return []string{".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs"}
}

func (t *TypeScriptParser) Interpreters() []string {
	return []string{"node", "deno", "bun", "ts-node"}
}

func (t *TypeScriptParser) Parse(filename string, content []byte) (*parser.Facts, error) {
	trees := t.tsTrees
	lang := "typescript"
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tsx":
		trees = t.tsxTrees
	case ".js", ".jsx", ".mjs", ".cjs", "":
		trees = t.jsTrees
		lang = "javascript"
	}

	tree, err := trees.parse(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	result := &parser.Facts{
		Language:      lang,
		Symbols:       make([]parser.Symbol, 0),
		Imports:       make([]string, 0),
		ImportAliases: make(map[string]string),
	}

	root := tree.RootNode()
	t.extractSymbols(root, content, result, "")
	result.Complexity = cyclomatic(root, content, scriptDecisions)
	result.References = append(result.References, collectIdentifiers(root, content, "type_identifier")...)

	return result, nil
}

func (t *TypeScriptParser) extractSymbols(node *sitter.Node, content []byte, result *parser.Facts, className string) {
	switch node.Type() {
	case "function_declaration", "generator_function_declaration":
		if sym := t.extractFunction(node, content); sym != nil {
			result.Symbols = append(result.Symbols, *sym)
		}
		return

	case "method_definition":
		if sym := t.extractMethod(node, content, className); sym != nil {
			result.Symbols = append(result.Symbols, *sym)
		}
		return

	case "class_declaration", "abstract_class_declaration":
		sym := t.extractClass(node, content)
		if sym != nil {
			result.Symbols = append(result.Symbols, *sym)
			if bodyNode := node.ChildByFieldName("body"); bodyNode != nil {
				for i := 0; i < int(bodyNode.ChildCount()); i++ {
					t.extractSymbols(bodyNode.Child(i), content, result, sym.Name)
				}
			}
		}
		return

	case "interface_declaration":
		if sym := t.extractNamed(node, content, parser.SymbolInterface, "interface "); sym != nil {
			result.Symbols = append(result.Symbols, *sym)
		}
		return

	case "type_alias_declaration":
		if sym := t.extractNamed(node, content, parser.SymbolStruct, "type "); sym != nil {
			result.Symbols = append(result.Symbols, *sym)
		}
		return

	case "enum_declaration":
		if sym := t.extractNamed(node, content, parser.SymbolConstant, "enum "); sym != nil {
			result.Symbols = append(result.Symbols, *sym)
		}
		return

	case "lexical_declaration", "variable_declaration":
		result.Symbols = append(result.Symbols, t.extractVariableDeclarations(node, content)...)
		return

	case "import_statement":
		imports, aliases := t.extractImports(node, content)
		result.Imports = append(result.Imports, imports...)
		result.ImportAliases = mergeImportAliases(result.ImportAliases, aliases)
		return

	case "export_statement":
		// re-exports ("export * from './x'") are imports too
		if source := node.ChildByFieldName("source"); source != nil {
			result.Imports = append(result.Imports, unquote(source.Content(content)))
		}

	case "call_expression":
		// require("./x") at any depth
		if fn := node.ChildByFieldName("function"); fn != nil && fn.Content(content) == "require" {
			if args := node.ChildByFieldName("arguments"); args != nil && args.NamedChildCount() > 0 {
				if arg := args.NamedChild(0); arg.Type() == "string" {
					result.Imports = append(result.Imports, unquote(arg.Content(content)))
				}
			}
		}

	case "new_expression":
		if ctor := node.ChildByFieldName("constructor"); ctor != nil {
			result.References = append(result.References, ctor.Content(content))
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		t.extractSymbols(node.Child(i), content, result, className)
	}
}

func (t *TypeScriptParser) extractFunction(node *sitter.Node, content []byte) *parser.Symbol {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	start, end := lineSpan(node)
	return &parser.Symbol{
		Name:      nameNode.Content(content),
		Kind:      parser.SymbolFunction,
		Signature: t.buildFunctionSignature(node, content),
		Line:      start,
		EndLine:   end,
		Calls:     t.extractCalls(node.ChildByFieldName("body"), content),
	}
}

func (t *TypeScriptParser) extractMethod(node *sitter.Node, content []byte, className string) *parser.Symbol {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	start, end := lineSpan(node)
	return &parser.Symbol{
		Name:      nameNode.Content(content),
		Kind:      parser.SymbolMethod,
		Parent:    className,
		Signature: t.buildMethodSignature(node, content),
		Line:      start,
		EndLine:   end,
		Calls:     t.extractCalls(node.ChildByFieldName("body"), content),
	}
}

func (t *TypeScriptParser) extractClass(node *sitter.Node, content []byte) *parser.Symbol {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	start, end := lineSpan(node)
	return &parser.Symbol{
		Name:      nameNode.Content(content),
		Kind:      parser.SymbolClass,
		Signature: t.buildClassSignature(node, content),
		Line:      start,
		EndLine:   end,
	}
}

func (t *TypeScriptParser) extractNamed(node *sitter.Node, content []byte, kind parser.SymbolKind, prefix string) *parser.Symbol {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	name := nameNode.Content(content)
	start, end := lineSpan(node)
	return &parser.Symbol{
		Name:      name,
		Kind:      kind,
		Signature: prefix + name,
		Line:      start,
		EndLine:   end,
	}
}

func (t *TypeScriptParser) extractVariableDeclarations(node *sitter.Node, content []byte) []parser.Symbol {
	symbols := make([]parser.Symbol, 0)

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		nameNode := child.ChildByFieldName("name")
		valueNode := child.ChildByFieldName("value")
		if nameNode == nil || valueNode == nil {
			continue
		}

		switch valueNode.Type() {
		case "arrow_function", "function", "function_expression":
			start, end := lineSpan(child)
			symbols = append(symbols, parser.Symbol{
				Name:      nameNode.Content(content),
				Kind:      parser.SymbolFunction,
				Signature: t.buildArrowFunctionSignature(nameNode, valueNode, content),
				Line:      start,
				EndLine:   end,
				Calls:     t.extractCalls(valueNode, content),
			})
		}
	}

	return symbols
}

func (t *TypeScriptParser) extractImports(node *sitter.Node, content []byte) ([]string, map[string]string) {
	imports := make([]string, 0)
	aliases := make(map[string]string)

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "string" {
			continue
		}
		imp := unquote(child.Content(content))
		imports = append(imports, imp)

		for _, alias := range parseJSImportAliases(node.Content(content)) {
			aliases[alias] = imp
		}
		if defaultAlias := defaultImportAlias(imp); defaultAlias != "" {
			if _, ok := aliases[defaultAlias]; !ok {
				aliases[defaultAlias] = imp
			}
		}
	}

	return imports, aliases
}

func (t *TypeScriptParser) buildFunctionSignature(node *sitter.Node, content []byte) string {
	nameNode := node.ChildByFieldName("name")
	paramsNode := node.ChildByFieldName("parameters")
	returnNode := node.ChildByFieldName("return_type")

	sig := "function"
	if nameNode != nil {
		sig += " " + nameNode.Content(content)
	}
	if paramsNode != nil {
		sig += paramsNode.Content(content)
	}
	if returnNode != nil {
		sig += formatTypeScriptReturnType(returnNode.Content(content))
	}

	return sig
}

func (t *TypeScriptParser) buildMethodSignature(node *sitter.Node, content []byte) string {
	nameNode := node.ChildByFieldName("name")
	paramsNode := node.ChildByFieldName("parameters")
	returnNode := node.ChildByFieldName("return_type")

	sig := ""
	if nameNode != nil {
		sig = nameNode.Content(content)
	}
	if paramsNode != nil {
		sig += paramsNode.Content(content)
	}
	if returnNode != nil {
		sig += formatTypeScriptReturnType(returnNode.Content(content))
	}

	return sig
}

func (t *TypeScriptParser) buildClassSignature(node *sitter.Node, content []byte) string {
	nameNode := node.ChildByFieldName("name")

	sig := "class"
	if nameNode != nil {
		sig += " " + nameNode.Content(content)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "class_heritage" {
			sig += " " + child.Content(content)
			break
		}
	}

	return sig
}

func (t *TypeScriptParser) buildArrowFunctionSignature(nameNode, valueNode *sitter.Node, content []byte) string {
	sig := "const " + nameNode.Content(content) + " = "
	if paramsNode := valueNode.ChildByFieldName("parameters"); paramsNode != nil {
		sig += paramsNode.Content(content)
	} else if paramNode := valueNode.ChildByFieldName("parameter"); paramNode != nil {
		sig += paramNode.Content(content)
	}
	if returnNode := valueNode.ChildByFieldName("return_type"); returnNode != nil {
		sig += formatTypeScriptReturnType(returnNode.Content(content))
	}
	return sig + " =>"
}

func (t *TypeScriptParser) extractCalls(node *sitter.Node, content []byte) []parser.CallSite {
	if node == nil {
		return nil
	}

	calls := make([]parser.CallSite, 0)
	t.collectCalls(node, content, &calls)
	return dedupeCallSites(calls)
}

func (t *TypeScriptParser) collectCalls(node *sitter.Node, content []byte, calls *[]parser.CallSite) {
	if node == nil {
		return
	}

	if node.Type() == "call_expression" {
		if callSite := t.extractCallSite(node, content); callSite.Name != "" {
			*calls = append(*calls, callSite)
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		t.collectCalls(node.Child(i), content, calls)
	}
}

func (t *TypeScriptParser) extractCallSite(callNode *sitter.Node, content []byte) parser.CallSite {
	fnNode := callNode.ChildByFieldName("function")
	name, qualifier := t.extractCallName(fnNode, content)
	callSite := parser.CallSite{
		Name:      name,
		Qualifier: qualifier,
		Line:      int(callNode.StartPoint().Row) + 1,
	}
	if args := callNode.ChildByFieldName("arguments"); args != nil {
		callSite.Arity = int(args.NamedChildCount())
	}
	if fnNode != nil {
		callSite.Raw = strings.TrimSpace(fnNode.Content(content))
	}
	if qualifier == "this" {
		callSite.Receiver = qualifier
	}
	return callSite
}

func (t *TypeScriptParser) extractCallName(node *sitter.Node, content []byte) (name, qualifier string) {
	if node == nil {
		return "", ""
	}

	switch node.Type() {
	case "identifier":
		return node.Content(content), ""
	case "member_expression":
		objectNode := node.ChildByFieldName("object")
		if property := node.ChildByFieldName("property"); property != nil {
			qualifierValue := ""
			if objectNode != nil {
				qualifierValue = strings.TrimSpace(objectNode.Content(content))
			}
			return property.Content(content), qualifierValue
		}
	case "subscript_expression":
		return t.extractCallName(node.ChildByFieldName("object"), content)
	case "parenthesized_expression":
		return t.extractCallName(node.NamedChild(0), content)
	}

	qualifierValue, nameValue := splitQualifiedName(node.Content(content))
	return nameValue, qualifierValue
}

func parseJSImportAliases(raw string) []string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "import ") {
		return nil
	}

	fromIdx := strings.Index(raw, " from ")
	if fromIdx == -1 {
		return nil
	}
	spec := strings.TrimSpace(strings.TrimPrefix(raw[:fromIdx], "import "))
	if spec == "" {
		return nil
	}

	aliases := make([]string, 0)
	for _, part := range splitTopLevelCSV(spec) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			for _, member := range splitTopLevelCSV(strings.Trim(part, "{} ")) {
				member = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(member), "type "))
				base, alias := splitAliasByAs(member)
				if alias != "" {
					member = alias
				} else {
					member = base
				}
				if member != "" {
					aliases = append(aliases, member)
				}
			}
			continue
		}

		part = strings.TrimSpace(strings.TrimPrefix(part, "type "))
		if strings.HasPrefix(part, "* as ") {
			if alias := strings.TrimSpace(strings.TrimPrefix(part, "* as ")); alias != "" {
				aliases = append(aliases, alias)
			}
			continue
		}

		aliases = append(aliases, part)
	}
	return aliases
}

func formatTypeScriptReturnType(raw string) string {
	value := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), ":"))
	if value == "" {
		return ""
	}
	return ": " + value
}

func splitTopLevelCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := make([]string, 0)
	depth := 0
	start := 0
	for i, ch := range raw {
		switch ch {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(raw[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(raw[start:]))
	return parts
}
