package languages

import (
	"strings"

	"github.com/skelly-dev/distill/internal/parser"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

var pythonDecisions = decisionSet(
	"if_statement",
	"elif_clause",
	"for_statement",
	"while_statement",
	"except_clause",
	"with_statement",
	"boolean_operator",
	"conditional_expression",
	"list_comprehension",
	"dictionary_comprehension",
	"set_comprehension",
	"generator_expression",
)

// PythonParser implements parsing for Python source files
type PythonParser struct {
	trees *treeParser
}

// NewPythonParser creates a new Python parser
func NewPythonParser() *PythonParser {
	return &PythonParser{trees: newTreeParser(python.GetLanguage())}
}

func (p *PythonParser) Language() string {
	return "python"
}

func (p *PythonParser) Extensions() []string {
	return []string{".py", ".pyw", ".pyi"}
}

func (p *PythonParser) Interpreters() []string {
	return []string{"python", "python3", "python2", "pypy", "pypy3"}
}

func (p *PythonParser) Parse(filename string, content []byte) (*parser.Facts, error) {
	tree, err := p.trees.parse(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	result := &parser.Facts{
		Language:      "python",
		Symbols:       make([]parser.Symbol, 0),
		Imports:       make([]string, 0),
		ImportAliases: make(map[string]string),
	}

	root := tree.RootNode()
	p.extractSymbols(root, content, result, "")
	result.Complexity = cyclomatic(root, content, pythonDecisions)

	return result, nil
}

func (p *PythonParser) extractSymbols(node *sitter.Node, content []byte, result *parser.Facts, className string) {
	switch node.Type() {
	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			p.extractSymbols(def, content, result, className)
		}
		return

	case "function_definition":
		if sym := p.extractFunction(node, content, className); sym != nil {
			result.Symbols = append(result.Symbols, *sym)
		}
		// nested functions stay inside their parent's span
		return

	case "class_definition":
		sym := p.extractClass(node, content)
		if sym != nil {
			result.Symbols = append(result.Symbols, *sym)
			if bodyNode := node.ChildByFieldName("body"); bodyNode != nil {
				for i := 0; i < int(bodyNode.ChildCount()); i++ {
					p.extractSymbols(bodyNode.Child(i), content, result, sym.Name)
				}
			}
		}
		return

	case "import_statement":
		imports, aliases := p.extractImport(node, content)
		result.Imports = append(result.Imports, imports...)
		result.ImportAliases = mergeImportAliases(result.ImportAliases, aliases)
		return

	case "import_from_statement":
		imports, aliases := p.extractFromImport(node, content)
		result.Imports = append(result.Imports, imports...)
		result.ImportAliases = mergeImportAliases(result.ImportAliases, aliases)
		return

	case "call":
		// module-level calls still count as references
		if className == "" {
			if call := p.extractCallSite(node, content); call.Name != "" {
				result.References = append(result.References, call.Name)
			}
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		p.extractSymbols(node.Child(i), content, result, className)
	}
}

func (p *PythonParser) extractFunction(node *sitter.Node, content []byte, className string) *parser.Symbol {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	kind := parser.SymbolFunction
	if className != "" {
		kind = parser.SymbolMethod
	}

	bodyNode := node.ChildByFieldName("body")
	start, end := lineSpan(node)
	return &parser.Symbol{
		Name:      nameNode.Content(content),
		Kind:      kind,
		Parent:    className,
		Signature: p.buildFunctionSignature(node, content),
		Line:      start,
		EndLine:   end,
		Doc:       bodyDocstring(bodyNode, content),
		Calls:     p.extractCalls(bodyNode, content),
	}
}

func (p *PythonParser) extractClass(node *sitter.Node, content []byte) *parser.Symbol {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	start, end := lineSpan(node)
	return &parser.Symbol{
		Name:      nameNode.Content(content),
		Kind:      parser.SymbolClass,
		Signature: p.buildClassSignature(node, content),
		Line:      start,
		EndLine:   end,
		Doc:       bodyDocstring(node.ChildByFieldName("body"), content),
	}
}

func bodyDocstring(bodyNode *sitter.Node, content []byte) string {
	if bodyNode == nil || bodyNode.ChildCount() == 0 {
		return ""
	}
	firstStmt := bodyNode.Child(0)
	if firstStmt.Type() != "expression_statement" || firstStmt.ChildCount() == 0 {
		return ""
	}
	if expr := firstStmt.Child(0); expr.Type() == "string" {
		return extractDocstring(expr.Content(content))
	}
	return ""
}

func (p *PythonParser) extractImport(node *sitter.Node, content []byte) ([]string, map[string]string) {
	imports := make([]string, 0)
	aliases := make(map[string]string)
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "dotted_name":
			module := strings.TrimSpace(child.Content(content))
			if module != "" {
				imports = append(imports, module)
				aliases[defaultImportAlias(module)] = module
			}
		case "aliased_import":
			module, alias := parsePythonAliasedImport(child.Content(content))
			if module != "" {
				imports = append(imports, module)
			}
			if alias != "" && module != "" {
				aliases[alias] = module
			}
		}
	}
	return imports, aliases
}

func (p *PythonParser) extractFromImport(node *sitter.Node, content []byte) ([]string, map[string]string) {
	aliases := make(map[string]string)
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		return nil, aliases
	}
	moduleName := strings.TrimSpace(moduleNode.Content(content))
	if moduleName == "" {
		return nil, aliases
	}

	if alias := defaultImportAlias(moduleName); alias != "" && strings.Trim(alias, ".") != "" {
		aliases[alias] = moduleName
	}

	imports := []string{moduleName}
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.FieldNameForChild(i) != "name" {
			continue
		}
		child := node.Child(i)
		if child == nil {
			continue
		}

		importedName := ""
		aliasName := ""
		switch child.Type() {
		case "aliased_import":
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				importedName = strings.TrimSpace(nameNode.Content(content))
			}
			if aliasNode := child.ChildByFieldName("alias"); aliasNode != nil {
				aliasName = strings.TrimSpace(aliasNode.Content(content))
			}
		case "dotted_name", "identifier":
			importedName = strings.TrimSpace(child.Content(content))
			aliasName = importedName
		}
		if importedName == "" || aliasName == "" {
			continue
		}
		aliases[aliasName] = fromImportAliasTarget(moduleName, importedName)
		// "from . import sibling" names a module, not a symbol
		if strings.Trim(moduleName, ".") == "" {
			imports = append(imports, moduleName+importedName)
		}
	}

	return imports, aliases
}

func (p *PythonParser) buildFunctionSignature(node *sitter.Node, content []byte) string {
	nameNode := node.ChildByFieldName("name")
	paramsNode := node.ChildByFieldName("parameters")
	returnNode := node.ChildByFieldName("return_type")

	sig := "def"
	if nameNode != nil {
		sig += " " + nameNode.Content(content)
	}
	if paramsNode != nil {
		sig += paramsNode.Content(content)
	}
	if returnNode != nil {
		sig += " -> " + returnNode.Content(content)
	}

	return sig
}

func (p *PythonParser) buildClassSignature(node *sitter.Node, content []byte) string {
	nameNode := node.ChildByFieldName("name")
	superclassNode := node.ChildByFieldName("superclasses")

	sig := "class"
	if nameNode != nil {
		sig += " " + nameNode.Content(content)
	}
	if superclassNode != nil {
		sig += superclassNode.Content(content)
	}

	return sig
}

func (p *PythonParser) extractCalls(bodyNode *sitter.Node, content []byte) []parser.CallSite {
	if bodyNode == nil {
		return nil
	}

	calls := make([]parser.CallSite, 0)
	p.collectCalls(bodyNode, content, &calls)
	return dedupeCallSites(calls)
}

func (p *PythonParser) collectCalls(node *sitter.Node, content []byte, calls *[]parser.CallSite) {
	if node == nil {
		return
	}

	if node.Type() == "call" {
		if callSite := p.extractCallSite(node, content); callSite.Name != "" {
			*calls = append(*calls, callSite)
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		p.collectCalls(node.Child(i), content, calls)
	}
}

func (p *PythonParser) extractCallSite(callNode *sitter.Node, content []byte) parser.CallSite {
	fnNode := callNode.ChildByFieldName("function")
	name, qualifier := p.extractCallName(fnNode, content)
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
	if qualifier == "self" || qualifier == "cls" {
		callSite.Receiver = qualifier
	}
	return callSite
}

func (p *PythonParser) extractCallName(node *sitter.Node, content []byte) (name, qualifier string) {
	if node == nil {
		return "", ""
	}

	switch node.Type() {
	case "identifier":
		return node.Content(content), ""
	case "attribute":
		object := node.ChildByFieldName("object")
		if attr := node.ChildByFieldName("attribute"); attr != nil {
			qualifierValue := ""
			if object != nil {
				qualifierValue = strings.TrimSpace(object.Content(content))
			}
			return attr.Content(content), qualifierValue
		}
	case "subscript":
		return p.extractCallName(node.ChildByFieldName("value"), content)
	}

	qualifierValue, nameValue := splitQualifiedName(node.Content(content))
	return nameValue, qualifierValue
}

func parsePythonAliasedImport(raw string) (module, alias string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	module, alias = splitAliasByAs(raw)
	if alias == "" {
		alias = defaultImportAlias(module)
	}
	return module, alias
}

func fromImportAliasTarget(moduleName, symbolName string) string {
	moduleName = strings.TrimSpace(moduleName)
	symbolName = strings.TrimSpace(symbolName)
	if moduleName == "" {
		return ""
	}
	if symbolName == "" {
		return moduleName
	}
	return moduleName + "#" + symbolName
}

func extractDocstring(s string) string {
	s = strings.TrimSpace(s)
	for _, quote := range []string{`"""`, `'''`} {
		if strings.HasPrefix(s, quote) && strings.HasSuffix(s, quote) && len(s) >= 6 {
			s = s[3 : len(s)-3]
			break
		}
	}
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
