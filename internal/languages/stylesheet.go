package languages

import (
	"strings"

	"github.com/skelly-dev/distill/internal/parser"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/css"
)

// CSSParser extracts rule sets and @import targets from stylesheets.
type CSSParser struct {
	trees *treeParser
}

// NewCSSParser creates a new CSS parser
func NewCSSParser() *CSSParser {
	return &CSSParser{trees: newTreeParser(css.GetLanguage())}
}

func (c *CSSParser) Language() string {
	return "css"
}

func (c *CSSParser) Extensions() []string {
	return []string{".css", ".scss", ".less"}
}

func (c *CSSParser) Parse(filename string, content []byte) (*parser.Facts, error) {
	tree, err := c.trees.parse(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	result := &parser.Facts{Language: "css", Symbols: make([]parser.Symbol, 0)}
	c.walk(tree.RootNode(), content, result, "")
	return result, nil
}

func (c *CSSParser) walk(node *sitter.Node, content []byte, result *parser.Facts, parent string) {
	switch node.Type() {
	case "import_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "string_value":
				result.Imports = append(result.Imports, unquote(child.Content(content)))
			case "call_expression":
				// url("x.css")
				text := child.Content(content)
				text = strings.TrimSuffix(strings.TrimPrefix(text, "url("), ")")
				result.Imports = append(result.Imports, unquote(text))
			}
		}
		return

	case "rule_set":
		selector := ""
		if sel := node.NamedChild(0); sel != nil && sel.Type() == "selectors" {
			selector = strings.Join(strings.Fields(sel.Content(content)), " ")
		}
		if selector != "" {
			start, end := lineSpan(node)
			result.Symbols = append(result.Symbols, parser.Symbol{
				Name:      selector,
				Kind:      parser.SymbolRule,
				Parent:    parent,
				Signature: selector,
				Line:      start,
				EndLine:   end,
			})
		}
		return

	case "media_statement", "keyframes_statement", "supports_statement":
		start, end := lineSpan(node)
		head := firstLine(node.Content(content))
		result.Symbols = append(result.Symbols, parser.Symbol{
			Name:      head,
			Kind:      parser.SymbolModule,
			Signature: head,
			Line:      start,
			EndLine:   end,
		})
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "block" {
				for j := 0; j < int(child.NamedChildCount()); j++ {
					c.walk(child.NamedChild(j), content, result, head)
				}
			}
		}
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		c.walk(node.NamedChild(i), content, result, parent)
	}
}
