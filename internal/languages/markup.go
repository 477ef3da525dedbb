package languages

import (
	"regexp"
	"strings"

	"github.com/skelly-dev/distill/internal/parser"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/html"
)

var markdownLinkPattern = regexp.MustCompile(`\]\(([^)\s]+)\)`)

// MarkdownParser extracts the heading outline of Markdown documents.
type MarkdownParser struct{}

// NewMarkdownParser creates a new Markdown parser
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{}
}

func (m *MarkdownParser) Language() string {
	return "markdown"
}

func (m *MarkdownParser) Extensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

func (m *MarkdownParser) Parse(filename string, content []byte) (*parser.Facts, error) {
	lines := strings.Split(string(content), "\n")
	result := &parser.Facts{Language: "markdown", Symbols: make([]parser.Symbol, 0)}

	type open struct {
		level int
		index int
	}
	stack := make([]open, 0)
	closeUntil := func(level, line int) {
		for len(stack) > 0 && stack[len(stack)-1].level >= level {
			top := stack[len(stack)-1]
			result.Symbols[top.index].EndLine = line
			stack = stack[:len(stack)-1]
		}
	}

	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		for _, match := range markdownLinkPattern.FindAllStringSubmatch(line, -1) {
			target := match[1]
			if strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../") {
				result.Imports = append(result.Imports, strings.SplitN(target, "#", 2)[0])
			}
		}
		level := headingLevel(trimmed)
		if level == 0 {
			continue
		}
		closeUntil(level, lastNonBlank(lines, i))
		parent := ""
		if len(stack) > 0 {
			parent = result.Symbols[stack[len(stack)-1].index].Name
		}
		title := strings.TrimSpace(trimmed[level:])
		result.Symbols = append(result.Symbols, parser.Symbol{
			Name:      title,
			Kind:      parser.SymbolSection,
			Parent:    parent,
			Signature: trimmed,
			Line:      i + 1,
			EndLine:   i + 1,
		})
		stack = append(stack, open{level: level, index: len(result.Symbols) - 1})
	}
	closeUntil(1, lastNonBlank(lines, len(lines)))

	return result, nil
}

func headingLevel(line string) int {
	level := 0
	for level < len(line) && level < 6 && line[level] == '#' {
		level++
	}
	if level == 0 || level >= len(line) || line[level] != ' ' {
		return 0
	}
	return level
}

// lastNonBlank returns the 1-based number of the last non-blank line before index end.
func lastNonBlank(lines []string, end int) int {
	for i := end - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return i + 1
		}
	}
	return 1
}

// HTMLParser extracts sections and asset references from HTML documents.
type HTMLParser struct {
	trees *treeParser
}

// NewHTMLParser creates a new HTML parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{trees: newTreeParser(html.GetLanguage())}
}

func (h *HTMLParser) Language() string {
	return "html"
}

func (h *HTMLParser) Extensions() []string {
	return []string{".html", ".htm", ".xhtml", ".vue", ".svelte"}
}

func (h *HTMLParser) Parse(filename string, content []byte) (*parser.Facts, error) {
	tree, err := h.trees.parse(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	result := &parser.Facts{Language: "html", Symbols: make([]parser.Symbol, 0)}
	h.walk(tree.RootNode(), content, result)
	return result, nil
}

func (h *HTMLParser) walk(node *sitter.Node, content []byte, result *parser.Facts) {
	switch node.Type() {
	case "element", "script_element", "style_element":
		start := node.NamedChild(0)
		if start != nil && (start.Type() == "start_tag" || start.Type() == "self_closing_tag") {
			tag, attrs := htmlTag(start, content)
			if src := attrs["src"]; src != "" && tag == "script" {
				result.Imports = append(result.Imports, src)
			}
			if href := attrs["href"]; href != "" && tag == "link" {
				result.Imports = append(result.Imports, href)
			}
			name := ""
			switch {
			case attrs["id"] != "":
				name = tag + "#" + attrs["id"]
			case tag == "script" || tag == "style" || tag == "template" || tag == "body" || tag == "head":
				name = tag
			}
			if name != "" {
				first, last := lineSpan(node)
				result.Symbols = append(result.Symbols, parser.Symbol{
					Name:      name,
					Kind:      parser.SymbolSection,
					Signature: strings.TrimSpace(start.Content(content)),
					Line:      first,
					EndLine:   last,
				})
			}
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		h.walk(node.NamedChild(i), content, result)
	}
}

func htmlTag(start *sitter.Node, content []byte) (string, map[string]string) {
	tag := ""
	attrs := make(map[string]string)
	for i := 0; i < int(start.NamedChildCount()); i++ {
		child := start.NamedChild(i)
		switch child.Type() {
		case "tag_name":
			tag = strings.ToLower(child.Content(content))
		case "attribute":
			key := ""
			value := ""
			for j := 0; j < int(child.NamedChildCount()); j++ {
				part := child.NamedChild(j)
				switch part.Type() {
				case "attribute_name":
					key = strings.ToLower(part.Content(content))
				case "quoted_attribute_value", "attribute_value":
					value = unquote(part.Content(content))
				}
			}
			if key != "" {
				attrs[key] = value
			}
		}
	}
	return tag, attrs
}
