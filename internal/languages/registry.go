package languages

import "github.com/skelly-dev/distill/internal/parser"

// NewDefaultRegistry creates a registry with all supported language parsers
func NewDefaultRegistry() *parser.Registry {
	r := parser.NewRegistry()

	r.Register(parser.FamilyBrace, NewGoParser())
	r.Register(parser.FamilyBrace, NewTypeScriptParser())
	r.Register(parser.FamilyBrace, NewRustParser())
	r.Register(parser.FamilyBrace, NewJavaParser())
	r.Register(parser.FamilyPython, NewPythonParser())
	r.Register(parser.FamilyPython, NewRubyParser())
	r.Register(parser.FamilyMarkup, NewMarkdownParser())
	r.Register(parser.FamilyMarkup, NewHTMLParser())
	r.Register(parser.FamilyStylesheet, NewCSSParser())

	return r
}
