package parser

import (
	"regexp"
	"sort"
	"strings"
)

// FamilyKind names one of the fixed language families.
type FamilyKind string

const (
	FamilyBrace      FamilyKind = "brace"
	FamilyPython     FamilyKind = "python"
	FamilyMarkup     FamilyKind = "markup"
	FamilyStylesheet FamilyKind = "stylesheet"
)

// Family extracts structural facts and renders skeletons for a group of
// languages that share block syntax. The set of families is closed.
type Family interface {
	Kind() FamilyKind

	// Extract runs the language parser and fills in the family-level facts
	// (line count, leading doc, references, symbol IDs).
	Extract(p LanguageParser, path string, content []byte) (*Facts, error)

	// RenderSkeleton keeps symbols for which keep returns true and collapses
	// the rest to their header line plus an elision marker.
	RenderSkeleton(content string, facts *Facts, keep func(Symbol) bool) string

	sealed()
}

// FamilyOf returns the family implementation for kind. Unknown kinds fall
// back to the brace family.
func FamilyOf(kind FamilyKind) Family {
	switch kind {
	case FamilyPython:
		return pythonFamily{}
	case FamilyMarkup:
		return markupFamily{}
	case FamilyStylesheet:
		return stylesheetFamily{}
	default:
		return braceFamily{}
	}
}

type braceFamily struct{}

func (braceFamily) Kind() FamilyKind { return FamilyBrace }
func (braceFamily) sealed()          {}

func (f braceFamily) Extract(p LanguageParser, path string, content []byte) (*Facts, error) {
	return extractWith(f.Kind(), p, path, content, braceLeadingDoc)
}

func (braceFamily) RenderSkeleton(content string, facts *Facts, keep func(Symbol) bool) string {
	return renderSkeleton(content, facts, keep, collapseBraces)
}

type pythonFamily struct{}

func (pythonFamily) Kind() FamilyKind { return FamilyPython }
func (pythonFamily) sealed()          {}

func (f pythonFamily) Extract(p LanguageParser, path string, content []byte) (*Facts, error) {
	return extractWith(f.Kind(), p, path, content, hashLeadingDoc)
}

func (pythonFamily) RenderSkeleton(content string, facts *Facts, keep func(Symbol) bool) string {
	language := ""
	if facts != nil {
		language = facts.Language
	}
	return renderSkeleton(content, facts, keep, func(lines []string, sym Symbol) []string {
		indent := leadingWhitespace(lines[0])
		head := strings.TrimRight(lines[0], " \t")
		if openHeader(head) && sym.Signature != "" {
			head = indent + asyncPrefix(head) + flattenSignature(sym.Signature)
			if language != "ruby" {
				head += ":"
			}
		}
		out := []string{head}
		out = append(out, indent+"    ...")
		// keyword-terminated blocks keep their closing line
		if language == "ruby" && len(lines) > 1 {
			out = append(out, indent+"end")
		}
		return out
	})
}

type markupFamily struct{}

func (markupFamily) Kind() FamilyKind { return FamilyMarkup }
func (markupFamily) sealed()          {}

func (f markupFamily) Extract(p LanguageParser, path string, content []byte) (*Facts, error) {
	return extractWith(f.Kind(), p, path, content, markupLeadingDoc)
}

func (markupFamily) RenderSkeleton(content string, facts *Facts, keep func(Symbol) bool) string {
	language := ""
	if facts != nil {
		language = facts.Language
	}
	return renderSkeleton(content, facts, keep, func(lines []string, sym Symbol) []string {
		head := strings.TrimRight(lines[0], " \t")
		if language == "markdown" {
			return []string{head, "[...]"}
		}
		indent := leadingWhitespace(lines[0])
		out := []string{head, indent + "  <!-- ... -->"}
		if len(lines) > 1 {
			out = append(out, strings.TrimRight(lines[len(lines)-1], " \t"))
		}
		return out
	})
}

type stylesheetFamily struct{}

func (stylesheetFamily) Kind() FamilyKind { return FamilyStylesheet }
func (stylesheetFamily) sealed()          {}

func (f stylesheetFamily) Extract(p LanguageParser, path string, content []byte) (*Facts, error) {
	return extractWith(f.Kind(), p, path, content, braceLeadingDoc)
}

func (stylesheetFamily) RenderSkeleton(content string, facts *Facts, keep func(Symbol) bool) string {
	return renderSkeleton(content, facts, keep, func(lines []string, sym Symbol) []string {
		indent := leadingWhitespace(lines[0])
		head := lines[0]
		if idx := strings.Index(head, "{"); idx != -1 {
			head = head[:idx]
		}
		head = strings.TrimSpace(head)
		if head == "" {
			head = sym.Signature
		}
		return []string{indent + head + " { /* ... */ }"}
	})
}

func collapseBraces(lines []string, sym Symbol) []string {
	indent := leadingWhitespace(lines[0])
	head := lines[0]
	if idx := strings.LastIndex(head, "{"); idx != -1 {
		head = strings.TrimRight(head[:idx], " \t")
	} else if sym.Signature != "" && !strings.Contains(sym.Signature, "\n") {
		head = indent + sym.Signature
	} else {
		head = strings.TrimRight(head, " \t")
	}
	return []string{head + " { ... }"}
}

func extractWith(kind FamilyKind, p LanguageParser, path string, content []byte, doc func([]string) string) (*Facts, error) {
	facts, err := p.Parse(path, content)
	if err != nil {
		return nil, err
	}
	if facts == nil {
		facts = &Facts{}
	}
	facts.Family = kind
	if facts.Language == "" {
		facts.Language = p.Language()
	}
	facts.Imports = normalizeStrings(facts.Imports)
	facts.ImportAliases = normalizeImportAliases(facts.ImportAliases)
	for i := range facts.Symbols {
		sym := &facts.Symbols[i]
		sym.Calls = normalizeCallSites(sym.Calls)
		if sym.EndLine < sym.Line {
			sym.EndLine = sym.Line
		}
		sym.ID = StableSymbolID(path, *sym)
	}
	sort.SliceStable(facts.Symbols, func(i, j int) bool {
		return facts.Symbols[i].Line < facts.Symbols[j].Line
	})
	facts.References = collectReferences(facts.Symbols, facts.References)
	facts.Lines = countLines(content)
	if facts.Complexity < 1 {
		facts.Complexity = 1
	}
	if facts.Doc == "" {
		facts.Doc = doc(strings.Split(string(content), "\n"))
	}
	return facts, nil
}

// renderSkeleton walks symbols in source order. Collapsed symbols swallow
// their span, so nested symbols inside them are skipped; kept callables
// also protect their nested symbols from being collapsed.
func renderSkeleton(content string, facts *Facts, keep func(Symbol) bool, collapse func(lines []string, sym Symbol) []string) string {
	if facts == nil || len(facts.Symbols) == 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	symbols := make([]Symbol, len(facts.Symbols))
	copy(symbols, facts.Symbols)
	sort.SliceStable(symbols, func(i, j int) bool {
		if symbols[i].Line != symbols[j].Line {
			return symbols[i].Line < symbols[j].Line
		}
		return symbols[i].EndLine > symbols[j].EndLine
	})

	out := make([]string, 0, len(lines))
	cursor := 1
	keptUntil := 0
	for _, sym := range symbols {
		if sym.Line < cursor || sym.Line <= keptUntil || sym.Line < 1 || sym.Line > len(lines) {
			continue
		}
		if keep(sym) {
			if sym.Kind.IsCallable() && sym.EndLine > keptUntil {
				keptUntil = sym.EndLine
			}
			continue
		}
		if sym.EndLine <= sym.Line {
			continue
		}
		end := sym.EndLine
		if end > len(lines) {
			end = len(lines)
		}
		out = append(out, lines[cursor-1:sym.Line-1]...)
		out = append(out, collapse(lines[sym.Line-1:end], sym)...)
		cursor = end + 1
	}
	if cursor <= len(lines) {
		out = append(out, lines[cursor-1:]...)
	}
	return strings.Join(out, "\n")
}

// openHeader reports whether a definition line leaves its parameter list
// open on the following lines.
func openHeader(line string) bool {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	return strings.Count(line, "(") > strings.Count(line, ")") ||
		strings.Count(line, "[") > strings.Count(line, "]")
}

func asyncPrefix(line string) string {
	if strings.HasPrefix(strings.TrimSpace(line), "async ") {
		return "async "
	}
	return ""
}

// flattenSignature joins a multi-line signature onto one line.
func flattenSignature(sig string) string {
	flat := strings.Join(strings.Fields(sig), " ")
	flat = strings.ReplaceAll(flat, "( ", "(")
	flat = strings.ReplaceAll(flat, ", )", ")")
	return strings.ReplaceAll(flat, " )", ")")
}

func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

// braceLeadingDoc returns the first line of the leading // or /* */ comment.
func braceLeadingDoc(lines []string) string {
	inBlock := false
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if inBlock {
			if idx := strings.Index(line, "*/"); idx != -1 {
				line = line[:idx]
				inBlock = false
			}
			line = strings.TrimSpace(strings.TrimLeft(line, "*"))
			if line != "" {
				return line
			}
			if !inBlock {
				return ""
			}
			continue
		}
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "//"):
			text := strings.TrimSpace(strings.TrimLeft(line, "/!"))
			if text != "" && !strings.HasPrefix(text, "go:") && !strings.HasPrefix(text, "+build") {
				return text
			}
		case strings.HasPrefix(line, "/*"):
			body := strings.TrimPrefix(line, "/*")
			body = strings.TrimLeft(body, "*!")
			if idx := strings.Index(body, "*/"); idx != -1 {
				if text := strings.TrimSpace(body[:idx]); text != "" {
					return text
				}
				continue
			}
			if text := strings.TrimSpace(body); text != "" {
				return text
			}
			inBlock = true
		default:
			return ""
		}
	}
	return ""
}

// hashLeadingDoc handles module docstrings and leading # comments.
func hashLeadingDoc(lines []string) string {
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue
		case i == 0 && strings.HasPrefix(line, "#!"):
			continue
		case strings.HasPrefix(line, "# -*-"), strings.HasPrefix(line, "# frozen_string_literal"):
			continue
		case strings.HasPrefix(line, `"""`), strings.HasPrefix(line, `'''`):
			quote := line[:3]
			body := strings.TrimSpace(strings.TrimPrefix(line, quote))
			body = strings.TrimSpace(strings.TrimSuffix(body, quote))
			if body != "" {
				return body
			}
			for _, next := range lines[i+1:] {
				next = strings.TrimSpace(next)
				if strings.HasPrefix(next, quote) {
					return ""
				}
				if next != "" {
					return strings.TrimSpace(strings.TrimSuffix(next, quote))
				}
			}
			return ""
		case strings.HasPrefix(line, "#"):
			if text := strings.TrimSpace(strings.TrimLeft(line, "#")); text != "" {
				return text
			}
		default:
			return ""
		}
	}
	return ""
}

var htmlTitlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

func markupLeadingDoc(lines []string) string {
	joined := strings.Join(lines, "\n")
	if m := htmlTitlePattern.FindStringSubmatch(joined); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "<!") || strings.HasPrefix(line, "<?") || line == "---" {
			continue
		}
		if strings.HasPrefix(line, "<") {
			return ""
		}
		return strings.TrimSpace(strings.TrimLeft(line, "#"))
	}
	return ""
}
