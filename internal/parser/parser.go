package parser

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// LanguageParser defines the interface each language must implement
type LanguageParser interface {
	// Language returns the language name (e.g., "go", "python")
	Language() string

	// Extensions returns file extensions this parser handles
	Extensions() []string

	// Parse extracts structural facts from source code
	Parse(filename string, content []byte) (*Facts, error)
}

// Interpreters is optionally implemented by parsers that can be selected by shebang.
type Interpreters interface {
	Interpreters() []string
}

// Registry maps files to a language parser and the family that renders it.
type Registry struct {
	parsers      map[string]LanguageParser // language name -> parser
	extToLang    map[string]string         // extension -> language name
	nameToLang   map[string]string         // exact base name (Dockerfile, Rakefile) -> language
	interpToLang map[string]string         // shebang interpreter -> language
	langFamily   map[string]FamilyKind     // language -> family
}

// NewRegistry creates a new parser registry
func NewRegistry() *Registry {
	return &Registry{
		parsers:      make(map[string]LanguageParser),
		extToLang:    make(map[string]string),
		nameToLang:   make(map[string]string),
		interpToLang: make(map[string]string),
		langFamily:   make(map[string]FamilyKind),
	}
}

// Register adds a language parser to the registry under the given family.
func (r *Registry) Register(kind FamilyKind, p LanguageParser) {
	lang := p.Language()
	r.parsers[lang] = p
	r.langFamily[lang] = kind
	for _, ext := range p.Extensions() {
		if strings.HasPrefix(ext, ".") {
			r.extToLang[strings.ToLower(ext)] = lang
			continue
		}
		r.nameToLang[ext] = lang
	}
	if ip, ok := p.(Interpreters); ok {
		for _, name := range ip.Interpreters() {
			r.interpToLang[name] = lang
		}
	}
}

// GetParserForFile returns the appropriate parser for a file by name alone.
func (r *Registry) GetParserForFile(filename string) (LanguageParser, bool) {
	lang, ok := r.languageByName(filename)
	if !ok {
		return nil, false
	}
	parser, ok := r.parsers[lang]
	return parser, ok
}

// Detect selects a parser by extension, then shebang, then content sniffing.
func (r *Registry) Detect(filename string, header []byte) (LanguageParser, Family, bool) {
	lang, ok := r.languageByName(filename)
	if !ok {
		lang, ok = r.languageByShebang(header)
	}
	if !ok {
		lang, ok = r.languageBySniff(header)
	}
	if !ok {
		return nil, nil, false
	}
	p, ok := r.parsers[lang]
	if !ok {
		return nil, nil, false
	}
	return p, FamilyOf(r.langFamily[lang]), true
}

// FamilyForLanguage returns the family a registered language belongs to.
func (r *Registry) FamilyForLanguage(lang string) (Family, bool) {
	kind, ok := r.langFamily[lang]
	if !ok {
		return nil, false
	}
	return FamilyOf(kind), true
}

// SupportedExtensions returns all supported file extensions
func (r *Registry) SupportedExtensions() []string {
	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract parses content for path. Unsupported files return (nil, nil).
func (r *Registry) Extract(path string, content []byte) (*Facts, error) {
	header := content
	if len(header) > 512 {
		header = header[:512]
	}
	p, family, ok := r.Detect(path, header)
	if !ok {
		return nil, nil
	}
	facts, err := family.Extract(p, path, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s as %s: %w", path, p.Language(), err)
	}
	return facts, nil
}

func (r *Registry) languageByName(filename string) (string, bool) {
	if lang, ok := r.nameToLang[filepath.Base(filename)]; ok {
		return lang, true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return "", false
	}
	lang, ok := r.extToLang[ext]
	return lang, ok
}

func (r *Registry) languageByShebang(header []byte) (string, bool) {
	interp := ShebangInterpreter(header)
	if interp == "" {
		return "", false
	}
	if lang, ok := r.interpToLang[interp]; ok {
		return lang, true
	}
	// python3.11 -> python3 -> python
	trimmed := strings.TrimRight(interp, "0123456789.")
	lang, ok := r.interpToLang[trimmed]
	return lang, ok
}

func (r *Registry) languageBySniff(header []byte) (string, bool) {
	trimmed := bytes.TrimSpace(header)
	lower := bytes.ToLower(trimmed)
	switch {
	case bytes.HasPrefix(lower, []byte("<!doctype html")), bytes.HasPrefix(lower, []byte("<html")):
		return r.registered("html")
	case bytes.HasPrefix(trimmed, []byte("package ")):
		return r.registered("go")
	}
	return "", false
}

func (r *Registry) registered(lang string) (string, bool) {
	_, ok := r.parsers[lang]
	return lang, ok
}

// ShebangInterpreter returns the interpreter named by a #! line, or "".
func ShebangInterpreter(header []byte) string {
	if !bytes.HasPrefix(header, []byte("#!")) {
		return ""
	}
	line := header[2:]
	if idx := bytes.IndexByte(line, '\n'); idx != -1 {
		line = line[:idx]
	}
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return ""
	}
	interp := filepath.Base(fields[0])
	if interp == "env" {
		for _, f := range fields[1:] {
			if strings.HasPrefix(f, "-") {
				continue
			}
			return filepath.Base(f)
		}
		return ""
	}
	return interp
}

func normalizeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}

func normalizeCallSites(values []CallSite) []CallSite {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(values))
	out := make([]CallSite, 0, len(values))
	for _, value := range values {
		value.Name = strings.TrimSpace(value.Name)
		value.Qualifier = strings.TrimSpace(value.Qualifier)
		value.Receiver = strings.TrimSpace(value.Receiver)
		value.Raw = strings.TrimSpace(value.Raw)
		if value.Name == "" {
			continue
		}

		key := strings.Join([]string{
			value.Name,
			value.Qualifier,
			value.Receiver,
			fmt.Sprintf("%d", value.Arity),
			fmt.Sprintf("%d", value.Line),
		}, "|")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, value)
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
		if out[i].Receiver != out[j].Receiver {
			return out[i].Receiver < out[j].Receiver
		}
		return out[i].Raw < out[j].Raw
	})

	return out
}

func normalizeImportAliases(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}

	out := make(map[string]string, len(values))
	for alias, target := range values {
		alias = strings.TrimSpace(alias)
		target = strings.TrimSpace(target)
		if alias == "" || target == "" {
			continue
		}
		out[alias] = target
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// collectReferences gathers the distinct names called from any symbol body,
// including dotted forms so callers can fall back to the last segment.
func collectReferences(symbols []Symbol, extra []string) []string {
	refs := make([]string, 0, len(extra))
	refs = append(refs, extra...)
	for _, sym := range symbols {
		for _, call := range sym.Calls {
			refs = append(refs, call.Name)
			if call.Qualifier != "" && !strings.ContainsAny(call.Qualifier, "()[] ") {
				refs = append(refs, call.Qualifier+"."+call.Name)
			}
		}
	}
	return normalizeStrings(refs)
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte("\n"))
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
