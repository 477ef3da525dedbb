package render

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/skelly-dev/distill/internal/record"
)

// InlineLimit is the longest single-line content rendered inline.
const InlineLimit = 60

const bodyIndent = "    "

var blankRuns = regexp.MustCompile(`\n{3,}`)

var languageNames = map[string]string{
	"go":         "Go",
	"python":     "Python",
	"typescript": "TypeScript",
	"javascript": "JavaScript",
	"ruby":       "Ruby",
	"rust":       "Rust",
	"java":       "Java",
	"markdown":   "Markdown",
	"html":       "HTML",
	"css":        "CSS",
	"scss":       "SCSS",
	"json":       "JSON",
	"yaml":       "YAML",
	"toml":       "TOML",
	"xml":        "XML",
	"gomod":      "Go Module",
	"gosum":      "Go Checksums",
	"dotenv":     "Dotenv",
	"ini":        "INI",
	"shell":      "Shell",
}

var titleCaser = cases.Title(language.Und)

// LanguageName returns the display name of a language key.
func LanguageName(lang string) string {
	if lang == "" {
		return "Text"
	}
	if name, ok := languageNames[lang]; ok {
		return name
	}
	return titleCaser.String(lang)
}

// Formatter lays entries out in the document.
type Formatter struct{}

func NewFormatter() *Formatter {
	return &Formatter{}
}

// Omitted returns the one-line stub of a file whose content is left out.
func (f *Formatter) Omitted(p, reason string) string {
	if reason == "" {
		reason = "Low Significance"
	}
	return fmt.Sprintf("%s # [Omitted: %s]", p, reason)
}

// Block formats body under its path. Symlinks, binaries and tiny single-line
// bodies get a one-line form.
func (f *Formatter) Block(rec record.FileRecord, body string, annotations []Annotation) string {
	switch rec.Category {
	case record.CategorySymlink:
		target := rec.SymlinkTarget
		if target == "" {
			target = "?"
		}
		return fmt.Sprintf("%s -> %s # [Symlink]", rec.Path, target)
	case record.CategoryBinary:
		return fmt.Sprintf("%s << %s # [Binary | %s]", rec.Path, rec.Path, HumanSize(rec.Size))
	}

	trimmed := strings.TrimRight(body, "\r\n")
	if len(trimmed) > 0 && len(trimmed) < InlineLimit && !strings.Contains(trimmed, "\n") {
		return fmt.Sprintf("%s :: %q", rec.Path, trimmed)
	}

	var b strings.Builder
	writeAnnotations(&b, annotations)
	if strings.TrimSpace(body) == "" {
		fmt.Fprintf(&b, "%s: # [Empty]", rec.Path)
		return b.String()
	}
	fmt.Fprintf(&b, "%s: # [%s]\n", rec.Path, f.definitionMeta(rec))
	b.WriteString(indentBody(body))
	return b.String()
}

func (f *Formatter) definitionMeta(rec record.FileRecord) string {
	parts := []string{LanguageName(rec.Language), HumanSize(rec.Size)}
	if rec.TokenCost > 0 {
		parts = append(parts, fmt.Sprintf("%d tk", rec.TokenCost))
	}
	return strings.Join(parts, " | ")
}

func writeAnnotations(b *strings.Builder, annotations []Annotation) {
	width := 0
	for _, a := range annotations {
		width = max(width, len(a.Key))
	}
	for _, a := range annotations {
		fmt.Fprintf(b, "# %s:%s %s\n", a.Key, strings.Repeat(" ", width-len(a.Key)), a.Value)
	}
}

// indentBody collapses runs of blank lines and indents every non-blank line.
func indentBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = blankRuns.ReplaceAllString(strings.Trim(body, "\n"), "\n\n")
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = bodyIndent + line
	}
	return strings.Join(lines, "\n")
}

// HumanSize formats a byte count as B, KB or MB.
func HumanSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%dB", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(size)/1024)
	default:
		return fmt.Sprintf("%.1fMB", float64(size)/(1024*1024))
	}
}
