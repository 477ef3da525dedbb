// Package render turns planned files into document entries and assembles the
// final budget-enforced document.
package render

import (
	"fmt"
	"strings"

	"github.com/skelly-dev/distill/internal/parser"
	"github.com/skelly-dev/distill/internal/record"
)

// alwaysPreserve lists callables kept in full by every skeleton.
var alwaysPreserve = map[string]bool{
	"main":        true,
	"__init__":    true,
	"__main__":    true,
	"constructor": true,
	"init":        true,
	"New":         true,
	"setup":       true,
}

// fallbackSkeletonShare is the share of an unstructured file kept by a skeleton.
const fallbackSkeletonShare = 0.25

// RenderOptions carries the per-file rendering context.
type RenderOptions struct {
	Annotate      bool
	FocusKeywords []string

	// ShowAll keeps every symbol body (a seed without a restriction).
	ShowAll bool
	// Active, when non-nil, lists the symbols other traced files use.
	Active map[string]bool
	// Reason is printed on PATH_ONLY entries.
	Reason string
}

// Renderer renders one file at one tier.
type Renderer struct {
	Formatter *Formatter
}

func NewRenderer() *Renderer {
	return &Renderer{Formatter: NewFormatter()}
}

// Render returns the formatted document entry for rec at tier.
func (r *Renderer) Render(rec record.FileRecord, content []byte, tier record.Tier, opts RenderOptions) (string, error) {
	if tier == record.TierPathOnly {
		return r.Formatter.Omitted(rec.Path, opts.Reason), nil
	}
	body, annotations, err := r.Body(rec, content, tier, opts)
	if err != nil {
		return "", err
	}
	return r.Formatter.Block(rec, body, annotations), nil
}

// Body returns the unformatted text of rec at tier. A FULL body is the content
// unchanged; annotations are returned separately.
func (r *Renderer) Body(rec record.FileRecord, content []byte, tier record.Tier, opts RenderOptions) (string, []Annotation, error) {
	switch tier {
	case record.TierFull:
		var annotations []Annotation
		if opts.Annotate {
			annotations = Annotate(rec, content)
		}
		return string(content), annotations, nil
	case record.TierSkeleton, record.TierInterface:
		return renderSkeleton(rec, string(content), tier, opts), nil, nil
	case record.TierSummary:
		return Summary(rec), nil, nil
	case record.TierPathOnly:
		return "", nil, nil
	default:
		return "", nil, fmt.Errorf("cannot render %s at tier %s", rec.Path, tier)
	}
}

func renderSkeleton(rec record.FileRecord, content string, tier record.Tier, opts RenderOptions) string {
	if !rec.Facts.HasStructure() {
		return truncateUnstructured(content)
	}
	family := parser.FamilyOf(rec.Facts.Family)
	return family.RenderSkeleton(content, rec.Facts, keepFunc(tier, opts))
}

// keepFunc decides which symbols keep their bodies. Non-elidable symbols such as
// classes are kept as structure so their members are judged one by one.
func keepFunc(tier record.Tier, opts RenderOptions) func(parser.Symbol) bool {
	keywords := make([]string, 0, len(opts.FocusKeywords))
	for _, kw := range opts.FocusKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	return func(sym parser.Symbol) bool {
		if !elidable(sym.Kind) {
			return true
		}
		if tier == record.TierInterface {
			return false
		}
		if alwaysPreserve[sym.Name] || matchesFocus(sym, keywords) {
			return true
		}
		if opts.ShowAll {
			return true
		}
		if opts.Active != nil {
			return opts.Active[sym.Name] || opts.Active[sym.QualifiedName()]
		}
		return false
	}
}

func elidable(kind parser.SymbolKind) bool {
	return kind.IsCallable() || kind == parser.SymbolSection || kind == parser.SymbolRule
}

func matchesFocus(sym parser.Symbol, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	name := strings.ToLower(sym.Name)
	qualified := strings.ToLower(sym.QualifiedName())
	for _, kw := range keywords {
		if strings.Contains(name, kw) || qualified == kw {
			return true
		}
	}
	return false
}

func truncateUnstructured(content string) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	limit := int(fallbackSkeletonShare * float64(len(content)))
	kept, size := 0, 0
	for kept < len(lines) {
		size += len(lines[kept]) + 1
		kept++
		if size >= limit {
			break
		}
	}
	if kept >= len(lines) {
		return content
	}
	return strings.Join(lines[:kept], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-kept)
}

// Summary describes rec in one line: its leading doc comment when it has one.
func Summary(rec record.FileRecord) string {
	if rec.Facts != nil {
		if doc := firstLine(rec.Facts.Doc); doc != "" {
			return doc
		}
	}
	return fmt.Sprintf("%s %s with %d functions and %d classes.",
		LanguageName(rec.Language), rec.Category, rec.FunctionCount(), rec.ClassCount())
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		s = strings.TrimSpace(s[:idx])
	}
	return s
}
