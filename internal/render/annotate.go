package render

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/skelly-dev/distill/internal/record"
)

// Annotation is one metadata line hoisted above a FULL entry.
type Annotation struct {
	Key   string
	Value string
}

const maxImportsShown = 8

var debtPattern = regexp.MustCompile(`\b(TODO|FIXME|HACK)\b`)

var roleKeywords = []struct {
	keywords []string
	role     string
}{
	{[]string{"test", "spec"}, "Test"},
	{[]string{"controller", "route", "handler"}, "Controller"},
	{[]string{"model", "schema", "entity"}, "Model"},
	{[]string{"view", "component", "ui"}, "View"},
	{[]string{"service"}, "Service"},
	{[]string{"util", "helper"}, "Utility"},
	{[]string{"config", "setting"}, "Configuration"},
	{[]string{"main", "index", "app", "cmd"}, "Entrypoint"},
}

// Annotate derives the metadata lines for a FULL entry.
func Annotate(rec record.FileRecord, content []byte) []Annotation {
	out := make([]Annotation, 0, 4)
	if role := Role(rec.Path); role != "" {
		out = append(out, Annotation{Key: "@role", Value: role})
	}
	out = append(out, Annotation{Key: "@vitality", Value: Vitality(rec)})
	if imports := rec.Imports(); len(imports) > 0 {
		out = append(out, Annotation{Key: "@imports", Value: importList(imports)})
	}
	if debt := CountDebt(content); debt.Total() > 0 {
		out = append(out, Annotation{Key: "@debt", Value: debt.String()})
	}
	return out
}

// Role infers an architectural role from path keywords.
func Role(p string) string {
	lower := strings.ToLower(p)
	for _, rk := range roleKeywords {
		for _, kw := range rk.keywords {
			if strings.Contains(lower, kw) {
				return rk.role
			}
		}
	}
	return ""
}

// Vitality labels a file from churn, complexity and age.
func Vitality(rec record.FileRecord) string {
	if rec.History.DaysSinceChange >= record.UntrackedDays {
		return "Fresh (Untracked)"
	}
	cc := rec.Complexity()
	if cc < 1 {
		cc = 1
	}
	age := max(1, rec.History.DaysSinceChange)
	score := float64(rec.History.Churn*cc) / float64(age)
	switch {
	case score > 100:
		return "Volatile"
	case score > 50:
		return "Active"
	case age > 365:
		return "Ancient"
	default:
		return "Stable"
	}
}

func importList(imports []string) string {
	names := make([]string, 0, len(imports))
	for _, imp := range imports {
		imp = strings.TrimRight(imp, "/")
		name := path.Base(imp)
		if idx := strings.LastIndex(name, "."); idx != -1 && idx < len(name)-1 {
			name = name[idx+1:]
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) <= maxImportsShown {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s (+%d)", strings.Join(names[:maxImportsShown], ", "), len(names)-maxImportsShown)
}

// Debt counts outstanding markers in a file.
type Debt struct {
	Todo  int `json:"todo"`
	Fixme int `json:"fixme"`
	Hack  int `json:"hack"`
}

// CountDebt scans content for TODO, FIXME and HACK markers.
func CountDebt(content []byte) Debt {
	var d Debt
	for _, m := range debtPattern.FindAll(content, -1) {
		switch string(m) {
		case "TODO":
			d.Todo++
		case "FIXME":
			d.Fixme++
		case "HACK":
			d.Hack++
		}
	}
	return d
}

func (d Debt) Total() int {
	return d.Todo + d.Fixme + d.Hack
}

// Add returns the sum of d and other.
func (d Debt) Add(other Debt) Debt {
	return Debt{Todo: d.Todo + other.Todo, Fixme: d.Fixme + other.Fixme, Hack: d.Hack + other.Hack}
}

func (d Debt) String() string {
	parts := make([]string, 0, 3)
	if d.Fixme > 0 {
		parts = append(parts, fmt.Sprintf("%d FIXME", d.Fixme))
	}
	if d.Hack > 0 {
		parts = append(parts, fmt.Sprintf("%d HACK", d.Hack))
	}
	if d.Todo > 0 {
		parts = append(parts, fmt.Sprintf("%d TODO", d.Todo))
	}
	return strings.Join(parts, ", ")
}
