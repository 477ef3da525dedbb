package oracle

import (
	"context"
	"path"
	"regexp"
	"strings"
)

// ForensicAnalyzer implicates files from free-form problem text such as a stack trace.
type ForensicAnalyzer interface {
	Analyze(ctx context.Context, text string, known []string) (map[string]float64, error)
}

var (
	pythonFrame = regexp.MustCompile(`File "([^"]+)", line (\d+)`)
	javaFrame   = regexp.MustCompile(`\(([A-Za-z0-9_$]+\.(?:java|kt|scala)):(\d+)\)`)
	pathFrame   = regexp.MustCompile(`((?:[A-Za-z]:)?[A-Za-z0-9_./\\@+-]+\.[A-Za-z0-9]+):(\d+)`)
)

// StackTraceAnalyzer recognizes Python, Go, JavaScript and Java stack frames.
type StackTraceAnalyzer struct{}

// Analyze scores every known path by the number of frames mentioning it.
func (StackTraceAnalyzer) Analyze(ctx context.Context, text string, known []string) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores := make(map[string]float64)
	if strings.TrimSpace(text) == "" || len(known) == 0 {
		return scores, nil
	}

	index := newPathIndex(known)
	hit := func(raw string) {
		for _, p := range index.match(raw) {
			scores[p]++
		}
	}

	for _, m := range pythonFrame.FindAllStringSubmatch(text, -1) {
		hit(m[1])
	}
	for _, m := range javaFrame.FindAllStringSubmatch(text, -1) {
		hit(m[1])
	}
	for _, m := range pathFrame.FindAllStringSubmatch(text, -1) {
		if strings.HasSuffix(m[1], ".java") || strings.HasSuffix(m[1], ".kt") || strings.HasSuffix(m[1], ".scala") {
			continue
		}
		hit(m[1])
	}
	return scores, nil
}

type pathIndex struct {
	known  map[string]bool
	byBase map[string][]string
}

func newPathIndex(known []string) pathIndex {
	idx := pathIndex{known: make(map[string]bool, len(known)), byBase: make(map[string][]string)}
	for _, p := range known {
		idx.known[p] = true
		base := path.Base(p)
		idx.byBase[base] = append(idx.byBase[base], p)
	}
	return idx
}

// match maps a frame path (absolute, relative or bare file name) onto known paths.
func (idx pathIndex) match(raw string) []string {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), `\`, "/")
	raw = strings.TrimPrefix(raw, "./")
	if raw == "" {
		return nil
	}
	if idx.known[raw] {
		return []string{raw}
	}

	candidates := idx.byBase[path.Base(raw)]
	if !strings.Contains(raw, "/") {
		return candidates
	}
	out := make([]string, 0, 1)
	for _, candidate := range candidates {
		if strings.HasSuffix(raw, "/"+candidate) {
			out = append(out, candidate)
		}
	}
	return out
}
