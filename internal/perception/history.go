package perception

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/skelly-dev/distill/internal/record"
)

const (
	// maxHistoryCommits bounds the single git log pass.
	maxHistoryCommits = 2000
	// maxCoChangeFiles skips sweeping commits (renames, formatting) when pairing files.
	maxCoChangeFiles = 50

	recordSep = "\x1e"
	fieldSep  = "\x1f"
)

// HistoryProvider answers per-file version-control questions.
type HistoryProvider interface {
	History(path string) record.History
}

// CoChangeSource is implemented by providers that also know which files change together.
type CoChangeSource interface {
	CoChanges() map[[2]string]int
}

// NoHistory reports every file as untracked.
type NoHistory struct{}

func (NoHistory) History(string) record.History {
	return record.NoHistory()
}

// GitHistory holds churn, authorship and co-change facts from one git log pass.
type GitHistory struct {
	files    map[string]record.History
	coChange map[[2]string]int
}

// LoadGitHistory runs git log under root. When root is not inside a git work tree
// or git is unavailable, the result reports every file as untracked.
func LoadGitHistory(ctx context.Context, root string, logger *slog.Logger) *GitHistory {
	h := &GitHistory{
		files:    make(map[string]record.History),
		coChange: make(map[[2]string]int),
	}

	if _, err := exec.LookPath("git"); err != nil {
		logger.Debug("git not available, history disabled")
		return h
	}

	args := []string{
		"log",
		"--no-merges",
		"--relative",
		"--name-only",
		"-n", strconv.Itoa(maxHistoryCommits),
		"--format=" + recordSep + "%H" + fieldSep + "%aN" + fieldSep + "%ct",
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = root
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		logger.Debug("git log failed, history disabled", "root", root, "err", strings.TrimSpace(stderr.String()))
		return h
	}

	h.files, h.coChange = parseGitLog(string(output), time.Now())
	logger.Debug("git history loaded", "files", len(h.files), "pairs", len(h.coChange))
	return h
}

func (h *GitHistory) History(path string) record.History {
	if hist, ok := h.files[path]; ok {
		return hist
	}
	return record.NoHistory()
}

func (h *GitHistory) CoChanges() map[[2]string]int {
	return h.coChange
}

type commitInfo struct {
	author string
	when   time.Time
	files  []string
}

// parseGitLog turns the record-separated git log output into per-file history and co-change counts.
func parseGitLog(output string, now time.Time) (map[string]record.History, map[[2]string]int) {
	commits := make([]commitInfo, 0)
	for _, chunk := range strings.Split(output, recordSep) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		lines := strings.Split(chunk, "\n")
		fields := strings.Split(lines[0], fieldSep)
		if len(fields) != 3 {
			continue
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
		if err != nil {
			continue
		}
		c := commitInfo{author: fields[1], when: time.Unix(ts, 0)}
		for _, line := range lines[1:] {
			line = strings.TrimSpace(line)
			if line != "" {
				c.files = append(c.files, filepath.ToSlash(line))
			}
		}
		commits = append(commits, c)
	}

	type accumulator struct {
		churn   int
		authors map[string]bool
		latest  time.Time
	}
	acc := make(map[string]*accumulator)
	coChange := make(map[[2]string]int)

	for _, c := range commits {
		for _, file := range c.files {
			a, ok := acc[file]
			if !ok {
				a = &accumulator{authors: make(map[string]bool)}
				acc[file] = a
			}
			a.churn++
			a.authors[c.author] = true
			if c.when.After(a.latest) {
				a.latest = c.when
			}
		}
		if len(c.files) < 2 || len(c.files) > maxCoChangeFiles {
			continue
		}
		files := append([]string(nil), c.files...)
		sort.Strings(files)
		for i := 0; i < len(files); i++ {
			for j := i + 1; j < len(files); j++ {
				if files[i] == files[j] {
					continue
				}
				coChange[record.PairKey(files[i], files[j])]++
			}
		}
	}

	out := make(map[string]record.History, len(acc))
	for file, a := range acc {
		days := int(now.Sub(a.latest).Hours() / 24)
		if days < 0 {
			days = 0
		}
		out[file] = record.History{
			Churn:           a.churn,
			Authors:         len(a.authors),
			DaysSinceChange: days,
		}
	}
	return out, coChange
}
