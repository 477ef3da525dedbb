package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar"
)

// FileName is the per-project ignore file read from the scan root.
const FileName = ".distillignore"

type rule struct {
	pattern  string
	negated  bool
	dirOnly  bool
	anchored bool
}

// Matcher applies gitignore-like rules with "last rule wins" behavior.
type Matcher struct {
	rules []rule
}

// DefaultRules are prepended to every matcher and can be overridden by negation.
var DefaultRules = []string{
	".git/",
	".hg/",
	".svn/",
	".distill/",
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"target/",
	"__pycache__/",
	".venv/",
	".idea/",
	".vscode/",
	".DS_Store",
}

// NewMatcher builds a matcher from user-provided .distillignore lines and config globs.
func NewMatcher(userRules []string) *Matcher {
	all := make([]string, 0, len(DefaultRules)+len(userRules))
	all = append(all, DefaultRules...)
	all = append(all, userRules...)

	rules := make([]rule, 0, len(all))
	for _, line := range all {
		if parsed, ok := parseRule(line); ok {
			rules = append(rules, parsed)
		}
	}

	return &Matcher{rules: rules}
}

// ShouldIgnore returns true when relPath should be excluded.
func (m *Matcher) ShouldIgnore(relPath string, isDir bool) bool {
	relPath = normalizePath(relPath)
	if relPath == "" || relPath == "." {
		return false
	}
	ignored := false
	for _, rule := range m.rules {
		if ruleMatches(rule, relPath, isDir) {
			ignored = !rule.negated
		}
	}
	return ignored
}

// LoadRules reads .distillignore from rootPath. A missing file yields no rules.
func LoadRules(rootPath string) ([]string, error) {
	f, err := os.Open(filepath.Join(rootPath, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}
	defer f.Close()

	rules := make([]string, 0)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	return rules, nil
}

func parseRule(line string) (rule, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}

	parsed := rule{}
	if strings.HasPrefix(line, "!") {
		parsed.negated = true
		line = strings.TrimPrefix(line, "!")
	}
	if strings.HasPrefix(line, "/") {
		parsed.anchored = true
		line = strings.TrimPrefix(line, "/")
	}
	if strings.HasSuffix(line, "/") {
		parsed.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}

	line = normalizePath(line)
	if line == "" {
		return rule{}, false
	}
	parsed.pattern = line
	return parsed, true
}

func ruleMatches(rule rule, relPath string, isDir bool) bool {
	if rule.dirOnly {
		if matchDirectoryPattern(rule, relPath) {
			return true
		}
		return isDir && matchPathPattern(rule.pattern, path.Base(relPath))
	}

	if rule.anchored {
		return matchPathPattern(rule.pattern, relPath)
	}

	if strings.Contains(rule.pattern, "/") {
		if matchPathPattern(rule.pattern, relPath) {
			return true
		}
		parts := strings.Split(relPath, "/")
		for i := 1; i < len(parts); i++ {
			if matchPathPattern(rule.pattern, strings.Join(parts[i:], "/")) {
				return true
			}
		}
		return false
	}

	for _, segment := range strings.Split(relPath, "/") {
		if matchPathPattern(rule.pattern, segment) {
			return true
		}
	}
	return false
}

func matchDirectoryPattern(rule rule, relPath string) bool {
	if relPath == rule.pattern || strings.HasPrefix(relPath, rule.pattern+"/") {
		return true
	}
	if rule.anchored {
		return false
	}

	parts := strings.Split(relPath, "/")
	for i := range parts {
		// every directory component, not just the first
		if i < len(parts)-1 && matchPathPattern(rule.pattern, parts[i]) {
			return true
		}
	}
	return false
}

func matchPathPattern(pattern, value string) bool {
	ok, err := doublestar.Match(pattern, value)
	return err == nil && ok
}

func normalizePath(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return p
}
