package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFile holds project-local ignore rules in gitignore syntax.
const IgnoreFile = ".distillignore"

func resolveRoot(args []string) (string, error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	rootPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %q: %w", path, err)
	}
	return rootPath, nil
}

func LoadIgnoreRules(rootPath string) ([]string, error) {
	ignorePath := filepath.Join(rootPath, IgnoreFile)
	f, err := os.Open(ignorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", IgnoreFile, err)
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
		return nil, fmt.Errorf("failed to parse %s: %w", IgnoreFile, err)
	}

	return rules, nil
}

// resolveUnder returns path joined onto root unless it is already absolute.
func resolveUnder(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
