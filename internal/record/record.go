// Package record holds the immutable per-file snapshot produced by perception.
package record

import (
	"path"
	"strings"
	"time"

	"github.com/skelly-dev/distill/internal/parser"
)

// Category is the coarse classification of a file.
type Category string

const (
	CategoryCode    Category = "code"
	CategoryDoc     Category = "doc"
	CategoryConfig  Category = "config"
	CategoryLock    Category = "lock"
	CategoryBinary  Category = "binary"
	CategorySymlink Category = "symlink"
	CategoryText    Category = "text"
	CategoryNoise   Category = "noise"
)

// UntrackedDays marks a file with no version-control history.
const UntrackedDays = 9999

// Semantic tags attached by perception.
const (
	TagTest       = "test"
	TagEntryPoint = "entrypoint"
	TagManifest   = "manifest"
	TagGenerated  = "generated"
	TagLarge      = "large"
)

// History holds version-control facts for one file.
type History struct {
	Churn           int `json:"churn"`
	Authors         int `json:"authors"`
	DaysSinceChange int `json:"days_since_change"`
}

// NoHistory is the history of an untracked file.
func NoHistory() History {
	return History{DaysSinceChange: UntrackedDays}
}

// FileRecord is created once by perception and never modified afterwards.
// Scores and tiers live in separate keyed scoreboards.
type FileRecord struct {
	Path           string        `json:"path"` // slash-separated, relative to root
	Size           int64         `json:"size"`
	ModTime        time.Time     `json:"mod_time"`
	Hash           string        `json:"hash,omitempty"`
	Language       string        `json:"language,omitempty"`
	Category       Category      `json:"category"`
	TokenCost      int           `json:"token_cost"`
	Facts          *parser.Facts `json:"facts,omitempty"`
	Tags           []string      `json:"tags,omitempty"`
	History        History       `json:"history"`
	SymlinkTarget  string        `json:"symlink_target,omitempty"`
	Degraded       bool          `json:"degraded,omitempty"`
	DegradedReason string        `json:"degraded_reason,omitempty"`
}

func (r FileRecord) IsCode() bool {
	return r.Category == CategoryCode
}

func (r FileRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Dir returns the slash directory of the record, "." for root files.
func (r FileRecord) Dir() string {
	return path.Dir(r.Path)
}

func (r FileRecord) Base() string {
	return path.Base(r.Path)
}

func (r FileRecord) FunctionCount() int {
	return r.Facts.FunctionCount()
}

func (r FileRecord) ClassCount() int {
	return r.Facts.ClassCount()
}

func (r FileRecord) Complexity() int {
	if r.Facts == nil {
		return 0
	}
	return r.Facts.Complexity
}

func (r FileRecord) Lines() int {
	if r.Facts == nil {
		return 0
	}
	return r.Facts.Lines
}

func (r FileRecord) Imports() []string {
	if r.Facts == nil {
		return nil
	}
	return r.Facts.Imports
}

// IsTest reports whether the record looks like a test file.
func (r FileRecord) IsTest() bool {
	return r.HasTag(TagTest) || IsTestPath(r.Path)
}

// IsDoc reports whether the record is documentation.
func (r FileRecord) IsDoc() bool {
	return r.Category == CategoryDoc
}

// IsLockfile reports whether the record is a dependency lockfile.
func (r FileRecord) IsLockfile() bool {
	return r.Category == CategoryLock || IsLockfileName(r.Base())
}

// IsKeystone reports whether the record is a manifest, top-level document or entry point.
// Lockfiles are keystones too; governance gives them SUMMARY instead of FULL.
func (r FileRecord) IsKeystone() bool {
	if r.HasTag(TagEntryPoint) || r.HasTag(TagManifest) {
		return true
	}
	return IsKeystoneName(r.Base()) || IsLockfileName(r.Base())
}

var manifestNames = map[string]bool{
	"go.mod":           true,
	"package.json":     true,
	"pyproject.toml":   true,
	"Cargo.toml":       true,
	"requirements.txt": true,
	"Gemfile":          true,
	"pom.xml":          true,
	"build.gradle":     true,
	"Makefile":         true,
	"Dockerfile":       true,
	"setup.py":         true,
	"composer.json":    true,
}

var keystoneDocs = map[string]bool{
	"ARCHITECTURE.md": true,
	"CONTRIBUTING.md": true,
	"CONTEXT.md":      true,
}

var lockfileNames = map[string]bool{
	"go.sum":            true,
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"Cargo.lock":        true,
	"poetry.lock":       true,
	"Gemfile.lock":      true,
	"composer.lock":     true,
}

var entryPointNames = map[string]bool{
	"__main__.py": true,
	"main.py":     true,
	"app.py":      true,
	"index.ts":    true,
	"index.js":    true,
}

// IsManifestName reports whether base is a build or dependency manifest.
func IsManifestName(base string) bool {
	return manifestNames[base]
}

// IsKeystoneName reports whether base is always worth showing in full.
func IsKeystoneName(base string) bool {
	return manifestNames[base] || keystoneDocs[base] || IsReadme(base)
}

// IsBoostedDoc reports whether base is a top-level document that earns the keystone boost.
func IsBoostedDoc(base string) bool {
	return base == "README.md" || keystoneDocs[base]
}

func IsReadme(base string) bool {
	return strings.HasPrefix(strings.ToUpper(base), "README")
}

func IsLockfileName(base string) bool {
	return lockfileNames[base]
}

// IsEntryPointName reports whether base is a conventional entry point.
// main.go qualifies only in package main, which the caller checks.
func IsEntryPointName(base string) bool {
	return entryPointNames[base]
}

// IsTestPath reports whether p follows a test naming convention.
func IsTestPath(p string) bool {
	lower := strings.ToLower(p)
	if strings.HasPrefix(lower, "test/") || strings.HasPrefix(lower, "tests/") ||
		strings.Contains(lower, "/test/") || strings.Contains(lower, "/tests/") ||
		strings.Contains(lower, "__tests__/") {
		return true
	}
	base := path.Base(lower)
	switch {
	case strings.HasSuffix(base, "_test.go"),
		strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py"),
		strings.HasSuffix(base, "_test.py"),
		strings.HasSuffix(base, "_spec.rb"),
		strings.HasSuffix(base, "_test.rb"),
		strings.Contains(base, ".test."),
		strings.Contains(base, ".spec."):
		return true
	}
	return false
}

// PairKey orders two paths into a co-change map key.
func PairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}
