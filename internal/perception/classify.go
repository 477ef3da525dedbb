package perception

import (
	"bytes"
	"path"
	"regexp"
	"strings"

	"github.com/skelly-dev/distill/internal/parser"
	"github.com/skelly-dev/distill/internal/record"
)

var binaryExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true, ".webp": true,
	".pdf": true, ".zip": true, ".gz": true, ".tgz": true, ".tar": true, ".bz2": true, ".xz": true, ".7z": true,
	".so": true, ".dylib": true, ".dll": true, ".exe": true, ".bin": true, ".o": true, ".a": true,
	".class": true, ".jar": true, ".pyc": true, ".wasm": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	".mp3": true, ".mp4": true, ".mov": true, ".wav": true, ".ogg": true,
	".sqlite": true, ".db": true,
}

var noiseExts = map[string]bool{
	".map":  true,
	".log":  true,
	".snap": true,
	".tmp":  true,
	".swp":  true,
}

var docExts = map[string]bool{
	".md":       true,
	".markdown": true,
	".mdx":      true,
	".rst":      true,
	".adoc":     true,
	".txt":      true,
}

var configLanguages = map[string]string{
	".json":       "json",
	".yaml":       "yaml",
	".yml":        "yaml",
	".toml":       "toml",
	".ini":        "ini",
	".cfg":        "ini",
	".conf":       "ini",
	".env":        "dotenv",
	".xml":        "xml",
	".properties": "properties",
	".mod":        "gomod",
	".sum":        "gosum",
	".lock":       "lock",
}

var (
	goMainPackage = regexp.MustCompile(`(?m)^package main\b`)
	generatedMark = regexp.MustCompile(`(?i)(code generated .* do not edit|@generated|auto-generated)`)
)

// classification is the outcome of looking at a file's name and header.
type classification struct {
	category record.Category
	language string
	parse    bool // a registered parser should see the full content
}

// classify inspects name, extension, shebang and header bytes.
func classify(registry *parser.Registry, relPath string, header []byte) classification {
	base := path.Base(relPath)
	lowerBase := strings.ToLower(base)
	ext := strings.ToLower(path.Ext(base))

	switch {
	case record.IsLockfileName(base):
		return classification{category: record.CategoryLock, language: "lock"}
	case binaryExts[ext] || bytes.IndexByte(header, 0) != -1:
		return classification{category: record.CategoryBinary, language: "binary"}
	case noiseExts[ext] || strings.HasSuffix(lowerBase, ".min.js") || strings.HasSuffix(lowerBase, ".min.css"):
		return classification{category: record.CategoryNoise, language: "noise"}
	}

	if record.IsManifestName(base) {
		lang := configLanguages[ext]
		if lang == "" {
			lang = strings.ToLower(strings.TrimSuffix(base, ext))
		}
		return classification{category: record.CategoryConfig, language: lang}
	}

	var (
		p        parser.LanguageParser
		detected bool
	)
	if registry != nil {
		p, _, detected = registry.Detect(relPath, header)
	}

	if docExts[ext] || record.IsReadme(base) {
		c := classification{category: record.CategoryDoc, language: "text"}
		if detected {
			c.language = p.Language()
			c.parse = true
		} else if ext == ".md" || ext == ".markdown" {
			c.language = "markdown"
		}
		return c
	}
	if detected {
		return classification{category: record.CategoryCode, language: p.Language(), parse: true}
	}
	if lang, ok := configLanguages[ext]; ok {
		return classification{category: record.CategoryConfig, language: lang}
	}
	return classification{category: record.CategoryText, language: "text"}
}

// semanticTags derives tags from the path and content.
func semanticTags(relPath string, language string, content []byte) []string {
	base := path.Base(relPath)
	tags := make([]string, 0, 2)
	if record.IsTestPath(relPath) {
		tags = append(tags, record.TagTest)
	}
	if record.IsEntryPointName(base) || (base == "main.go" && language == "go" && goMainPackage.Match(content)) {
		tags = append(tags, record.TagEntryPoint)
	}
	if record.IsManifestName(base) {
		tags = append(tags, record.TagManifest)
	}
	head := content
	if len(head) > 1024 {
		head = head[:1024]
	}
	if generatedMark.Match(head) {
		tags = append(tags, record.TagGenerated)
	}
	return tags
}
