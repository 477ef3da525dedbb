package oracle

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// MinConfigKeyLength is the shortest key that links a config file to code.
const MinConfigKeyLength = 3

// IsConfigLinkable reports whether keys can be extracted from the file at p.
func IsConfigLinkable(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".json", ".yaml", ".yml", ".toml":
		return true
	}
	return false
}

// ConfigKeys returns the sorted, distinct leaf keys of a JSON, YAML or TOML document.
func ConfigKeys(p string, content []byte) ([]string, error) {
	var doc any
	var err error
	switch strings.ToLower(path.Ext(p)) {
	case ".json":
		err = json.Unmarshal(content, &doc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &doc)
	case ".toml":
		err = toml.Unmarshal(content, &doc)
	default:
		return nil, fmt.Errorf("unsupported config format %q", path.Ext(p))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", p, err)
	}

	keys := make(map[string]bool)
	collectLeafKeys(doc, keys)
	out := make([]string, 0, len(keys))
	for key := range keys {
		if len(key) >= MinConfigKeyLength {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

func collectLeafKeys(value any, keys map[string]bool) {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			if isContainer(child) {
				collectLeafKeys(child, keys)
				continue
			}
			keys[key] = true
		}
	case map[any]any:
		for key, child := range v {
			if isContainer(child) {
				collectLeafKeys(child, keys)
				continue
			}
			keys[fmt.Sprint(key)] = true
		}
	case []any:
		for _, child := range v {
			collectLeafKeys(child, keys)
		}
	}
}

// isContainer reports whether value holds nested keys. Lists of scalars are leaves.
func isContainer(value any) bool {
	switch v := value.(type) {
	case map[string]any, map[any]any:
		return true
	case []any:
		for _, child := range v {
			if isContainer(child) {
				return true
			}
		}
	}
	return false
}

// containsWord reports whether key occurs in text delimited by non-identifier bytes.
func containsWord(text, key string) bool {
	for offset := 0; ; {
		idx := strings.Index(text[offset:], key)
		if idx == -1 {
			return false
		}
		start := offset + idx
		end := start + len(key)
		if (start == 0 || !isIdentByte(text[start-1])) && (end == len(text) || !isIdentByte(text[end])) {
			return true
		}
		offset = start + 1
	}
}

func isIdentByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
