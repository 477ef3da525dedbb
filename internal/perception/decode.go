package perception

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decode returns content as UTF-8, falling back to Latin-1 for invalid input.
func decode(data []byte) ([]byte, bool, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, false, nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return nil, false, fmt.Errorf("latin-1 fallback: %w", err)
	}
	return out, true, nil
}

// ReadContent reads a file below root and decodes it the way Scan does.
func ReadContent(root, relPath string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, err
	}
	content, _, err := decode(raw)
	if err != nil {
		return nil, err
	}
	return content, nil
}
