package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// HashBytes returns the hex sha256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ShortHash truncates a hex digest to n characters.
func ShortHash(hash string, n int) string {
	if len(hash) <= n {
		return hash
	}
	return hash[:n]
}
