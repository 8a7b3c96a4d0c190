// Package filehash computes the content hash the catalog uses to identify
// resources.
package filehash

import (
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/poiesic/archivist/core"
)

// Sum returns the SHA-512 of everything read from r, encoded as URL-safe
// base64 without padding.
func Sum(r io.Reader) (string, error) {
	h := sha512.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

// HashFile streams the file at path through Sum.
func HashFile(path string) (core.HashResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.HashResult{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	hash, err := Sum(f)
	if err != nil {
		return core.HashResult{}, fmt.Errorf("hash %s: %w", path, err)
	}
	return core.HashResult{Hash: hash, Path: path}, nil
}
