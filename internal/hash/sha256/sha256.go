// Package sha256 fingerprints exported URL sets.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// Hasher computes hex SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashLines digests lines joined by "\n", each line terminated, without
// building the joined buffer.
func (h *Hasher) HashLines(lines []string) (string, error) {
	digest := sha256.New()
	for _, line := range lines {
		if _, err := io.WriteString(digest, line+"\n"); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
