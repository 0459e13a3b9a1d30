// Package sha256 derives stable identifiers from listing content.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// idLength is the number of hex characters kept by ID.
const idLength = 16

// Hasher digests content with SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ID returns prefix followed by a short digest of parts. Parts are normalized
// for case and surrounding space, so cosmetic changes upstream keep the id.
func (h *Hasher) ID(prefix string, parts ...string) string {
	norm := make([]string, len(parts))
	for i, p := range parts {
		norm[i] = strings.ToLower(strings.TrimSpace(p))
	}
	digest, _ := h.Hash([]byte(strings.Join(norm, "\x1f")))
	return prefix + digest[:idLength]
}
