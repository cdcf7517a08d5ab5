// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// KeyLen is the truncated hex length used for entity keys.
const KeyLen = 16

// Hasher computes SHA-256 hex digests.
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

// Key returns a truncated digest suitable as a deterministic entity key.
func (h *Hasher) Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:KeyLen]
}
