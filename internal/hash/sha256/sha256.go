// Package sha256 digests export artifacts.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements harvest.Hasher using SHA-256.
type Hasher struct {
	// Length truncates the hex digest when positive.
	Length int
}

// New returns a hasher producing full hex digests.
func New() *Hasher {
	return &Hasher{}
}

// NewShort returns a hasher producing the first n hex characters.
func NewShort(n int) *Hasher {
	return &Hasher{Length: n}
}

// Hash returns the hex digest of data, truncated to Length when set.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if h.Length > 0 && h.Length < len(digest) {
		digest = digest[:h.Length]
	}
	return digest, nil
}
