package textproc

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentHash returns the SHA-256 hex digest of normalized, lowercased text.
// The same function serves document-level exact-duplicate detection and
// fragment hashing, so the two can never disagree about identity.
func ContentHash(text string) string {
	if text == "" {
		return ""
	}
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
