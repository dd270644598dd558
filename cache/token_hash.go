package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken hashes a bearer secret such as an authorization code. Stores key
// entries by the hash so the raw value never shows up in a key listing.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
