package util

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomToken returns n random bytes hex encoded. Used for oauth state and
// session keys, so n should be at least 16.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
