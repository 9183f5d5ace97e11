package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
)

// generateSecret returns a fresh 32-byte random secret as hex. Used for
// refresh token secrets and per-token JWT signing keys.
func generateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand read failures are unrecoverable on every supported
		// platform.
		panic(err)
	}
	return hex.EncodeToString(b)
}

// secretsEqual compares two token secrets in constant time. Presenting a
// wrong secret must take the same time regardless of where it first differs.
func secretsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
