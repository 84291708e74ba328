// Package token generates and verifies the opaque edit tokens that gate
// claim mutations.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"
)

const secretBytes = 32

// New returns a fresh edit token: 32 bytes from crypto/rand, hex encoded.
// Token generation must never fail silently, so an unreadable entropy source
// panics rather than handing out predictable secrets.
func New() string {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		panic("token: entropy source unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// Verify compares a supplied token against the stored one in constant time.
func Verify(stored, supplied string) bool {
	if stored == "" || supplied == "" {
		return false
	}
	return hmac.Equal([]byte(stored), []byte(supplied))
}
