package engine

import (
	"crypto/rand"
	"encoding/base64"
)

// newOpaqueToken returns a URL-safe random credential with 256 bits of
// entropy. Used for authorization codes, refresh tokens and client
// secrets.
func newOpaqueToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
