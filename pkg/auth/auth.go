// Package auth derives and verifies the tunnel's shared bearer token.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
)

// TokenSize is the fixed length of an AuthToken in bytes.
const TokenSize = sha256.Size

// Token is a 32-byte shared secret derived from the operator's pre-shared
// key. It is identical on both endpoints and never rotates.
type Token [TokenSize]byte

// Derive computes the AuthToken for a pre-shared key: the SHA-256 digest of
// its UTF-8 bytes. Deterministic and side-effect-free.
func Derive(key string) Token {
	return Token(sha256.Sum256([]byte(key)))
}

// Verify reports whether got matches want using a constant-time comparison,
// so a timing side-channel cannot leak how many leading bytes matched.
func Verify(got, want Token) bool {
	return subtle.ConstantTimeCompare(got[:], want[:]) == 1
}
