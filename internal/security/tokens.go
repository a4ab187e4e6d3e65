package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// CSRFTokenLen is the byte length of CSRF tokens before hex encoding.
const CSRFTokenLen = 32

// sessionTokenLen is the byte length of session tokens before hex encoding.
const sessionTokenLen = 32

// NewSessionToken generates an opaque session token for the cookie value.
func NewSessionToken() (string, error) {
	return randomHex(sessionTokenLen)
}

// NewCSRFToken generates a CSRF token. Hex-encoded, fixed length.
func NewCSRFToken() (string, error) {
	return randomHex(CSRFTokenLen)
}

// HashSessionToken computes the storage key for a session token. Sessions are
// looked up by digest so a database leak does not expose usable cookies.
func HashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// APIKeyFingerprint computes the lookup fingerprint for an API key secret,
// using the same digest applied at key issuance.
func APIKeyFingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// TokensEqual compares two tokens in constant time.
func TokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
