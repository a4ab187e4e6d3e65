// Package security provides the cryptographic primitives used by the
// pipeline: password hashing, API-key fingerprints, and opaque token
// generation for sessions and CSRF pairs.
//
// Purpose:
//
//	Credential material never reaches storage in plaintext. Passwords and
//	service-account client secrets are Argon2id hashes; API keys and session
//	tokens are stored as digests of the secret.
//
// Dependencies:
//   - golang.org/x/crypto/argon2: Password hashing
//
// Error Handling:
//   - Verify functions return (false, nil) for mismatches and reserve the
//     error return for malformed stored hashes
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32
	saltLen             = 16
)

// HashSecret derives an Argon2id hash from a plaintext secret (password or
// service-account client secret).
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf("argon2id$v=19$t=%d$m=%d$p=%d$%s$%s",
		argonTime,
		argonMemory,
		argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
	return encoded, nil
}

// VerifySecret compares a plaintext secret with a stored Argon2id hash.
func VerifySecret(secret, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 7 {
		return false, errors.New("parse argon hash: unexpected format")
	}
	if parts[0] != "argon2id" {
		return false, errors.New("parse argon hash: invalid algorithm")
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[1], "v="))
	if err != nil {
		return false, fmt.Errorf("parse argon hash version: %w", err)
	}
	if version != 19 {
		return false, fmt.Errorf("parse argon hash: unsupported version %d", version)
	}
	timeCost64, err := strconv.ParseUint(strings.TrimPrefix(parts[2], "t="), 10, 32)
	if err != nil {
		return false, fmt.Errorf("parse argon hash time: %w", err)
	}
	memCost64, err := strconv.ParseUint(strings.TrimPrefix(parts[3], "m="), 10, 32)
	if err != nil {
		return false, fmt.Errorf("parse argon hash memory: %w", err)
	}
	threadCost64, err := strconv.ParseUint(strings.TrimPrefix(parts[4], "p="), 10, 8)
	if err != nil {
		return false, fmt.Errorf("parse argon hash threads: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[6])
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}

	computed := argon2.IDKey([]byte(secret), salt,
		uint32(timeCost64), uint32(memCost64), uint8(threadCost64), uint32(len(expected)))

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
