package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// KeyPrefix is the fixed textual prefix of every generated API key
	KeyPrefix = "mgk_"

	// keyRandomBytes is the number of random bytes in a key; hex-encoded
	// this doubles, so total key length is len(KeyPrefix) + 2*keyRandomBytes
	keyRandomBytes = 32

	// KeyLength is the exact length of a well-formed API key
	KeyLength = len(KeyPrefix) + 2*keyRandomBytes
)

// GenerateKey creates a new API key. It returns the plaintext key (shown to
// the caller exactly once) and its SHA-256 hash (the only form persisted).
func GenerateKey() (plaintext, hash string, err error) {
	buf := make([]byte, keyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate key material: %w", err)
	}

	plaintext = KeyPrefix + hex.EncodeToString(buf)
	return plaintext, HashKey(plaintext), nil
}

// HashKey returns the hex-encoded SHA-256 digest of a plaintext key
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// ValidFormat reports whether a presented key has the expected prefix and
// length. It is checked before any store lookup so malformed input is
// rejected without touching the database.
func ValidFormat(key string) bool {
	return len(key) == KeyLength && strings.HasPrefix(key, KeyPrefix)
}

// DisplayPrefix returns the identifying prefix of a key safe to store and
// show in listings (the fixed prefix plus the first 8 hex characters).
func DisplayPrefix(plaintext string) string {
	if len(plaintext) < len(KeyPrefix)+8 {
		return plaintext
	}
	return plaintext[:len(KeyPrefix)+8]
}
