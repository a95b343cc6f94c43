package shop

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	// KeyLength is the length of an order confirmation key.
	KeyLength   = 8
	keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewConfirmationKey returns KeyLength random uppercase alphanumeric characters.
// Bytes at or above the largest multiple of the alphabet size are dropped so every
// character is equally likely.
func NewConfirmationKey() (string, error) {
	limit := 256 - 256%len(keyAlphabet)
	out := make([]byte, 0, KeyLength)
	buf := make([]byte, 2*KeyLength)
	for len(out) < KeyLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, keyAlphabet[int(b)%len(keyAlphabet)])
			if len(out) == KeyLength {
				break
			}
		}
	}
	return string(out), nil
}

// NormalizeKey upper-cases and trims a key typed by a user.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// ValidKey reports whether key has the confirmation key shape.
func ValidKey(key string) bool {
	if len(key) != KeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		if !strings.ContainsRune(keyAlphabet, rune(key[i])) {
			return false
		}
	}
	return true
}
