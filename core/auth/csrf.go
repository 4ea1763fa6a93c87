package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
)

const csrfTokenBytes = 32

// NewCSRFToken returns 32 random bytes, hex encoded.
func NewCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CompareTokens compares two tokens in constant time. Empty tokens never match.
func CompareTokens(token, expected string) bool {
	if token == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}
