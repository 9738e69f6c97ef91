package utils

import (
	"crypto/rand"
	"encoding/base64"
)

// SessionIDBytes is the entropy of a browser session id.
const SessionIDBytes = 32

// GenerateSessionID generates a secure random session ID: SessionIDBytes
// random bytes, base64url encoded with padding (44 characters).
func GenerateSessionID() string {
	bytes := make([]byte, SessionIDBytes)
	if _, err := rand.Read(bytes); err != nil {
		// If random read fails, return an empty string for safety
		return ""
	}
	return base64.URLEncoding.EncodeToString(bytes)
}
