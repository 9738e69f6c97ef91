package utils

import (
	"encoding/base64"
	"testing"
)

func TestGenerateSessionID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateSessionID()
		if len(id) != 44 {
			t.Fatalf("len(%q) = %d, want 44", id, len(id))
		}
		raw, err := base64.URLEncoding.DecodeString(id)
		if err != nil || len(raw) != SessionIDBytes {
			t.Fatalf("id %q does not decode to %d bytes: %v", id, SessionIDBytes, err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
