// internal/types/ids_test.go
package types

import (
	"testing"
)

func TestNewSessionToken(t *testing.T) {
	token := NewSessionToken()
	if token == "" {
		t.Error("expected non-empty SessionToken")
	}
	if len(string(token)) != 36 {
		t.Errorf("expected UUID format, got %s", token)
	}
	if NewSessionToken() == token {
		t.Error("expected distinct tokens")
	}
}

func TestSessionMemoryKeyFormat(t *testing.T) {
	key := SessionMemoryKey("abc")
	if key != "session:abc" {
		t.Errorf("expected session:abc, got %s", key)
	}
}
