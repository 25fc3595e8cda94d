// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type SessionToken string
type UserID string
type EntryID string
type RunID string

func NewSessionToken() SessionToken {
	return SessionToken(uuid.New().String())
}

func NewUserID() UserID {
	return UserID(uuid.New().String())
}

func NewEntryID() EntryID {
	return EntryID(uuid.New().String())
}

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// SessionMemoryKey is the ephemeral store key holding a session's memory.
func SessionMemoryKey(token SessionToken) string {
	return NewKey("session", string(token))
}

func NewKey(parts ...string) string {
	return strings.Join(parts, ":")
}
