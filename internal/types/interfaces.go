// internal/types/interfaces.go
package types

import (
	"context"
	"time"
)

// SessionStore is the durable session table. Get returns ErrNotFound for
// unknown tokens.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, token SessionToken) (*Session, error)
	TouchSession(ctx context.Context, token SessionToken, lastActive, expiresAt time.Time) error
	DeleteSession(ctx context.Context, token SessionToken) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// MemoryStore is the durable long-term memory table. PutMemory replaces an
// entry with the same (user, category, key) when key is non-empty.
type MemoryStore interface {
	PutMemory(ctx context.Context, entry *MemoryEntry) error
	ListMemories(ctx context.Context, userID UserID) ([]*MemoryEntry, error)
	PurgeMemories(ctx context.Context, userID UserID) (int64, error)
}

// KVStore is the ephemeral key-value store. Get returns ErrNotFound on a miss.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Pinger
}

// Pinger reports reachability of a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}
