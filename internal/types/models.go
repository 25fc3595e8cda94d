// internal/types/models.go
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

var ErrNotFound = errors.New("not found")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ChatMessage is one turn of a conversation. Build it with NewChatMessage or
// one of the role helpers; the value is never modified afterwards.
type ChatMessage struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewChatMessage validates the role and keeps only scalar metadata values.
func NewChatMessage(role Role, content string, at time.Time, metadata map[string]any) (ChatMessage, error) {
	if !role.Valid() {
		return ChatMessage{}, fmt.Errorf("invalid role %q", role)
	}
	return ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: at.UTC(),
		Metadata:  scalarMetadata(metadata),
	}, nil
}

func UserMessage(content string, metadata map[string]any) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content, Timestamp: time.Now().UTC(), Metadata: scalarMetadata(metadata)}
}

func AssistantMessage(content string, metadata map[string]any) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content, Timestamp: time.Now().UTC(), Metadata: scalarMetadata(metadata)}
}

func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content, Timestamp: time.Now().UTC()}
}

func scalarMetadata(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch v.(type) {
		case string, bool, int, int32, int64, float32, float64, json.Number, nil:
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Session identifies a conversation actor.
type Session struct {
	Token        SessionToken  `json:"session_token"`
	UserID       UserID        `json:"user_id"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActiveAt time.Time     `json:"last_active_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
	TTL          time.Duration `json:"ttl"`
	Persistent   bool          `json:"persistent"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Remaining returns the time left before expiry, zero once expired.
func (s *Session) Remaining(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// SessionMemory is the short-lived conversational state of one session.
type SessionMemory struct {
	SessionToken SessionToken      `json:"session_token"`
	Messages     []ChatMessage     `json:"messages"`
	Context      map[string]string `json:"context"`
}

func EmptySessionMemory(token SessionToken) SessionMemory {
	return SessionMemory{SessionToken: token, Context: map[string]string{}}
}

// WithMessages returns a copy with msgs appended.
func (m SessionMemory) WithMessages(msgs ...ChatMessage) SessionMemory {
	m.Messages = append(slices.Clone(m.Messages), msgs...)
	m.Context = maps.Clone(m.Context)
	return m
}

// WithContext returns a copy with key set to value.
func (m SessionMemory) WithContext(key, value string) SessionMemory {
	ctx := maps.Clone(m.Context)
	if ctx == nil {
		ctx = make(map[string]string)
	}
	ctx[key] = value
	m.Context = ctx
	m.Messages = slices.Clone(m.Messages)
	return m
}

// Bounded evicts the oldest messages until at most maxMessages remain and
// the JSON encoding fits in maxBytes. Non-positive limits are ignored.
func (m SessionMemory) Bounded(maxMessages, maxBytes int) SessionMemory {
	msgs := slices.Clone(m.Messages)
	if maxMessages > 0 && len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}
	m.Messages = msgs
	if maxBytes <= 0 {
		return m
	}
	for len(m.Messages) > 0 && m.Size() > maxBytes {
		m.Messages = m.Messages[1:]
	}
	return m
}

// Size is the length of the JSON encoding.
func (m SessionMemory) Size() int {
	data, err := json.Marshal(m)
	if err != nil {
		return 0
	}
	return len(data)
}

// MemoryEntry is a durable fact about a user.
type MemoryEntry struct {
	ID            EntryID         `json:"id"`
	UserID        UserID          `json:"user_id"`
	Category      string          `json:"category"`
	Key           string          `json:"key,omitempty"`
	Content       string          `json:"content"`
	Data          json.RawMessage `json:"data,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	SourceSession SessionToken    `json:"source_session,omitempty"`
}

const (
	CategoryFact         = "fact"
	CategoryConversation = "conversation"
	CategoryNote         = "note"
)
