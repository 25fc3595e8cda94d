// Package memory manages the two memory tiers: bounded per-session
// conversation memory in the ephemeral store and long-term entries in the
// durable store.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/axiomos/internal/gateway"
	"github.com/user/axiomos/internal/types"
)

var ErrLongTermUnavailable = errors.New("long-term memory unavailable")

const (
	DefaultMaxMessages = 20
	DefaultMaxBytes    = 32 * 1024
)

type Options struct {
	MaxMessages int
	MaxBytes    int
	Retry       *gateway.RetryPolicy
}

// Loaded is the memory visible to one turn. LongTermOK is false when
// long-term entries could not be read.
type Loaded struct {
	Session    types.SessionMemory
	LongTerm   []types.MemoryEntry
	Health     types.Health
	LongTermOK bool
}

type Manager struct {
	kv      types.KVStore
	durable types.MemoryStore
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// NewManager wires the ephemeral store kv and the durable store. durable may
// be nil; long-term operations then fail with ErrLongTermUnavailable.
func NewManager(kv types.KVStore, durable types.MemoryStore, opts Options, logger *slog.Logger) *Manager {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Retry == nil {
		opts.Retry = gateway.DefaultRetryPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{kv: kv, durable: durable, opts: opts, logger: logger, now: time.Now}
}

// LoadAll reads session memory and the user's long-term entries. Read
// failures degrade to empty memory.
func (m *Manager) LoadAll(ctx context.Context, sess *types.Session) Loaded {
	out := Loaded{Health: types.Healthy}

	mem, err := m.LoadSession(ctx, sess.Token)
	if err != nil {
		m.logger.Warn("session memory unavailable", "session", sess.Token, "error", err)
		mem = types.EmptySessionMemory(sess.Token)
		out.Health = types.Degraded
	}
	out.Session = mem

	if m.durable == nil {
		out.Health = types.Degraded
		return out
	}
	entries, err := m.ListLongTerm(ctx, sess.UserID)
	if err != nil {
		m.logger.Warn("long-term memory unavailable", "user_id", sess.UserID, "error", err)
		out.Health = types.Degraded
		return out
	}
	out.LongTerm = entries
	out.LongTermOK = true
	return out
}

// LoadSession returns the session's memory; a miss is empty memory.
func (m *Manager) LoadSession(ctx context.Context, token types.SessionToken) (types.SessionMemory, error) {
	data, err := m.kv.Get(ctx, types.SessionMemoryKey(token))
	if errors.Is(err, types.ErrNotFound) {
		return types.EmptySessionMemory(token), nil
	}
	if err != nil {
		return types.SessionMemory{}, fmt.Errorf("load session memory: %w", err)
	}
	mem, err := decodeSession(token, data)
	if err != nil {
		return types.SessionMemory{}, err
	}
	return mem.Bounded(m.opts.MaxMessages, m.opts.MaxBytes), nil
}

// SaveSession writes mem, evicting the oldest messages past the bounds. The
// key expires with the session.
func (m *Manager) SaveSession(ctx context.Context, sess *types.Session, mem types.SessionMemory) types.Health {
	ttl := sess.Remaining(m.now())
	if ttl <= 0 {
		m.logger.Debug("session expired, memory not saved", "session", sess.Token)
		return types.Healthy
	}

	mem.SessionToken = sess.Token
	data, err := encodeSession(mem.Bounded(m.opts.MaxMessages, m.opts.MaxBytes))
	if err != nil {
		m.logger.Error("encode session memory", "session", sess.Token, "error", err)
		return types.Degraded
	}
	if err := m.kv.Set(ctx, types.SessionMemoryKey(sess.Token), data, ttl); err != nil {
		m.logger.Warn("session memory write failed", "session", sess.Token, "error", err)
		return types.Degraded
	}
	return types.Healthy
}

func (m *Manager) ClearSession(ctx context.Context, token types.SessionToken) types.Health {
	if err := m.kv.Delete(ctx, types.SessionMemoryKey(token)); err != nil {
		m.logger.Warn("session memory clear failed", "session", token, "error", err)
		return types.Degraded
	}
	return types.Healthy
}

// LongTermAvailable reports whether a durable store is configured.
func (m *Manager) LongTermAvailable() bool { return m.durable != nil }

// SaveLongTerm durably stores entry, retrying transient failures. It
// returns the stored entry with ID and CreatedAt filled in.
func (m *Manager) SaveLongTerm(ctx context.Context, entry types.MemoryEntry) (types.MemoryEntry, error) {
	if m.durable == nil {
		return types.MemoryEntry{}, ErrLongTermUnavailable
	}
	entry.Content = strings.TrimSpace(entry.Content)
	if entry.UserID == "" || entry.Content == "" {
		return types.MemoryEntry{}, fmt.Errorf("save long-term memory: empty user id or content")
	}
	if len(entry.Data) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, entry.Data); err != nil {
			return types.MemoryEntry{}, fmt.Errorf("save long-term memory: invalid data: %w", err)
		}
		entry.Data = buf.Bytes()
	}
	if entry.ID == "" {
		entry.ID = types.NewEntryID()
	}
	if entry.Category == "" {
		entry.Category = types.CategoryFact
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now().UTC()
	}

	err := m.opts.Retry.Execute(ctx, func(ctx context.Context) error {
		attempt := entry
		return m.durable.PutMemory(ctx, &attempt)
	})
	if err != nil {
		m.logger.Error("long-term memory write failed", "user_id", entry.UserID, "error", err)
		return types.MemoryEntry{}, fmt.Errorf("%w: %w", ErrLongTermUnavailable, err)
	}
	m.logger.Info("long-term memory saved", "user_id", entry.UserID, "category", entry.Category, "id", entry.ID)
	return entry, nil
}

func (m *Manager) ListLongTerm(ctx context.Context, userID types.UserID) ([]types.MemoryEntry, error) {
	if m.durable == nil {
		return nil, ErrLongTermUnavailable
	}
	ptrs, err := m.durable.ListMemories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLongTermUnavailable, err)
	}
	entries := make([]types.MemoryEntry, 0, len(ptrs))
	for _, e := range ptrs {
		entries = append(entries, *e)
	}
	return entries, nil
}

func (m *Manager) PurgeLongTerm(ctx context.Context, userID types.UserID) (int64, error) {
	if m.durable == nil {
		return 0, ErrLongTermUnavailable
	}
	n, err := m.durable.PurgeMemories(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrLongTermUnavailable, err)
	}
	m.logger.Info("long-term memory purged", "user_id", userID, "count", n)
	return n, nil
}
