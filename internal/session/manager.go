// Package session issues, validates and expires session tokens.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/axiomos/internal/types"
)

const DefaultTTL = time.Hour

// Result is the outcome of AuthenticateOrCreate.
type Result struct {
	Session *types.Session
	Health  types.Health
	Created bool
}

// Manager owns session records. Store may be nil, in which case every
// session lives in the in-process fallback.
type Manager struct {
	store  types.SessionStore
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	fallback map[types.SessionToken]*types.Session
}

func NewManager(store types.SessionStore, ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		fallback: make(map[types.SessionToken]*types.Session),
	}
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// AuthenticateOrCreate resolves token to a live session and extends it, or
// mints a new one. It never fails: store errors degrade to an in-process
// session.
func (m *Manager) AuthenticateOrCreate(ctx context.Context, token types.SessionToken, userID types.UserID) Result {
	now := m.now().UTC()
	health := types.Healthy

	if token != "" {
		if sess, ok := m.touchFallback(token, now); ok {
			return Result{Session: sess, Health: types.Degraded}
		}

		if m.store != nil {
			sess, err := m.store.GetSession(ctx, token)
			switch {
			case err == nil && !sess.Expired(now):
				return m.extend(ctx, sess, now)
			case err == nil:
				m.logger.Info("session expired", "session", token, "user_id", sess.UserID)
				if err := m.store.DeleteSession(ctx, token); err != nil {
					m.logger.Warn("delete expired session", "session", token, "error", err)
				}
			case errors.Is(err, types.ErrNotFound):
				m.logger.Debug("unknown session token", "session", token)
			default:
				m.logger.Warn("session lookup failed", "session", token, "error", err)
				health = types.Degraded
			}
		}
	}

	if userID == "" {
		userID = types.NewUserID()
	}
	sess := &types.Session{
		Token:        types.NewSessionToken(),
		UserID:       userID,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(m.ttl),
		TTL:          m.ttl,
	}

	if m.store != nil && health == types.Healthy {
		sess.Persistent = true
		err := m.store.CreateSession(ctx, sess)
		if err == nil {
			m.logger.Info("session created", "session", sess.Token, "user_id", sess.UserID)
			return Result{Session: sess, Health: types.Healthy, Created: true}
		}
		m.logger.Warn("session create failed, using in-process session", "session", sess.Token, "error", err)
		sess.Persistent = false
	}

	m.mu.Lock()
	m.fallback[sess.Token] = sess
	m.mu.Unlock()
	m.logger.Info("session created in process", "session", sess.Token, "user_id", sess.UserID)
	return Result{Session: sess, Health: types.Degraded, Created: true}
}

func (m *Manager) extend(ctx context.Context, sess *types.Session, now time.Time) Result {
	if sess.TTL <= 0 {
		sess.TTL = m.ttl
	}
	sess.LastActiveAt = now
	sess.ExpiresAt = now.Add(sess.TTL)
	if err := m.store.TouchSession(ctx, sess.Token, sess.LastActiveAt, sess.ExpiresAt); err != nil {
		m.logger.Warn("session touch failed", "session", sess.Token, "error", err)
		return Result{Session: sess, Health: types.Degraded}
	}
	return Result{Session: sess, Health: types.Healthy}
}

// touchFallback extends an in-process session. Expired entries are removed.
func (m *Manager) touchFallback(token types.SessionToken, now time.Time) (*types.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.fallback[token]
	if !ok {
		return nil, false
	}
	if sess.Expired(now) {
		delete(m.fallback, token)
		return nil, false
	}
	cp := *sess
	cp.LastActiveAt = now
	cp.ExpiresAt = now.Add(cp.TTL)
	m.fallback[token] = &cp
	out := cp
	return &out, true
}

// Get returns the live session for token without extending it.
func (m *Manager) Get(ctx context.Context, token types.SessionToken) (*types.Session, error) {
	now := m.now().UTC()

	m.mu.Lock()
	if sess, ok := m.fallback[token]; ok {
		m.mu.Unlock()
		if sess.Expired(now) {
			return nil, fmt.Errorf("session %s: %w", token, types.ErrNotFound)
		}
		cp := *sess
		return &cp, nil
	}
	m.mu.Unlock()

	if m.store == nil {
		return nil, fmt.Errorf("session %s: %w", token, types.ErrNotFound)
	}
	sess, err := m.store.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.Expired(now) {
		return nil, fmt.Errorf("session %s: %w", token, types.ErrNotFound)
	}
	return sess, nil
}

func (m *Manager) Validate(ctx context.Context, token types.SessionToken) bool {
	if token == "" {
		return false
	}
	_, err := m.Get(ctx, token)
	return err == nil
}

// Invalidate deletes the session. Unknown tokens are not an error.
func (m *Manager) Invalidate(ctx context.Context, token types.SessionToken) error {
	m.mu.Lock()
	delete(m.fallback, token)
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	if err := m.store.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	m.logger.Info("session invalidated", "session", token)
	return nil
}

// Sweep removes expired sessions from the durable store and the fallback.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	now := m.now().UTC()

	m.mu.Lock()
	n := 0
	for token, sess := range m.fallback {
		if sess.Expired(now) {
			delete(m.fallback, token)
			n++
		}
	}
	m.mu.Unlock()

	if m.store == nil {
		return n, nil
	}
	deleted, err := m.store.DeleteExpiredSessions(ctx, now)
	if err != nil {
		return n, fmt.Errorf("sweep sessions: %w", err)
	}
	return n + int(deleted), nil
}
