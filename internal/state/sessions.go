// internal/state/sessions.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/user/axiomos/internal/types"
)

func (s *Store) CreateSession(ctx context.Context, session *types.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, created_at, last_active_at, expires_at, ttl_ns)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(session.Token), string(session.UserID),
		toNanos(session.CreatedAt), toNanos(session.LastActiveAt), toNanos(session.ExpiresAt),
		int64(session.TTL),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, token types.SessionToken) (*types.Session, error) {
	var userID string
	var created, lastActive, expires, ttl int64
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, created_at, last_active_at, expires_at, ttl_ns
		FROM sessions WHERE token = ?`, string(token),
	).Scan(&userID, &created, &lastActive, &expires, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", token, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	return &types.Session{
		Token:        token,
		UserID:       types.UserID(userID),
		CreatedAt:    fromNanos(created),
		LastActiveAt: fromNanos(lastActive),
		ExpiresAt:    fromNanos(expires),
		TTL:          time.Duration(ttl),
		Persistent:   true,
	}, nil
}

func (s *Store) TouchSession(ctx context.Context, token types.SessionToken, lastActive, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET last_active_at = ?, expires_at = ? WHERE token = ?",
		toNanos(lastActive), toNanos(expiresAt), string(token),
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", token, types.ErrNotFound)
	}
	return nil
}

// DeleteSession is idempotent; deleting an unknown token is not an error.
func (s *Store) DeleteSession(ctx context.Context, token types.SessionToken) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", string(token)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", toNanos(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count expired sessions: %w", err)
	}
	return n, nil
}
