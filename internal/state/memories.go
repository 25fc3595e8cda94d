// internal/state/memories.go
package state

import (
	"context"
	"fmt"
	"time"

	"github.com/user/axiomos/internal/types"
)

// PutMemory stores entry in one transaction. A non-empty Key replaces any
// existing entry with the same (user, category, key). Missing ID, Category
// and CreatedAt are filled in on entry.
func (s *Store) PutMemory(ctx context.Context, entry *types.MemoryEntry) error {
	if entry.UserID == "" {
		return fmt.Errorf("put memory: empty user id")
	}
	if entry.ID == "" {
		entry.ID = types.NewEntryID()
	}
	if entry.Category == "" {
		entry.Category = types.CategoryFact
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	value, err := encodeValue(entry.Content, entry.Data)
	if err != nil {
		return fmt.Errorf("encode memory value: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin memory write: %w", err)
	}
	defer tx.Rollback()

	if entry.Key != "" {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM long_term_memory WHERE user_id = ? AND category = ? AND key = ?",
			string(entry.UserID), entry.Category, entry.Key,
		); err != nil {
			return fmt.Errorf("replace memory key: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO long_term_memory (id, user_id, category, key, value, created_at, source_session)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(entry.ID), string(entry.UserID), entry.Category, entry.Key, value,
		toNanos(entry.CreatedAt), string(entry.SourceSession),
	); err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit memory write: %w", err)
	}
	return nil
}

// ListMemories returns a user's entries oldest first.
func (s *Store) ListMemories(ctx context.Context, userID types.UserID) ([]*types.MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, key, value, created_at, source_session
		FROM long_term_memory WHERE user_id = ?
		ORDER BY created_at ASC, rowid ASC`, string(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var entries []*types.MemoryEntry
	for rows.Next() {
		var id, category, key, value, source string
		var created int64
		if err := rows.Scan(&id, &category, &key, &value, &created, &source); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		content, data := decodeValue(value)
		entries = append(entries, &types.MemoryEntry{
			ID:            types.EntryID(id),
			UserID:        userID,
			Category:      category,
			Key:           key,
			Content:       content,
			Data:          data,
			CreatedAt:     fromNanos(created),
			SourceSession: types.SessionToken(source),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return entries, nil
}

func (s *Store) PurgeMemories(ctx context.Context, userID types.UserID) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM long_term_memory WHERE user_id = ?", string(userID))
	if err != nil {
		return 0, fmt.Errorf("purge memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count purged memories: %w", err)
	}
	return n, nil
}
