// internal/state/store_test.go
package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/axiomos/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "axiomos-test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axiomos.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Errorf("schema version: got %d, want 1", v)
	}
	s.Close()

	// Reopening must not re-run migrations.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	var n int
	if err := s2.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("migrations recorded: got %d, want 1", n)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	sess := &types.Session{
		Token:        types.NewSessionToken(),
		UserID:       "U1",
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(time.Hour),
		TTL:          time.Hour,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession(ctx, sess.Token)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.UserID != "U1" || got.TTL != time.Hour || !got.Persistent {
		t.Errorf("unexpected session: %+v", got)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Errorf("ExpiresAt: got %v, want %v", got.ExpiresAt, sess.ExpiresAt)
	}

	later := now.Add(10 * time.Minute)
	if err := s.TouchSession(ctx, sess.Token, later, later.Add(time.Hour)); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}
	got, _ = s.GetSession(ctx, sess.Token)
	if !got.LastActiveAt.Equal(later) {
		t.Errorf("LastActiveAt: got %v, want %v", got.LastActiveAt, later)
	}

	if err := s.DeleteSession(ctx, sess.Token); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteSession(ctx, sess.Token); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
	if _, err := s.GetSession(ctx, sess.Token); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.TouchSession(ctx, sess.Token, later, later); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("touch of deleted session: expected ErrNotFound, got %v", err)
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, exp := range []time.Duration{-time.Minute, -time.Second, time.Hour} {
		sess := &types.Session{
			Token:        types.NewSessionToken(),
			UserID:       types.UserID([]string{"a", "b", "c"}[i]),
			CreatedAt:    now,
			LastActiveAt: now,
			ExpiresAt:    now.Add(exp),
			TTL:          time.Hour,
		}
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted: got %d, want 2", n)
	}
}

func TestMemoryWriteThenList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := &types.MemoryEntry{
		UserID:        "U1",
		Category:      types.CategoryFact,
		Content:       "my favorite color is blue",
		Data:          []byte(`{"source":"chat"}`),
		SourceSession: "tok",
	}
	if err := s.PutMemory(ctx, entry); err != nil {
		t.Fatalf("PutMemory: %v", err)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Fatalf("expected ID and CreatedAt to be filled in: %+v", entry)
	}

	entries, err := s.ListMemories(ctx, "U1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.ID != entry.ID || got.Content != entry.Content || got.Category != entry.Category {
		t.Errorf("entry changed: got %+v, want %+v", got, entry)
	}
	if string(got.Data) != `{"source":"chat"}` {
		t.Errorf("Data: got %s", got.Data)
	}
	if !got.CreatedAt.Equal(entry.CreatedAt) {
		t.Errorf("CreatedAt: got %v, want %v", got.CreatedAt, entry.CreatedAt)
	}
	if got.SourceSession != "tok" {
		t.Errorf("SourceSession: got %q", got.SourceSession)
	}
}

func TestMemoryKeyReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"red", "blue"} {
		if err := s.PutMemory(ctx, &types.MemoryEntry{UserID: "U1", Key: "color", Content: content}); err != nil {
			t.Fatal(err)
		}
	}
	// Unkeyed entries append.
	for i := 0; i < 2; i++ {
		if err := s.PutMemory(ctx, &types.MemoryEntry{UserID: "U1", Content: "note"}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.ListMemories(ctx, "U1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	var colors []string
	for _, e := range entries {
		if e.Key == "color" {
			colors = append(colors, e.Content)
		}
	}
	if len(colors) != 1 || colors[0] != "blue" {
		t.Errorf("expected single keyed entry 'blue', got %v", colors)
	}
}

func TestPurgeMemories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.PutMemory(ctx, &types.MemoryEntry{UserID: "U1", Content: "a"})
	s.PutMemory(ctx, &types.MemoryEntry{UserID: "U1", Content: "b"})
	s.PutMemory(ctx, &types.MemoryEntry{UserID: "U2", Content: "c"})

	n, err := s.PurgeMemories(ctx, "U1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("purged: got %d, want 2", n)
	}
	left, _ := s.ListMemories(ctx, "U2")
	if len(left) != 1 {
		t.Errorf("other user's entries touched: %d left", len(left))
	}
}

func TestLegacyValuesNormalizeOnRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows := []struct {
		id, value string
	}{
		{"1", "likes tea"},
		{"2", `"works at a bakery"`},
		{"3", `{"messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}],"context":{"mood":"ok"}}`},
	}
	for i, r := range rows {
		if _, err := s.DB().Exec(
			"INSERT INTO long_term_memory (id, user_id, value, created_at) VALUES (?, 'U1', ?, ?)",
			r.id, r.value, int64(i+1),
		); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.ListMemories(ctx, "U1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Content != "likes tea" {
		t.Errorf("plain text: got %q", entries[0].Content)
	}
	if entries[1].Content != "works at a bakery" {
		t.Errorf("json string: got %q", entries[1].Content)
	}
	want := `Saved conversation: user: "hi"; assistant: "hello"`
	if entries[2].Content != want {
		t.Errorf("snapshot: got %q, want %q", entries[2].Content, want)
	}
	if len(entries[2].Data) == 0 {
		t.Error("expected snapshot JSON kept in Data")
	}
	if entries[2].Category != types.CategoryFact {
		t.Errorf("expected default category, got %q", entries[2].Category)
	}
}
