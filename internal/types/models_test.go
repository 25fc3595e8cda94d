// internal/types/models_test.go
package types

import (
	"strings"
	"testing"
	"time"
)

func TestNewChatMessageRejectsUnknownRole(t *testing.T) {
	if _, err := NewChatMessage("tool", "x", time.Now(), nil); err == nil {
		t.Fatal("expected error for unknown role")
	}
	msg, err := NewChatMessage(RoleUser, "hi", time.Now(), map[string]any{
		"channel": "web",
		"nested":  map[string]any{"a": 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Metadata["channel"] != "web" {
		t.Errorf("expected channel metadata, got %v", msg.Metadata)
	}
	if _, ok := msg.Metadata["nested"]; ok {
		t.Error("expected non-scalar metadata to be dropped")
	}
}

func TestSessionMemoryWithMessagesDoesNotAlias(t *testing.T) {
	base := EmptySessionMemory("tok").WithMessages(UserMessage("one", nil))
	a := base.WithMessages(UserMessage("two", nil))
	b := base.WithMessages(UserMessage("three", nil))

	if len(base.Messages) != 1 {
		t.Fatalf("base mutated: %d messages", len(base.Messages))
	}
	if a.Messages[1].Content != "two" || b.Messages[1].Content != "three" {
		t.Errorf("unexpected aliasing: %q %q", a.Messages[1].Content, b.Messages[1].Content)
	}
}

func TestSessionMemoryBoundedByCount(t *testing.T) {
	mem := EmptySessionMemory("tok")
	for i := 0; i < 50; i++ {
		mem = mem.WithMessages(UserMessage("msg", nil)).Bounded(10, 0)
		if len(mem.Messages) > 10 {
			t.Fatalf("bound exceeded after %d appends: %d", i+1, len(mem.Messages))
		}
	}
}

func TestSessionMemoryBoundedByBytes(t *testing.T) {
	mem := EmptySessionMemory("tok")
	for i := 0; i < 20; i++ {
		mem = mem.WithMessages(UserMessage(strings.Repeat("x", 200), nil))
	}
	bounded := mem.Bounded(0, 1024)
	if bounded.Size() > 1024 {
		t.Errorf("expected size <= 1024, got %d", bounded.Size())
	}
	if len(bounded.Messages) == 0 {
		t.Error("expected some messages to survive")
	}
	last := bounded.Messages[len(bounded.Messages)-1]
	if last.Timestamp != mem.Messages[len(mem.Messages)-1].Timestamp {
		t.Error("expected newest message to survive eviction")
	}
}

func TestSessionRemaining(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	if s.Remaining(now) != time.Minute {
		t.Errorf("expected 1m, got %v", s.Remaining(now))
	}
	if !s.Expired(now.Add(2 * time.Minute)) {
		t.Error("expected expired")
	}
	if s.Remaining(now.Add(2*time.Minute)) != 0 {
		t.Error("expected zero remaining after expiry")
	}
}
