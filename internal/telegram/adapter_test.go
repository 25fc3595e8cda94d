package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/axiomos/internal/cache"
	"github.com/user/axiomos/internal/conversation"
	"github.com/user/axiomos/internal/memory"
	"github.com/user/axiomos/internal/session"
	"github.com/user/axiomos/internal/types"
)

type fakeSender struct {
	texts []string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.texts = append(f.texts, m.Text)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) last() string {
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type fakeResponder struct {
	requests []conversation.Request
	token    types.SessionToken
	err      error
}

func (f *fakeResponder) Respond(ctx context.Context, req conversation.Request) (*conversation.Reply, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return &conversation.Reply{SessionToken: f.token}, f.err
	}
	return &conversation.Reply{Text: "echo: " + req.Message, SessionToken: f.token}, nil
}

type fixture struct {
	adapter   *Adapter
	sender    *fakeSender
	responder *fakeResponder
	sessions  *session.Manager
	kv        *cache.MemoryStore
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv := cache.NewMemoryStore()
	sessions := session.NewManager(nil, time.Hour, logger)
	mem := memory.NewManager(kv, nil, memory.Options{}, logger)
	f := &fixture{
		sender:    &fakeSender{},
		responder: &fakeResponder{token: "tok-1"},
		sessions:  sessions,
		kv:        kv,
	}
	f.adapter = newAdapter(f.sender, f.responder, sessions, mem, kv, logger)
	return f
}

func textMsg(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: 7},
	}
}

func commandMsg(chatID int64, cmd string) *tgbotapi.Message {
	msg := textMsg(chatID, cmd)
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	return msg
}

func TestHandleMessageKeepsChatSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.adapter.handleMessage(ctx, textMsg(100, "hello"))
	f.adapter.handleMessage(ctx, textMsg(100, "again"))

	if len(f.responder.requests) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(f.responder.requests))
	}
	first, second := f.responder.requests[0], f.responder.requests[1]
	if first.SessionToken != "" {
		t.Errorf("first turn should start a session, got token %q", first.SessionToken)
	}
	if second.SessionToken != "tok-1" {
		t.Errorf("second turn should reuse the session, got %q", second.SessionToken)
	}
	if first.UserID != "telegram:7" || first.Channel != "telegram" {
		t.Errorf("unexpected request identity %+v", first)
	}
	if f.sender.last() != "echo: again" {
		t.Errorf("unexpected reply %q", f.sender.last())
	}

	// Other chats are independent.
	f.adapter.handleMessage(ctx, textMsg(200, "hi"))
	if tok := f.responder.requests[2].SessionToken; tok != "" {
		t.Errorf("expected no session for a new chat, got %q", tok)
	}
}

func TestHandleMessageError(t *testing.T) {
	f := setup(t)
	f.responder.err = conversation.ErrBackend

	f.adapter.handleMessage(context.Background(), textMsg(100, "hello"))
	if !strings.Contains(f.sender.last(), "encountered an error") {
		t.Errorf("expected apology, got %q", f.sender.last())
	}
	if f.adapter.chatSession(context.Background(), 100) != "tok-1" {
		t.Error("session token should be kept after a failed turn")
	}

	f.responder.err = errors.Join(conversation.ErrInvalidRequest, errors.New("message is empty"))
	f.adapter.handleMessage(context.Background(), textMsg(100, " "))
	if !strings.Contains(f.sender.last(), "can't process") {
		t.Errorf("expected validation message, got %q", f.sender.last())
	}
}

func TestStatusAndNewCommands(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.adapter.handleCommand(ctx, commandMsg(100, "/status"))
	if f.sender.last() != "No active session." {
		t.Errorf("unexpected status %q", f.sender.last())
	}

	res := f.sessions.AuthenticateOrCreate(ctx, "", "telegram:7")
	f.adapter.rememberSession(ctx, 100, res.Session.Token)

	f.adapter.handleMessage(ctx, commandMsg(100, "/status"))
	if !strings.HasPrefix(f.sender.last(), "Session: "+string(res.Session.Token)) {
		t.Errorf("unexpected status %q", f.sender.last())
	}

	f.adapter.handleMessage(ctx, commandMsg(100, "/new"))
	if f.sessions.Validate(ctx, res.Session.Token) {
		t.Error("expected session to be invalidated")
	}
	if f.adapter.chatSession(ctx, 100) != "" {
		t.Error("expected chat session to be forgotten")
	}
	if len(f.responder.requests) != 0 {
		t.Error("commands must not reach the responder")
	}
}

func TestUnknownCommand(t *testing.T) {
	f := setup(t)
	f.adapter.handleCommand(context.Background(), commandMsg(100, "/bogus"))
	if !strings.HasPrefix(f.sender.last(), "Unknown command") {
		t.Errorf("unexpected reply %q", f.sender.last())
	}
}

func TestSplitMessage(t *testing.T) {
	short := "Hello world"
	parts := splitMessage(short)
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	if parts[0] != short {
		t.Errorf("expected %q, got %q", short, parts[0])
	}
}

func TestSplitMessageLong(t *testing.T) {
	long := strings.Repeat("a", 5000)
	parts := splitMessage(long)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxTelegramMessage {
		t.Errorf("expected first part length %d, got %d", maxTelegramMessage, len(parts[0]))
	}
}

func TestSplitMessageKeepsRunes(t *testing.T) {
	long := strings.Repeat("é", 4100)
	parts := splitMessage(long)
	if len(parts) != 2 || len([]rune(parts[0])) != maxTelegramMessage {
		t.Fatalf("unexpected split: %d parts", len(parts))
	}
	if parts[0]+parts[1] != long {
		t.Error("split lost characters")
	}
}

func TestChatKey(t *testing.T) {
	if key := chatKey(67890); key != "telegram:chat:67890" {
		t.Errorf("expected 'telegram:chat:67890', got %q", key)
	}
}
