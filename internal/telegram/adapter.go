package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/axiomos/internal/conversation"
	"github.com/user/axiomos/internal/memory"
	"github.com/user/axiomos/internal/session"
	"github.com/user/axiomos/internal/types"
)

const maxTelegramMessage = 4096

// Responder runs one chat turn.
type Responder interface {
	Respond(ctx context.Context, req conversation.Request) (*conversation.Reply, error)
}

// sender is the subset of the bot API used to reply.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Adapter bridges Telegram chats to the conversation engine. Each chat
// keeps its session token in the ephemeral store.
type Adapter struct {
	bot       *tgbotapi.BotAPI
	send      sender
	responder Responder
	sessions  *session.Manager
	memory    *memory.Manager
	kv        types.KVStore
	logger    *slog.Logger
}

// New creates a Telegram adapter.
func New(token string, responder Responder, sessions *session.Manager, mem *memory.Manager, kv types.KVStore, logger *slog.Logger) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	a := newAdapter(bot, responder, sessions, mem, kv, logger)
	a.bot = bot
	return a, nil
}

func newAdapter(s sender, responder Responder, sessions *session.Manager, mem *memory.Manager, kv types.KVStore, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		send:      s,
		responder: responder,
		sessions:  sessions,
		memory:    mem,
		kv:        kv,
		logger:    logger.With("channel", "telegram"),
	}
}

// Start begins long-polling for Telegram updates.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}

	chatID := msg.Chat.ID
	req := conversation.Request{
		Message:      msg.Text,
		SessionToken: a.chatSession(ctx, chatID),
		UserID:       userID(msg),
		Channel:      "telegram",
	}

	reply, err := a.responder.Respond(ctx, req)
	if reply != nil {
		a.rememberSession(ctx, chatID, reply.SessionToken)
	}
	if err != nil {
		a.logger.Error("chat turn failed", "chat_id", chatID, "error", err)
		if errors.Is(err, conversation.ErrInvalidRequest) {
			a.sendResponse(chatID, "Sorry, I can't process that message.")
			return
		}
		a.sendResponse(chatID, "Sorry, I encountered an error processing your message.")
		return
	}
	a.sendResponse(chatID, reply.Text)
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		a.sendResponse(chatID, "Hello! I'm Axiomos. I keep our conversation in mind and can remember things for later. Send /help to see what I can do.")

	case "help":
		a.sendResponse(chatID, "Commands: /start, /new, /status\n\n"+helpBody)

	case "new":
		if token := a.chatSession(ctx, chatID); token != "" {
			if err := a.sessions.Invalidate(ctx, token); err != nil {
				a.logger.Warn("invalidate session failed", "chat_id", chatID, "error", err)
			}
			a.memory.ClearSession(ctx, token)
		}
		if err := a.kv.Delete(ctx, chatKey(chatID)); err != nil {
			a.logger.Warn("forget chat session failed", "chat_id", chatID, "error", err)
		}
		a.sendResponse(chatID, "Starting a new session. Long-term memories are kept.")

	case "status":
		a.sendResponse(chatID, a.status(ctx, chatID))

	default:
		a.sendResponse(chatID, "Unknown command. Available: /start, /new, /status, /help")
	}
}

func (a *Adapter) status(ctx context.Context, chatID int64) string {
	token := a.chatSession(ctx, chatID)
	if token == "" {
		return "No active session."
	}
	sess, err := a.sessions.Get(ctx, token)
	if errors.Is(err, types.ErrNotFound) {
		return "No active session."
	}
	if err != nil {
		a.logger.Error("status lookup failed", "chat_id", chatID, "error", err)
		return "Error fetching status."
	}
	mem, err := a.memory.LoadSession(ctx, token)
	if err != nil {
		a.logger.Warn("load session memory failed", "chat_id", chatID, "error", err)
	}
	return fmt.Sprintf("Session: %s\nMessages: %d\nExpires: %s",
		sess.Token, len(mem.Messages), sess.ExpiresAt.Format(time.RFC3339))
}

// chatSession returns the chat's current session token, or "" when none.
func (a *Adapter) chatSession(ctx context.Context, chatID int64) types.SessionToken {
	data, err := a.kv.Get(ctx, chatKey(chatID))
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			a.logger.Warn("chat session lookup failed", "chat_id", chatID, "error", err)
		}
		return ""
	}
	return types.SessionToken(data)
}

func (a *Adapter) rememberSession(ctx context.Context, chatID int64, token types.SessionToken) {
	if token == "" {
		return
	}
	if err := a.kv.Set(ctx, chatKey(chatID), []byte(token), a.sessions.TTL()); err != nil {
		a.logger.Warn("store chat session failed", "chat_id", chatID, "error", err)
	}
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	parts := splitMessage(text)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.send.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.send.Send(msg); err != nil {
				a.logger.Error("send message failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

const helpBody = `- "remember <fact>" stores something in long-term memory.
- "what do you remember?" lists what I have stored about you.
- "clear" forgets the current conversation.`

func splitMessage(text string) []string {
	r := []rune(text)
	if len(r) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(r) > 0 {
		end := min(maxTelegramMessage, len(r))
		parts = append(parts, string(r[:end]))
		r = r[end:]
	}
	return parts
}

func chatKey(chatID int64) string {
	return types.NewKey("telegram", "chat", strconv.FormatInt(chatID, 10))
}

// userID is stable per Telegram account so long-term memory follows the
// user across chats and sessions.
func userID(msg *tgbotapi.Message) types.UserID {
	if msg.From == nil {
		return types.UserID(types.NewKey("telegram", strconv.FormatInt(msg.Chat.ID, 10)))
	}
	return types.UserID(types.NewKey("telegram", strconv.FormatInt(msg.From.ID, 10)))
}
