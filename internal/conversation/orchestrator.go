// Package conversation runs chat turns: session resolution, memory load,
// command handling, context assembly, generation and memory persistence.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/axiomos/internal/command"
	ctxengine "github.com/user/axiomos/internal/context"
	"github.com/user/axiomos/internal/gateway"
	"github.com/user/axiomos/internal/memory"
	"github.com/user/axiomos/internal/session"
	"github.com/user/axiomos/internal/types"
	"github.com/user/axiomos/pkg/llm"
)

// recentTurns is how many earlier user messages "remember this" stores.
const recentTurns = 3

// Orchestrator processes turns. Turns carrying a session token are
// serialized per session through the queue.
type Orchestrator struct {
	sessions *session.Manager
	memory   *memory.Manager
	builder  *ctxengine.Builder
	provider llm.Provider
	queue    *gateway.Queue
	logger   *slog.Logger
	now      func() time.Time
}

// New wires an orchestrator. queue may be nil, in which case turns run
// directly on the caller's goroutine.
func New(sessions *session.Manager, mem *memory.Manager, builder *ctxengine.Builder, provider llm.Provider, queue *gateway.Queue, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		sessions: sessions,
		memory:   mem,
		builder:  builder,
		provider: provider,
		queue:    queue,
		logger:   logger,
		now:      time.Now,
	}
}

func (o *Orchestrator) schedule(ctx context.Context, token types.SessionToken, work func(context.Context) error) error {
	if o.queue == nil {
		return work(ctx)
	}
	return o.queue.Do(ctx, token, work)
}

// Respond runs one non-streaming turn. On an LLM failure it returns a Reply
// carrying only the session identity together with an error wrapping
// ErrBackend.
func (o *Orchestrator) Respond(ctx context.Context, req Request) (*Reply, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var reply *Reply
	var turnErr error
	err := o.schedule(ctx, req.SessionToken, func(ctx context.Context) error {
		reply, turnErr = o.respond(ctx, req)
		return turnErr
	})
	if reply == nil && err != nil {
		return nil, err
	}
	return reply, turnErr
}

// prepare runs the stages shared by both response modes, up to
// CommandResolved.
func (o *Orchestrator) prepare(ctx context.Context, req Request) State {
	st := NewState(req.params())

	res := o.sessions.AuthenticateOrCreate(ctx, req.SessionToken, req.UserID)
	st = st.WithSession(*res.Session, res.Health)

	loaded := o.memory.LoadAll(ctx, res.Session)
	st = st.WithMemory(loaded).Advance(MemoryLoaded)

	st = st.WithCommand(command.Detect(req.Message)).Advance(CommandResolved)
	return st
}

func (o *Orchestrator) respond(ctx context.Context, req Request) (*Reply, error) {
	st := o.prepare(ctx, req)
	sess := st.Session()
	logger := o.logger.With("session", sess.Token, "user_id", sess.UserID)

	if st.Command().Kind.Immediate() {
		st = o.immediate(ctx, st).Advance(Done)
		logger.Debug("turn complete", "command", st.Command().Kind, "trail", st.Trail())
		return st.reply(), nil
	}

	user := o.userMessage(req)
	st = o.buildContext(st, user)

	st = st.Advance(Generating)
	resp, err := o.provider.Complete(ctx, toLLM(st.Context()), st.Params())
	if err != nil {
		logger.Error("generation failed", "error", err)
		return &Reply{SessionToken: sess.Token, UserID: sess.UserID, Trail: st.Trail(), Health: st.Health()},
			fmt.Errorf("%w: %w", ErrBackend, err)
	}
	st = st.WithResponse(resp.Content)

	st = o.applyDeferred(ctx, st, user)
	st = o.persist(ctx, st, user).Advance(Done)

	logger.Debug("turn complete", "command", st.Command().Kind, "trail", st.Trail(), "health", st.Health())
	reply := st.reply()
	reply.Usage = resp.Usage
	return reply, nil
}

// immediate answers help and clear without the LLM.
func (o *Orchestrator) immediate(ctx context.Context, st State) State {
	st = st.WithResponse(immediateText(st.Command().Kind))
	if st.Command().Kind == command.Clear {
		health := o.memory.ClearSession(ctx, st.Session().Token)
		st = st.WithHealth(health).
			WithSideEffect(SideEffect{Kind: "clear", OK: health == types.Healthy})
	}
	return st.Advance(ImmediateReply)
}

func immediateText(k command.Kind) string {
	if k == command.Clear {
		return command.ClearText
	}
	return command.HelpText
}

func (o *Orchestrator) userMessage(req Request) types.ChatMessage {
	var meta map[string]any
	if req.Channel != "" {
		meta = map[string]any{"channel": req.Channel}
	}
	msg, _ := types.NewChatMessage(types.RoleUser, req.Message, o.now(), meta)
	return msg
}

func (o *Orchestrator) buildContext(st State, user types.ChatMessage) State {
	msgs := o.builder.Build(st.Memory(), st.LongTerm(), st.Command(), user)
	return st.WithContext(msgs).Advance(ContextBuilt)
}

// applyDeferred performs the remember write and adds the remember or
// recall annotation to the generated response.
func (o *Orchestrator) applyDeferred(ctx context.Context, st State, user types.ChatMessage) State {
	switch st.Command().Kind {
	case command.Remember:
		saved, err := o.memory.SaveLongTerm(ctx, o.rememberEntry(st, user))
		return rememberOutcome(st, saved, err)
	case command.Recall:
		return st.WithAnnotation(recallNote(st))
	}
	return st
}

// rememberOutcome annotates st with the result of a remember write.
func rememberOutcome(st State, saved types.MemoryEntry, err error) State {
	if err != nil {
		return st.WithHealth(types.Degraded).
			WithAnnotation("(I couldn't save that to long-term memory right now. Please try again later.)").
			WithSideEffect(SideEffect{Kind: "remember", OK: false, Detail: "long-term memory unavailable"})
	}
	return st.WithAnnotation(fmt.Sprintf("(Saved to long-term memory: %q)", summary(saved.Content))).
		WithSideEffect(SideEffect{Kind: "remember", OK: true, Detail: string(saved.ID)})
}

func (o *Orchestrator) rememberEntry(st State, user types.ChatMessage) types.MemoryEntry {
	sess := st.Session()
	entry := types.MemoryEntry{
		ID:            types.NewEntryID(),
		UserID:        sess.UserID,
		SourceSession: sess.Token,
		CreatedAt:     o.now().UTC(),
	}
	if arg := st.Command().Argument; arg != "" {
		entry.Category = types.CategoryFact
		entry.Content = arg
		return entry
	}

	// No explicit fact: keep the user's recent turns.
	var turns []types.ChatMessage
	for _, m := range st.Memory().Messages {
		if m.Role == types.RoleUser {
			turns = append(turns, m)
		}
	}
	if len(turns) > recentTurns {
		turns = turns[len(turns)-recentTurns:]
	}
	if len(turns) == 0 {
		turns = []types.ChatMessage{user}
	}

	lines := make([]string, 0, len(turns))
	snapshot := make([]map[string]string, 0, len(turns))
	for _, m := range turns {
		lines = append(lines, m.Content)
		snapshot = append(snapshot, map[string]string{"role": string(m.Role), "content": m.Content})
	}
	entry.Category = types.CategoryConversation
	entry.Content = strings.Join(lines, "\n")
	if data, err := json.Marshal(map[string]any{"messages": snapshot}); err == nil {
		entry.Data = data
	}
	return entry
}

func recallNote(st State) string {
	entries := st.LongTerm()
	if len(entries) == 0 {
		if !st.LongTermOK() {
			return "(Long-term memory is unavailable right now.)"
		}
		return "(I don't have any stored memories about you yet.)"
	}
	var sb strings.Builder
	sb.WriteString("Stored memories:")
	for _, e := range entries {
		sb.WriteString("\n- ")
		sb.WriteString(summary(e.Content))
	}
	return sb.String()
}

func summary(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if r := []rune(content); len(r) > 120 {
		return string(r[:120]) + "..."
	}
	return content
}

// persist appends the turn to session memory and records the command.
func (o *Orchestrator) persist(ctx context.Context, st State, user types.ChatMessage) State {
	sess := st.Session()
	assistant, _ := types.NewChatMessage(types.RoleAssistant, st.Text(), o.now(), nil)
	mem := st.Memory().
		WithMessages(user, assistant).
		WithContext("last_command", st.Command().Kind.String())

	health := o.memory.SaveSession(ctx, &sess, mem)
	return st.WithSessionMemory(mem, health).Advance(MemoryPersisted)
}

func toLLM(msgs []types.ChatMessage) []llm.Message {
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llm.Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}
