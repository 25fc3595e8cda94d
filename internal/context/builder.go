// Package context assembles the token-budgeted message list sent to the LLM
// for one turn.
package context

import (
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/user/axiomos/internal/command"
	"github.com/user/axiomos/internal/types"
)

// messageOverhead approximates the per-message framing tokens of chat APIs.
const messageOverhead = 4

const fallbackPreamble = "You are AxiomOS, a helpful conversational assistant."

// summaryLimit caps how much of an entry is shown outside recall.
const summaryLimit = 200

type preambleData struct {
	Facts    []string
	Recall   bool
	Remember bool
}

// Builder assembles token-budgeted prompts for the LLM.
type Builder struct {
	counter   Counter
	maxTokens int
	reserve   int
	preamble  *template.Template
}

// New creates a builder with the given token budget. maxTokens is the
// model's context window; reserve is kept free for the response.
func New(counter Counter, maxTokens, reserve int) *Builder {
	if counter == nil {
		counter = ApproxCounter{}
	}
	return &Builder{
		counter:   counter,
		maxTokens: maxTokens,
		reserve:   reserve,
		preamble:  template.Must(template.New("preamble").Parse(DefaultPreamble)),
	}
}

// Budget is the number of input tokens available to Build.
func (b *Builder) Budget() int {
	return b.maxTokens - b.reserve
}

// Build returns the preamble, the retained history and the user message, in
// that order. Over budget, the oldest history goes first, then the oldest
// long-term entries. The preamble and the user message are always kept.
func (b *Builder) Build(mem types.SessionMemory, entries []types.MemoryEntry, match command.Match, user types.ChatMessage) []types.ChatMessage {
	history := make([]types.ChatMessage, 0, len(mem.Messages))
	for _, msg := range mem.Messages {
		if msg.Role == types.RoleSystem {
			continue
		}
		history = append(history, msg)
	}
	facts := entries

	userTokens := b.count(user.Content)
	historyTokens := 0
	for _, msg := range history {
		historyTokens += b.count(msg.Content)
	}

	preamble := b.renderPreamble(facts, match)
	for {
		total := b.count(preamble) + historyTokens + userTokens
		if total <= b.Budget() {
			break
		}
		if len(history) > 0 {
			historyTokens -= b.count(history[0].Content)
			history = history[1:]
			continue
		}
		if len(facts) > 0 {
			facts = facts[1:]
			preamble = b.renderPreamble(facts, match)
			continue
		}
		break
	}

	out := make([]types.ChatMessage, 0, len(history)+2)
	out = append(out, types.ChatMessage{Role: types.RoleSystem, Content: preamble})
	out = append(out, history...)
	out = append(out, user)
	return out
}

func (b *Builder) count(text string) int {
	return b.counter.Count(text) + messageOverhead
}

func (b *Builder) renderPreamble(entries []types.MemoryEntry, match command.Match) string {
	data := preambleData{
		Recall:   match.Kind == command.Recall,
		Remember: match.Kind == command.Remember,
	}
	for _, e := range entries {
		if data.Recall {
			data.Facts = append(data.Facts, describeFull(e))
		} else {
			data.Facts = append(data.Facts, summarize(e.Content))
		}
	}

	var sb strings.Builder
	if err := b.preamble.Execute(&sb, data); err != nil {
		slog.Error("render preamble", "error", err)
		return fallbackPreamble
	}
	return sb.String()
}

func describeFull(e types.MemoryEntry) string {
	label := e.Category
	if e.Key != "" {
		label += "/" + e.Key
	}
	return fmt.Sprintf("[%s] %s", label, e.Content)
}

func summarize(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= summaryLimit {
		return content
	}
	return string(runes[:summaryLimit]) + "..."
}
