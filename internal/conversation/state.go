// internal/conversation/state.go
package conversation

import (
	"slices"
	"strings"

	"github.com/user/axiomos/internal/command"
	"github.com/user/axiomos/internal/memory"
	"github.com/user/axiomos/internal/types"
	"github.com/user/axiomos/pkg/llm"
)

// Stage is a step of the per-turn state machine.
type Stage int

const (
	Authenticating Stage = iota
	MemoryLoaded
	CommandResolved
	ImmediateReply
	ContextBuilt
	Generating
	MemoryPersisted
	Done
)

var stageNames = [...]string{
	"authenticating",
	"memory_loaded",
	"command_resolved",
	"immediate_reply",
	"context_built",
	"generating",
	"memory_persisted",
	"done",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// State is the immutable per-turn record. Every With method returns a new
// value; slices are copied before they change.
type State struct {
	session     types.Session
	memory      types.SessionMemory
	longTerm    []types.MemoryEntry
	longTermOK  bool
	match       command.Match
	params      llm.Params
	context     []types.ChatMessage
	response    string
	annotation  string
	sideEffects []SideEffect
	health      types.Health
	stage       Stage
	trail       []Stage
}

func NewState(params llm.Params) State {
	return State{params: params, stage: Authenticating, trail: []Stage{Authenticating}}
}

func (s State) Session() types.Session { return s.session }
func (s State) Memory() types.SessionMemory { return s.memory }
func (s State) LongTerm() []types.MemoryEntry { return slices.Clone(s.longTerm) }
func (s State) LongTermOK() bool { return s.longTermOK }
func (s State) Command() command.Match { return s.match }
func (s State) Params() llm.Params { return s.params }
func (s State) Context() []types.ChatMessage { return slices.Clone(s.context) }
func (s State) Response() string { return s.response }
func (s State) Annotation() string { return s.annotation }
func (s State) SideEffects() []SideEffect { return slices.Clone(s.sideEffects) }
func (s State) Health() types.Health { return s.health }
func (s State) Stage() Stage { return s.stage }
func (s State) Trail() []Stage { return slices.Clone(s.trail) }

// Text is the full reply: the generated response plus any annotation.
func (s State) Text() string { return s.response + s.annotation }

func (s State) Advance(stage Stage) State {
	s.stage = stage
	s.trail = append(slices.Clone(s.trail), stage)
	return s
}

func (s State) WithSession(sess types.Session, health types.Health) State {
	s.session = sess
	s.health = s.health.Worse(health)
	return s
}

func (s State) WithMemory(loaded memory.Loaded) State {
	s.memory = loaded.Session
	s.longTerm = slices.Clone(loaded.LongTerm)
	s.longTermOK = loaded.LongTermOK
	s.health = s.health.Worse(loaded.Health)
	return s
}

// WithSessionMemory replaces session memory after a write.
func (s State) WithSessionMemory(mem types.SessionMemory, health types.Health) State {
	s.memory = mem
	s.health = s.health.Worse(health)
	return s
}

func (s State) WithCommand(m command.Match) State {
	s.match = m
	return s
}

func (s State) WithContext(msgs []types.ChatMessage) State {
	s.context = slices.Clone(msgs)
	return s
}

func (s State) WithResponse(text string) State {
	s.response = text
	return s
}

func (s State) WithAnnotation(note string) State {
	if note == "" {
		return s
	}
	s.annotation = "\n\n" + strings.TrimSpace(note)
	return s
}

func (s State) WithSideEffect(e SideEffect) State {
	s.sideEffects = append(slices.Clone(s.sideEffects), e)
	return s
}

func (s State) WithHealth(h types.Health) State {
	s.health = s.health.Worse(h)
	return s
}

func (s State) reply() *Reply {
	return &Reply{
		Text:         s.Text(),
		SessionToken: s.session.Token,
		UserID:       s.session.UserID,
		Command:      commandName(s.match),
		SideEffects:  s.SideEffects(),
		Trail:        s.Trail(),
		Health:       s.health,
	}
}

func commandName(m command.Match) string {
	if m.Kind == command.None {
		return ""
	}
	return m.Kind.String()
}
