// internal/conversation/request.go
package conversation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/user/axiomos/internal/types"
	"github.com/user/axiomos/pkg/llm"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrBackend        = errors.New("llm backend failure")
)

const (
	MaxMessageLength = 10000
	MaxTemperature   = 2.0
)

// Request is one inbound chat turn.
type Request struct {
	Message      string             `json:"message"`
	SessionToken types.SessionToken `json:"session_token,omitempty"`
	UserID       types.UserID       `json:"user_id,omitempty"`
	Model        string             `json:"model,omitempty"`
	Temperature  *float64           `json:"temperature,omitempty"`
	MaxTokens    int                `json:"max_tokens,omitempty"`
	Channel      string             `json:"-"`
}

func (r Request) Validate() error {
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		return fmt.Errorf("%w: message is empty", ErrInvalidRequest)
	}
	if n := utf8.RuneCountInString(r.Message); n > MaxMessageLength {
		return fmt.Errorf("%w: message is %d characters, limit is %d", ErrInvalidRequest, n, MaxMessageLength)
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > MaxTemperature) {
		return fmt.Errorf("%w: temperature must be between 0 and %.0f", ErrInvalidRequest, MaxTemperature)
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens must be at least 1", ErrInvalidRequest)
	}
	return nil
}

func (r Request) params() llm.Params {
	return llm.Params{Model: r.Model, Temperature: r.Temperature, MaxTokens: r.MaxTokens}
}

// SideEffect records the outcome of a memory operation triggered by a turn.
type SideEffect struct {
	Kind   string `json:"kind"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Reply is the result of a non-streaming turn.
type Reply struct {
	Text         string             `json:"response"`
	SessionToken types.SessionToken `json:"session_token"`
	UserID       types.UserID       `json:"user_id"`
	Command      string             `json:"command,omitempty"`
	SideEffects  []SideEffect       `json:"side_effects,omitempty"`
	Trail        []Stage            `json:"-"`
	Usage        llm.Usage          `json:"-"`
	Health       types.Health       `json:"-"`
}

// Fragment is one element of a streamed reply. Exactly one terminal
// fragment (Done or Err) ends every stream that was not cancelled.
type Fragment struct {
	Token        string
	Done         bool
	SessionToken types.SessionToken
	Err          error
}
