// internal/memory/codec.go
package memory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/axiomos/internal/types"
)

const sessionSchemaVersion = 2

type sessionRecord struct {
	Version  int                 `json:"version"`
	Messages []types.ChatMessage `json:"messages"`
	Context  map[string]string   `json:"context"`
}

// looseRecord accepts both the current record and the older
// {"context": {...}} shape whose context values may be any JSON.
type looseRecord struct {
	Version  int                        `json:"version"`
	Messages []types.ChatMessage        `json:"messages"`
	Context  map[string]json.RawMessage `json:"context"`
}

func encodeSession(mem types.SessionMemory) ([]byte, error) {
	rec := sessionRecord{
		Version:  sessionSchemaVersion,
		Messages: mem.Messages,
		Context:  mem.Context,
	}
	if rec.Messages == nil {
		rec.Messages = []types.ChatMessage{}
	}
	if rec.Context == nil {
		rec.Context = map[string]string{}
	}
	return json.Marshal(rec)
}

func decodeSession(token types.SessionToken, data []byte) (types.SessionMemory, error) {
	var rec looseRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return types.SessionMemory{}, fmt.Errorf("decode session memory: %w", err)
	}

	mem := types.EmptySessionMemory(token)
	for _, msg := range rec.Messages {
		if !msg.Role.Valid() {
			continue
		}
		mem.Messages = append(mem.Messages, msg)
	}
	for k, raw := range rec.Context {
		mem.Context[k] = contextValue(raw)
	}
	return mem, nil
}

func contextValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}
