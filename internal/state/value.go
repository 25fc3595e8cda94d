// internal/state/value.go
package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const valueVersion = 2

type valueEnvelope struct {
	Version int             `json:"version"`
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func encodeValue(content string, data json.RawMessage) (string, error) {
	if len(data) > 0 && !json.Valid(data) {
		return "", fmt.Errorf("data is not valid JSON")
	}
	b, err := json.Marshal(valueEnvelope{Version: valueVersion, Content: content, Data: data})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type legacySnapshot struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Context map[string]any `json:"context"`
}

// decodeValue reads the current envelope and every older value shape:
// plain text, a JSON string, a conversation snapshot, or any other JSON.
func decodeValue(raw string) (string, json.RawMessage) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
			return s, nil
		}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
			return raw, nil
		}
		if _, ok := fields["version"]; ok {
			if _, ok := fields["content"]; ok {
				var env valueEnvelope
				if err := json.Unmarshal([]byte(trimmed), &env); err == nil {
					return env.Content, env.Data
				}
			}
		}
		if _, ok := fields["messages"]; ok {
			var snap legacySnapshot
			if err := json.Unmarshal([]byte(trimmed), &snap); err == nil {
				return snapshotContent(snap), compact(trimmed)
			}
		}
		return trimmed, compact(trimmed)
	case '[':
		if json.Valid([]byte(trimmed)) {
			return trimmed, compact(trimmed)
		}
	}
	return raw, nil
}

func snapshotContent(snap legacySnapshot) string {
	if len(snap.Messages) == 0 {
		return "Saved conversation (empty)"
	}
	parts := make([]string, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		parts = append(parts, fmt.Sprintf("%s: %q", role, m.Content))
	}
	return "Saved conversation: " + strings.Join(parts, "; ")
}

func compact(s string) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil
	}
	return json.RawMessage(buf.Bytes())
}
