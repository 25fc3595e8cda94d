package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/user/axiomos/internal/conversation"
	"github.com/user/axiomos/internal/types"
)

// event is one streamed element, shared by SSE and WebSocket.
type event struct {
	Token        string `json:"token,omitempty"`
	IsComplete   bool   `json:"is_complete,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
	Error        string `json:"error,omitempty"`
}

func toEvent(f conversation.Fragment) event {
	switch {
	case f.Err != nil:
		_, msg := publicError(f.Err)
		return event{Error: msg, SessionToken: string(f.SessionToken)}
	case f.Done:
		return event{IsComplete: true, SessionToken: string(f.SessionToken)}
	default:
		return event{Token: f.Token}
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req conversation.Request
	if err := decodeBody(r, chatSchema, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Channel = "http"

	reply, err := s.orch.Respond(r.Context(), req)
	if err != nil {
		status, msg := publicError(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("chat turn failed", "error", err)
		}
		body := errorBody{Error: msg}
		if reply != nil {
			body.SessionToken = string(reply.SessionToken)
		}
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleChatStream answers with text/event-stream. The fragment channel is
// always drained; a failed write cancels the turn.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req conversation.Request
	if err := decodeBody(r, chatSchema, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Channel = "sse"

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	frags, err := s.orch.RespondStream(ctx, req)
	if err != nil {
		status, msg := publicError(err)
		writeError(w, status, msg)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	var writeErr error
	for f := range frags {
		if writeErr != nil {
			continue
		}
		data, _ := json.Marshal(toEvent(f))
		if _, writeErr = fmt.Fprintf(w, "data: %s\n\n", data); writeErr == nil {
			writeErr = rc.Flush()
		}
		if writeErr != nil {
			s.logger.Info("stream client went away", "error", writeErr)
			cancel()
		}
	}
}

// handleChatWS runs turns over a WebSocket. Each client frame is a chat
// request; a request without a session token continues the connection's
// last session.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	var current types.SessionToken
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				s.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		var req conversation.Request
		if err := decodeJSON(data, chatSchema, &req); err != nil {
			if wsjson.Write(ctx, conn, event{Error: err.Error()}) != nil {
				return
			}
			continue
		}
		if req.SessionToken == "" {
			req.SessionToken = current
		}
		req.Channel = "websocket"

		if !s.wsTurn(ctx, conn, req, &current) {
			return
		}
	}
}

// wsTurn streams one turn to conn. A failed write cancels the turn so
// nothing of it is persisted. It reports whether the connection is usable.
func (s *Server) wsTurn(ctx context.Context, conn *websocket.Conn, req conversation.Request, current *types.SessionToken) bool {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frags, err := s.orch.RespondStream(ctx, req)
	if err != nil {
		_, msg := publicError(err)
		return wsjson.Write(ctx, conn, event{Error: msg}) == nil
	}

	var writeErr error
	for f := range frags {
		if f.SessionToken != "" {
			*current = f.SessionToken
		}
		if writeErr != nil {
			continue
		}
		if writeErr = wsjson.Write(ctx, conn, toEvent(f)); writeErr != nil {
			s.logger.Debug("websocket write failed", "error", writeErr)
			cancel()
		}
	}
	return writeErr == nil
}
