package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/user/axiomos/internal/memory"
	"github.com/user/axiomos/internal/types"
	"github.com/user/axiomos/pkg/llm"
)

const pingTimeout = 3 * time.Second

type sessionResponse struct {
	types.Session
	Messages []types.ChatMessage `json:"messages"`
	Context  map[string]string   `json:"context"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	token := types.SessionToken(r.PathValue("id"))
	sess, err := s.sessions.Get(r.Context(), token)
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("get session failed", "session", token, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	mem, err := s.memory.LoadSession(r.Context(), token)
	if err != nil {
		s.logger.Warn("load session memory failed", "session", token, "error", err)
		mem = types.EmptySessionMemory(token)
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: *sess, Messages: mem.Messages, Context: mem.Context})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	token := types.SessionToken(r.PathValue("id"))
	if err := s.sessions.Invalidate(r.Context(), token); err != nil {
		s.logger.Error("invalidate session failed", "session", token, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.memory.ClearSession(r.Context(), token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_token": string(token)})
}

type memoryRequest struct {
	Content  string          `json:"content"`
	Category string          `json:"category"`
	Key      string          `json:"key"`
	Data     json.RawMessage `json:"data"`
}

func (s *Server) handleListMemory(w http.ResponseWriter, r *http.Request) {
	userID := types.UserID(r.PathValue("user_id"))
	entries, err := s.memory.ListLongTerm(r.Context(), userID)
	if err != nil {
		s.memoryError(w, userID, err)
		return
	}
	if entries == nil {
		entries = []types.MemoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "memories": entries})
}

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	userID := types.UserID(r.PathValue("user_id"))
	var req memoryRequest
	if err := decodeBody(r, memorySchema, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry := types.MemoryEntry{
		UserID:   userID,
		Category: req.Category,
		Key:      req.Key,
		Content:  req.Content,
	}
	if len(req.Data) > 0 && string(req.Data) != "null" {
		entry.Data = req.Data
	}
	saved, err := s.memory.SaveLongTerm(r.Context(), entry)
	if err != nil {
		s.memoryError(w, userID, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handlePurgeMemory(w http.ResponseWriter, r *http.Request) {
	userID := types.UserID(r.PathValue("user_id"))
	n, err := s.memory.PurgeLongTerm(r.Context(), userID)
	if err != nil {
		s.memoryError(w, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "deleted": n})
}

func (s *Server) memoryError(w http.ResponseWriter, userID types.UserID, err error) {
	if errors.Is(err, memory.ErrLongTermUnavailable) {
		s.logger.Warn("long-term memory unavailable", "user_id", userID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "long-term memory is unavailable")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid memory entry")
}

// Checks are the dependencies probed by GET /health. A nil pinger reports
// unavailable.
type Checks struct {
	Durable   types.Pinger
	Ephemeral types.Pinger
	// EphemeralInProcess marks the in-process fallback used when no Redis
	// server is configured.
	EphemeralInProcess bool
	LLM                llm.Pinger
}

type healthResponse struct {
	Status         string `json:"status"`
	DurableStore   string `json:"durable_store"`
	EphemeralStore string `json:"ephemeral_store"`
	LLMBackend     string `json:"llm_backend"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		DurableStore:   s.probe(r.Context(), "durable_store", s.checks.Durable),
		EphemeralStore: s.probe(r.Context(), "ephemeral_store", s.checks.Ephemeral),
		LLMBackend:     s.probe(r.Context(), "llm_backend", s.checks.LLM),
	}
	if resp.EphemeralStore == "ok" && s.checks.EphemeralInProcess {
		resp.EphemeralStore = "degraded"
	}

	overall := types.Healthy
	for _, c := range []string{resp.DurableStore, resp.EphemeralStore, resp.LLMBackend} {
		if c != "ok" {
			overall = overall.Worse(types.Degraded)
		}
	}
	resp.Status = overall.String()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) probe(ctx context.Context, name string, p interface{ Ping(context.Context) error }) string {
	if p == nil {
		return "unavailable"
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "component", name, "error", err)
		return "unavailable"
	}
	return "ok"
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings)
}
