// Package httpapi exposes the conversation engine over HTTP: JSON chat,
// server-sent event and WebSocket streaming, and session, memory, health
// and configuration resources.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/axiomos/internal/conversation"
	"github.com/user/axiomos/internal/gateway"
	"github.com/user/axiomos/internal/memory"
	"github.com/user/axiomos/internal/session"
)

// Settings are the non-secret generation settings reported by GET /config.
type Settings struct {
	Model          string  `json:"model"`
	MaxTokens      int     `json:"max_tokens"`
	Temperature    float64 `json:"temperature"`
	SessionTimeout int     `json:"session_timeout"`
	MaxMessages    int     `json:"max_session_messages"`
}

// Options wires a Server.
type Options struct {
	Orchestrator *conversation.Orchestrator
	Sessions     *session.Manager
	Memory       *memory.Manager
	Checks       Checks
	Settings     Settings
	Logger       *slog.Logger
}

// Server is the HTTP handler for the chat API.
type Server struct {
	orch     *conversation.Orchestrator
	sessions *session.Manager
	memory   *memory.Manager
	checks   Checks
	settings Settings
	logger   *slog.Logger
	mux      *http.ServeMux
	handler  http.Handler
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		orch:     opts.Orchestrator,
		sessions: opts.Sessions,
		memory:   opts.Memory,
		checks:   opts.Checks,
		settings: opts.Settings,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("POST /chat/stream", s.handleChatStream)
	s.mux.HandleFunc("GET /chat/ws", s.handleChatWS)
	s.mux.HandleFunc("GET /session/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /session/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("GET /memory/{user_id}", s.handleListMemory)
	s.mux.HandleFunc("POST /memory/{user_id}", s.handleAddMemory)
	s.mux.HandleFunc("DELETE /memory/{user_id}", s.handlePurgeMemory)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /config", s.handleConfig)

	s.handler = chain(s.mux, s.withLogging, withCORS)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// withCORS allows browser front-ends on any origin.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// chain applies middlewares in order; the last one is outermost.
func chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for _, m := range middlewares {
		h = m(h)
	}
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error        string `json:"error"`
	SessionToken string `json:"session_token,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// publicError maps a turn error to a status code and a message that carries
// no internal detail.
func publicError(err error) (int, string) {
	switch {
	case errors.Is(err, conversation.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, conversation.ErrBackend):
		return http.StatusBadGateway, "language model request failed"
	case errors.Is(err, gateway.ErrQueueStopped):
		return http.StatusServiceUnavailable, "service is shutting down"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
