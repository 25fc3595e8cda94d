package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/axiomos/internal/config"
	"github.com/user/axiomos/internal/types"
	"github.com/user/axiomos/pkg/llm"
)

type echoProvider struct{}

func (echoProvider) Complete(ctx context.Context, messages []llm.Message, params llm.Params) (*llm.Response, error) {
	return &llm.Response{Content: "echo: " + messages[len(messages)-1].Content}, nil
}

func (echoProvider) Stream(ctx context.Context, messages []llm.Message, params llm.Params) (<-chan llm.Delta, error) {
	ch := make(chan llm.Delta, 1)
	ch <- llm.Delta{Content: "echo"}
	close(ch)
	return ch, nil
}

func testConfig(t *testing.T, withDB bool) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.LLM.APIKey = "test"
	if withDB {
		cfg.Database.Path = filepath.Join(cfg.DataDir, "axiomos.db")
	}
	return cfg
}

func TestNewAppServesChat(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, testConfig(t, true), echoProvider{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	a.start(ctx)

	srv := httptest.NewServer(a.server)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(`{"message":"hello"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Response     string `json:"response"`
		SessionToken string `json:"session_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Response != "echo: hello" {
		t.Errorf("response = %q", body.Response)
	}
	if body.SessionToken == "" {
		t.Error("expected session token")
	}

	sess, err := a.sessions.Get(ctx, types.SessionToken(body.SessionToken))
	if err != nil || sess == nil {
		t.Fatalf("session not persisted: %v", err)
	}
}

func TestNewAppWithoutDatabaseIsDegraded(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t, false), echoProvider{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if a.stores.durable != nil || !a.stores.inProcess {
		t.Fatalf("stores = %+v", a.stores)
	}
	if a.stores.sessionStore() != nil || a.stores.memoryStore() != nil {
		t.Error("expected nil store interfaces without a database")
	}

	rec := httptest.NewRecorder()
	a.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health struct {
		Status         string `json:"status"`
		DurableStore   string `json:"durable_store"`
		EphemeralStore string `json:"ephemeral_store"`
		LLMBackend     string `json:"llm_backend"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "degraded" || health.DurableStore != "unavailable" {
		t.Errorf("health = %+v", health)
	}
	if health.EphemeralStore != "degraded" {
		t.Errorf("ephemeral_store = %q, want degraded for the in-process store", health.EphemeralStore)
	}
	if health.LLMBackend != "unavailable" {
		t.Errorf("llm_backend = %q, want unavailable for a provider without Ping", health.LLMBackend)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARNING", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("héllo wörld", 8); got != "héllo..." {
		t.Errorf("truncate long = %q", got)
	}
}
