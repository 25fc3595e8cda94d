package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/user/axiomos/internal/config"
	"github.com/user/axiomos/internal/memory"
	"github.com/user/axiomos/internal/session"
)

// admin is the slice of the service the offline subcommands need.
type admin struct {
	stores   *stores
	sessions *session.Manager
	memory   *memory.Manager
}

func openAdmin(ctx context.Context, cfg *config.Config) (*admin, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	mem := memory.NewManager(st.kv, st.memoryStore(), memory.Options{
		MaxMessages: cfg.Session.MaxMessages,
		MaxBytes:    cfg.Session.MaxBytes,
	}, logger)
	return &admin{
		stores:   st,
		sessions: session.NewManager(st.sessionStore(), cfg.SessionTimeout(), logger),
		memory:   mem,
	}, nil
}

func (a *admin) Close() error {
	return a.stores.Close()
}
