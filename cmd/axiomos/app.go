package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/user/axiomos/internal/cache"
	"github.com/user/axiomos/internal/config"
	ctxengine "github.com/user/axiomos/internal/context"
	"github.com/user/axiomos/internal/conversation"
	"github.com/user/axiomos/internal/gateway"
	"github.com/user/axiomos/internal/httpapi"
	"github.com/user/axiomos/internal/memory"
	"github.com/user/axiomos/internal/scheduler"
	"github.com/user/axiomos/internal/session"
	"github.com/user/axiomos/internal/state"
	"github.com/user/axiomos/internal/types"
	"github.com/user/axiomos/pkg/llm"
	"github.com/user/axiomos/pkg/llm/openai"
)

// stores holds the configured persistence backends. durable is nil when
// no database path is configured.
type stores struct {
	durable   *state.Store
	kv        types.KVStore
	inProcess bool
	redis     *cache.RedisStore
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	s := &stores{}
	if cfg.Database.Path != "" {
		db, err := state.Open(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.durable = db
	} else {
		logger.Warn("no database configured, long-term memory disabled (set DB_PATH)")
	}

	if cfg.Redis.Host != "" {
		s.redis = cache.NewRedisStore(cache.RedisOptions{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
			Timeout:  cfg.RedisTimeout(),
		})
		if err := s.redis.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, session memory degraded", "host", cfg.Redis.Host, "error", err)
		}
		s.kv = s.redis
	} else {
		s.kv = cache.NewMemoryStore()
		s.inProcess = true
	}
	return s, nil
}

// sessionStore returns the durable store as a SessionStore, or a nil
// interface when there is none.
func (s *stores) sessionStore() types.SessionStore {
	if s.durable == nil {
		return nil
	}
	return s.durable
}

func (s *stores) memoryStore() types.MemoryStore {
	if s.durable == nil {
		return nil
	}
	return s.durable
}

func (s *stores) Close() error {
	var errs []error
	if s.durable != nil {
		errs = append(errs, s.durable.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	return errors.Join(errs...)
}

// app is the wired service.
type app struct {
	stores   *stores
	sessions *session.Manager
	memory   *memory.Manager
	queue    *gateway.Queue
	orch     *conversation.Orchestrator
	server   *httpapi.Server
	sched    *scheduler.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config, provider llm.Provider, logger *slog.Logger) (*app, error) {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(st.sessionStore(), cfg.SessionTimeout(), logger)
	mem := memory.NewManager(st.kv, st.memoryStore(), memory.Options{
		MaxMessages: cfg.Session.MaxMessages,
		MaxBytes:    cfg.Session.MaxBytes,
	}, logger)
	builder := ctxengine.New(ctxengine.NewCounter(cfg.LLM.Model), cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	queue := gateway.NewQueue(int64(cfg.MaxConcurrent))
	orch := conversation.New(sessions, mem, builder, provider, queue, logger)

	checks := httpapi.Checks{Ephemeral: st.kv, EphemeralInProcess: st.inProcess}
	if st.durable != nil {
		checks.Durable = st.durable
	}
	if p, ok := provider.(llm.Pinger); ok {
		checks.LLM = p
	}
	server := httpapi.NewServer(httpapi.Options{
		Orchestrator: orch,
		Sessions:     sessions,
		Memory:       mem,
		Checks:       checks,
		Settings: httpapi.Settings{
			Model:          cfg.LLM.Model,
			MaxTokens:      cfg.LLM.MaxTokens,
			Temperature:    cfg.LLM.Temperature,
			SessionTimeout: cfg.Session.TimeoutSeconds,
			MaxMessages:    cfg.Session.MaxMessages,
		},
		Logger: logger,
	})

	var pruner scheduler.Pruner
	if ms, ok := st.kv.(*cache.MemoryStore); ok {
		pruner = ms
	}
	sched := scheduler.New(logger, scheduler.SweepJob(cfg.Session.SweepSchedule, sessions, pruner, logger))

	return &app{
		stores:   st,
		sessions: sessions,
		memory:   mem,
		queue:    queue,
		orch:     orch,
		server:   server,
		sched:    sched,
	}, nil
}

func newProvider(cfg *config.Config) *openai.Client {
	return openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLMTimeout(),
		MaxRetries:  cfg.LLM.MaxRetries,
	}, nil)
}

// start launches the queue and the maintenance scheduler.
func (a *app) start(ctx context.Context) {
	a.queue.Start(ctx)
	a.sched.Start()
}

func (a *app) Close() error {
	a.sched.Stop()
	a.queue.Stop()
	return a.stores.Close()
}
