// internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/axiomos/internal/session"
	"github.com/user/axiomos/internal/state"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerFiresJob(t *testing.T) {
	var fires atomic.Int32
	sched := New(quietLogger(), Job{
		Name:     "every-second",
		Schedule: "* * * * * *",
		Run: func(ctx context.Context) error {
			fires.Add(1)
			return nil
		},
	})
	if n := sched.Start(); n != 1 {
		t.Fatalf("expected 1 registered job, got %d", n)
	}
	defer sched.Stop()

	// Wait up to 2.5 seconds for at least one fire
	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("job did not fire within 2.5s, fires=%d", fires.Load())
		case <-ticker.C:
			if fires.Load() > 0 {
				return
			}
		}
	}
}

func TestSchedulerSkipsInvalidSchedule(t *testing.T) {
	sched := New(quietLogger(),
		Job{Name: "bad", Schedule: "not a schedule", Run: func(context.Context) error { return nil }},
		Job{Name: "good", Schedule: "@every 1h", Run: func(context.Context) error { return nil }},
	)
	if n := sched.Start(); n != 1 {
		t.Errorf("expected 1 registered job, got %d", n)
	}
	sched.Stop()
}

type countingPruner struct{ calls int }

func (p *countingPruner) Prune() int {
	p.calls++
	return 2
}

func TestSweepJobRemovesExpiredSessions(t *testing.T) {
	store, err := state.Open(filepath.Join(t.TempDir(), "sweep.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	sessions := session.NewManager(store, 50*time.Millisecond, quietLogger())
	res := sessions.AuthenticateOrCreate(context.Background(), "", "U1")
	time.Sleep(100 * time.Millisecond)

	pruner := &countingPruner{}
	job := SweepJob("", sessions, pruner, quietLogger())
	if job.Schedule != DefaultSweepSchedule {
		t.Errorf("expected default schedule, got %q", job.Schedule)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if pruner.calls != 1 {
		t.Errorf("expected pruner to run once, got %d", pruner.calls)
	}
	if _, err := store.GetSession(context.Background(), res.Session.Token); err == nil {
		t.Error("expected expired session to be removed")
	}
}

type failingSweeper struct{}

func (failingSweeper) Sweep(context.Context) (int, error) { return 0, errors.New("database is locked") }

func TestSweepJobReportsError(t *testing.T) {
	pruner := &countingPruner{}
	job := SweepJob("@every 1m", failingSweeper{}, pruner, quietLogger())
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if pruner.calls != 0 {
		t.Error("pruner should not run after a failed sweep")
	}
}
