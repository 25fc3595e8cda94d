package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/user/axiomos/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
	RunStatusAbandoned RunStatus = "abandoned"
)

// Run tracks one conversation turn scheduled on a session lane.
type Run struct {
	ID           types.RunID
	SessionToken types.SessionToken
	CreatedAt    time.Time

	ctx  context.Context
	work func(context.Context) error
	done chan struct{}

	mu        sync.Mutex
	status    RunStatus
	startedAt time.Time
	endedAt   time.Time
	err       error
}

// NewRun creates a Run in the Queued state.
func NewRun(ctx context.Context, token types.SessionToken, work func(context.Context) error) *Run {
	return &Run{
		ID:           types.NewRunID(),
		SessionToken: token,
		CreatedAt:    time.Now(),
		ctx:          ctx,
		work:         work,
		done:         make(chan struct{}),
		status:       RunStatusQueued,
	}
}

func (r *Run) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed once the run finished or was skipped.
func (r *Run) Done() <-chan struct{} { return r.done }

// begin moves a queued run to Running. It fails when the run was abandoned
// or its context is already cancelled; the run is then finished as abandoned.
func (r *Run) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != RunStatusQueued {
		return false
	}
	if err := r.ctx.Err(); err != nil {
		r.status = RunStatusAbandoned
		r.err = err
		r.endedAt = time.Now()
		close(r.done)
		return false
	}
	r.status = RunStatusRunning
	r.startedAt = time.Now()
	return true
}

// abandon marks a queued run so it is never started. It reports false when
// the run already started.
func (r *Run) abandon(err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.status {
	case RunStatusQueued:
		r.status = RunStatusAbandoned
		r.err = err
		r.endedAt = time.Now()
		close(r.done)
		return true
	case RunStatusAbandoned:
		return true
	}
	return false
}

func (r *Run) execute() {
	err := r.work(r.ctx)

	r.mu.Lock()
	r.err = err
	r.endedAt = time.Now()
	if err != nil {
		r.status = RunStatusFailed
	} else {
		r.status = RunStatusComplete
	}
	r.mu.Unlock()
	close(r.done)
}

// Elapsed reports how long the run executed, zero if it never started.
func (r *Run) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startedAt.IsZero() || r.endedAt.IsZero() {
		return 0
	}
	return r.endedAt.Sub(r.startedAt)
}
