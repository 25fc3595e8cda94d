package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/axiomos/internal/types"
)

// ErrQueueStopped is returned for runs submitted to a stopped queue.
var ErrQueueStopped = errors.New("queue stopped")

const (
	laneBuffer         = 64
	defaultIdleTimeout = time.Minute
)

type lane struct {
	runs chan *Run
}

// Queue manages per-session lanes with a global concurrency semaphore.
// Each session gets its own FIFO channel (lane) so that turns within a
// session are processed sequentially, while the semaphore limits the
// total number of concurrently executing turns across all sessions.
// Lanes that stay empty for IdleTimeout are reaped.
type Queue struct {
	lanes       map[types.SessionToken]*lane
	semaphore   *semaphore.Weighted
	active      atomic.Int64
	IdleTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewQueue creates a Queue that allows up to maxConcurrent runs to execute
// simultaneously across all session lanes.
func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	return &Queue{
		lanes:       make(map[types.SessionToken]*lane),
		semaphore:   semaphore.NewWeighted(maxConcurrent),
		IdleTimeout: defaultIdleTimeout,
	}
}

// Start initialises the queue's context. Must be called before Do.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context and waits for lane processors to exit.
// Runs still queued are abandoned.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// Do runs work on the lane for token and waits for it. Runs with an empty
// token skip the lanes and only take a semaphore slot. When ctx ends while
// the run is still queued, Do returns ctx.Err() and work never runs; once
// work started, Do always waits for it to return.
func (q *Queue) Do(ctx context.Context, token types.SessionToken, work func(context.Context) error) error {
	if q.ctx == nil {
		return fmt.Errorf("do run: %w", ErrQueueStopped)
	}
	if token == "" {
		return q.runInline(ctx, work)
	}

	run := NewRun(ctx, token, work)
	if err := q.enqueue(run); err != nil {
		return err
	}

	select {
	case <-run.Done():
		return run.Err()
	case <-ctx.Done():
		if run.abandon(ctx.Err()) {
			return ctx.Err()
		}
	case <-q.ctx.Done():
		if run.abandon(ErrQueueStopped) {
			return ErrQueueStopped
		}
	}
	<-run.Done()
	return run.Err()
}

func (q *Queue) runInline(ctx context.Context, work func(context.Context) error) error {
	if err := q.semaphore.Acquire(ctx, 1); err != nil {
		return err
	}
	defer q.semaphore.Release(1)
	q.active.Add(1)
	defer q.active.Add(-1)
	return work(ctx)
}

// enqueue adds run to its session's lane, creating the lane (and its
// goroutine) on first use.
func (q *Queue) enqueue(run *Run) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx.Err() != nil {
		return ErrQueueStopped
	}

	l, exists := q.lanes[run.SessionToken]
	if !exists {
		l = &lane{runs: make(chan *Run, laneBuffer)}
		q.lanes[run.SessionToken] = l
		q.wg.Add(1)
		go q.processLane(run.SessionToken, l)
	}

	select {
	case l.runs <- run:
		return nil
	default:
		return fmt.Errorf("queue full for session %s", run.SessionToken)
	}
}

// processLane drains a single session lane, acquiring a semaphore slot
// before running each turn synchronously. This ensures strict FIFO
// ordering within a session while the semaphore limits cross-session
// parallelism.
func (q *Queue) processLane(token types.SessionToken, l *lane) {
	defer q.wg.Done()

	idle := time.NewTimer(q.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case run := <-l.runs:
			q.process(run)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(q.IdleTimeout)
		case <-idle.C:
			q.mu.Lock()
			if len(l.runs) == 0 {
				delete(q.lanes, token)
				q.mu.Unlock()
				slog.Debug("lane reaped", "session", token)
				return
			}
			q.mu.Unlock()
			idle.Reset(q.IdleTimeout)
		case <-q.ctx.Done():
			q.drain(l)
			return
		}
	}
}

func (q *Queue) process(run *Run) {
	if err := q.semaphore.Acquire(run.ctx, 1); err != nil {
		run.abandon(err)
		return
	}
	defer q.semaphore.Release(1)

	if !run.begin() {
		return
	}
	q.active.Add(1)
	defer q.active.Add(-1)

	run.execute()
	if err := run.Err(); err != nil {
		slog.Debug("run failed", "run_id", string(run.ID), "session", string(run.SessionToken), "error", err)
	}
}

// drain abandons runs left in a lane at shutdown.
func (q *Queue) drain(l *lane) {
	for {
		select {
		case run := <-l.runs:
			run.abandon(ErrQueueStopped)
		default:
			return
		}
	}
}

// Active returns the number of runs currently executing.
func (q *Queue) Active() int64 {
	return q.active.Load()
}

// Lanes returns the number of live session lanes.
func (q *Queue) Lanes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

// WaitIdle blocks until no runs are actively being processed, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
