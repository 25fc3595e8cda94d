package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/axiomos/internal/types"
)

func startQueue(t *testing.T, maxConcurrent int64) *Queue {
	t.Helper()
	queue := NewQueue(maxConcurrent)
	queue.Start(context.Background())
	t.Cleanup(queue.Stop)
	return queue
}

func TestQueueConcurrency(t *testing.T) {
	queue := startQueue(t, 2)

	var running, maxSeen int32
	work := func(context.Context) error {
		current := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if current <= old || atomic.CompareAndSwapInt32(&maxSeen, old, current) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := types.SessionToken(fmt.Sprintf("session-%d", i))
			if err := queue.Do(context.Background(), token, work); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	if m := atomic.LoadInt32(&maxSeen); m > 2 {
		t.Errorf("expected max 2 concurrent, saw %d", m)
	}
}

func TestQueueSameSessionOrdering(t *testing.T) {
	queue := startQueue(t, 4)

	var mu sync.Mutex
	var order []int
	release := make(chan struct{})

	// Hold the lane so the following runs queue up behind it.
	first := make(chan error, 1)
	go func() {
		first <- queue.Do(context.Background(), "same", func(context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			queue.Do(context.Background(), "same", func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		// Stagger submissions so lane order is the submission order.
		time.Sleep(20 * time.Millisecond)
	}
	close(release)
	wg.Wait()
	<-first

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Errorf("expected order[%d] = %d, got %d", i, i, v)
		}
	}
}

func TestQueueSameSessionNeverOverlaps(t *testing.T) {
	queue := startQueue(t, 8)

	var inFlight, overlap int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			queue.Do(context.Background(), "s", func(context.Context) error {
				if atomic.AddInt32(&inFlight, 1) > 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if overlap != 0 {
		t.Error("turns of the same session overlapped")
	}
}

func TestQueueReturnsWorkError(t *testing.T) {
	queue := startQueue(t, 1)
	want := errors.New("boom")

	err := queue.Do(context.Background(), "s", func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("expected work error, got %v", err)
	}
}

func TestQueueEmptyTokenRunsInline(t *testing.T) {
	queue := startQueue(t, 1)

	ran := false
	if err := queue.Do(context.Background(), "", func(context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("expected work to run")
	}
	if queue.Lanes() != 0 {
		t.Errorf("expected no lanes for inline runs, got %d", queue.Lanes())
	}
}

func TestQueueCancelledWhileQueuedNeverRuns(t *testing.T) {
	queue := startQueue(t, 4)
	release := make(chan struct{})

	go queue.Do(context.Background(), "s", func(context.Context) error {
		<-release
		return nil
	})
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	errCh := make(chan error, 1)
	go func() {
		errCh <- queue.Do(ctx, "s", func(context.Context) error {
			ran.Store(true)
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	close(release)
	queue.WaitIdle(time.Second)
	time.Sleep(20 * time.Millisecond)
	if ran.Load() {
		t.Error("abandoned run must not execute")
	}
}

func TestQueueReapsIdleLanes(t *testing.T) {
	queue := NewQueue(2)
	queue.IdleTimeout = 20 * time.Millisecond
	queue.Start(context.Background())
	defer queue.Stop()

	for _, token := range []types.SessionToken{"a", "b"} {
		if err := queue.Do(context.Background(), token, func(context.Context) error { return nil }); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for queue.Lanes() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := queue.Lanes(); n != 0 {
		t.Errorf("expected idle lanes reaped, %d left", n)
	}

	// A reaped lane is recreated on demand.
	if err := queue.Do(context.Background(), "a", func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
}

func TestQueueStopped(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	queue.Stop()

	err := queue.Do(context.Background(), "s", func(context.Context) error { return nil })
	if !errors.Is(err, ErrQueueStopped) {
		t.Errorf("expected ErrQueueStopped, got %v", err)
	}
}
