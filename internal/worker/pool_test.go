package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// sleeper squares its input after a delay and fails for the configured values.
type sleeper struct {
	delay     time.Duration
	fail      map[int]bool
	callCount atomic.Int32
}

func (s *sleeper) run(ctx context.Context, n int) (int, error) {
	s.callCount.Add(1)

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(s.delay):
	}

	if s.fail[n] {
		return 0, fmt.Errorf("task %d: %w", n, errors.New("simulated failure"))
	}
	return n * n, nil
}

func TestPool_BasicExecution(t *testing.T) {
	s := &sleeper{delay: 10 * time.Millisecond}
	pool := New(Config[int, int]{Workers: 2, Fn: s.run})

	tasks := []int{1, 2, 3}
	results := pool.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}

	for _, r := range results {
		if r.Err != nil {
			t.Errorf("Unexpected error for %d: %v", r.Task, r.Err)
		}
		if r.Value != r.Task*r.Task {
			t.Errorf("Expected %d for task %d, got %d", r.Task*r.Task, r.Task, r.Value)
		}
	}

	if s.callCount.Load() != int32(len(tasks)) {
		t.Errorf("Expected %d calls, got %d", len(tasks), s.callCount.Load())
	}
}

func TestPool_Parallelism(t *testing.T) {
	s := &sleeper{delay: 50 * time.Millisecond}
	pool := New(Config[int, int]{Workers: 4, Fn: s.run})

	tasks := make([]int, 8)
	for i := range tasks {
		tasks[i] = i
	}

	start := time.Now()
	results := pool.Run(context.Background(), tasks)
	elapsed := time.Since(start)

	// 8 tasks of 50ms on 4 workers is two rounds
	if elapsed > 300*time.Millisecond {
		t.Errorf("Expected parallel execution in ~100ms, took %v", elapsed)
	}
	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	s := &sleeper{delay: 5 * time.Millisecond, fail: map[int]bool{2: true}}
	pool := New(Config[int, int]{Workers: 2, Fn: s.run})

	results := pool.Run(context.Background(), []int{1, 2, 3})
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	var failCount int
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		failCount++
		if r.Task != 2 {
			t.Errorf("Unexpected failure for %d", r.Task)
		}
	}
	if failCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failCount)
	}
}

func TestPool_Cancellation(t *testing.T) {
	s := &sleeper{delay: 100 * time.Millisecond}
	pool := New(Config[int, int]{Workers: 2, Fn: s.run})

	tasks := make([]int, 10)
	for i := range tasks {
		tasks[i] = i
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results := pool.Run(ctx, tasks)
	elapsed := time.Since(start)

	if elapsed > 250*time.Millisecond {
		t.Errorf("Expected early cancellation, took %v", elapsed)
	}
	if len(results) != len(tasks) {
		t.Errorf("Expected a result for every task, got %d", len(results))
	}

	var cancelled int
	for _, r := range results {
		if errors.Is(r.Err, context.Canceled) {
			cancelled++
		}
	}
	if cancelled == 0 {
		t.Error("Expected cancelled results")
	}
}

func TestPool_ProgressCallback(t *testing.T) {
	s := &sleeper{delay: 5 * time.Millisecond, fail: map[int]bool{3: true}}

	var calls atomic.Int32
	var lastCompleted, lastTotal, lastFailed int
	pool := New(Config[int, int]{
		Workers: 2,
		Fn:      s.run,
		OnProgress: func(completed, total, failed int) {
			calls.Add(1)
			lastCompleted, lastTotal, lastFailed = completed, total, failed
		},
	})

	pool.Run(context.Background(), []int{1, 2, 3})

	if calls.Load() != 3 {
		t.Errorf("Expected 3 progress callbacks, got %d", calls.Load())
	}
	if lastCompleted != 3 || lastTotal != 3 || lastFailed != 1 {
		t.Errorf("Unexpected final progress %d/%d (%d failed)", lastCompleted, lastTotal, lastFailed)
	}
}

func TestPool_EmptyTasks(t *testing.T) {
	s := &sleeper{}
	pool := New(Config[int, int]{Workers: 2, Fn: s.run})

	if results := pool.Run(context.Background(), nil); len(results) != 0 {
		t.Errorf("Expected 0 results for empty tasks, got %d", len(results))
	}
	if s.callCount.Load() != 0 {
		t.Errorf("Expected 0 calls for empty tasks, got %d", s.callCount.Load())
	}
}

func TestPool_DefaultsToOneWorker(t *testing.T) {
	pool := New(Config[int, int]{Fn: (&sleeper{}).run})
	if pool.Workers() != 1 {
		t.Errorf("Expected 1 worker, got %d", pool.Workers())
	}
}
