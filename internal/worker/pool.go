// Package worker provides a bounded parallel worker pool for CPU-bound jobs
// such as cluster index builds and batched dataset writes.
package worker

import (
	"context"
	"sync"
	"time"
)

// Func processes one task.
type Func[T, R any] func(ctx context.Context, task T) (R, error)

// Result represents the outcome of a single task.
type Result[T, R any] struct {
	Task    T
	Value   R
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// Config configures the worker pool.
type Config[T, R any] struct {
	Workers    int
	Fn         Func[T, R]
	OnProgress ProgressFunc
}

// Pool runs tasks in parallel on a fixed number of goroutines.
type Pool[T, R any] struct {
	workers    int
	fn         Func[T, R]
	onProgress ProgressFunc
}

// New creates a new worker pool.
func New[T, R any](cfg Config[T, R]) *Pool[T, R] {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if cfg.Fn == nil {
		panic("worker: nil Fn")
	}

	return &Pool[T, R]{
		workers:    workers,
		fn:         cfg.Fn,
		onProgress: cfg.OnProgress,
	}
}

// Workers returns the configured parallelism.
func (p *Pool[T, R]) Workers() int { return p.workers }

// Run executes all tasks and returns one result per task, in completion order.
// It blocks until every task has produced a result. Tasks still queued when ctx
// is cancelled are reported with ctx.Err().
func (p *Pool[T, R]) Run(ctx context.Context, tasks []T) []Result[T, R] {
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan T, len(tasks))
	resultCh := make(chan Result[T, R], len(tasks))

	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)

	var wg sync.WaitGroup
	for i := 0; i < min(p.workers, len(tasks)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, taskCh, resultCh)
		}()
	}

	results := make([]Result[T, R], 0, len(tasks))
	done := make(chan struct{})

	go func() {
		var completed, failed int
		for result := range resultCh {
			results = append(results, result)

			completed++
			if result.Err != nil {
				failed++
			}
			if p.onProgress != nil {
				p.onProgress(completed, len(tasks), failed)
			}
		}
		close(done)
	}()

	wg.Wait()
	close(resultCh)
	<-done

	return results
}

func (p *Pool[T, R]) worker(ctx context.Context, tasks <-chan T, results chan<- Result[T, R]) {
	for task := range tasks {
		if err := ctx.Err(); err != nil {
			results <- Result[T, R]{Task: task, Err: err}
			continue
		}

		start := time.Now()
		value, err := p.fn(ctx, task)
		results <- Result[T, R]{
			Task:    task,
			Value:   value,
			Err:     err,
			Elapsed: time.Since(start),
		}
	}
}
