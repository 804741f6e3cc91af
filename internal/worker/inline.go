package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"scraperhub/internal/models"
)

// InlineQueue runs tasks on the spot instead of handing them to a separate
// worker process. It is the fallback when no Redis address is configured,
// which keeps single-process deployments working without extra services.
type InlineQueue struct {
	runner      *Runner
	resultTTL   time.Duration
	taskTimeout time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	results map[string]inlineResult
	running int
	closed  bool
	wg      sync.WaitGroup
}

type inlineResult struct {
	result  models.TaskResult
	expires time.Time
}

// NewInlineQueue creates an in-process queue over the runner
func NewInlineQueue(runner *Runner, resultTTL time.Duration, logger *zap.Logger) *InlineQueue {
	if resultTTL <= 0 {
		resultTTL = time.Hour
	}
	return &InlineQueue{
		runner:      runner,
		resultTTL:   resultTTL,
		taskTimeout: defaultTaskTimeout,
		logger:      logger,
		results:     make(map[string]inlineResult),
	}
}

// Enqueue starts the task immediately in the background. The result becomes
// available through GetResult once the task finishes.
func (q *InlineQueue) Enqueue(_ context.Context, task models.Task) error {
	if task.ID == "" {
		return fmt.Errorf("task id is required")
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue is closed")
	}
	q.running++
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()

		// The task outlives the enqueueing request, so it gets its own
		// context with the worker's task budget.
		ctx, cancel := context.WithTimeout(context.Background(), q.taskTimeout)
		defer cancel()

		result := q.runner.Process(ctx, task)

		q.mu.Lock()
		q.running--
		q.prune(time.Now())
		q.results[task.ID] = inlineResult{result: result, expires: time.Now().Add(q.resultTTL)}
		q.mu.Unlock()
	}()
	return nil
}

// Dequeue never yields tasks; inline tasks are consumed at enqueue time
func (q *InlineQueue) Dequeue(ctx context.Context, timeout time.Duration) (models.Task, error) {
	if timeout <= 0 {
		<-ctx.Done()
		return models.Task{}, ctx.Err()
	}
	select {
	case <-ctx.Done():
		return models.Task{}, ctx.Err()
	case <-time.After(timeout):
		return models.Task{}, ErrEmpty
	}
}

// StoreResult saves a result directly
func (q *InlineQueue) StoreResult(_ context.Context, result models.TaskResult) error {
	if result.TaskID == "" {
		return fmt.Errorf("task id is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.prune(time.Now())
	q.results[result.TaskID] = inlineResult{result: result, expires: time.Now().Add(q.resultTTL)}
	return nil
}

// GetResult fetches a finished task's result. Returns ErrNoResult while the
// task is still running or after the result expired.
func (q *InlineQueue) GetResult(_ context.Context, taskID string) (models.TaskResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, ok := q.results[taskID]
	if !ok || time.Now().After(stored.expires) {
		return models.TaskResult{}, ErrNoResult
	}
	return stored.result, nil
}

// Length reports the number of tasks currently executing
func (q *InlineQueue) Length(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(q.running), nil
}

// Close waits for running tasks to finish
func (q *InlineQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

// prune drops expired results; callers hold q.mu
func (q *InlineQueue) prune(now time.Time) {
	for id, stored := range q.results {
		if now.After(stored.expires) {
			delete(q.results, id)
		}
	}
}
