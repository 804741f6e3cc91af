package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"scraperhub/internal/models"
)

// ErrEmpty is returned when a dequeue times out with no task available
var ErrEmpty = errors.New("queue is empty")

// ErrNoResult is returned when a task result is missing or expired
var ErrNoResult = errors.New("result not available")

const connectTimeout = 2 * time.Second

// Queue hands tasks from the API to a worker and carries results back.
// Results are kept for a limited time after the task finishes.
type Queue interface {
	Enqueue(ctx context.Context, task models.Task) error
	Dequeue(ctx context.Context, timeout time.Duration) (models.Task, error)
	StoreResult(ctx context.Context, result models.TaskResult) error
	GetResult(ctx context.Context, taskID string) (models.TaskResult, error)
	Length(ctx context.Context) (int64, error)
	Close() error
}

// RedisQueue is a Redis-backed task queue. Tasks are pushed to a list and
// popped by workers with a blocking read; results live under their own keys
// with a TTL.
type RedisQueue struct {
	client    *redis.Client
	queue     string
	resultTTL time.Duration
	logger    *zap.Logger
}

// NewRedisQueue connects to Redis and verifies the connection
func NewRedisQueue(addr, password string, db int, queueName string, resultTTL time.Duration, logger *zap.Logger) (*RedisQueue, error) {
	if queueName == "" {
		queueName = "main-queue"
	}
	if resultTTL <= 0 {
		resultTTL = time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis connection established", zap.String("addr", addr), zap.String("queue", queueName))
	return &RedisQueue{
		client:    client,
		queue:     queueName,
		resultTTL: resultTTL,
		logger:    logger,
	}, nil
}

// Enqueue pushes a task onto the queue
func (q *RedisQueue) Enqueue(ctx context.Context, task models.Task) error {
	if task.ID == "" {
		return fmt.Errorf("task id is required")
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	if err := q.client.LPush(ctx, q.queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.Debug("Task enqueued",
		zap.String("task_id", task.ID),
		zap.String("game", task.Game),
		zap.String("action", task.Action))
	return nil
}

// Dequeue pops the oldest task, blocking up to timeout. Returns ErrEmpty
// when the wait expires with nothing to do.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (models.Task, error) {
	values, err := q.client.BRPop(ctx, timeout, q.queue).Result()
	if errors.Is(err, redis.Nil) {
		return models.Task{}, ErrEmpty
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to dequeue task: %w", err)
	}
	if len(values) != 2 {
		return models.Task{}, fmt.Errorf("unexpected BRPOP reply of %d values", len(values))
	}

	var task models.Task
	if err := json.Unmarshal([]byte(values[1]), &task); err != nil {
		return models.Task{}, fmt.Errorf("failed to decode task: %w", err)
	}
	return task, nil
}

// StoreResult saves a finished task's outcome under its result key
func (q *RedisQueue) StoreResult(ctx context.Context, result models.TaskResult) error {
	if result.TaskID == "" {
		return fmt.Errorf("task id is required")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := q.client.Set(ctx, resultKey(result.TaskID), payload, q.resultTTL).Err(); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return nil
}

// GetResult fetches a stored result. Returns ErrNoResult when the task has
// not finished or the result already expired.
func (q *RedisQueue) GetResult(ctx context.Context, taskID string) (models.TaskResult, error) {
	payload, err := q.client.Get(ctx, resultKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.TaskResult{}, ErrNoResult
	}
	if err != nil {
		return models.TaskResult{}, fmt.Errorf("failed to fetch result: %w", err)
	}

	var result models.TaskResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return models.TaskResult{}, fmt.Errorf("failed to decode result: %w", err)
	}
	return result, nil
}

// Length reports how many tasks are waiting
func (q *RedisQueue) Length(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.queue).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}

// Close releases the Redis connection
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func resultKey(taskID string) string {
	return "result:" + taskID
}
