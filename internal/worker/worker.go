package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scraperhub/internal/models"
	"scraperhub/internal/scrapers"
	"scraperhub/internal/storage"
)

const (
	defaultPollTimeout = 5 * time.Second
	defaultTaskTimeout = 2 * time.Minute
)

// ScraperFactory builds a scraper instance for a game name
type ScraperFactory interface {
	New(game string) (scrapers.Scraper, error)
}

// Runner executes a single task against the matching game console and
// records the outcome in the transaction log.
type Runner struct {
	factory ScraperFactory
	txlog   storage.TransactionLog
	logger  *zap.Logger
}

// NewRunner creates a task runner. txlog may be nil to skip recording.
func NewRunner(factory ScraperFactory, txlog storage.TransactionLog, logger *zap.Logger) *Runner {
	return &Runner{factory: factory, txlog: txlog, logger: logger}
}

// Process runs one task to completion and returns its stored form
func (r *Runner) Process(ctx context.Context, task models.Task) models.TaskResult {
	r.logger.Info("Task started",
		zap.String("task_id", task.ID),
		zap.String("game", task.Game),
		zap.String("action", task.Action))

	res := r.execute(ctx, task)
	r.record(ctx, task, res)

	r.logger.Info("Task finished",
		zap.String("task_id", task.ID),
		zap.String("status", res.Status),
		zap.String("message", res.Message))

	return models.TaskResult{
		TaskID:     task.ID,
		Status:     res.Status,
		Message:    res.Message,
		Data:       res.Data,
		FinishedAt: time.Now().UTC(),
	}
}

func (r *Runner) execute(ctx context.Context, task models.Task) scrapers.Result {
	action := scrapers.NormalizeAction(task.Action)
	if action == "" {
		return scrapers.Errf("unknown action %q", task.Action)
	}

	scraper, err := r.factory.New(task.Game)
	if err != nil {
		return scrapers.Errf("%v", err)
	}
	defer scraper.Close()

	switch action {
	case scrapers.ActionAgentBalance:
		return scraper.AgentBalance(ctx)
	case scrapers.ActionSignup:
		fullname, _ := task.Metadata["full_name"].(string)
		return scraper.PlayerSignup(ctx, fullname, task.Username)
	case scrapers.ActionRecharge:
		if task.Username == "" {
			return scrapers.Errf("username is required for recharge")
		}
		if task.Amount <= 0 {
			return scrapers.Errf("amount must be positive")
		}
		return scraper.Recharge(ctx, task.Username, task.Amount)
	case scrapers.ActionRedeem:
		if task.Username == "" {
			return scrapers.Errf("username is required for redeem")
		}
		if task.Amount <= 0 {
			return scrapers.Errf("amount must be positive")
		}
		return scraper.Redeem(ctx, task.Username, task.Amount)
	default:
		return scrapers.Errf("unknown action %q", task.Action)
	}
}

func (r *Runner) record(ctx context.Context, task models.Task, res scrapers.Result) {
	if r.txlog == nil {
		return
	}

	username := task.Username
	if created, ok := res.Data["username"].(string); ok && created != "" {
		username = created
	}
	tx := models.Transaction{
		ID:        uuid.NewString(),
		Game:      task.Game,
		Action:    scrapers.NormalizeAction(task.Action),
		Username:  username,
		Amount:    task.Amount,
		Status:    res.Status,
		Message:   res.Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.txlog.RecordTransaction(ctx, tx); err != nil {
		r.logger.Error("Failed to record transaction",
			zap.String("task_id", task.ID),
			zap.Error(err))
	}
}

// Worker consumes tasks from a queue one at a time. Vendor consoles throttle
// concurrent agent sessions, so a single consumer per process is intentional;
// run more processes for more throughput.
type Worker struct {
	queue  Queue
	runner *Runner
	logger *zap.Logger

	pollTimeout time.Duration
	taskTimeout time.Duration
}

// New creates a worker over the queue
func New(queue Queue, runner *Runner, logger *zap.Logger) *Worker {
	return &Worker{
		queue:       queue,
		runner:      runner,
		logger:      logger,
		pollTimeout: defaultPollTimeout,
		taskTimeout: defaultTaskTimeout,
	}
}

// Run consumes tasks until the context is cancelled
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Worker started")
	defer w.logger.Info("Worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		task, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if errors.Is(err, ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("Failed to dequeue task", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		w.handle(ctx, task)
	}
}

func (w *Worker) handle(parent context.Context, task models.Task) {
	ctx, cancel := context.WithTimeout(parent, w.taskTimeout)
	defer cancel()

	result := w.runner.Process(ctx, task)
	if err := w.queue.StoreResult(parent, result); err != nil {
		w.logger.Error("Failed to store task result",
			zap.String("task_id", task.ID),
			zap.Error(err))
	}
}
