package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/prytaneum/townhall-notifier/pkg/logger"
	"github.com/prytaneum/townhall-notifier/pkg/metrics"
)

// WorkerRepository is the storage side of task processing.
type WorkerRepository interface {
	// ClaimTask locks the next due task or returns ErrNoTaskToClaim.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID) error
	// FailTask records errorMsg and increments the retry count. A task with
	// retries left becomes pending again after the storage's backoff.
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error
	MoveToDLQ(ctx context.Context, taskID uuid.UUID) error
}

// Outcomes reported in Stats and the jobs-processed metric.
const (
	OutcomeCompleted    = "completed"
	OutcomeRetrying     = "retrying"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeError        = "error"
)

// Stats counts what one ProcessDue call did.
type Stats struct {
	Claimed      int
	Completed    int
	Retrying     int
	DeadLettered int
	Errors       int
}

type Worker struct {
	repo     WorkerRepository
	queues   []string
	workerID uuid.UUID
	limit    int
	lock     time.Duration
	log      *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		queues:             []string{DefaultQueueName},
		lockTimeout:        5 * time.Minute,
		maxConcurrentTasks: 1,
		logger:             logger.Discard(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		repo:     repo,
		queues:   options.queues,
		workerID: uuid.New(),
		limit:    options.maxConcurrentTasks,
		lock:     options.lockTimeout,
		log:      options.logger.With(logger.Component("queue-worker")),
		handlers: make(map[string]Handler),
	}, nil
}

// ID identifies the worker in task locks.
func (w *Worker) ID() uuid.UUID { return w.workerID }

func (w *Worker) RegisterHandler(handler Handler) error {
	if handler == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[handler.Name()] = handler
	return nil
}

func (w *Worker) RegisterHandlers(handlers ...Handler) error {
	for _, h := range handlers {
		if err := w.RegisterHandler(h); err != nil {
			return err
		}
	}
	return nil
}

// ProcessDue claims due tasks until none is left and runs their handlers,
// at most WithMaxConcurrentTasks at a time. It returns when every claimed
// task has finished. Cancelling ctx stops further claims; running handlers
// complete within the lock timeout.
func (w *Worker) ProcessDue(ctx context.Context) (Stats, error) {
	w.mu.RLock()
	registered := len(w.handlers)
	w.mu.RUnlock()
	if registered == 0 {
		return Stats{}, ErrNoHandlers
	}

	var (
		stats    Stats
		mu       sync.Mutex
		claimErr error
		g        errgroup.Group
	)
	g.SetLimit(w.limit)

	for ctx.Err() == nil {
		task, err := w.repo.ClaimTask(ctx, w.workerID, w.queues, w.lock)
		if errors.Is(err, ErrNoTaskToClaim) {
			break
		}
		if err != nil {
			claimErr = fmt.Errorf("failed to claim task: %w", err)
			break
		}

		mu.Lock()
		stats.Claimed++
		mu.Unlock()

		g.Go(func() error {
			outcome := w.process(ctx, task)
			metrics.JobsProcessed.WithLabelValues(task.TaskName, outcome).Inc()

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case OutcomeCompleted:
				stats.Completed++
			case OutcomeRetrying:
				stats.Retrying++
			case OutcomeDeadLettered:
				stats.DeadLettered++
			default:
				stats.Errors++
			}
			return nil
		})
	}
	_ = g.Wait()

	return stats, claimErr
}

func (w *Worker) process(ctx context.Context, task *Task) string {
	// Status updates must land even when the caller is shutting down.
	ctx = context.WithoutCancel(ctx)
	log := w.log.With(
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.TaskName),
	)

	w.mu.RLock()
	handler, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()
	if !ok {
		log.ErrorContext(ctx, "no handler registered for task")
		return w.deadLetter(ctx, log, task, ErrHandlerNotFound.Error()+": "+task.TaskName)
	}

	start := time.Now()
	err := w.run(ctx, handler, task)
	if err == nil {
		if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
			log.ErrorContext(ctx, "failed to mark task completed", logger.Error(err))
			return OutcomeError
		}
		log.InfoContext(ctx, "task completed", logger.Duration(time.Since(start)))
		return OutcomeCompleted
	}

	log.ErrorContext(ctx, "task failed",
		slog.Int("retry_count", int(task.RetryCount)),
		slog.Int("max_retries", int(task.MaxRetries)),
		logger.Duration(time.Since(start)),
		logger.Error(err),
	)
	if task.Exhausted() {
		return w.deadLetter(ctx, log, task, err.Error())
	}
	if err := w.repo.FailTask(ctx, task.ID, err.Error()); err != nil {
		log.ErrorContext(ctx, "failed to record task failure", logger.Error(err))
		return OutcomeError
	}
	return OutcomeRetrying
}

func (w *Worker) run(ctx context.Context, handler Handler, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, w.lock)
	defer cancel()
	return handler.Handle(ctx, task.Payload)
}

func (w *Worker) deadLetter(ctx context.Context, log *slog.Logger, task *Task, reason string) string {
	if err := w.repo.FailTask(ctx, task.ID, reason); err != nil {
		log.ErrorContext(ctx, "failed to record task failure", logger.Error(err))
		return OutcomeError
	}
	if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
		log.ErrorContext(ctx, "failed to move task to dead letter queue", logger.Error(err))
		return OutcomeError
	}
	log.WarnContext(ctx, "task moved to dead letter queue")
	return OutcomeDeadLettered
}
