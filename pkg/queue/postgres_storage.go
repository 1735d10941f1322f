package queue

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/prytaneum/townhall-notifier/pkg/pg"
)

// Migrations holds the goose migrations for PostgresStorage, under
// "migrations".
//
//go:embed migrations/*.sql
var Migrations embed.FS

// DB is the subset of *pgxpool.Pool used by PostgresStorage.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStorage persists tasks so deferred jobs survive restarts. Claims
// use FOR UPDATE SKIP LOCKED, so several workers can share the table.
type PostgresStorage struct {
	db      DB
	backoff time.Duration
}

func NewPostgresStorage(db DB, retryBackoff time.Duration) *PostgresStorage {
	if retryBackoff < 0 {
		retryBackoff = DefaultRetryBackoff
	}
	return &PostgresStorage{db: db, backoff: retryBackoff}
}

const taskColumns = `id, queue, task_name, payload, status, priority, retry_count, max_retries,
	scheduled_at, locked_until, locked_by, processed_at, error, created_at`

func (s *PostgresStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}
	_, err := s.db.Exec(ctx, `INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, NULL, NULL, NULL, $10)`,
		task.ID, task.Queue, task.TaskName, task.Payload, string(task.Status),
		int16(task.Priority), int16(task.RetryCount), int16(task.MaxRetries),
		task.ScheduledAt, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	row := s.db.QueryRow(ctx, `UPDATE tasks
		SET status = 'processing',
		    locked_until = now() + $3::float8 * interval '1 second',
		    locked_by = $2
		WHERE id = (
			SELECT id FROM tasks
			WHERE queue = ANY($1)
			  AND ((status = 'pending' AND scheduled_at <= now())
			    OR (status = 'processing' AND locked_until < now()))
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		queues, workerID, lockDuration.Seconds(),
	)
	task, err := scanTask(row)
	if pg.IsNotFoundError(err) {
		return nil, ErrNoTaskToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

func (s *PostgresStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `UPDATE tasks
		SET status = 'completed', processed_at = now(), locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, taskID)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	return nil
}

func (s *PostgresStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	tag, err := s.db.Exec(ctx, `UPDATE tasks
		SET retry_count = retry_count + 1,
		    error = $2,
		    locked_until = NULL,
		    locked_by = NULL,
		    status = CASE WHEN retry_count + 1 > max_retries THEN 'failed' ELSE 'pending' END,
		    scheduled_at = CASE WHEN retry_count + 1 > max_retries THEN scheduled_at
		        ELSE now() + (retry_count + 1) * $3::float8 * interval '1 second' END
		WHERE id = $1 AND status = 'processing'`,
		taskID, errorMsg, s.backoff.Seconds())
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	return nil
}

func (s *PostgresStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `WITH moved AS (
			DELETE FROM tasks WHERE id = $1
			RETURNING id, queue, task_name, payload, priority, COALESCE(error, '') AS error, retry_count, created_at
		)
		INSERT INTO tasks_dlq (id, task_id, queue, task_name, payload, priority, error, retry_count, failed_at, created_at)
		SELECT $2, id, queue, task_name, payload, priority, error, retry_count, now(), created_at FROM moved`,
		taskID, uuid.New())
	if err != nil {
		return fmt.Errorf("move task to dlq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return nil
}

// ListDLQ returns up to limit dead letters, newest first.
func (s *PostgresStorage) ListDLQ(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `SELECT id, task_id, queue, task_name, payload, priority, error, retry_count, failed_at, created_at
		FROM tasks_dlq ORDER BY failed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dlq: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DeadLetter, error) {
		var (
			e               DeadLetter
			priority, count int16
		)
		err := row.Scan(&e.ID, &e.TaskID, &e.Queue, &e.TaskName, &e.Payload, &priority,
			&e.Error, &count, &e.FailedAt, &e.CreatedAt)
		e.Priority = Priority(priority)
		e.RetryCount = int8(count)
		return e, err
	})
}

func scanTask(row pgx.Row) (*Task, error) {
	var (
		t                         Task
		status                    string
		priority, count, maxRetry int16
	)
	err := row.Scan(&t.ID, &t.Queue, &t.TaskName, &t.Payload, &status, &priority, &count, &maxRetry,
		&t.ScheduledAt, &t.LockedUntil, &t.LockedBy, &t.ProcessedAt, &t.Error, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = TaskStatus(status)
	t.Priority = Priority(priority)
	t.RetryCount = int8(count)
	t.MaxRetries = int8(maxRetry)
	return &t, nil
}
