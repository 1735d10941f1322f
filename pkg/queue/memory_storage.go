package queue

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRetryBackoff is the linear step between task-level retries.
const DefaultRetryBackoff = 30 * time.Second

// MemoryStorage keeps tasks in process memory. Deferred tasks are lost on
// restart.
type MemoryStorage struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]*Task
	dlq     []*DeadLetter
	backoff time.Duration
	now     func() time.Time
}

type MemoryOption func(*MemoryStorage)

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(ms *MemoryStorage) {
		if now != nil {
			ms.now = now
		}
	}
}

// WithMemoryRetryBackoff sets the delay step applied by FailTask. Zero makes
// a failed task due again at once.
func WithMemoryRetryBackoff(d time.Duration) MemoryOption {
	return func(ms *MemoryStorage) {
		if d >= 0 {
			ms.backoff = d
		}
	}
}

func NewMemoryStorage(opts ...MemoryOption) *MemoryStorage {
	ms := &MemoryStorage{
		tasks:   make(map[uuid.UUID]*Task),
		backoff: DefaultRetryBackoff,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(ms)
	}
	return ms
}

func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, exists := ms.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}
	c := *task
	ms.tasks[task.ID] = &c
	return nil
}

// ClaimTask picks the highest-priority due task, earliest schedule first.
// Tasks whose lock expired are claimable again.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	var best *Task
	for _, t := range ms.tasks {
		if !slices.Contains(queues, t.Queue) || !t.Claimable(now) {
			continue
		}
		if best == nil || t.Priority > best.Priority ||
			(t.Priority == best.Priority && t.ScheduledAt.Before(best.ScheduledAt)) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	lockUntil := now.Add(lockDuration)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID

	c := *best
	return &c, nil
}

func (ms *MemoryStorage) CompleteTask(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}
	now := ms.now()
	task.Status = TaskStatusCompleted
	task.ProcessedAt = &now
	task.LockedUntil = nil
	task.LockedBy = nil
	return nil
}

func (ms *MemoryStorage) FailTask(_ context.Context, taskID uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}
	task.RetryCount++
	task.Error = &errorMsg
	task.LockedUntil = nil
	task.LockedBy = nil
	if task.RetryCount > task.MaxRetries {
		task.Status = TaskStatusFailed
		return nil
	}
	task.Status = TaskStatusPending
	task.ScheduledAt = ms.now().Add(time.Duration(task.RetryCount) * ms.backoff)
	return nil
}

func (ms *MemoryStorage) MoveToDLQ(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, ok := ms.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	now := ms.now()
	entry := &DeadLetter{
		ID:         uuid.New(),
		TaskID:     task.ID,
		Queue:      task.Queue,
		TaskName:   task.TaskName,
		Payload:    task.Payload,
		Priority:   task.Priority,
		RetryCount: task.RetryCount,
		FailedAt:   now,
		CreatedAt:  task.CreatedAt,
	}
	if task.Error != nil {
		entry.Error = *task.Error
	}
	ms.dlq = append(ms.dlq, entry)
	delete(ms.tasks, taskID)
	return nil
}

// ListDLQ returns up to limit dead letters, newest first. A non-positive
// limit returns all of them.
func (ms *MemoryStorage) ListDLQ(_ context.Context, limit int) ([]DeadLetter, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	out := make([]DeadLetter, 0, len(ms.dlq))
	for _, e := range ms.dlq {
		out = append(out, *e)
	}
	slices.SortStableFunc(out, func(a, b DeadLetter) int { return b.FailedAt.Compare(a.FailedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Task returns a copy of a stored task.
func (ms *MemoryStorage) Task(_ context.Context, taskID uuid.UUID) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	t, ok := ms.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	c := *t
	return &c, nil
}

// Pending lists pending tasks ordered by schedule.
func (ms *MemoryStorage) Pending(_ context.Context) ([]Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var out []Task
	for _, t := range ms.tasks {
		if t.Status == TaskStatusPending {
			out = append(out, *t)
		}
	}
	slices.SortFunc(out, func(a, b Task) int { return cmp.Compare(a.ScheduledAt.UnixNano(), b.ScheduledAt.UnixNano()) })
	return out, nil
}

func (ms *MemoryStorage) processing(taskID uuid.UUID) (*Task, error) {
	task, ok := ms.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status != TaskStatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	return task, nil
}
