package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository persists new tasks.
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

type Enqueuer struct {
	repo            EnqueuerRepository
	defaultQueue    string
	defaultPriority Priority
	now             func() time.Time
}

func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &enqueuerOptions{
		defaultQueue:    DefaultQueueName,
		defaultPriority: PriorityDefault,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		repo:            repo,
		defaultQueue:    options.defaultQueue,
		defaultPriority: options.defaultPriority,
		now:             options.now,
	}, nil
}

// Enqueue stores payload as a JSON task and returns its id. The task name
// defaults to the payload's type name, which is how NewTaskHandler routes it.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	if payload == nil {
		return uuid.Nil, ErrPayloadNil
	}

	options := &enqueueOptions{
		queue:      e.defaultQueue,
		priority:   e.defaultPriority,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(options)
	}
	if !options.priority.Valid() {
		return uuid.Nil, ErrInvalidPriority
	}

	task, err := e.buildTask(payload, options)
	if err != nil {
		return uuid.Nil, err
	}
	if err := e.repo.CreateTask(ctx, task); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create task %q in queue %q: %w", task.TaskName, task.Queue, err)
	}
	return task.ID, nil
}

func (e *Enqueuer) buildTask(payload any, options *enqueueOptions) (*Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload of type %T: %w", payload, err)
	}

	name := options.taskName
	if name == "" {
		name = qualifiedStructName(payload)
	}

	now := e.now()
	scheduledAt := now
	switch {
	case options.scheduledAt != nil:
		scheduledAt = *options.scheduledAt
	case options.delay > 0:
		scheduledAt = now.Add(options.delay)
	}

	id := options.taskID
	if id == uuid.Nil {
		id = uuid.New()
	}

	return &Task{
		ID:          id,
		Queue:       options.queue,
		TaskName:    name,
		Payload:     raw,
		Status:      TaskStatusPending,
		Priority:    options.priority,
		MaxRetries:  options.maxRetries,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
	}, nil
}
