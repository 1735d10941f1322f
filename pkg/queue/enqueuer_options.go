package queue

import (
	"time"

	"github.com/google/uuid"
)

type EnqueuerOption func(*enqueuerOptions)

type enqueuerOptions struct {
	defaultQueue    string
	defaultPriority Priority
	now             func() time.Time
}

func WithDefaultQueue(queue string) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if queue != "" {
			o.defaultQueue = queue
		}
	}
}

// WithEnqueuerClock replaces time.Now for scheduling and CreatedAt.
func WithEnqueuerClock(now func() time.Time) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	taskID      uuid.UUID
	queue       string
	priority    Priority
	maxRetries  int8
	delay       time.Duration
	scheduledAt *time.Time
	taskName    string
}

// WithTaskID sets the task id, for example to reuse a job id.
func WithTaskID(id uuid.UUID) EnqueueOption {
	return func(o *enqueueOptions) {
		o.taskID = id
	}
}

func WithPriority(priority Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = priority
	}
}

// WithMaxRetries sets the task-level retry budget (0-10). Zero sends the
// task to the dead letter queue on its first failure.
func WithMaxRetries(maxRetries int8) EnqueueOption {
	return func(o *enqueueOptions) {
		if maxRetries >= 0 && maxRetries <= 10 {
			o.maxRetries = maxRetries
		}
	}
}

func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

// WithScheduledAt makes the task due at t. It takes precedence over WithDelay.
func WithScheduledAt(t time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.scheduledAt = &t
	}
}

func WithTaskName(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.taskName = name
		}
	}
}
