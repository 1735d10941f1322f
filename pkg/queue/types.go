package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is the queue used when none is specified.
const DefaultQueueName = "delivery"

// TaskStatus is the lifecycle state of a Task. Failed tasks have a matching
// DeadLetter entry.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Priority orders due tasks; higher is claimed first. Ties go to the earlier
// ScheduledAt.
type Priority int8

const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityDefault Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
)

func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Task is one unit of deferred delivery work. Payload is the JSON encoding
// of the handler's argument type.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Queue       string     `json:"queue"`
	TaskName    string     `json:"task_name"`
	Payload     []byte     `json:"payload,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	RetryCount  int8       `json:"retry_count"`
	MaxRetries  int8       `json:"max_retries"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Claimable reports whether a worker may take t at now: a pending task once
// its send time is reached, or a processing task whose lock expired.
func (t *Task) Claimable(now time.Time) bool {
	switch t.Status {
	case TaskStatusPending:
		return !t.ScheduledAt.After(now)
	case TaskStatusProcessing:
		return t.LockedUntil != nil && t.LockedUntil.Before(now)
	default:
		return false
	}
}

// Exhausted reports whether a failure of the current attempt dead-letters t.
func (t *Task) Exhausted() bool {
	return t.RetryCount >= t.MaxRetries
}

// DeadLetter records a task that failed for good, with the error of its last
// attempt. Jobs with failed batches end up here.
type DeadLetter struct {
	ID         uuid.UUID `json:"id"`
	TaskID     uuid.UUID `json:"task_id"`
	Queue      string    `json:"queue"`
	TaskName   string    `json:"task_name"`
	Payload    []byte    `json:"payload,omitempty"`
	Priority   Priority  `json:"priority"`
	Error      string    `json:"error"`
	RetryCount int8      `json:"retry_count"`
	FailedAt   time.Time `json:"failed_at"`
	CreatedAt  time.Time `json:"created_at"`
}
