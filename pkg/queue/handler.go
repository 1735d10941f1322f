package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler runs the tasks whose TaskName equals Name.
type Handler interface {
	Name() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

type TaskHandlerFunc[T any] func(ctx context.Context, payload T) error

// NewTaskHandler routes tasks named after T's type to fn.
func NewTaskHandler[T any](fn TaskHandlerFunc[T]) Handler {
	var payload T
	return NewNamedTaskHandler(qualifiedStructName(payload), fn)
}

// NewNamedTaskHandler routes tasks enqueued WithTaskName(name) to fn.
func NewNamedTaskHandler[T any](name string, fn TaskHandlerFunc[T]) Handler {
	return &taskHandler[T]{name: name, fn: fn}
}

type taskHandler[T any] struct {
	name string
	fn   TaskHandlerFunc[T]
}

func (h *taskHandler[T]) Name() string { return h.name }

func (h *taskHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return fmt.Errorf("decode %s payload: %w", h.name, err)
	}
	return h.fn(ctx, t)
}
