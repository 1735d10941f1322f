package delivery

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidFormat = errors.New("delivery: invalid ISO-8601 date")
	ErrNoRecipients  = errors.New("delivery: no recipients left after filtering")
	ErrInvalidCap    = errors.New("delivery: batch cap must be positive")
	ErrMissingSigner = errors.New("delivery: token signer is required")
	ErrBatchesFailed = errors.New("delivery: one or more batches failed")
)

// BatchError records a batch that failed after all retries.
type BatchError struct {
	Index int
	Size  int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (%d recipients): %v", e.Index, e.Size, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
