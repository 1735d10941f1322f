// Package core holds the error taxonomy shared by services and the HTTP
// boundary.
package core

import (
	"context"
	"errors"
	"net/http"
)

// ClientError is a failure caused by caller input. It is reported back to the
// caller with Message and is never retried.
type ClientError struct {
	Code    int
	Message string
	Err     error
}

func (e *ClientError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error { return e.Err }

// NewClientError returns a 400 ClientError. cause may be nil.
func NewClientError(message string, cause error) *ClientError {
	return &ClientError{Code: http.StatusBadRequest, Message: message, Err: cause}
}

// AsClientError finds the first ClientError in err's chain.
func AsClientError(err error) (*ClientError, bool) {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsClientError reports whether err carries a ClientError.
func IsClientError(err error) bool {
	_, ok := AsClientError(err)
	return ok
}

// Retryable reports whether err may succeed on another attempt. Client
// errors and cancellation are final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if IsClientError(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
