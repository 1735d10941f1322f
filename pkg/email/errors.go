package email

import "errors"

var (
	ErrFailedToSendEmail = errors.New("email: failed to send")
	ErrInvalidConfig     = errors.New("email: invalid config")
	ErrInvalidMessage    = errors.New("email: invalid message")
	ErrBatchTooLarge     = errors.New("email: batch exceeds provider limit")
	ErrUnknownProvider   = errors.New("email: unknown provider")
)
