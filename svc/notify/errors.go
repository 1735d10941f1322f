package notify

import "errors"

var (
	ErrMalformedJob        = errors.New("malformed job")
	ErrAllUnsubscribed     = errors.New("all invitees are unsubscribed")
	ErrNoValidInvitees     = errors.New("no invitee has a valid email address")
	ErrBrokerUnrecoverable = errors.New("broker could not be reconnected")
	ErrConsumerRunning     = errors.New("consumer is already running")
	ErrEnqueueFailed       = errors.New("failed to enqueue job")
)

const (
	MsgAllUnsubscribed = "All invitees are unsubscribed"
	MsgNoValidInvitees = "No invitee has a valid email address"
)
