package connstate

import (
	"errors"
	"fmt"
)

var ErrTransitionRejected = errors.New("connstate: transition rejected")

// TransitionError describes a rejected event for a resource.
type TransitionError struct {
	Name  string
	From  Status
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("connstate: %s: no transition from %s on %s", e.Name, e.From, e.Event)
}

func (e *TransitionError) Unwrap() error { return ErrTransitionRejected }
