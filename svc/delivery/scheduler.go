package delivery

import (
	"fmt"
	"strings"
	"time"

	"github.com/prytaneum/townhall-notifier/core"
)

// Layouts accepted for delivery times, tried in order. Timestamps without a
// zone are read as UTC.
var sendTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Scheduler resolves caller-supplied delivery times.
type Scheduler struct {
	now func() time.Time
}

type SchedulerOption func(*Scheduler)

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveSendTime returns now for an empty candidate, the parsed instant for
// a future one and now for one in the past: past times are accepted and sent
// immediately. An unparsable candidate is a client error wrapping
// ErrInvalidFormat.
func (s *Scheduler) ResolveSendTime(candidate string) (time.Time, error) {
	now := s.now()
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return now, nil
	}

	for _, layout := range sendTimeLayouts {
		t, err := time.Parse(layout, candidate)
		if err != nil {
			continue
		}
		if t.Before(now) {
			return now, nil
		}
		return t, nil
	}
	return time.Time{}, core.NewClientError("Invalid ISO Date format",
		fmt.Errorf("%w: %q", ErrInvalidFormat, candidate))
}

// Due reports whether sendAt has been reached.
func (s *Scheduler) Due(sendAt time.Time) bool {
	return !sendAt.After(s.now())
}
