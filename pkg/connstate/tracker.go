// Package connstate tracks the connection status of named resources such as
// the broker, the subscriber store or the email provider.
package connstate

import (
	"log/slog"
	"maps"
	"sync"

	"github.com/prytaneum/townhall-notifier/pkg/logger"
)

// Observer is notified after every applied transition.
type Observer func(name string, from, to Status)

// Tracker owns the status table. The zero value is not usable; use New.
type Tracker struct {
	mu        sync.Mutex
	statuses  map[string]Status
	log       *slog.Logger
	observers []Observer
}

type Option func(*Tracker)

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(t *Tracker) {
		if o != nil {
			t.observers = append(t.observers, o)
		}
	}
}

func New(opts ...Option) *Tracker {
	t := &Tracker{
		statuses: make(map[string]Status),
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Status returns the current status of name, Uninitialized if never seen.
func (t *Tracker) Status(name string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current(name)
}

// Fire applies ev to name. Lookup and update happen under one lock so
// concurrent events for the same resource cannot interleave.
func (t *Tracker) Fire(name string, ev Event) (Status, error) {
	t.mu.Lock()
	from := t.current(name)
	to, ok := Next(from, ev)
	if !ok {
		t.mu.Unlock()
		return from, &TransitionError{Name: name, From: from, Event: ev}
	}
	t.statuses[name] = to
	snapshot := maps.Clone(t.statuses)
	observers := t.observers
	t.mu.Unlock()

	t.log.Debug("connection status update",
		logger.Key(name),
		logger.Transition(from.String(), to.String()),
		slog.Any("table", snapshot),
	)
	for _, o := range observers {
		o(name, from, to)
	}
	return to, nil
}

// Connecting, Retrying, Connected, Failed and Disconnected fire the matching
// event and log rejected transitions instead of returning them.
func (t *Tracker) Connecting(name string)   { t.mark(name, EventConnect) }
func (t *Tracker) Retrying(name string)     { t.mark(name, EventRetry) }
func (t *Tracker) Connected(name string)    { t.mark(name, EventSucceed) }
func (t *Tracker) Failed(name string)       { t.mark(name, EventFail) }
func (t *Tracker) Disconnected(name string) { t.mark(name, EventDisconnect) }

// Forget removes name from the table.
func (t *Tracker) Forget(name string) {
	t.mu.Lock()
	delete(t.statuses, name)
	t.mu.Unlock()
}

// Snapshot returns a copy of the table.
func (t *Tracker) Snapshot() map[string]Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.statuses)
}

func (t *Tracker) mark(name string, ev Event) {
	if _, err := t.Fire(name, ev); err != nil {
		t.log.Warn("connection status transition rejected", logger.Key(name), logger.Error(err))
	}
}

func (t *Tracker) current(name string) Status {
	if s, ok := t.statuses[name]; ok {
		return s
	}
	return Uninitialized
}
