package retry

import (
	"log/slog"
	"time"

	"github.com/prytaneum/townhall-notifier/pkg/connstate"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTracker records status transitions for each key on t.
func WithTracker(t *connstate.Tracker) Option {
	return func(c *Coordinator) {
		if t != nil {
			c.tracker = t
		}
	}
}

// WithDefaults sets the attempt ceiling and fixed interval used when a call
// does not override them.
func WithDefaults(cfg Config) Option {
	return func(c *Coordinator) {
		if cfg.MaxAttempts > 0 {
			c.defaults.maxAttempts = cfg.MaxAttempts
		}
		if cfg.Interval >= 0 {
			c.defaults.backoff = Fixed(cfg.Interval)
		}
	}
}

// WithAttemptObserver is called after every failed attempt of every key.
func WithAttemptObserver(fn func(key string, attempt int, err error)) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// CallOption configures a single Do call. Options of a caller that joins an
// in-flight sequence are ignored.
type CallOption func(*call)

type call struct {
	maxAttempts     int
	backoff         Backoff
	onFailedAttempt func(attempt int, err error)
	retryIf         func(error) bool
	ephemeral       bool
}

func WithMaxAttempts(n int) CallOption {
	return func(c *call) { c.maxAttempts = n }
}

// WithInterval waits d between attempts.
func WithInterval(d time.Duration) CallOption {
	return func(c *call) { c.backoff = Fixed(d) }
}

func WithBackoff(b Backoff) CallOption {
	return func(c *call) {
		if b != nil {
			c.backoff = b
		}
	}
}

// OnFailedAttempt registers a hook invoked after each failed attempt.
func OnFailedAttempt(fn func(attempt int, err error)) CallOption {
	return func(c *call) { c.onFailedAttempt = fn }
}

// WithRetryIf stops retrying as soon as fn returns false for an error.
func WithRetryIf(fn func(error) bool) CallOption {
	return func(c *call) { c.retryIf = fn }
}

// Ephemeral drops the key from the status table once the sequence ends.
// Use it for keys that are unique per job so the table does not grow.
func Ephemeral() CallOption {
	return func(c *call) { c.ephemeral = true }
}
