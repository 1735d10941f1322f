// Package retry runs blocking operations with bounded retries and coalesces
// concurrent callers that share an operation key onto a single sequence.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/prytaneum/townhall-notifier/pkg/connstate"
	"github.com/prytaneum/townhall-notifier/pkg/logger"
)

const (
	DefaultMaxAttempts = 5
	DefaultInterval    = 5 * time.Second
)

// Operation is the unit of work retried by Do.
type Operation[T any] func(ctx context.Context) (T, error)

// State is the bookkeeping kept for a key while a sequence is in flight.
type State struct {
	Attempts int
	Waiters  int
}

// Coordinator owns the table of in-flight retry sequences.
type Coordinator struct {
	group     singleflight.Group
	tracker   *connstate.Tracker
	log       *slog.Logger
	defaults  call
	observers []func(key string, attempt int, err error)

	mu     sync.Mutex
	states map[string]*State

	done      chan struct{}
	closeOnce sync.Once
}

func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		tracker: connstate.New(),
		log:     logger.Discard(),
		defaults: call{
			maxAttempts: DefaultMaxAttempts,
			backoff:     Fixed(DefaultInterval),
		},
		states: make(map[string]*State),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tracker returns the status tracker updated by this coordinator.
func (c *Coordinator) Tracker() *connstate.Tracker {
	return c.tracker
}

// State returns a copy of the in-flight state for key.
func (c *Coordinator) State(key string) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[key]
	if !ok {
		return State{}, false
	}
	return *s, true
}

// Close aborts pending backoff waits. Sequences interrupted this way fail
// with ErrClosed joined with their last error.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Do runs op under key. If a sequence for key is already running, the caller
// waits for that sequence instead of starting a new one, and receives the
// same value or error. The sequence itself is not bound to ctx: cancelling
// ctx only stops this caller from waiting.
func Do[T any](ctx context.Context, c *Coordinator, key string, op Operation[T], opts ...CallOption) (T, error) {
	var zero T

	select {
	case <-c.done:
		return zero, ErrClosed
	default:
	}

	cfg := c.defaults
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxAttempts < 1 {
		return zero, ErrInvalidMaxAttempts
	}

	c.join(key)
	defer c.leave(key)

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.run(detached, key, cfg, func(ctx context.Context) (any, error) {
			return op(ctx)
		})
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, key string, cfg call, op func(context.Context) (any, error)) (any, error) {
	c.tracker.Connecting(key)
	if cfg.ephemeral {
		defer c.tracker.Forget(key)
	}

	started := time.Now()
	var (
		lastErr error
		made    int
	)
	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		made = attempt
		c.setAttempts(key, attempt)

		v, err := invoke(ctx, op)
		if err == nil {
			c.tracker.Connected(key)
			if attempt > 1 {
				c.log.InfoContext(ctx, "operation succeeded after retry",
					logger.Key(key), logger.Attempt(attempt), logger.Duration(time.Since(started)))
			}
			return v, nil
		}
		lastErr = err

		if cfg.onFailedAttempt != nil {
			cfg.onFailedAttempt(attempt, unwrapPermanent(err))
		}
		for _, o := range c.observers {
			o(key, attempt, err)
		}

		if IsPermanent(err) || (cfg.retryIf != nil && !cfg.retryIf(err)) || attempt == cfg.maxAttempts {
			break
		}

		c.tracker.Retrying(key)
		delay := cfg.backoff.Delay(attempt)
		c.log.WarnContext(ctx, "operation failed, retrying",
			logger.Key(key),
			logger.Attempt(attempt),
			slog.Int("max_attempts", cfg.maxAttempts),
			slog.Duration("backoff", delay),
			logger.Error(err),
		)
		if !c.wait(delay) {
			c.tracker.Failed(key)
			return nil, fmt.Errorf("%w: %w", ErrClosed, unwrapPermanent(lastErr))
		}
	}

	c.tracker.Failed(key)
	c.log.ErrorContext(ctx, "operation failed",
		logger.Key(key),
		slog.Int("attempts", made),
		logger.Duration(time.Since(started)),
		logger.Error(lastErr),
	)
	return nil, unwrapPermanent(lastErr)
}

// invoke converts a panicking operation into an error so the sequence ends
// normally for every waiter.
func invoke(ctx context.Context, op func(context.Context) (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("retry: operation panicked: %v", r)
		}
	}()
	return op(ctx)
}

func (c *Coordinator) wait(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-c.done:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.done:
		return false
	}
}

func (c *Coordinator) join(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[key]
	if !ok {
		s = &State{}
		c.states[key] = s
	}
	s.Waiters++
}

func (c *Coordinator) leave(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[key]
	if !ok {
		return
	}
	s.Waiters--
	if s.Waiters <= 0 {
		delete(c.states, key)
	}
}

func (c *Coordinator) setAttempts(key string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[key]; ok {
		s.Attempts = n
	}
}
