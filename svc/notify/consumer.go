package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/prytaneum/townhall-notifier/core"
	"github.com/prytaneum/townhall-notifier/pkg/broker"
	"github.com/prytaneum/townhall-notifier/pkg/logger"
	"github.com/prytaneum/townhall-notifier/pkg/metrics"
	"github.com/prytaneum/townhall-notifier/pkg/queue"
	"github.com/prytaneum/townhall-notifier/pkg/retry"
)

// BrokerConnectKey is the retry and connection-status key of the broker.
const BrokerConnectKey = "broker-connect"

// Outcomes recorded on metrics.JobsConsumed.
const (
	OutcomeEnqueued = "enqueued"
	OutcomePoison   = "poison"
	OutcomeFailed   = "failed"
)

// State is the consumer loop phase.
type State int32

const (
	StateIdle State = iota
	StateDraining
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateDraining:
		return "DRAINING"
	case StateDispatching:
		return "DISPATCHING"
	default:
		return "IDLE"
	}
}

type ConsumerConfig struct {
	Interval          time.Duration `env:"CONSUMER_INTERVAL" envDefault:"1s"`
	DrainLimit        int           `env:"CONSUMER_DRAIN_LIMIT" envDefault:"100"`
	ReconnectAttempts int           `env:"BROKER_RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectInterval time.Duration `env:"BROKER_RECONNECT_INTERVAL" envDefault:"5s"`
}

// Submitter schedules a parsed job.
type Submitter interface {
	SubmitNotification(ctx context.Context, job NotificationJob) (uuid.UUID, error)
}

// DueProcessor runs every task whose send time has been reached.
type DueProcessor interface {
	ProcessDue(ctx context.Context) (queue.Stats, error)
}

// Consumer moves jobs from the broker to the internal queue and then runs the
// due tasks, once per tick.
type Consumer struct {
	broker    broker.Broker
	submitter Submitter
	worker    DueProcessor
	retry     *retry.Coordinator
	cfg       ConsumerConfig
	log       *slog.Logger

	state   atomic.Int32
	running atomic.Bool
}

func NewConsumer(b broker.Broker, submitter Submitter, worker DueProcessor, coordinator *retry.Coordinator, cfg ConsumerConfig, log *slog.Logger) *Consumer {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.DrainLimit <= 0 {
		cfg.DrainLimit = 100
	}
	return &Consumer{
		broker:    b,
		submitter: submitter,
		worker:    worker,
		retry:     coordinator,
		cfg:       cfg,
		log:       log.With(logger.Component("consumer")),
	}
}

func (c *Consumer) State() State {
	return State(c.state.Load())
}

// Run connects to the broker and ticks until ctx is cancelled or the broker
// cannot be reconnected. Cancellation is a clean stop and returns nil.
func (c *Consumer) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrConsumerRunning
	}
	defer c.running.Store(false)

	if err := c.connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	c.log.InfoContext(ctx, "consumer started",
		slog.Duration("interval", c.cfg.Interval), slog.Int("drain_limit", c.cfg.DrainLimit))

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := c.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			c.log.InfoContext(ctx, "consumer stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one DRAINING and one DISPATCHING phase. Only an unrecoverable
// broker failure or cancellation is returned.
func (c *Consumer) Tick(ctx context.Context) error {
	defer c.state.Store(int32(StateIdle))

	c.state.Store(int32(StateDraining))
	if err := c.drain(ctx); err != nil {
		return err
	}

	c.state.Store(int32(StateDispatching))
	stats, err := c.worker.ProcessDue(ctx)
	if err != nil && !errors.Is(err, queue.ErrNoHandlers) {
		c.log.ErrorContext(ctx, "dispatch failed", logger.Error(err))
	}
	if stats.Claimed > 0 {
		c.log.InfoContext(ctx, "dispatched due jobs",
			slog.Int("claimed", stats.Claimed),
			slog.Int("completed", stats.Completed),
			slog.Int("dead_lettered", stats.DeadLettered),
			slog.Int("errors", stats.Errors),
		)
	}
	return ctx.Err()
}

func (c *Consumer) drain(ctx context.Context) error {
	for range c.cfg.DrainLimit {
		msg, err := c.broker.Receive(ctx)
		switch {
		case errors.Is(err, broker.ErrNoMessage):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			c.log.ErrorContext(ctx, "broker receive failed", logger.Error(err))
			return c.reconnect(ctx)
		}

		if !c.handle(ctx, msg) {
			// Handed back and retried on the next tick.
			if err := c.broker.Nack(ctx, msg); err != nil {
				c.log.ErrorContext(ctx, "broker nack failed", logger.MessageID(msg.ID), logger.Error(err))
				return c.reconnect(ctx)
			}
			return nil
		}
		if err := c.broker.Ack(ctx, msg); err != nil {
			c.log.ErrorContext(ctx, "broker ack failed", logger.MessageID(msg.ID), logger.Error(err))
			return c.reconnect(ctx)
		}
	}
	return nil
}

// handle reports whether msg should be acknowledged.
func (c *Consumer) handle(ctx context.Context, msg broker.Message) bool {
	job, err := ParseNotificationJob(msg.Body)
	if err == nil {
		_, err = c.submitter.SubmitNotification(ctx, job)
	}
	switch {
	case err == nil:
		metrics.JobsConsumed.WithLabelValues(OutcomeEnqueued).Inc()
		return true
	case core.IsClientError(err):
		metrics.JobsConsumed.WithLabelValues(OutcomePoison).Inc()
		c.log.WarnContext(ctx, "discarding poison message",
			logger.MessageID(msg.ID), slog.String("body", truncate(msg.Body, 256)), logger.Error(err))
		return true
	default:
		metrics.JobsConsumed.WithLabelValues(OutcomeFailed).Inc()
		c.log.ErrorContext(ctx, "failed to enqueue job", logger.MessageID(msg.ID), logger.Error(err))
		return false
	}
}

func (c *Consumer) connect(ctx context.Context) error {
	_, err := retry.Do(ctx, c.retry, BrokerConnectKey, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.broker.Connect(ctx)
	},
		retry.WithMaxAttempts(max(c.cfg.ReconnectAttempts, 1)),
		retry.WithInterval(c.cfg.ReconnectInterval),
	)
	if err != nil {
		return errors.Join(ErrBrokerUnrecoverable, err)
	}
	return nil
}

func (c *Consumer) reconnect(ctx context.Context) error {
	c.retry.Tracker().Disconnected(BrokerConnectKey)
	if err := c.connect(ctx); err != nil {
		c.log.ErrorContext(ctx, "broker reconnect exhausted", logger.Error(err))
		return err
	}
	c.log.InfoContext(ctx, "broker reconnected")
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
