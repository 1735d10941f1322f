package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/prytaneum/townhall-notifier/pkg/email"
	"github.com/prytaneum/townhall-notifier/pkg/logger"
	"github.com/prytaneum/townhall-notifier/pkg/metrics"
	"github.com/prytaneum/townhall-notifier/pkg/retry"
)

// DispatcherConfig is read from the environment.
type DispatcherConfig struct {
	Concurrency   int           `env:"DISPATCH_CONCURRENCY" envDefault:"4"`
	RatePerSecond float64       `env:"PROVIDER_RATE_PER_SECOND" envDefault:"5"`
	Burst         int           `env:"PROVIDER_RATE_BURST" envDefault:"1"`
	MaxAttempts   int           `env:"SEND_MAX_ATTEMPTS" envDefault:"5"`
	RetryInterval time.Duration `env:"SEND_RETRY_INTERVAL" envDefault:"5s"`
}

// Report summarizes a dispatched job.
type Report struct {
	JobID    string
	Batches  int
	Sent     int
	Rejected []email.Result
	Failed   []*BatchError
	// Invalid lists candidate addresses dropped before batching.
	Invalid []string
}

// Err joins the failed batches, or returns nil when every batch was accepted.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed)+1)
	errs = append(errs, ErrBatchesFailed)
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Dispatcher sends batches through the email provider. Batches start in
// order, several may be in flight, and a failed batch never stops its
// siblings.
type Dispatcher struct {
	sender  email.Sender
	retry   *retry.Coordinator
	limiter *rate.Limiter
	cfg     DispatcherConfig
	log     *slog.Logger
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

func NewDispatcher(sender email.Sender, coordinator *retry.Coordinator, cfg DispatcherConfig, opts ...DispatcherOption) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = retry.DefaultMaxAttempts
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := max(cfg.Burst, 1)

	d := &Dispatcher{
		sender:  sender,
		retry:   coordinator,
		limiter: rate.NewLimiter(limit, burst),
		cfg:     cfg,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaxBatchSize is the provider cap batches must respect.
func (d *Dispatcher) MaxBatchSize() int {
	return d.sender.MaxBatchSize()
}

// Dispatch renders and sends every batch. The returned error is Report.Err.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID string, batches []Batch, tpl Template, sendAt time.Time) (Report, error) {
	report := Report{JobID: jobID, Batches: len(batches)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for _, b := range batches {
		g.Go(func() error {
			results, err := d.send(ctx, jobID, b, tpl, sendAt)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, &BatchError{Index: b.Index, Size: b.Len(), Err: err})
				metrics.BatchesFailed.Inc()
				d.log.ErrorContext(ctx, "batch failed", logger.JobID(jobID), logger.Batch(b.Index, b.Len()), logger.Error(err))
				return nil
			}
			metrics.BatchesSent.Inc()
			for _, r := range results {
				if r.Err != nil {
					report.Rejected = append(report.Rejected, r)
					metrics.RecipientsRejected.Inc()
					d.log.WarnContext(ctx, "recipient rejected by provider",
						logger.JobID(jobID), slog.String("to", r.To), logger.Error(r.Err))
					continue
				}
				report.Sent++
				metrics.RecipientsSent.Inc()
			}
			d.log.InfoContext(ctx, "batch sent", logger.JobID(jobID), logger.Batch(b.Index, b.Len()))
			return nil
		})
	}
	_ = g.Wait()

	return report, report.Err()
}

func (d *Dispatcher) send(ctx context.Context, jobID string, b Batch, tpl Template, sendAt time.Time) ([]email.Result, error) {
	msgs := make([]email.Message, 0, b.Len())
	for _, v := range b.Recipients {
		msg, err := tpl.Render(ctx, v, sendAt)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}

	key := fmt.Sprintf("send:%s:%d", jobID, b.Index)
	return retry.Do(ctx, d.retry, key, func(ctx context.Context) ([]email.Result, error) {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, retry.Permanent(err)
		}
		results, err := d.sender.Send(ctx, msgs)
		if errors.Is(err, email.ErrInvalidMessage) || errors.Is(err, email.ErrBatchTooLarge) {
			return nil, retry.Permanent(err)
		}
		return results, err
	},
		retry.WithMaxAttempts(d.cfg.MaxAttempts),
		retry.WithInterval(d.cfg.RetryInterval),
		retry.Ephemeral(),
	)
}
