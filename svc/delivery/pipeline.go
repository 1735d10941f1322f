package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/prytaneum/townhall-notifier/pkg/logger"
	"github.com/prytaneum/townhall-notifier/pkg/metrics"
)

// Request is one delivery job ready for the pipeline.
type Request struct {
	JobID        string
	Target       Target
	Candidates   []Recipient
	Unsubscribed []string
	Template     Template
	SendAt       time.Time
}

// Pipeline filters, batches and dispatches a job.
type Pipeline struct {
	batcher    *Batcher
	dispatcher *Dispatcher
	log        *slog.Logger
}

func NewPipeline(batcher *Batcher, dispatcher *Dispatcher, log *slog.Logger) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	return &Pipeline{batcher: batcher, dispatcher: dispatcher, log: log}
}

// BatchCap is the effective batch size: the configured cap clamped to the
// provider's own limit.
func (p *Pipeline) BatchCap() int {
	limit := p.batcher.Cap()
	if provider := p.dispatcher.MaxBatchSize(); provider > 0 && provider < limit {
		limit = provider
	}
	return limit
}

// Run delivers req. Candidates without a deliverable address are dropped and
// listed in Report.Invalid, then unsubscribed recipients are removed before
// any token is signed or batch built. An empty filtered list is not an error:
// nothing is sent and an empty report is returned.
func (p *Pipeline) Run(ctx context.Context, req Request) (Report, error) {
	candidates, invalid := SplitValid(req.Candidates)
	if len(invalid) > 0 {
		metrics.RecipientsInvalid.Add(float64(len(invalid)))
		p.log.WarnContext(ctx, "dropped invalid recipient addresses",
			logger.JobID(req.JobID), slog.Int("count", len(invalid)), slog.Any("addresses", invalid))
	}

	recipients := FilterUnsubscribed(candidates, req.Unsubscribed)
	if removed := len(candidates) - len(recipients); removed > 0 {
		metrics.RecipientsFiltered.Add(float64(removed))
	}
	if len(recipients) == 0 {
		p.log.InfoContext(ctx, "no recipients after filtering",
			logger.JobID(req.JobID), logger.Region(req.Target.Region),
			slog.Int("candidates", len(req.Candidates)))
		return Report{JobID: req.JobID, Invalid: invalid}, nil
	}

	batches, err := p.batcher.Build(recipients, req.Target, p.BatchCap())
	if err != nil {
		return Report{JobID: req.JobID, Invalid: invalid}, err
	}
	p.log.InfoContext(ctx, "dispatching job",
		logger.JobID(req.JobID),
		logger.Region(req.Target.Region),
		slog.Int("recipients", len(recipients)),
		slog.Int("batches", len(batches)),
		slog.Time("send_at", req.SendAt),
	)
	report, err := p.dispatcher.Dispatch(ctx, req.JobID, batches, req.Template, req.SendAt)
	report.Invalid = invalid
	return report, err
}
