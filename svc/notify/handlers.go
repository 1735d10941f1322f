package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/prytaneum/townhall-notifier/pkg/logger"
	"github.com/prytaneum/townhall-notifier/pkg/queue"
	"github.com/prytaneum/townhall-notifier/svc/delivery"
	"github.com/prytaneum/townhall-notifier/svc/subscribers"
)

// SubscriberSource is the slice of the subscriber service the handlers need.
type SubscriberSource interface {
	UnsubscribedLister
	Lists(ctx context.Context, region string) (subscribers.Lists, error)
	RecordInvite(ctx context.Context, region string, rec subscribers.InviteRecord) error
}

// Deliverer runs a job through filtering, batching and dispatch.
type Deliverer interface {
	Run(ctx context.Context, req delivery.Request) (delivery.Report, error)
}

// Handlers executes queued jobs. A handler error dead-letters the task,
// including a job where only some batches failed.
type Handlers struct {
	subs     SubscriberSource
	pipeline Deliverer
	log      *slog.Logger
	now      func() time.Time
}

func NewHandlers(subs SubscriberSource, pipeline Deliverer, log *slog.Logger) *Handlers {
	if log == nil {
		log = logger.Discard()
	}
	return &Handlers{subs: subs, pipeline: pipeline, log: log, now: time.Now}
}

// Register adds both job handlers to w.
func (h *Handlers) Register(w *queue.Worker) error {
	return w.RegisterHandlers(
		queue.NewNamedTaskHandler(TaskNotification, h.handleNotification),
		queue.NewNamedTaskHandler(TaskInvite, h.handleInvite),
	)
}

func (h *Handlers) handleNotification(ctx context.Context, t notificationTask) error {
	ctx = logger.WithJob(ctx, t.JobID, t.Region)

	lists, err := h.subs.Lists(ctx, t.Region)
	if err != nil {
		return err
	}
	report, err := h.pipeline.Run(ctx, delivery.Request{
		JobID:        t.JobID,
		Target:       delivery.Target{Region: t.Region},
		Candidates:   delivery.RecipientsFromEmails(lists.Subscribed),
		Unsubscribed: lists.Unsubscribed,
		Template:     delivery.NotificationTemplate(t.SendAt),
		SendAt:       t.SendAt,
	})
	h.logReport(ctx, report)
	return err
}

func (h *Handlers) handleInvite(ctx context.Context, t inviteTask) error {
	job := t.Job
	ctx = logger.WithJob(ctx, t.JobID, job.Region)

	unsubscribed, err := h.subs.Unsubscribed(ctx, job.Region)
	if err != nil {
		return err
	}
	report, err := h.pipeline.Run(ctx, delivery.Request{
		JobID:        t.JobID,
		Target:       delivery.Target{EventID: job.EventID, Region: job.Region},
		Candidates:   job.Recipients(),
		Unsubscribed: unsubscribed,
		Template:     delivery.InviteTemplate(job.Event()),
		SendAt:       t.SendAt,
	})
	h.logReport(ctx, report)

	if report.Sent > 0 {
		rec := subscribers.InviteRecord{
			JobID:            t.JobID,
			MoC:              job.MoC,
			Topic:            job.Topic,
			EventDateTime:    job.EventDateTime,
			ConstituentScope: job.ConstituentScope,
			DeliveryTime:     t.SendAt,
			Invitees:         report.Sent,
			CreatedAt:        h.now().UTC(),
		}
		// History is informational; the messages are already out.
		if err := h.subs.RecordInvite(ctx, job.Region, rec); err != nil {
			h.log.ErrorContext(ctx, "failed to record invite history", logger.Error(err))
		}
	}
	return err
}

func (h *Handlers) logReport(ctx context.Context, r delivery.Report) {
	if r.Batches == 0 {
		return
	}
	level := slog.LevelInfo
	if len(r.Failed) > 0 {
		level = slog.LevelError
	}
	h.log.Log(ctx, level, "job delivered",
		slog.Int("batches", r.Batches),
		slog.Int("sent", r.Sent),
		slog.Int("rejected", len(r.Rejected)),
		slog.Int("invalid", len(r.Invalid)),
		slog.Int("failed_batches", len(r.Failed)),
	)
}
