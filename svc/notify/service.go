package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/prytaneum/townhall-notifier/core"
	"github.com/prytaneum/townhall-notifier/pkg/logger"
	"github.com/prytaneum/townhall-notifier/pkg/queue"
	"github.com/prytaneum/townhall-notifier/svc/delivery"
)

// Enqueuer is the queue capability used to schedule delivery tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error)
}

// UnsubscribedLister resolves a region's opt-out list.
type UnsubscribedLister interface {
	Unsubscribed(ctx context.Context, region string) ([]string, error)
}

// Service validates jobs, resolves their send time and schedules them on the
// internal queue. Tasks carry no retry budget: a failed delivery goes
// straight to the dead letter queue so accepted batches are never resent.
type Service struct {
	enqueuer  Enqueuer
	scheduler *delivery.Scheduler
	subs      UnsubscribedLister
	log       *slog.Logger
}

func NewService(enqueuer Enqueuer, scheduler *delivery.Scheduler, subs UnsubscribedLister, log *slog.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	if scheduler == nil {
		scheduler = delivery.NewScheduler()
	}
	return &Service{enqueuer: enqueuer, scheduler: scheduler, subs: subs, log: log}
}

// SubmitNotification schedules a notification to every subscriber of the
// job's region.
func (s *Service) SubmitNotification(ctx context.Context, job NotificationJob) (uuid.UUID, error) {
	if err := job.Validate(); err != nil {
		return uuid.Nil, core.NewClientError(err.Error(), err)
	}
	sendAt, err := s.scheduler.ResolveSendTime(job.NotificationDateISO)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	task := notificationTask{JobID: id.String(), Region: job.Region, SendAt: sendAt}
	if err := s.enqueue(ctx, id, TaskNotification, task, sendAt, queue.PriorityDefault); err != nil {
		return uuid.Nil, err
	}
	s.log.InfoContext(ctx, "notification job scheduled",
		logger.JobID(task.JobID), logger.Region(job.Region), slog.Time("send_at", sendAt))
	return id, nil
}

// SubmitInvite schedules an invite. A job with no deliverable invitee, or
// whose every invitee opted out, is rejected up front with
// delivery.ErrNoRecipients.
func (s *Service) SubmitInvite(ctx context.Context, job InviteJob) (uuid.UUID, error) {
	if err := job.Validate(); err != nil {
		return uuid.Nil, core.NewClientError(err.Error(), err)
	}
	sendAt, err := s.scheduler.ResolveSendTime(job.DeliveryTime)
	if err != nil {
		return uuid.Nil, err
	}

	unsubscribed, err := s.subs.Unsubscribed(ctx, job.Region)
	if err != nil {
		return uuid.Nil, err
	}
	invitees := job.invitees()
	if len(invitees) == 0 {
		return uuid.Nil, core.NewClientError(MsgNoValidInvitees, errors.Join(ErrNoValidInvitees, delivery.ErrNoRecipients))
	}
	if len(delivery.FilterUnsubscribed(invitees, unsubscribed)) == 0 {
		return uuid.Nil, core.NewClientError(MsgAllUnsubscribed, errors.Join(ErrAllUnsubscribed, delivery.ErrNoRecipients))
	}

	id := uuid.New()
	task := inviteTask{JobID: id.String(), Job: job, SendAt: sendAt}
	if err := s.enqueue(ctx, id, TaskInvite, task, sendAt, queue.PriorityHigh); err != nil {
		return uuid.Nil, err
	}
	s.log.InfoContext(ctx, "invite job scheduled",
		logger.JobID(task.JobID),
		logger.Region(job.Region),
		slog.Int("invitees", len(job.Invitees)),
		slog.Time("send_at", sendAt),
	)
	return id, nil
}

// enqueue stores a job task. Invites outrank notifications when both are due.
func (s *Service) enqueue(ctx context.Context, id uuid.UUID, name string, payload any, sendAt time.Time, priority queue.Priority) error {
	_, err := s.enqueuer.Enqueue(ctx, payload,
		queue.WithTaskID(id),
		queue.WithTaskName(name),
		queue.WithScheduledAt(sendAt),
		queue.WithPriority(priority),
		queue.WithMaxRetries(0),
	)
	if err != nil {
		return errors.Join(ErrEnqueueFailed, err)
	}
	return nil
}

