package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prytaneum/townhall-notifier/core"
	"github.com/prytaneum/townhall-notifier/pkg/broker"
	"github.com/prytaneum/townhall-notifier/svc/delivery"
)

// Publisher is the producing side of the notifications queue.
type Publisher struct {
	broker    broker.Broker
	scheduler *delivery.Scheduler
}

func NewPublisher(b broker.Broker, scheduler *delivery.Scheduler) *Publisher {
	if scheduler == nil {
		scheduler = delivery.NewScheduler()
	}
	return &Publisher{broker: b, scheduler: scheduler}
}

// Publish validates job and pushes it to the broker. The send time is
// checked here so producers learn about a bad date immediately instead of
// the consumer discarding the message later.
func (p *Publisher) Publish(ctx context.Context, job NotificationJob) error {
	if err := job.Validate(); err != nil {
		return core.NewClientError(err.Error(), err)
	}
	if _, err := p.scheduler.ResolveSendTime(job.NotificationDateISO); err != nil {
		return err
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode notification job: %w", err)
	}
	return p.broker.Publish(ctx, body)
}
