// Package notify turns notification and invite jobs into queued delivery
// work and runs that work through the delivery pipeline.
package notify

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/prytaneum/townhall-notifier/core"
	"github.com/prytaneum/townhall-notifier/pkg/validator"
	"github.com/prytaneum/townhall-notifier/svc/delivery"
)

// Task names registered with the queue worker.
const (
	TaskNotification = "notify.notification"
	TaskInvite       = "notify.invite"
)

const maxInvitees = 100_000

// NotificationJob is the broker message body. NotificationDateISO is the
// time the region's subscribers are notified; empty means now.
type NotificationJob struct {
	Region              string `json:"region"`
	NotificationDateISO string `json:"notificationDateISO"`
}

func (j NotificationJob) Validate() error {
	return validator.Apply(
		validator.Required("region", j.Region),
		validator.MaxLen("region", j.Region, 128),
	)
}

// ParseNotificationJob decodes a broker message body. Every failure is a
// client error: the message can never succeed on redelivery.
func ParseNotificationJob(body []byte) (NotificationJob, error) {
	var job NotificationJob
	if err := json.Unmarshal(body, &job); err != nil {
		return NotificationJob{}, core.NewClientError("Invalid notification job", errors.Join(ErrMalformedJob, err))
	}
	if err := job.Validate(); err != nil {
		return NotificationJob{}, core.NewClientError(err.Error(), errors.Join(ErrMalformedJob, err))
	}
	return job, nil
}

type Invitee struct {
	Email     string `json:"email"`
	FirstName string `json:"fName"`
	LastName  string `json:"lName"`
}

// InviteJob is produced by the HTTP boundary.
type InviteJob struct {
	Region           string    `json:"region"`
	EventID          string    `json:"townHallId"`
	MoC              string    `json:"MoC"`
	Topic            string    `json:"topic"`
	EventDateTime    string    `json:"eventDateTime"`
	ConstituentScope string    `json:"constituentScope"`
	DeliveryTime     string    `json:"deliveryTime,omitempty"`
	PreviewEmail     string    `json:"previewEmail,omitempty"`
	Invitees         []Invitee `json:"inviteeList"`
}

func (j InviteJob) Validate() error {
	return validator.Apply(
		validator.Required("region", j.Region),
		validator.Required("MoC", j.MoC),
		validator.Required("topic", j.Topic),
		validator.Required("eventDateTime", j.EventDateTime),
		validator.Required("constituentScope", j.ConstituentScope),
		validator.RequiredSlice("inviteeList", j.Invitees),
		validator.MaxLenSlice("inviteeList", j.Invitees, maxInvitees),
		validator.When(j.PreviewEmail != "", validator.ValidEmail("previewEmail", delivery.NormalizeEmail(j.PreviewEmail))),
	)
}

// Event returns the job-wide template values.
func (j InviteJob) Event() delivery.Event {
	return delivery.Event{
		MoC:              j.MoC,
		Topic:            j.Topic,
		EventDateTime:    j.EventDateTime,
		ConstituentScope: j.ConstituentScope,
	}
}

// Recipients converts invitees, dropping entries without a deliverable
// address.
// The preview address, when set, receives a copy as the last recipient.
func (j InviteJob) Recipients() []delivery.Recipient {
	out := j.invitees()
	preview := delivery.NormalizeEmail(j.PreviewEmail)
	if preview == "" {
		return out
	}
	for _, r := range out {
		if r.Email == preview {
			return out
		}
	}
	return append(out, delivery.NewRecipient(preview, "", ""))
}

func (j InviteJob) invitees() []delivery.Recipient {
	out := make([]delivery.Recipient, 0, len(j.Invitees)+1)
	for _, inv := range j.Invitees {
		r := delivery.NewRecipient(inv.Email, inv.FirstName, inv.LastName)
		if !r.Valid() {
			continue
		}
		out = append(out, r)
	}
	return out
}

// notificationTask and inviteTask are the queued payloads. JobID ties log
// lines, retry keys and invite history together.
type notificationTask struct {
	JobID  string    `json:"jobId"`
	Region string    `json:"region"`
	SendAt time.Time `json:"sendAt"`
}

type inviteTask struct {
	JobID  string    `json:"jobId"`
	Job    InviteJob `json:"job"`
	SendAt time.Time `json:"sendAt"`
}
