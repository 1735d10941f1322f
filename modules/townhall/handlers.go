package townhall

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prytaneum/townhall-notifier/binder"
	"github.com/prytaneum/townhall-notifier/core"
	"github.com/prytaneum/townhall-notifier/handler"
	"github.com/prytaneum/townhall-notifier/pkg/logger"
	"github.com/prytaneum/townhall-notifier/svc/notify"
)

type handlers struct {
	opts RouterOptions
	log  *slog.Logger
}

// inviteRequest is accepted as JSON or as a multipart form with the invitee
// list uploaded as a CSV file.
type inviteRequest struct {
	Region           string             `json:"region" form:"region"`
	EventID          string             `json:"townHallId" form:"townHallId"`
	MoC              string             `json:"MoC" form:"MoC"`
	Topic            string             `json:"topic" form:"topic"`
	EventDateTime    string             `json:"eventDateTime" form:"eventDateTime"`
	ConstituentScope string             `json:"constituentScope" form:"constituentScope"`
	DeliveryTime     string             `json:"deliveryTime" form:"deliveryTimeString"`
	PreviewEmail     string             `json:"previewEmail" form:"previewEmail"`
	Invitees         []notify.Invitee   `json:"inviteeList"`
	File             *binder.FileUpload `json:"-" file:"inviteFile"`
}

type inviteResponse struct {
	JobID string `json:"jobId"`
}

func (h *handlers) invite(ctx context.Context, req inviteRequest) handler.Response {
	invitees := req.Invitees
	if req.File != nil {
		if req.File.Ext() != ".csv" {
			return handler.Error(core.NewClientError("Invalid file type", ErrInvalidFileType))
		}
		parsed, err := parseInvitees(req.File.Content)
		if err != nil {
			return handler.Error(err)
		}
		invitees = append(invitees, parsed...)
	}

	id, err := h.opts.Invites.SubmitInvite(ctx, notify.InviteJob{
		Region:           req.Region,
		EventID:          req.EventID,
		MoC:              req.MoC,
		Topic:            req.Topic,
		EventDateTime:    req.EventDateTime,
		ConstituentScope: req.ConstituentScope,
		DeliveryTime:     req.DeliveryTime,
		PreviewEmail:     req.PreviewEmail,
		Invitees:         invitees,
	})
	if err != nil {
		return handler.Error(err)
	}
	h.log.InfoContext(ctx, "invite accepted", logger.JobID(id.String()), logger.Region(req.Region))
	return handler.JSON(http.StatusOK, inviteResponse{JobID: id.String()})
}

type subscriptionRequest struct {
	Email  string `json:"email" form:"email"`
	Region string `json:"region" form:"region"`
}

func (h *handlers) subscribe(ctx context.Context, req subscriptionRequest) handler.Response {
	if err := h.opts.Subscriptions.Subscribe(ctx, req.Email, req.Region); err != nil {
		return handler.Error(err)
	}
	return handler.OK()
}

func (h *handlers) unsubscribe(ctx context.Context, req subscriptionRequest) handler.Response {
	if err := h.opts.Subscriptions.Unsubscribe(ctx, req.Email, req.Region); err != nil {
		return handler.Error(err)
	}
	return handler.OK()
}

func (h *handlers) notify(ctx context.Context, req notify.NotificationJob) handler.Response {
	if err := h.opts.Notifications.Publish(ctx, req); err != nil {
		return handler.Error(err)
	}
	return handler.EmptyWithStatus(http.StatusAccepted)
}
