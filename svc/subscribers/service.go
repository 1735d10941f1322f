package subscribers

import (
	"context"
	"log/slog"

	"github.com/prytaneum/townhall-notifier/core"
	"github.com/prytaneum/townhall-notifier/pkg/logger"
	"github.com/prytaneum/townhall-notifier/pkg/retry"
	"github.com/prytaneum/townhall-notifier/pkg/validator"
	"github.com/prytaneum/townhall-notifier/svc/delivery"
)

// Service applies the subscribe and unsubscribe rules on top of a Store.
type Service struct {
	store Store
	retry *retry.Coordinator
	log   *slog.Logger
}

func NewService(store Store, coordinator *retry.Coordinator, log *slog.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{store: store, retry: coordinator, log: log.With(logger.Component("subscribers"))}
}

// Subscribe adds email to region's list and clears a previous opt-out.
func (s *Service) Subscribe(ctx context.Context, email, region string) error {
	email, err := validate(email, region)
	if err != nil {
		return err
	}

	subscribed, err := s.store.IsSubscribed(ctx, email, region)
	if err != nil {
		return err
	}
	if subscribed {
		return core.NewClientError(MsgAlreadySubscribed, ErrAlreadySubscribed)
	}

	unsubscribed, err := s.store.IsUnsubscribed(ctx, email, region)
	if err != nil {
		return err
	}
	if unsubscribed {
		if err := s.store.RemoveFromUnsubList(ctx, email, region); err != nil {
			return err
		}
	}
	if err := s.store.AddToSubList(ctx, email, region); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "subscribed", logger.Region(region))
	return nil
}

// Unsubscribe opts email out of region and removes it from the subscribed
// list.
func (s *Service) Unsubscribe(ctx context.Context, email, region string) error {
	email, err := validate(email, region)
	if err != nil {
		return err
	}

	unsubscribed, err := s.store.IsUnsubscribed(ctx, email, region)
	if err != nil {
		return err
	}
	if unsubscribed {
		return core.NewClientError(MsgAlreadyUnsubscribed, ErrAlreadyUnsubscribed)
	}

	subscribed, err := s.store.IsSubscribed(ctx, email, region)
	if err != nil {
		return err
	}
	if subscribed {
		if err := s.store.RemoveFromSubList(ctx, email, region); err != nil {
			return err
		}
	}
	if err := s.store.AddToUnsubList(ctx, email, region); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "unsubscribed", logger.Region(region))
	return nil
}

// Lists holds the recipient lists of a region.
type Lists struct {
	Subscribed   []string
	Unsubscribed []string
}

// Lists reads both lists of region. Transient store failures are retried
// through the coordinator; an unknown region is not.
func (s *Service) Lists(ctx context.Context, region string) (Lists, error) {
	return retry.Do(ctx, s.retry, "subscribers:"+region, func(ctx context.Context) (Lists, error) {
		subscribed, err := s.store.GetSubscriberList(ctx, region)
		if err != nil {
			return Lists{}, err
		}
		unsubscribed, err := s.store.GetUnsubscribedList(ctx, region)
		if err != nil {
			return Lists{}, err
		}
		return Lists{Subscribed: subscribed, Unsubscribed: unsubscribed}, nil
	}, retry.WithRetryIf(core.Retryable), retry.Ephemeral())
}

// Unsubscribed reads the opt-out list of region, retried like Lists.
func (s *Service) Unsubscribed(ctx context.Context, region string) ([]string, error) {
	return retry.Do(ctx, s.retry, "unsubscribed:"+region, func(ctx context.Context) ([]string, error) {
		return s.store.GetUnsubscribedList(ctx, region)
	}, retry.WithRetryIf(core.Retryable), retry.Ephemeral())
}

// RecordInvite appends rec to region's invite history.
func (s *Service) RecordInvite(ctx context.Context, region string, rec InviteRecord) error {
	return s.store.AddToInviteHistory(ctx, region, rec)
}

func validate(email, region string) (string, error) {
	email = delivery.NormalizeEmail(email)
	err := validator.Apply(
		validator.Required("region", region),
		validator.ValidEmail("email", email),
	)
	if err != nil {
		return "", core.NewClientError(err.Error(), err)
	}
	return email, nil
}
