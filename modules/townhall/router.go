// Package townhall is the HTTP boundary of the notifier. It turns requests
// into subscriber list changes, scheduled invites and broker messages.
package townhall

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/prytaneum/townhall-notifier/binder"
	"github.com/prytaneum/townhall-notifier/handler"
	"github.com/prytaneum/townhall-notifier/pkg/httpserver"
	"github.com/prytaneum/townhall-notifier/pkg/logger"
	"github.com/prytaneum/townhall-notifier/pkg/metrics"
	"github.com/prytaneum/townhall-notifier/svc/notify"
)

type Subscriptions interface {
	Subscribe(ctx context.Context, email, region string) error
	Unsubscribe(ctx context.Context, email, region string) error
}

type Inviter interface {
	SubmitInvite(ctx context.Context, job notify.InviteJob) (uuid.UUID, error)
}

type NotificationPublisher interface {
	Publish(ctx context.Context, job notify.NotificationJob) error
}

// RouterOptions wires the module. Routes whose dependency is nil are not
// mounted, so a process without a broker simply has no /notifications.
type RouterOptions struct {
	Subscriptions Subscriptions
	Invites       Inviter
	Notifications NotificationPublisher
	Readiness     []httpserver.Check
	MaxBodyBytes  int64
	Logger        *slog.Logger
}

func Router(opts RouterOptions) chi.Router {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	h := &handlers{opts: opts, log: log}
	wrap := []handler.WrapOption{handler.WithErrorHandler(handler.DefaultErrorHandler(log))}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if opts.MaxBodyBytes > 0 {
		r.Use(limitBody(opts.MaxBodyBytes))
	}

	r.Get("/health/live", httpserver.Liveness())
	r.Get("/health/ready", httpserver.Readiness(log, 5*time.Second, opts.Readiness...))
	r.Handle("/metrics", metrics.Handler())

	if opts.Invites != nil {
		r.Post("/invite", handler.Wrap(h.invite,
			append(wrap, handler.WithBinders(binder.JSON(), binder.Form(), binder.File()))...))
	}
	if opts.Subscriptions != nil {
		r.Post("/subscribe", handler.Wrap(h.subscribe, append(wrap, handler.WithBinders(binder.JSON(), binder.Form()))...))
		r.Post("/unsubscribe", handler.Wrap(h.unsubscribe, append(wrap, handler.WithBinders(binder.JSON(), binder.Form()))...))
	}
	if opts.Notifications != nil {
		r.Post("/notifications", handler.Wrap(h.notify, append(wrap, handler.WithBinders(binder.JSON()))...))
	}
	return r
}

func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
