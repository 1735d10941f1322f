package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/prytaneum/townhall-notifier/modules/townhall"
	"github.com/prytaneum/townhall-notifier/pkg/httpserver"
	"github.com/prytaneum/townhall-notifier/pkg/logger"
	"github.com/prytaneum/townhall-notifier/svc/delivery"
	"github.com/prytaneum/townhall-notifier/svc/notify"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and consume the notifications queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	var httpCfg httpserver.Config
	if err := load(a, &httpCfg); err != nil {
		return err
	}

	p, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	b, err := a.broker()
	if err != nil {
		return err
	}
	consumer, err := a.consumer(p, b)
	if err != nil {
		return err
	}

	router := townhall.Router(townhall.RouterOptions{
		Subscriptions: p.subs,
		Invites:       p.service,
		Notifications: notify.NewPublisher(b, delivery.NewScheduler()),
		Readiness:     append(p.checks, a.brokerCheck()),
		MaxBodyBytes:  httpCfg.MaxBodyBytes,
		Logger:        a.log.With(logger.Component("http")),
	})
	server := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(a.log.With(logger.Component("server"))))

	a.log.InfoContext(ctx, "starting notifier", slog.String("addr", httpCfg.Addr), slog.String("store", a.cfg.Store))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx, router) })
	g.Go(func() error { return consumer.Run(ctx) })
	return g.Wait()
}
