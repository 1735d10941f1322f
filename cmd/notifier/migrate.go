package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/prytaneum/townhall-notifier/pkg/logger"
	"github.com/prytaneum/townhall-notifier/pkg/queue"
)

var ErrMigrationsNotNeeded = errors.New("queue storage is not postgres; nothing to migrate")

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the task queue migrations to PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, migrate)
		},
	}
}

func migrate(ctx context.Context, a *app) error {
	var cfg queue.Config
	if err := load(a, &cfg); err != nil {
		return err
	}
	if cfg.Storage != queue.StoragePostgres {
		return ErrMigrationsNotNeeded
	}
	conn, err := a.pgConn()
	if err != nil {
		return err
	}
	if err := conn.Migrate(ctx, queue.Migrations, "migrations", a.log.With(logger.Component("migrate"))); err != nil {
		return err
	}
	a.log.InfoContext(ctx, "queue migrations applied")
	return nil
}
