package pg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/prytaneum/townhall-notifier/pkg/logger"
)

// Migrate applies the goose migrations found in dir of fsys.
func (c *Conn) Migrate(ctx context.Context, fsys fs.FS, dir string, log *slog.Logger) error {
	pool, err := c.Handle(ctx)
	if err != nil {
		return err
	}
	if log == nil {
		log = logger.Discard()
	}

	// goose needs database/sql; the wrapper shares the pool's connections.
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration handle", logger.Error(err))
		}
	}()

	goose.SetLogger(gooseLogger{log: log})
	goose.SetBaseFS(fsys)
	goose.SetTableName(c.cfg.MigrationsTable)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

type gooseLogger struct {
	log *slog.Logger
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(fmt.Sprintf(format, v...), logger.Component("goose"))
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info(fmt.Sprintf(format, v...), logger.Component("goose"))
}
