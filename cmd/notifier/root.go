package main

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/prytaneum/townhall-notifier/pkg/logger"
)

const closeTimeout = 10 * time.Second

type rootOptions struct {
	out io.Writer
	// env replaces the process environment when set.
	env map[string]string
}

type appKey struct{}

func newRootCommand(opts rootOptions) *cobra.Command {
	if opts.out == nil {
		opts.out = os.Stdout
	}

	root := &cobra.Command{
		Use:           "notifier",
		Short:         "Town-hall invite and notification delivery",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.env, opts.out)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
	}
	root.SetOut(opts.out)

	root.AddCommand(
		newServeCommand(),
		newConsumeCommand(),
		newPublishCommand(),
		newMigrateCommand(),
	)
	return root
}

var ErrNotInitialized = errors.New("application is not initialized")

// withApp runs fn with the app built by the root command and releases the
// app's connections once fn returns, whatever the outcome.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, ok := ctx.Value(appKey{}).(*app)
	if !ok {
		return ErrNotInitialized
	}

	runErr := fn(ctx, a)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	closeErr := a.Close(closeCtx)
	if closeErr != nil {
		a.log.ErrorContext(closeCtx, "failed to release resources", logger.Error(closeErr))
	}
	return errors.Join(runErr, closeErr)
}
