package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newConsumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Consume the notifications queue without serving HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, consume)
		},
	}
}

func consume(ctx context.Context, a *app) error {
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
	a.log.InfoContext(ctx, "consuming notifications")
	return consumer.Run(ctx)
}
