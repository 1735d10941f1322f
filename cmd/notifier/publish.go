package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prytaneum/townhall-notifier/pkg/logger"
	"github.com/prytaneum/townhall-notifier/svc/delivery"
	"github.com/prytaneum/townhall-notifier/svc/notify"
)

func newPublishCommand() *cobra.Command {
	var job notify.NotificationJob

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a notification job to the notifications queue",
		Example: "  notifier publish --region west\n" +
			"  notifier publish --region west --at 2026-11-02T18:00:00Z",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				b, err := a.broker()
				if err != nil {
					return err
				}
				if err := notify.NewPublisher(b, delivery.NewScheduler()).Publish(ctx, job); err != nil {
					return err
				}
				a.log.InfoContext(ctx, "notification published", logger.Region(job.Region))
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "published notification for region %s\n", job.Region)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&job.Region, "region", "", "region whose subscribers are notified")
	cmd.Flags().StringVar(&job.NotificationDateISO, "at", "", "ISO-8601 send time, empty for now")
	_ = cmd.MarkFlagRequired("region")
	return cmd
}
