package main

import (
	"context"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/cascadehq/cascade/pkg/cmd"
	"github.com/cascadehq/cascade/pkg/log"
	"github.com/cascadehq/cascade/pkg/scheduler"
)

func schedulerCommand() *cli.Command {
	flags := append(sharedFlags(),
		&cli.DurationFlag{
			Name:    "sync-interval",
			Usage:   "How often live jobs are reconciled against persistence",
			Value:   30 * time.Second,
			Sources: cli.EnvVars("SYNC_INTERVAL"),
		},
	)

	return &cli.Command{
		Name:  "scheduler",
		Usage: "Run the cron scheduler",
		Flags: flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			flushTraces, err := setupTelemetry(ctx, command, "cascade-scheduler")
			if err != nil {
				return err
			}
			defer flushTraces()

			logger := log.WithModule("scheduler")

			logger.InfoContext(ctx, "Initializing Cascade scheduler")

			store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			bus := cmd.NewEventBus(command.String("event-bus"), logger, "scheduler")
			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			sched := scheduler.NewScheduler(logger, store, bus)
			if err := sched.Start(ctx); err != nil {
				return err
			}

			defer sched.Stop()

			ticker := time.NewTicker(command.Duration("sync-interval"))
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					logger.Info("scheduler shutting down")

					return nil
				case <-ticker.C:
					if err := sched.Sync(ctx); err != nil {
						logger.Error("schedule sync failed", "error", err)
					}
				}
			}
		},
	}
}
