package main

import (
	"context"

	cli "github.com/urfave/cli/v3"

	"github.com/cascadehq/cascade/pkg/cmd"
	"github.com/cascadehq/cascade/pkg/engine"
	"github.com/cascadehq/cascade/pkg/log"
	"github.com/cascadehq/cascade/pkg/services"
	"github.com/cascadehq/cascade/pkg/vault"
	"github.com/cascadehq/cascade/pkg/worker"
)

func workerCommand() *cli.Command {
	flags := append(sharedFlags(), vaultFlag(),
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Sources: cli.EnvVars("WORKER_ID"),
		},
	)

	return &cli.Command{
		Name:  "worker",
		Usage: "Run an execution worker",
		Flags: flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			flushTraces, err := setupTelemetry(ctx, command, "cascade-worker")
			if err != nil {
				return err
			}
			defer flushTraces()

			logger := log.WithModule("worker")

			logger.InfoContext(ctx, "Initializing Cascade worker")

			store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			bus := cmd.NewEventBus(command.String("event-bus"), logger, "worker")
			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			v, err := vault.New(command.String("vault-secret"))
			if err != nil {
				return err
			}

			credentials := services.NewCredentialService(logger, store, v)
			registry := cmd.NewRegistry(logger, credentials)

			eng := engine.NewEngine(logger, registry, store, engine.NewCanceller())

			w := worker.NewWorker(command.String("worker-id"), logger, bus, store, eng)
			if err := w.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			logger.Info("worker shutting down")

			return nil
		},
	}
}
