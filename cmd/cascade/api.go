package main

import (
	"context"
	"strconv"

	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"

	"github.com/cascadehq/cascade/pkg/cmd"
	"github.com/cascadehq/cascade/pkg/engine"
	"github.com/cascadehq/cascade/pkg/generator"
	"github.com/cascadehq/cascade/pkg/log"
	"github.com/cascadehq/cascade/pkg/scheduler"
	"github.com/cascadehq/cascade/pkg/services"
	"github.com/cascadehq/cascade/pkg/vault"
	"github.com/cascadehq/cascade/pkg/web"
)

const defaultPort = 9090

func apiCommand() *cli.Command {
	flags := append(sharedFlags(), vaultFlag(),
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:    "llm-provider",
			Usage:   "LLM provider for workflow generation (openai, anthropic)",
			Sources: cli.EnvVars("LLM_PROVIDER"),
		},
		&cli.StringFlag{
			Name:    "llm-api-key",
			Usage:   "API key for the LLM provider",
			Sources: cli.EnvVars("LLM_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "llm-model",
			Usage:   "Model name for workflow generation",
			Sources: cli.EnvVars("LLM_MODEL"),
		},
	)

	return &cli.Command{
		Name:  "api",
		Usage: "Run the workflow management API server",
		Flags: flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			flushTraces, err := setupTelemetry(ctx, command, "cascade-api")
			if err != nil {
				return err
			}
			defer flushTraces()

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Cascade API")

			store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			bus := cmd.NewEventBus(command.String("event-bus"), logger, "api")
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

			// The API holds a scheduler for live-job bookkeeping only; the
			// scheduler process owns firing and resyncs from persistence.
			sched := scheduler.NewScheduler(logger, store, bus)
			defer sched.Stop()

			var gen web.WorkflowGenerator
			if provider := command.String("llm-provider"); provider != "" {
				client := generator.NewHTTPLLMClient(
					generator.Provider(provider),
					command.String("llm-api-key"),
					"",
					command.String("llm-model"),
				)
				gen = generator.NewGenerator(logger, client, registry)
			}

			handlers := web.NewAPIHandlers(
				services.NewWorkflowService(logger, store, registry, sched),
				services.NewExecutionService(logger, store, bus, engine.NewCanceller()),
				services.NewScheduleService(logger, store, sched),
				credentials,
				gen,
				registry,
				validator.New(validator.WithRequiredStructEnabled()),
			)

			return web.NewApp(handlers).Listen(":" + strconv.Itoa(command.Int("port")))
		},
	}
}
