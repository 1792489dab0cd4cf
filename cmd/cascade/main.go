// Package main is the cascade command: API server, execution worker and cron
// scheduler in one binary, selected by subcommand.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/cascadehq/cascade/pkg/log"
	"github.com/cascadehq/cascade/pkg/otelhelper"
)

func sharedFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL (postgres://, redis:// or a filesystem path)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus provider (kafka, memory)",
			Value:   "kafka",
			Sources: cli.EnvVars("EVENT_BUS"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log output format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces over OTLP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
	}
}

// setupTelemetry configures logging and, when enabled, the OTLP trace
// exporter. The returned hook flushes pending spans on shutdown.
func setupTelemetry(ctx context.Context, command *cli.Command, serviceName string) (func(), error) {
	log.Setup(command.String("log-level"), command.String("log-format"))

	if !command.Bool("tracing") {
		return func() {}, nil
	}

	shutdown, err := otelhelper.Setup(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	return func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := shutdown(flushCtx); err != nil {
			log.WithModule("main").Error("failed to shut down tracing", "error", err)
		}
	}, nil
}

func vaultFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "vault-secret",
		Usage:    "Master secret for credential encryption",
		Required: true,
		Sources:  cli.EnvVars("VAULT_SECRET"),
	}
}

func main() {
	root := &cli.Command{
		Name:                  "cascade",
		Usage:                 "Graph-based workflow automation",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			apiCommand(),
			workerCommand(),
			schedulerCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.Run(ctx, os.Args); err != nil {
		log.WithModule("main").Error("command failed", "error", err)
		os.Exit(1)
	}
}
