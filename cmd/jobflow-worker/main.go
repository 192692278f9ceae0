package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/quickops/jobflow/pkg/cmd"
	"github.com/quickops/jobflow/pkg/log"
	"github.com/quickops/jobflow/pkg/notify"
)

func main() {
	command := &cli.Command{
		Name:                  "jobflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker to execute job and flow runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (kafka, memory)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "slack-webhook-url",
				Usage:   "Slack incoming webhook URL for alerts",
				Sources: cli.EnvVars("SLACK_WEBHOOK_URL"),
			},
			&cli.StringFlag{
				Name:    "pagerduty-routing-key",
				Usage:   "PagerDuty Events v2 routing key for alerts",
				Sources: cli.EnvVars("PAGERDUTY_ROUTING_KEY"),
			},
			&cli.StringFlag{
				Name:    "alert-webhook-url",
				Usage:   "Generic webhook URL for alerts",
				Sources: cli.EnvVars("ALERT_WEBHOOK_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("jobflow-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing JobFlow Worker")

			registry := cmd.NewExecutorRegistry(logger)

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			senders := buildSenders(logger, command)

			worker := NewWorkerManager(workerID, store, eventBus, logger, registry, senders...)

			if err := worker.Start(ctx); err != nil {
				return err
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-quit:
				logger.InfoContext(ctx, "Received shutdown signal", "signal", sig.String())
			case <-ctx.Done():
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

// buildSenders assembles the alert fan-out from the configured channels.
// The log sender is always present so alerts survive a missing or broken
// external channel.
func buildSenders(logger *slog.Logger, command *cli.Command) []notify.Sender {
	senders := []notify.Sender{notify.NewLogSender(logger)}

	if url := command.String("slack-webhook-url"); url != "" {
		senders = append(senders, notify.NewSlackSender(url))
	}

	if key := command.String("pagerduty-routing-key"); key != "" {
		senders = append(senders, notify.NewPagerDutySender(key))
	}

	if url := command.String("alert-webhook-url"); url != "" {
		senders = append(senders, notify.NewWebhookSender(url))
	}

	return senders
}
