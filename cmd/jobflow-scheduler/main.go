package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/quickops/jobflow/pkg/cmd"
	"github.com/quickops/jobflow/pkg/log"
	"github.com/quickops/jobflow/pkg/queue"
)

func main() {
	command := &cli.Command{
		Name:                  "jobflow-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Publish run requests from cron triggers and the manual run queue",
		Flags: []cli.Flag{
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
				Name:    "redis-url",
				Usage:   "Redis URL for the manual run queue (disabled if empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "queue",
				Usage:   "Redis list holding manual run requests",
				Value:   queue.DefaultQueue,
				Sources: cli.EnvVars("REQUEST_QUEUE"),
			},
			&cli.DurationFlag{
				Name:    "resync-interval",
				Usage:   "How often triggers are re-synchronized with stored definitions",
				Value:   time.Minute,
				Sources: cli.EnvVars("RESYNC_INTERVAL"),
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

			logger := log.WithModule("jobflow-scheduler")

			logger.InfoContext(ctx, "Initializing JobFlow Scheduler")

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

			var consumer *queue.Consumer

			if redisURL := command.String("redis-url"); redisURL != "" {
				consumer, err = queue.NewConsumer(ctx, redisURL, command.String("queue"), eventBus, logger)
				if err != nil {
					return err
				}
			}

			scheduler := NewScheduler(logger, store, eventBus, consumer, command.Duration("resync-interval"))

			if err := scheduler.Start(ctx); err != nil {
				return err
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-quit:
				logger.InfoContext(ctx, "Received shutdown signal", "signal", sig.String())
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			return scheduler.Stop(shutdownCtx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
