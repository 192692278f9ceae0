package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/quickops/jobflow/pkg/eventbus"
	"github.com/quickops/jobflow/pkg/persistence"
	"github.com/quickops/jobflow/pkg/queue"
	"github.com/quickops/jobflow/pkg/schedule"
)

// Scheduler keeps cron triggers aligned with the stored definitions and,
// when a Redis URL is configured, accepts manual run requests from the
// queue. It publishes run-request events; workers do the executing.
type Scheduler struct {
	logger       *slog.Logger
	registry     *schedule.CronRegistry
	synchronizer *schedule.Synchronizer
	consumer     *queue.Consumer
	resyncEvery  time.Duration

	stop chan struct{}
	done chan struct{}
}

func NewScheduler(
	logger *slog.Logger,
	store persistence.Persistence,
	bus eventbus.EventPublisher,
	consumer *queue.Consumer,
	resyncEvery time.Duration,
) *Scheduler {
	logger = logger.With("module", "jobflow-scheduler")
	registry := schedule.NewCronRegistry(logger)

	return &Scheduler{
		logger:       logger,
		registry:     registry,
		synchronizer: schedule.NewSynchronizer(logger, registry, bus, store),
		consumer:     consumer,
		resyncEvery:  resyncEvery,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start performs the initial synchronization, starts the cron runner and
// the optional queue consumer, and launches the periodic resync loop. It
// returns once everything is running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting scheduler")

	if err := s.synchronizer.SyncAll(ctx); err != nil {
		// Individual definitions may be broken; the rest stay scheduled.
		s.logger.WarnContext(ctx, "Initial trigger sync reported errors", "error", err)
	}

	s.registry.Start()

	if s.consumer != nil {
		s.consumer.Start(ctx)
	}

	go s.resyncLoop(ctx)

	s.logger.InfoContext(ctx, "Scheduler started", "triggers", len(s.registry.Entries()))

	return nil
}

func (s *Scheduler) resyncLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.resyncEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.synchronizer.SyncAll(ctx); err != nil {
				s.logger.WarnContext(ctx, "Trigger resync reported errors", "error", err)
			}
		}
	}
}

// Stop halts the resync loop, the queue consumer and the cron runner,
// waiting for in-flight trigger callbacks to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping scheduler")

	close(s.stop)
	<-s.done

	if s.consumer != nil {
		if err := s.consumer.Stop(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to stop queue consumer", "error", err)
		}
	}

	return s.registry.Stop(ctx)
}
