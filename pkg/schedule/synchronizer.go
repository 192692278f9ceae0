package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/quickops/jobflow/pkg/eventbus"
	"github.com/quickops/jobflow/pkg/events"
	"github.com/quickops/jobflow/pkg/models"
	"github.com/quickops/jobflow/pkg/persistence"
)

const (
	jobIDPrefix  = "job:"
	flowIDPrefix = "flow:"
)

// Synchronizer translates definition state into trigger registrations.
// A due registration publishes a scheduled run request on the event bus.
type Synchronizer struct {
	logger   *slog.Logger
	registry TriggerRegistry
	bus      eventbus.EventPublisher
	store    persistence.Persistence
}

func NewSynchronizer(logger *slog.Logger, registry TriggerRegistry, bus eventbus.EventPublisher, store persistence.Persistence) *Synchronizer {
	return &Synchronizer{
		logger:   logger.With("module", "trigger_synchronizer"),
		registry: registry,
		bus:      bus,
		store:    store,
	}
}

// SyncJob brings the job's registration in line with its definition:
// enabled with an expression registers, anything else unregisters.
func (s *Synchronizer) SyncJob(ctx context.Context, job *models.Job) error {
	id := jobIDPrefix + job.ID

	if !job.Enabled || job.CronExpr == "" {
		s.registry.Unregister(id)

		return nil
	}

	jobID := job.ID

	return s.registry.Register(id, job.CronExpr, func() {
		s.publishJobRequest(jobID)
	})
}

// SyncFlow is SyncJob for flow definitions.
func (s *Synchronizer) SyncFlow(ctx context.Context, flow *models.JobFlow) error {
	id := flowIDPrefix + flow.ID

	if !flow.Enabled || flow.CronExpr == "" {
		s.registry.Unregister(id)

		return nil
	}

	flowID := flow.ID

	return s.registry.Register(id, flow.CronExpr, func() {
		s.publishFlowRequest(flowID)
	})
}

// RemoveJob drops the registration of a deleted job.
func (s *Synchronizer) RemoveJob(jobID string) {
	s.registry.Unregister(jobIDPrefix + jobID)
}

// RemoveFlow drops the registration of a deleted flow.
func (s *Synchronizer) RemoveFlow(flowID string) {
	s.registry.Unregister(flowIDPrefix + flowID)
}

// SyncAll reconciles every registration against the stored definitions:
// current definitions are synced and registrations whose definition is
// gone are dropped. Problems are aggregated so one bad definition does
// not block the rest.
func (s *Synchronizer) SyncAll(ctx context.Context) error {
	jobs, err := s.store.Jobs().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}

	flows, err := s.store.Flows().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load flows: %w", err)
	}

	var result *multierror.Error

	known := make(map[string]bool, len(jobs)+len(flows))

	for _, job := range jobs {
		known[jobIDPrefix+job.ID] = true

		if err := s.SyncJob(ctx, job); err != nil {
			result = multierror.Append(result, fmt.Errorf("job %s: %w", job.ID, err))
		}
	}

	for _, flow := range flows {
		known[flowIDPrefix+flow.ID] = true

		if err := s.SyncFlow(ctx, flow); err != nil {
			result = multierror.Append(result, fmt.Errorf("flow %s: %w", flow.ID, err))
		}
	}

	for id := range s.registry.Entries() {
		if !known[id] && (strings.HasPrefix(id, jobIDPrefix) || strings.HasPrefix(id, flowIDPrefix)) {
			s.registry.Unregister(id)
		}
	}

	s.logger.InfoContext(ctx, "Synchronized schedules",
		"jobs", len(jobs),
		"flows", len(flows),
		"registered", len(s.registry.Entries()),
	)

	return result.ErrorOrNil()
}

func (s *Synchronizer) publishJobRequest(jobID string) {
	ctx := context.Background()

	event := events.JobRunRequested{
		BaseEvent: events.NewBaseEvent(events.JobRunRequestedEvent),
		JobID:     jobID,
		Trigger:   models.TriggerScheduled,
	}

	if err := s.bus.Publish(ctx, jobID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish scheduled job request", "job_id", jobID, "error", err)

		return
	}

	s.logger.InfoContext(ctx, "Published scheduled job request", "job_id", jobID, "event_id", event.ID)
}

func (s *Synchronizer) publishFlowRequest(flowID string) {
	ctx := context.Background()

	event := events.FlowRunRequested{
		BaseEvent: events.NewBaseEvent(events.FlowRunRequestedEvent),
		FlowID:    flowID,
		Trigger:   models.TriggerScheduled,
	}

	if err := s.bus.Publish(ctx, flowID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish scheduled flow request", "flow_id", flowID, "error", err)

		return
	}

	s.logger.InfoContext(ctx, "Published scheduled flow request", "flow_id", flowID, "event_id", event.ID)
}
