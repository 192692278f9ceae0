package main

import (
	"context"
	"log/slog"

	"github.com/quickops/jobflow/pkg/alert"
	"github.com/quickops/jobflow/pkg/engine"
	"github.com/quickops/jobflow/pkg/eventbus"
	"github.com/quickops/jobflow/pkg/events"
	"github.com/quickops/jobflow/pkg/executor"
	"github.com/quickops/jobflow/pkg/models"
	"github.com/quickops/jobflow/pkg/notify"
	"github.com/quickops/jobflow/pkg/persistence"
	"github.com/quickops/jobflow/pkg/runner"
)

// WorkerManager consumes run-request events and executes them: single
// jobs through the runner, flows through the DAG engine. Terminal
// outcomes are published back on the bus.
type WorkerManager struct {
	id     string
	logger *slog.Logger
	store  persistence.Persistence
	bus    eventbus.EventBus
	runner *runner.Runner
	engine *engine.Engine
}

func NewWorkerManager(
	id string,
	store persistence.Persistence,
	bus eventbus.EventBus,
	logger *slog.Logger,
	registry *executor.Registry,
	senders ...notify.Sender,
) *WorkerManager {
	logger = logger.With("module", "jobflow-worker", "worker_id", id)

	dispatcher := alert.NewDispatcher(logger, store.Alerts(), senders...)
	jobRunner := runner.NewRunner(logger, registry, store.JobRuns(), dispatcher)

	return &WorkerManager{
		id:     id,
		logger: logger,
		store:  store,
		bus:    bus,
		runner: jobRunner,
		engine: engine.New(logger, jobRunner, store.Jobs(), store.FlowRuns(), dispatcher),
	}
}

// Start wires the run-request handlers and subscribes. It returns once
// the subscription is live; the caller owns process lifetime.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	if err := w.bus.Handle(events.JobRunRequestedEvent, w.handleJobRunRequested); err != nil {
		return err
	}

	if err := w.bus.Handle(events.FlowRunRequestedEvent, w.handleFlowRunRequested); err != nil {
		return err
	}

	if err := w.bus.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	return nil
}

func (w *WorkerManager) handleJobRunRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.JobRunRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for JobRunRequested")

		return nil
	}

	logger := w.logger.With("job_id", request.JobID, "event_id", request.ID, "trigger", request.Trigger)
	logger.InfoContext(ctx, "Processing job run request")

	job, err := w.store.Jobs().GetByID(ctx, request.JobID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load job", "error", err)

		return err
	}

	if job == nil {
		// The definition was deleted after the request was queued; a nack
		// would replay it forever.
		logger.WarnContext(ctx, "Job not found, dropping request")

		return nil
	}

	if !job.Enabled {
		logger.WarnContext(ctx, "Job disabled, dropping request")

		return nil
	}

	run, err := w.runner.Run(ctx, job, request.Trigger, request.Params, runner.Options{User: request.TriggerUser})
	if err != nil {
		logger.ErrorContext(ctx, "Job run aborted", "error", err)

		w.publishJobFinished(ctx, request.JobID, run, err)

		return nil
	}

	logger.InfoContext(ctx, "Job run finished", "run_id", run.ID, "status", run.Status)
	w.publishJobFinished(ctx, request.JobID, run, nil)

	return nil
}

func (w *WorkerManager) handleFlowRunRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.FlowRunRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for FlowRunRequested")

		return nil
	}

	logger := w.logger.With("flow_id", request.FlowID, "event_id", request.ID, "trigger", request.Trigger)
	logger.InfoContext(ctx, "Processing flow run request")

	flow, err := w.store.Flows().GetByID(ctx, request.FlowID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load flow", "error", err)

		return err
	}

	if flow == nil {
		logger.WarnContext(ctx, "Flow not found, dropping request")

		return nil
	}

	if !flow.Enabled {
		logger.WarnContext(ctx, "Flow disabled, dropping request")

		return nil
	}

	run, err := w.engine.Execute(ctx, flow, request.Trigger, request.TriggerUser, request.Params)
	if err != nil {
		logger.ErrorContext(ctx, "Flow run aborted", "error", err)

		w.publishFlowFinished(ctx, request.FlowID, run, err)

		return nil
	}

	logger.InfoContext(ctx, "Flow run finished", "flow_run_id", run.ID, "status", run.Status)
	w.publishFlowFinished(ctx, request.FlowID, run, nil)

	return nil
}

func (w *WorkerManager) publishJobFinished(ctx context.Context, jobID string, run *models.JobRun, execErr error) {
	finished := events.JobRunFinished{
		BaseEvent: events.NewBaseEvent(events.JobRunFinishedEvent),
		JobID:     jobID,
	}
	finished.WorkerID = w.id

	if run != nil {
		finished.RunID = run.ID
		finished.TraceID = run.TraceID
		finished.Status = run.Status
		finished.Attempt = run.Attempt
		finished.DurationMS = run.DurationMS
		finished.Error = run.ErrorMsg
	}

	if execErr != nil {
		finished.Status = models.RunStatusFailed
		finished.Error = execErr.Error()
	}

	if err := w.bus.Publish(ctx, jobID, finished); err != nil {
		w.logger.ErrorContext(ctx, "Failed to publish job finished event", "job_id", jobID, "error", err)
	}
}

func (w *WorkerManager) publishFlowFinished(ctx context.Context, flowID string, run *models.FlowRun, execErr error) {
	finished := events.FlowRunFinished{
		BaseEvent: events.NewBaseEvent(events.FlowRunFinishedEvent),
		FlowID:    flowID,
	}
	finished.WorkerID = w.id

	if run != nil {
		finished.RunID = run.ID
		finished.Status = run.Status
		finished.DurationMS = run.DurationMS
		finished.FailedNodes = run.FailedNodes
		finished.SkippedNodes = run.SkippedNodes
		finished.Error = run.ErrorMsg
	}

	if execErr != nil {
		finished.Status = models.FlowStatusFailed
		finished.Error = execErr.Error()
	}

	if err := w.bus.Publish(ctx, flowID, finished); err != nil {
		w.logger.ErrorContext(ctx, "Failed to publish flow finished event", "flow_id", flowID, "error", err)
	}
}
