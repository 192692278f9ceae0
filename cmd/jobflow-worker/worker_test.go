package main

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickops/jobflow/pkg/channels/gochannel"
	"github.com/quickops/jobflow/pkg/cmd"
	"github.com/quickops/jobflow/pkg/eventbus"
	"github.com/quickops/jobflow/pkg/events"
	"github.com/quickops/jobflow/pkg/models"
	"github.com/quickops/jobflow/pkg/persistence"
	"github.com/quickops/jobflow/pkg/persistence/file"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	// Handlers publish finished events from inside the consume loop, so the
	// blocking test channel would deadlock here.
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	return eventbus.NewWatermillEventBus(pub, sub)
}

func startWorker(t *testing.T, store persistence.Persistence, bus eventbus.EventBus) {
	t.Helper()

	logger := newTestLogger()
	worker := NewWorkerManager("worker-test", store, bus, logger, cmd.NewExecutorRegistry(logger))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, worker.Start(ctx))
}

func TestWorker_JobRunRequested_EndToEnd(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	bus := newTestBus(t)

	ctx := context.Background()

	job := models.NewJob("echo-job", "Echo", models.ActionTypeShell, models.ActionConfig{
		Shell: &models.ShellConfig{Command: "echo job-ok"},
	})
	require.NoError(t, store.Jobs().Save(ctx, job))

	finished := make(chan *events.JobRunFinished, 1)
	require.NoError(t, bus.Handle(events.JobRunFinishedEvent, func(_ context.Context, event any) error {
		if e, ok := event.(*events.JobRunFinished); ok {
			finished <- e
		}

		return nil
	}))

	startWorker(t, store, bus)

	request := events.JobRunRequested{
		BaseEvent: events.NewBaseEvent(events.JobRunRequestedEvent),
		JobID:     job.ID,
		Trigger:   models.TriggerManual,
	}
	require.NoError(t, bus.Publish(ctx, job.ID, request))

	select {
	case event := <-finished:
		assert.Equal(t, job.ID, event.JobID)
		assert.Equal(t, models.RunStatusSuccess, event.Status)
		assert.Equal(t, "worker-test", event.WorkerID)
		assert.NotEmpty(t, event.RunID)

		run, err := store.JobRuns().GetByID(ctx, event.RunID)
		require.NoError(t, err)
		require.NotNil(t, run)
		assert.Equal(t, models.RunStatusSuccess, run.Status)
		assert.Contains(t, run.Result, "job-ok")
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for job run to finish")
	}
}

func TestWorker_FlowRunRequested_EndToEnd(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	bus := newTestBus(t)

	ctx := context.Background()

	first := models.NewJob("extract", "Extract", models.ActionTypeShell, models.ActionConfig{
		Shell: &models.ShellConfig{Command: "echo extracted"},
	})
	second := models.NewJob("load", "Load", models.ActionTypeShell, models.ActionConfig{
		Shell: &models.ShellConfig{Command: "echo loaded"},
	})
	require.NoError(t, store.Jobs().Save(ctx, first))
	require.NoError(t, store.Jobs().Save(ctx, second))

	flow := &models.JobFlow{
		ID:      "etl",
		Name:    "ETL",
		Enabled: true,
		Nodes: []*models.FlowNode{
			{ID: "a", JobID: first.ID},
			{ID: "b", JobID: second.ID},
		},
		Edges: []*models.FlowEdge{
			{Source: "a", Target: "b"},
		},
	}
	require.NoError(t, store.Flows().Save(ctx, flow))

	finished := make(chan *events.FlowRunFinished, 1)
	require.NoError(t, bus.Handle(events.FlowRunFinishedEvent, func(_ context.Context, event any) error {
		if e, ok := event.(*events.FlowRunFinished); ok {
			finished <- e
		}

		return nil
	}))

	startWorker(t, store, bus)

	request := events.FlowRunRequested{
		BaseEvent: events.NewBaseEvent(events.FlowRunRequestedEvent),
		FlowID:    flow.ID,
		Trigger:   models.TriggerManual,
	}
	require.NoError(t, bus.Publish(ctx, flow.ID, request))

	select {
	case event := <-finished:
		assert.Equal(t, flow.ID, event.FlowID)
		assert.Equal(t, models.FlowStatusSuccess, event.Status)
		assert.Empty(t, event.FailedNodes)

		run, err := store.FlowRuns().GetByID(ctx, event.RunID)
		require.NoError(t, err)
		require.NotNil(t, run)
		assert.Equal(t, models.FlowStatusSuccess, run.Status)
		assert.Equal(t, models.RunStatusSuccess, run.NodeStatuses["a"])
		assert.Equal(t, models.RunStatusSuccess, run.NodeStatuses["b"])
	case <-time.After(15 * time.Second):
		t.Fatal("timed out waiting for flow run to finish")
	}
}

func TestWorker_DisabledJobIsDropped(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	bus := newTestBus(t)

	ctx := context.Background()

	job := models.NewJob("dormant", "Dormant", models.ActionTypeShell, models.ActionConfig{
		Shell: &models.ShellConfig{Command: "echo never"},
	})
	job.Enabled = false
	require.NoError(t, store.Jobs().Save(ctx, job))

	finished := make(chan *events.JobRunFinished, 1)
	require.NoError(t, bus.Handle(events.JobRunFinishedEvent, func(_ context.Context, event any) error {
		if e, ok := event.(*events.JobRunFinished); ok {
			finished <- e
		}

		return nil
	}))

	startWorker(t, store, bus)

	request := events.JobRunRequested{
		BaseEvent: events.NewBaseEvent(events.JobRunRequestedEvent),
		JobID:     job.ID,
		Trigger:   models.TriggerScheduled,
	}
	require.NoError(t, bus.Publish(ctx, job.ID, request))

	select {
	case <-finished:
		t.Fatal("disabled job must not run")
	case <-time.After(500 * time.Millisecond):
	}

	runs, err := store.JobRuns().ListByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
