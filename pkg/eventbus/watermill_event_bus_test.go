package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickops/jobflow/pkg/channels/gochannel"
	"github.com/quickops/jobflow/pkg/events"
	"github.com/quickops/jobflow/pkg/models"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan *events.JobRunRequested, 1)

	err := bus.Handle(events.JobRunRequestedEvent, func(_ context.Context, event any) error {
		request, ok := event.(*events.JobRunRequested)
		require.True(t, ok)

		received <- request

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	request := events.JobRunRequested{
		BaseEvent: events.NewBaseEvent(events.JobRunRequestedEvent),
		JobID:     "nightly-report",
		Trigger:   models.TriggerScheduled,
		Params:    map[string]any{"date": "2026-01-01"},
	}
	require.NoError(t, bus.Publish(ctx, "nightly-report", request))

	select {
	case got := <-received:
		assert.Equal(t, "nightly-report", got.JobID)
		assert.Equal(t, models.TriggerScheduled, got.Trigger)
		assert.Equal(t, request.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestWatermillEventBus_UnhandledTypeIsIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan *events.FlowRunFinished, 1)

	err := bus.Handle(events.FlowRunFinishedEvent, func(_ context.Context, event any) error {
		finished, ok := event.(*events.FlowRunFinished)
		require.True(t, ok)

		received <- finished

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	// No handler is registered for job requests; the bus acks and drops it.
	request := events.JobRunRequested{
		BaseEvent: events.NewBaseEvent(events.JobRunRequestedEvent),
		JobID:     "ignored",
	}
	require.NoError(t, bus.Publish(ctx, "ignored", request))

	finished := events.FlowRunFinished{
		BaseEvent: events.NewBaseEvent(events.FlowRunFinishedEvent),
		FlowID:    "etl",
		RunID:     "run-1",
		Status:    models.FlowStatusSuccess,
	}
	require.NoError(t, bus.Publish(ctx, "etl", finished))

	select {
	case got := <-received:
		assert.Equal(t, "etl", got.FlowID)
		assert.Equal(t, models.FlowStatusSuccess, got.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
