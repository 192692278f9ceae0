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
	"github.com/quickops/jobflow/pkg/eventbus"
	"github.com/quickops/jobflow/pkg/models"
	"github.com/quickops/jobflow/pkg/persistence/file"
)

func TestScheduler_StartRegistersStoredTriggers(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store := file.NewPersistence(t.TempDir())

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	defer bus.Close()

	ctx := context.Background()

	job := models.NewJob("nightly", "Nightly", models.ActionTypeShell, models.ActionConfig{
		Shell: &models.ShellConfig{Command: "echo nightly"},
	})
	job.CronExpr = "0 2 * * *"
	require.NoError(t, store.Jobs().Save(ctx, job))

	flow := &models.JobFlow{
		ID:       "hourly-etl",
		Name:     "Hourly ETL",
		Enabled:  true,
		CronExpr: "@hourly",
		Nodes:    []*models.FlowNode{{ID: "a", JobID: job.ID}},
	}
	require.NoError(t, store.Flows().Save(ctx, flow))

	scheduler := NewScheduler(logger, store, bus, nil, time.Minute)
	require.NoError(t, scheduler.Start(ctx))

	entries := scheduler.registry.Entries()
	assert.Equal(t, "0 2 * * *", entries["job:nightly"])
	assert.Equal(t, "@hourly", entries["flow:hourly-etl"])

	require.NoError(t, scheduler.Stop(ctx))
}
