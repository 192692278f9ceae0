package alert_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickops/jobflow/pkg/alert"
	"github.com/quickops/jobflow/pkg/models"
	"github.com/quickops/jobflow/pkg/persistence"
	"github.com/quickops/jobflow/pkg/persistence/file"
)

type fakeSender struct {
	channel string
	err     error

	mu   sync.Mutex
	sent []*models.Alert
}

func (f *fakeSender) Channel() string {
	return f.channel
}

func (f *fakeSender) Send(_ context.Context, a *models.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.sent = append(f.sent, a)

	return nil
}

func (f *fakeSender) delivered() []*models.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sent
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func failedRun(jobID string) *models.JobRun {
	run := models.NewJobRun(jobID, models.TriggerScheduled, nil)
	run.MarkFailed("command failed with code 3: boom")

	return run
}

func alertJob(channels ...string) *models.Job {
	job := models.NewJob("etl-daily", "ETL Daily", models.ActionTypeShell, models.ActionConfig{
		Shell: &models.ShellConfig{Command: "echo etl"},
	})
	job.AlertChannels = channels

	return job
}

func TestDispatcher_DispatchJob_Failure(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).Alerts()
	sender := &fakeSender{channel: "slack"}
	dispatcher := alert.NewDispatcher(testLogger(), repo, sender)

	job := alertJob("slack")
	run := failedRun(job.ID)

	dispatcher.DispatchJob(t.Context(), job, run, models.AlertFailure)

	delivered := sender.delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, "Job failed: ETL Daily", delivered[0].Title)
	assert.Contains(t, delivered[0].Body, "Trace: "+run.TraceID)
	assert.Contains(t, delivered[0].Body, "Trigger: scheduled")
	assert.Contains(t, delivered[0].Body, "Error: command failed with code 3: boom")

	records, err := repo.ListByJob(t.Context(), job.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.AlertStatusSent, records[0].Status)
	assert.Equal(t, models.AlertFailure, records[0].Kind)
	assert.Equal(t, run.ID, records[0].RunID)
}

func TestDispatcher_DispatchJob_TimeoutTitle(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).Alerts()
	sender := &fakeSender{channel: "slack"}
	dispatcher := alert.NewDispatcher(testLogger(), repo, sender)

	job := alertJob("slack")
	run := models.NewJobRun(job.ID, models.TriggerScheduled, nil)
	run.MarkTimeout("action timed out after 30s")

	dispatcher.DispatchJob(t.Context(), job, run, models.AlertTimeout)

	delivered := sender.delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, "Job timed out: ETL Daily", delivered[0].Title)
}

func TestDispatcher_DispatchJob_RecoveryTitle(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).Alerts()
	sender := &fakeSender{channel: "slack"}
	dispatcher := alert.NewDispatcher(testLogger(), repo, sender)

	job := alertJob("slack")
	run := models.NewJobRun(job.ID, models.TriggerRetry, nil)
	run.MarkSuccess("ok")

	dispatcher.DispatchJob(t.Context(), job, run, models.AlertSuccess)

	delivered := sender.delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, "Job succeeded: ETL Daily", delivered[0].Title)
}

func TestDispatcher_ChannelFailureIsSwallowed(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).Alerts()
	broken := &fakeSender{channel: "slack", err: errors.New("slack is down")}
	dispatcher := alert.NewDispatcher(testLogger(), repo, broken)

	job := alertJob("slack")

	dispatcher.DispatchJob(t.Context(), job, failedRun(job.ID), models.AlertFailure)

	records, err := repo.ListByJob(t.Context(), job.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.AlertStatusFailed, records[0].Status)
	assert.Nil(t, records[0].SentAt)
}

func TestDispatcher_PartialDeliveryMarksSent(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).Alerts()
	broken := &fakeSender{channel: "pagerduty", err: errors.New("routing key rejected")}
	working := &fakeSender{channel: "slack"}
	dispatcher := alert.NewDispatcher(testLogger(), repo, broken, working)

	job := alertJob("pagerduty", "slack")

	dispatcher.DispatchJob(t.Context(), job, failedRun(job.ID), models.AlertFailure)

	assert.Len(t, working.delivered(), 1)

	records, err := repo.ListByJob(t.Context(), job.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.AlertStatusSent, records[0].Status)
}

func TestDispatcher_UnknownChannelSkipped(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).Alerts()
	dispatcher := alert.NewDispatcher(testLogger(), repo, &fakeSender{channel: "slack"})

	job := alertJob("pigeon")

	dispatcher.DispatchJob(t.Context(), job, failedRun(job.ID), models.AlertFailure)

	records, err := repo.ListByJob(t.Context(), job.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.AlertStatusFailed, records[0].Status)
}

func TestDispatcher_DefaultsToLogChannel(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).Alerts()
	logChannel := &fakeSender{channel: "log"}
	dispatcher := alert.NewDispatcher(testLogger(), repo, logChannel)

	job := alertJob()

	dispatcher.DispatchJob(t.Context(), job, failedRun(job.ID), models.AlertFailure)

	assert.Len(t, logChannel.delivered(), 1)

	records, err := repo.ListByJob(t.Context(), job.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"log"}, records[0].Channels)
	assert.Equal(t, models.AlertStatusSent, records[0].Status)
}

func TestDispatcher_DispatchFlow(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).Alerts()
	sender := &fakeSender{channel: "slack"}
	dispatcher := alert.NewDispatcher(testLogger(), repo, sender)

	flow := &models.JobFlow{
		ID:            "pipeline",
		Name:          "Nightly Pipeline",
		Nodes:         []*models.FlowNode{{ID: "extract", JobID: "job-extract"}},
		AlertChannels: []string{"slack"},
	}

	run := models.NewFlowRun(flow.ID, models.TriggerScheduled, "", nil)
	require.NoError(t, run.SetNodeStatus("extract", models.RunStatusFailed))
	require.NoError(t, run.SetNodeStatus("load", models.RunStatusSkipped))
	run.Finish()

	dispatcher.DispatchFlow(t.Context(), flow, run)

	delivered := sender.delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, "Flow failed: Nightly Pipeline", delivered[0].Title)
	assert.Contains(t, delivered[0].Body, "Failed nodes: extract")
	assert.Contains(t, delivered[0].Body, "Skipped nodes: load")
	assert.Equal(t, flow.ID, delivered[0].FlowID)
	assert.Equal(t, run.ID, delivered[0].RunID)
}

type failingAlertRepo struct{}

func (failingAlertRepo) Save(context.Context, *models.Alert) error {
	return errors.New("disk full")
}

func (failingAlertRepo) ListByJob(context.Context, string) ([]*models.Alert, error) {
	return nil, nil
}

var _ persistence.AlertRepository = failingAlertRepo{}

func TestDispatcher_StorageFailureDoesNotBlockDelivery(t *testing.T) {
	sender := &fakeSender{channel: "slack"}
	dispatcher := alert.NewDispatcher(testLogger(), failingAlertRepo{}, sender)

	job := alertJob("slack")

	dispatcher.DispatchJob(t.Context(), job, failedRun(job.ID), models.AlertFailure)

	assert.Len(t, sender.delivered(), 1)
}
