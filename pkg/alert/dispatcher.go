// Package alert renders run outcomes into human-readable notifications and
// fans them out to the configured channels. Dispatching never fails the
// run that triggered it: channel and storage errors are logged and
// swallowed, and the outcome is recorded on the persisted Alert.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/quickops/jobflow/pkg/models"
	"github.com/quickops/jobflow/pkg/notify"
	"github.com/quickops/jobflow/pkg/persistence"
)

// DefaultChannel receives alerts when a definition configures none.
const DefaultChannel = "log"

// Dispatcher formats and delivers alerts for job and flow runs.
type Dispatcher struct {
	logger  *slog.Logger
	alerts  persistence.AlertRepository
	senders map[string]notify.Sender
}

// NewDispatcher creates a dispatcher over the given senders. Each sender
// is addressed by its Channel name.
func NewDispatcher(logger *slog.Logger, alerts persistence.AlertRepository, senders ...notify.Sender) *Dispatcher {
	byChannel := make(map[string]notify.Sender, len(senders))

	for _, sender := range senders {
		byChannel[sender.Channel()] = sender
	}

	return &Dispatcher{
		logger:  logger.With("module", "alert_dispatcher"),
		alerts:  alerts,
		senders: byChannel,
	}
}

// DispatchJob sends an alert about a terminal job run.
func (d *Dispatcher) DispatchJob(ctx context.Context, job *models.Job, run *models.JobRun, kind models.AlertKind) {
	alert := models.NewAlert(kind, jobTitle(job, kind), jobBody(job, run), job.AlertChannels)
	alert.JobID = job.ID
	alert.RunID = run.ID

	d.dispatch(ctx, alert)
}

// DispatchFlow sends an alert about a failed flow run.
func (d *Dispatcher) DispatchFlow(ctx context.Context, flow *models.JobFlow, run *models.FlowRun) {
	alert := models.NewAlert(models.AlertFailure, "Flow failed: "+flow.Name, flowBody(flow, run), flow.AlertChannels)
	alert.FlowID = flow.ID
	alert.RunID = run.ID

	d.dispatch(ctx, alert)
}

func (d *Dispatcher) dispatch(ctx context.Context, alert *models.Alert) {
	if len(alert.Channels) == 0 {
		alert.Channels = []string{DefaultChannel}
	}

	err := d.alerts.Save(ctx, alert)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to persist alert record", "alert_id", alert.ID, "error", err)
	}

	var delivery *multierror.Error

	delivered := 0

	for _, channel := range alert.Channels {
		sender, ok := d.senders[channel]
		if !ok {
			d.logger.WarnContext(ctx, "unknown alert channel, skipping", "channel", channel, "alert_id", alert.ID)

			continue
		}

		err := sender.Send(ctx, alert)
		if err != nil {
			delivery = multierror.Append(delivery, fmt.Errorf("channel %s: %w", channel, err))

			continue
		}

		delivered++
	}

	err = delivery.ErrorOrNil()
	if err != nil {
		d.logger.ErrorContext(ctx, "alert delivery failed on some channels", "alert_id", alert.ID, "error", err)
	}

	if delivered > 0 {
		alert.MarkSent()
	} else {
		alert.MarkFailed()
	}

	err = d.alerts.Save(ctx, alert)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to update alert record", "alert_id", alert.ID, "error", err)
	}
}

func jobTitle(job *models.Job, kind models.AlertKind) string {
	switch kind {
	case models.AlertTimeout:
		return "Job timed out: " + job.Name
	case models.AlertSuccess:
		return "Job succeeded: " + job.Name
	default:
		return "Job failed: " + job.Name
	}
}

func jobBody(job *models.Job, run *models.JobRun) string {
	lines := []string{
		fmt.Sprintf("Job: %s (%s)", job.Name, job.ID),
		fmt.Sprintf("Type: %s", job.Type),
		fmt.Sprintf("Trace: %s", run.TraceID),
		fmt.Sprintf("Trigger: %s", run.Trigger),
		fmt.Sprintf("Attempt: %d", run.Attempt),
		fmt.Sprintf("Started: %s", run.StartTime.Format(time.RFC3339)),
	}

	if run.EndTime != nil {
		lines = append(lines, fmt.Sprintf("Finished: %s", run.EndTime.Format(time.RFC3339)))
	}

	lines = append(lines, fmt.Sprintf("Duration: %dms", run.DurationMS))

	if run.ErrorMsg != "" {
		lines = append(lines, "Error: "+run.ErrorMsg)
	}

	return strings.Join(lines, "\n")
}

func flowBody(flow *models.JobFlow, run *models.FlowRun) string {
	lines := []string{
		fmt.Sprintf("Flow: %s (%s)", flow.Name, flow.ID),
		fmt.Sprintf("Trigger: %s", run.Trigger),
		fmt.Sprintf("Started: %s", run.StartTime.Format(time.RFC3339)),
	}

	if run.EndTime != nil {
		lines = append(lines, fmt.Sprintf("Finished: %s", run.EndTime.Format(time.RFC3339)))
	}

	lines = append(lines, fmt.Sprintf("Duration: %dms", run.DurationMS))

	if len(run.FailedNodes) > 0 {
		lines = append(lines, "Failed nodes: "+strings.Join(run.FailedNodes, ", "))
	}

	if len(run.SkippedNodes) > 0 {
		lines = append(lines, "Skipped nodes: "+strings.Join(run.SkippedNodes, ", "))
	}

	if run.ErrorMsg != "" {
		lines = append(lines, "Error: "+run.ErrorMsg)
	}

	return strings.Join(lines, "\n")
}
