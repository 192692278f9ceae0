package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/quickops/jobflow/pkg/models"
)

// SlackSender posts alerts to a Slack incoming webhook.
type SlackSender struct {
	webhookURL string
}

// NewSlackSender creates a Slack alert channel for the given incoming
// webhook URL.
func NewSlackSender(webhookURL string) *SlackSender {
	return &SlackSender{webhookURL: webhookURL}
}

// Channel returns the channel name.
func (s *SlackSender) Channel() string {
	return "slack"
}

// Send posts the alert as a single attachment message.
func (s *SlackSender) Send(ctx context.Context, alert *models.Alert) error {
	fields := make([]slack.AttachmentField, 0, 3)

	if alert.JobID != "" {
		fields = append(fields, slack.AttachmentField{Title: "Job", Value: alert.JobID, Short: true})
	}

	if alert.FlowID != "" {
		fields = append(fields, slack.AttachmentField{Title: "Flow", Value: alert.FlowID, Short: true})
	}

	if alert.RunID != "" {
		fields = append(fields, slack.AttachmentField{Title: "Run", Value: alert.RunID, Short: true})
	}

	message := &slack.WebhookMessage{
		Attachments: []slack.Attachment{
			{
				Color:  attachmentColor(alert.Kind),
				Title:  alert.Title,
				Text:   alert.Body,
				Fields: fields,
				Footer: "jobflow",
			},
		},
	}

	err := slack.PostWebhookContext(ctx, s.webhookURL, message)
	if err != nil {
		return fmt.Errorf("failed to post slack webhook: %w", err)
	}

	return nil
}

func attachmentColor(kind models.AlertKind) string {
	switch kind {
	case models.AlertSuccess:
		return "good"
	case models.AlertTimeout:
		return "warning"
	default:
		return "danger"
	}
}
