package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/quickops/jobflow/pkg/models"
)

// WebhookSender posts the alert record as JSON to a configured endpoint.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender creates a generic webhook alert channel.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		client: &http.Client{},
	}
}

// Channel returns the channel name.
func (s *WebhookSender) Channel() string {
	return "webhook"
}

// Send posts the alert. Any non-2xx response is a delivery failure.
func (s *WebhookSender) Send(ctx context.Context, alert *models.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post alert webhook: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}

	return nil
}
