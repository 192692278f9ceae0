package notify

import (
	"context"
	"fmt"

	"github.com/PagerDuty/go-pagerduty"

	"github.com/quickops/jobflow/pkg/models"
)

// PagerDutySender triggers PagerDuty events through the Events API v2.
type PagerDutySender struct {
	routingKey string
	client     *pagerduty.Client
}

// NewPagerDutySender creates a PagerDuty alert channel for the given
// integration routing key.
func NewPagerDutySender(routingKey string, options ...pagerduty.ClientOptions) *PagerDutySender {
	return &PagerDutySender{
		routingKey: routingKey,
		client:     pagerduty.NewClient("", options...),
	}
}

// Channel returns the channel name.
func (s *PagerDutySender) Channel() string {
	return "pagerduty"
}

// Send triggers an event. The run id doubles as the dedup key so repeated
// dispatches for one run collapse into a single incident.
func (s *PagerDutySender) Send(ctx context.Context, alert *models.Alert) error {
	event := &pagerduty.V2Event{
		RoutingKey: s.routingKey,
		Action:     "trigger",
		DedupKey:   alert.RunID,
		Payload: &pagerduty.V2Payload{
			Summary:  alert.Title,
			Source:   "jobflow",
			Severity: eventSeverity(alert.Kind),
			Details: map[string]string{
				"job_id":  alert.JobID,
				"flow_id": alert.FlowID,
				"run_id":  alert.RunID,
				"message": alert.Body,
			},
		},
	}

	_, err := s.client.ManageEventWithContext(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to trigger pagerduty event: %w", err)
	}

	return nil
}

func eventSeverity(kind models.AlertKind) string {
	if kind == models.AlertSuccess {
		return "info"
	}

	return "critical"
}
