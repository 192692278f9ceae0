package notify

import (
	"context"
	"log/slog"

	"github.com/quickops/jobflow/pkg/models"
)

// LogSender writes alerts to the structured log. It is the fallback
// channel and never fails.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log-backed alert channel.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("module", "log_sender")}
}

// Channel returns the channel name.
func (s *LogSender) Channel() string {
	return "log"
}

// Send logs the alert, at error level unless it is a recovery notice.
func (s *LogSender) Send(ctx context.Context, alert *models.Alert) error {
	args := []any{
		"kind", alert.Kind,
		"job_id", alert.JobID,
		"flow_id", alert.FlowID,
		"run_id", alert.RunID,
		"body", alert.Body,
	}

	if alert.Kind == models.AlertSuccess {
		s.logger.InfoContext(ctx, alert.Title, args...)
	} else {
		s.logger.ErrorContext(ctx, alert.Title, args...)
	}

	return nil
}
