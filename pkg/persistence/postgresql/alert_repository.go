package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quickops/jobflow/pkg/models"
)

// AlertRepository handles alert record database operations.
type AlertRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(db *sql.DB, logger *slog.Logger) *AlertRepository {
	return &AlertRepository{db: db, logger: logger}
}

// Save upserts an alert record keyed by its id.
func (r *AlertRepository) Save(ctx context.Context, alert *models.Alert) error {
	channelsJSON, err := json.Marshal(alert.Channels)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}

	query := `
		INSERT INTO alerts (id, kind, job_id, flow_id, run_id,
title, body, channels, status, created_at, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			sent_at = EXCLUDED.sent_at
	`

	_, err = r.db.ExecContext(ctx, query,
		alert.ID,
		alert.Kind,
		alert.JobID,
		alert.FlowID,
		alert.RunID,
		alert.Title,
		alert.Body,
		channelsJSON,
		alert.Status,
		alert.CreatedAt,
		alert.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}

	return nil
}

// ListByJob returns the alerts dispatched for a job, newest first.
func (r *AlertRepository) ListByJob(ctx context.Context, jobID string) ([]*models.Alert, error) {
	query := `
		SELECT
			id
		  , kind
		  , job_id
		  , flow_id
		  , run_id
		  , title
		  , body
		  , channels
		  , status
		  , created_at
		  , sent_at
		FROM alerts
		WHERE job_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	alerts := make([]*models.Alert, 0)

	for rows.Next() {
		var (
			alert        models.Alert
			channelsJSON []byte
		)

		err := rows.Scan(
			&alert.ID,
			&alert.Kind,
			&alert.JobID,
			&alert.FlowID,
			&alert.RunID,
			&alert.Title,
			&alert.Body,
			&channelsJSON,
			&alert.Status,
			&alert.CreatedAt,
			&alert.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		if channelsJSON != nil {
			err := json.Unmarshal(channelsJSON, &alert.Channels)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal channels: %w", err)
			}
		}

		alerts = append(alerts, &alert)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}

	return alerts, nil
}
