package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quickops/jobflow/pkg/models"
)

// JobRepository handles job definition database operations.
type JobRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *sql.DB, logger *slog.Logger) *JobRepository {
	return &JobRepository{db: db, logger: logger}
}

// GetAll returns all job definitions from the database.
func (r *JobRepository) GetAll(ctx context.Context) ([]*models.Job, error) {
	query := `
		SELECT
			id
		  , name
		  , type
		  , config
		  , cron_expr
		  , retry_count
		  , retry_interval_sec
		  , timeout_sec
		  , enabled
		  , alert_on_failure
		  , alert_on_timeout
		  , alert_channels
		  , params_schema
		  , created_at
		  , updated_at
		FROM jobs
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	jobs := make([]*models.Job, 0)

	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}

		jobs = append(jobs, job)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// GetByID returns a job definition by its ID. Returns nil when the job
// does not exist.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	query := `
		SELECT
			id
		  , name
		  , type
		  , config
		  , cron_expr
		  , retry_count
		  , retry_interval_sec
		  , timeout_sec
		  , enabled
		  , alert_on_failure
		  , alert_on_timeout
		  , alert_channels
		  , params_schema
		  , created_at
		  , updated_at
		FROM jobs
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	job, err := r.scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	return job, nil
}

// Save validates and upserts a job definition. Invalid definitions never
// reach the store.
func (r *JobRepository) Save(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()

	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}

	job.UpdatedAt = now

	configJSON, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal job config: %w", err)
	}

	alertChannelsJSON, err := json.Marshal(job.AlertChannels)
	if err != nil {
		return fmt.Errorf("failed to marshal alert channels: %w", err)
	}

	paramsSchemaJSON, err := json.Marshal(job.ParamsSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal params schema: %w", err)
	}

	query := `
		INSERT INTO jobs (id, name, type, config, cron_expr,
retry_count, retry_interval_sec, timeout_sec, enabled,
alert_on_failure, alert_on_timeout, alert_channels, params_schema, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			config = EXCLUDED.config,
			cron_expr = EXCLUDED.cron_expr,
			retry_count = EXCLUDED.retry_count,
			retry_interval_sec = EXCLUDED.retry_interval_sec,
			timeout_sec = EXCLUDED.timeout_sec,
			enabled = EXCLUDED.enabled,
			alert_on_failure = EXCLUDED.alert_on_failure,
			alert_on_timeout = EXCLUDED.alert_on_timeout,
			alert_channels = EXCLUDED.alert_channels,
			params_schema = EXCLUDED.params_schema,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		job.ID,
		job.Name,
		job.Type,
		configJSON,
		job.CronExpr,
		job.RetryCount,
		job.RetryIntervalSec,
		job.TimeoutSec,
		job.Enabled,
		job.AlertOnFailure,
		job.AlertOnTimeout,
		alertChannelsJSON,
		paramsSchemaJSON,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	return nil
}

// Delete removes a job definition by its ID. Deleting a missing job is
// not an error.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	return nil
}

func (r *JobRepository) scanJob(scanner interface {
	Scan(dest ...any) error
}) (*models.Job, error) {
	var (
		job               models.Job
		configJSON        []byte
		alertChannelsJSON []byte
		paramsSchemaJSON  []byte
	)

	err := scanner.Scan(
		&job.ID,
		&job.Name,
		&job.Type,
		&configJSON,
		&job.CronExpr,
		&job.RetryCount,
		&job.RetryIntervalSec,
		&job.TimeoutSec,
		&job.Enabled,
		&job.AlertOnFailure,
		&job.AlertOnTimeout,
		&alertChannelsJSON,
		&paramsSchemaJSON,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if configJSON != nil {
		err := json.Unmarshal(configJSON, &job.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal job config: %w", err)
		}
	}

	if alertChannelsJSON != nil {
		err := json.Unmarshal(alertChannelsJSON, &job.AlertChannels)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert channels: %w", err)
		}
	}

	if paramsSchemaJSON != nil {
		err := json.Unmarshal(paramsSchemaJSON, &job.ParamsSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal params schema: %w", err)
		}
	}

	return &job, nil
}
