package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quickops/jobflow/pkg/models"
)

// nullableID converts an empty id to NULL for UUID typed columns.
func nullableID(id string) any {
	if id == "" {
		return nil
	}

	return id
}

// JobRunRepository handles job run database operations.
type JobRunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewJobRunRepository creates a new job run repository.
func NewJobRunRepository(db *sql.DB, logger *slog.Logger) *JobRunRepository {
	return &JobRunRepository{db: db, logger: logger}
}

// Save upserts a job run record keyed by its id.
func (r *JobRunRepository) Save(ctx context.Context, run *models.JobRun) error {
	inputParamsJSON, err := json.Marshal(run.InputParams)
	if err != nil {
		return fmt.Errorf("failed to marshal input params: %w", err)
	}

	query := `
		INSERT INTO job_runs (id, trace_id, job_id, trigger_mode, trigger_user,
status, start_time, end_time, duration_ms, input_params, result, error_msg,
attempt, prev_attempt_id, flow_run_id, node_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			end_time = EXCLUDED.end_time,
			duration_ms = EXCLUDED.duration_ms,
			result = EXCLUDED.result,
			error_msg = EXCLUDED.error_msg
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.TraceID,
		run.JobID,
		run.Trigger,
		run.TriggerUser,
		run.Status,
		run.StartTime,
		run.EndTime,
		run.DurationMS,
		inputParamsJSON,
		run.Result,
		run.ErrorMsg,
		run.Attempt,
		nullableID(run.PrevAttemptID),
		nullableID(run.FlowRunID),
		run.NodeID,
	)
	if err != nil {
		return fmt.Errorf("failed to save job run: %w", err)
	}

	return nil
}

// GetByID returns a job run by its ID. Returns nil when the run does not
// exist.
func (r *JobRunRepository) GetByID(ctx context.Context, id string) (*models.JobRun, error) {
	query := jobRunSelect + ` WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	run, err := r.scanJobRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan job run: %w", err)
	}

	return run, nil
}

// ListByJob returns the runs of a job, newest first.
func (r *JobRunRepository) ListByJob(ctx context.Context, jobID string) ([]*models.JobRun, error) {
	query := jobRunSelect + ` WHERE job_id = $1 ORDER BY start_time DESC`

	return r.queryJobRuns(ctx, query, jobID)
}

// ListByFlowRun returns the runs spawned by one flow run, newest first.
func (r *JobRunRepository) ListByFlowRun(ctx context.Context, flowRunID string) ([]*models.JobRun, error) {
	query := jobRunSelect + ` WHERE flow_run_id = $1 ORDER BY start_time DESC`

	return r.queryJobRuns(ctx, query, flowRunID)
}

const jobRunSelect = `
	SELECT
		id
	  , trace_id
	  , job_id
	  , trigger_mode
	  , trigger_user
	  , status
	  , start_time
	  , end_time
	  , duration_ms
	  , input_params
	  , result
	  , error_msg
	  , attempt
	  , prev_attempt_id
	  , flow_run_id
	  , node_id
	FROM job_runs
`

func (r *JobRunRepository) queryJobRuns(ctx context.Context, query string, args ...any) ([]*models.JobRun, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query job runs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.JobRun, 0)

	for rows.Next() {
		run, err := r.scanJobRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating job runs: %w", err)
	}

	return runs, nil
}

func (r *JobRunRepository) scanJobRun(scanner interface {
	Scan(dest ...any) error
}) (*models.JobRun, error) {
	var (
		run             models.JobRun
		inputParamsJSON []byte
		prevAttemptID   sql.NullString
		flowRunID       sql.NullString
		nodeID          sql.NullString
	)

	err := scanner.Scan(
		&run.ID,
		&run.TraceID,
		&run.JobID,
		&run.Trigger,
		&run.TriggerUser,
		&run.Status,
		&run.StartTime,
		&run.EndTime,
		&run.DurationMS,
		&inputParamsJSON,
		&run.Result,
		&run.ErrorMsg,
		&run.Attempt,
		&prevAttemptID,
		&flowRunID,
		&nodeID,
	)
	if err != nil {
		return nil, err
	}

	run.PrevAttemptID = prevAttemptID.String
	run.FlowRunID = flowRunID.String
	run.NodeID = nodeID.String

	if inputParamsJSON != nil {
		err := json.Unmarshal(inputParamsJSON, &run.InputParams)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal input params: %w", err)
		}
	}

	return &run, nil
}

// FlowRunRepository handles flow run database operations.
type FlowRunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFlowRunRepository creates a new flow run repository.
func NewFlowRunRepository(db *sql.DB, logger *slog.Logger) *FlowRunRepository {
	return &FlowRunRepository{db: db, logger: logger}
}

// Save upserts a flow run record keyed by its id.
func (r *FlowRunRepository) Save(ctx context.Context, run *models.FlowRun) error {
	inputParamsJSON, err := json.Marshal(run.InputParams)
	if err != nil {
		return fmt.Errorf("failed to marshal input params: %w", err)
	}

	nodeStatusesJSON, err := json.Marshal(run.NodeStatuses)
	if err != nil {
		return fmt.Errorf("failed to marshal node statuses: %w", err)
	}

	nodeRunsJSON, err := json.Marshal(run.NodeRuns)
	if err != nil {
		return fmt.Errorf("failed to marshal node runs: %w", err)
	}

	failedNodesJSON, err := json.Marshal(run.FailedNodes)
	if err != nil {
		return fmt.Errorf("failed to marshal failed nodes: %w", err)
	}

	skippedNodesJSON, err := json.Marshal(run.SkippedNodes)
	if err != nil {
		return fmt.Errorf("failed to marshal skipped nodes: %w", err)
	}

	query := `
		INSERT INTO flow_runs (id, flow_id, trigger_mode, trigger_user, status,
start_time, end_time, duration_ms, input_params, node_statuses, node_runs,
failed_nodes, skipped_nodes, error_msg)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			end_time = EXCLUDED.end_time,
			duration_ms = EXCLUDED.duration_ms,
			node_statuses = EXCLUDED.node_statuses,
			node_runs = EXCLUDED.node_runs,
			failed_nodes = EXCLUDED.failed_nodes,
			skipped_nodes = EXCLUDED.skipped_nodes,
			error_msg = EXCLUDED.error_msg
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.FlowID,
		run.Trigger,
		run.TriggerUser,
		run.Status,
		run.StartTime,
		run.EndTime,
		run.DurationMS,
		inputParamsJSON,
		nodeStatusesJSON,
		nodeRunsJSON,
		failedNodesJSON,
		skippedNodesJSON,
		run.ErrorMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to save flow run: %w", err)
	}

	return nil
}

// GetByID returns a flow run by its ID. Returns nil when the run does not
// exist.
func (r *FlowRunRepository) GetByID(ctx context.Context, id string) (*models.FlowRun, error) {
	query := flowRunSelect + ` WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	run, err := r.scanFlowRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan flow run: %w", err)
	}

	return run, nil
}

// ListByFlow returns the runs of a flow, newest first.
func (r *FlowRunRepository) ListByFlow(ctx context.Context, flowID string) ([]*models.FlowRun, error) {
	query := flowRunSelect + ` WHERE flow_id = $1 ORDER BY start_time DESC`

	rows, err := r.db.QueryContext(ctx, query, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query flow runs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.FlowRun, 0)

	for rows.Next() {
		run, err := r.scanFlowRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating flow runs: %w", err)
	}

	return runs, nil
}

const flowRunSelect = `
	SELECT
		id
	  , flow_id
	  , trigger_mode
	  , trigger_user
	  , status
	  , start_time
	  , end_time
	  , duration_ms
	  , input_params
	  , node_statuses
	  , node_runs
	  , failed_nodes
	  , skipped_nodes
	  , error_msg
	FROM flow_runs
`

func (r *FlowRunRepository) scanFlowRun(scanner interface {
	Scan(dest ...any) error
}) (*models.FlowRun, error) {
	var (
		run              models.FlowRun
		inputParamsJSON  []byte
		nodeStatusesJSON []byte
		nodeRunsJSON     []byte
		failedNodesJSON  []byte
		skippedNodesJSON []byte
	)

	err := scanner.Scan(
		&run.ID,
		&run.FlowID,
		&run.Trigger,
		&run.TriggerUser,
		&run.Status,
		&run.StartTime,
		&run.EndTime,
		&run.DurationMS,
		&inputParamsJSON,
		&nodeStatusesJSON,
		&nodeRunsJSON,
		&failedNodesJSON,
		&skippedNodesJSON,
		&run.ErrorMsg,
	)
	if err != nil {
		return nil, err
	}

	if inputParamsJSON != nil {
		err := json.Unmarshal(inputParamsJSON, &run.InputParams)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal input params: %w", err)
		}
	}

	if nodeStatusesJSON != nil {
		err := json.Unmarshal(nodeStatusesJSON, &run.NodeStatuses)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal node statuses: %w", err)
		}
	}

	if nodeRunsJSON != nil {
		err := json.Unmarshal(nodeRunsJSON, &run.NodeRuns)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal node runs: %w", err)
		}
	}

	if failedNodesJSON != nil {
		err := json.Unmarshal(failedNodesJSON, &run.FailedNodes)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal failed nodes: %w", err)
		}
	}

	if skippedNodesJSON != nil {
		err := json.Unmarshal(skippedNodesJSON, &run.SkippedNodes)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal skipped nodes: %w", err)
		}
	}

	return &run, nil
}
