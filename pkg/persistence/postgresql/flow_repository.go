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

// FlowRepository handles flow definition database operations.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(db *sql.DB, logger *slog.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

// GetAll returns all flow definitions from the database.
func (r *FlowRepository) GetAll(ctx context.Context) ([]*models.JobFlow, error) {
	query := `
		SELECT
			id
		  , name
		  , nodes
		  , edges
		  , error_strategy
		  , max_parallel
		  , enabled
		  , cron_expr
		  , alert_channels
		  , params_schema
		  , created_at
		  , updated_at
		FROM flows
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	flows := make([]*models.JobFlow, 0)

	for rows.Next() {
		flow, err := r.scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flows = append(flows, flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

// GetByID returns a flow definition by its ID. Returns nil when the flow
// does not exist.
func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.JobFlow, error) {
	query := `
		SELECT
			id
		  , name
		  , nodes
		  , edges
		  , error_strategy
		  , max_parallel
		  , enabled
		  , cron_expr
		  , alert_channels
		  , params_schema
		  , created_at
		  , updated_at
		FROM flows
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	flow, err := r.scanFlow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan flow: %w", err)
	}

	return flow, nil
}

// Save validates and upserts a flow definition.
func (r *FlowRepository) Save(ctx context.Context, flow *models.JobFlow) error {
	if err := flow.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	nodesJSON, err := json.Marshal(flow.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edgesJSON, err := json.Marshal(flow.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	alertChannelsJSON, err := json.Marshal(flow.AlertChannels)
	if err != nil {
		return fmt.Errorf("failed to marshal alert channels: %w", err)
	}

	paramsSchemaJSON, err := json.Marshal(flow.ParamsSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal params schema: %w", err)
	}

	query := `
		INSERT INTO flows (id, name, nodes, edges, error_strategy,
max_parallel, enabled, cron_expr, alert_channels, params_schema, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			error_strategy = EXCLUDED.error_strategy,
			max_parallel = EXCLUDED.max_parallel,
			enabled = EXCLUDED.enabled,
			cron_expr = EXCLUDED.cron_expr,
			alert_channels = EXCLUDED.alert_channels,
			params_schema = EXCLUDED.params_schema,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		flow.ID,
		flow.Name,
		nodesJSON,
		edgesJSON,
		flow.ErrorStrategy,
		flow.MaxParallel,
		flow.Enabled,
		flow.CronExpr,
		alertChannelsJSON,
		paramsSchemaJSON,
		flow.CreatedAt,
		flow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save flow: %w", err)
	}

	return nil
}

// Delete removes a flow definition by its ID. Deleting a missing flow is
// not an error.
func (r *FlowRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM flows WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}

	return nil
}

func (r *FlowRepository) scanFlow(scanner interface {
	Scan(dest ...any) error
}) (*models.JobFlow, error) {
	var (
		flow              models.JobFlow
		nodesJSON         []byte
		edgesJSON         []byte
		alertChannelsJSON []byte
		paramsSchemaJSON  []byte
	)

	err := scanner.Scan(
		&flow.ID,
		&flow.Name,
		&nodesJSON,
		&edgesJSON,
		&flow.ErrorStrategy,
		&flow.MaxParallel,
		&flow.Enabled,
		&flow.CronExpr,
		&alertChannelsJSON,
		&paramsSchemaJSON,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if nodesJSON != nil {
		err := json.Unmarshal(nodesJSON, &flow.Nodes)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
		}
	}

	if edgesJSON != nil {
		err := json.Unmarshal(edgesJSON, &flow.Edges)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
		}
	}

	if alertChannelsJSON != nil {
		err := json.Unmarshal(alertChannelsJSON, &flow.AlertChannels)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert channels: %w", err)
		}
	}

	if paramsSchemaJSON != nil {
		err := json.Unmarshal(paramsSchemaJSON, &flow.ParamsSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal params schema: %w", err)
		}
	}

	return &flow, nil
}
