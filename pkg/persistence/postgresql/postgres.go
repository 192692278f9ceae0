// Package postgresql provides PostgreSQL persistence for job and flow
// definitions and their run records.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/quickops/jobflow/pkg/persistence"
	"github.com/quickops/jobflow/pkg/persistence/sqlbase"

	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db       *sql.DB
	logger   *slog.Logger
	jobs     *JobRepository
	flows    *FlowRepository
	jobRuns  *JobRunRepository
	flowRuns *FlowRunRepository
	alerts   *AlertRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:       database,
		logger:   logger,
		jobs:     NewJobRepository(database, logger),
		flows:    NewFlowRepository(database, logger),
		jobRuns:  NewJobRunRepository(database, logger),
		flowRuns: NewFlowRunRepository(database, logger),
		alerts:   NewAlertRepository(database, logger),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Jobs returns the job definition repository.
func (p *Persistence) Jobs() persistence.JobRepository {
	return p.jobs
}

// Flows returns the flow definition repository.
func (p *Persistence) Flows() persistence.FlowRepository {
	return p.flows
}

// JobRuns returns the job run repository.
func (p *Persistence) JobRuns() persistence.JobRunRepository {
	return p.jobRuns
}

// FlowRuns returns the flow run repository.
func (p *Persistence) FlowRuns() persistence.FlowRunRepository {
	return p.flowRuns
}

// Alerts returns the alert record repository.
func (p *Persistence) Alerts() persistence.AlertRepository {
	return p.alerts
}
