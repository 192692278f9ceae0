// Package persistence provides the storage abstraction for job and flow
// definitions and their run records.
package persistence

import (
	"context"

	"github.com/quickops/jobflow/pkg/models"
)

// JobRepository stores job definitions. GetByID returns nil without an
// error when the job does not exist.
type JobRepository interface {
	GetAll(ctx context.Context) ([]*models.Job, error)
	GetByID(ctx context.Context, id string) (*models.Job, error)
	Save(ctx context.Context, job *models.Job) error
	Delete(ctx context.Context, id string) error
}

// FlowRepository stores flow definitions.
type FlowRepository interface {
	GetAll(ctx context.Context) ([]*models.JobFlow, error)
	GetByID(ctx context.Context, id string) (*models.JobFlow, error)
	Save(ctx context.Context, flow *models.JobFlow) error
	Delete(ctx context.Context, id string) error
}

// JobRunRepository stores job run records. Save is an upsert keyed by run
// id: the runner saves the record when the attempt starts and again at
// every status transition.
type JobRunRepository interface {
	Save(ctx context.Context, run *models.JobRun) error
	GetByID(ctx context.Context, id string) (*models.JobRun, error)
	ListByJob(ctx context.Context, jobID string) ([]*models.JobRun, error)
	ListByFlowRun(ctx context.Context, flowRunID string) ([]*models.JobRun, error)
}

// FlowRunRepository stores flow run records. Save is an upsert keyed by
// run id.
type FlowRunRepository interface {
	Save(ctx context.Context, run *models.FlowRun) error
	GetByID(ctx context.Context, id string) (*models.FlowRun, error)
	ListByFlow(ctx context.Context, flowID string) ([]*models.FlowRun, error)
}

// AlertRepository stores dispatched alert records.
type AlertRepository interface {
	Save(ctx context.Context, alert *models.Alert) error
	ListByJob(ctx context.Context, jobID string) ([]*models.Alert, error)
}

type Persistence interface {
	Jobs() JobRepository
	Flows() FlowRepository
	JobRuns() JobRunRepository
	FlowRuns() FlowRunRepository
	Alerts() AlertRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
