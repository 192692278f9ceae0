// Package file provides file-based persistence for job and flow definitions
// and their run records. Every entity is one JSON document under the root
// directory.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/quickops/jobflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root        string
	jobRepo     *JobRepository
	flowRepo    *FlowRepository
	jobRunRepo  *JobRunRepository
	flowRunRepo *FlowRunRepository
	alertRepo   *AlertRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:        cleanRoot,
		jobRepo:     NewJobRepository(cleanRoot),
		flowRepo:    NewFlowRepository(cleanRoot),
		jobRunRepo:  NewJobRunRepository(cleanRoot),
		flowRunRepo: NewFlowRunRepository(cleanRoot),
		alertRepo:   NewAlertRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) Jobs() persistence.JobRepository {
	return fp.jobRepo
}

func (fp *Persistence) Flows() persistence.FlowRepository {
	return fp.flowRepo
}

func (fp *Persistence) JobRuns() persistence.JobRunRepository {
	return fp.jobRunRepo
}

func (fp *Persistence) FlowRuns() persistence.FlowRunRepository {
	return fp.flowRunRepo
}

func (fp *Persistence) Alerts() persistence.AlertRepository {
	return fp.alertRepo
}
