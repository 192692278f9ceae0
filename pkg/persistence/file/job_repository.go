package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/quickops/jobflow/pkg/models"
)

// JobRepository handles job definition file operations. Documents live
// under <root>/jobs/<id>.json.
type JobRepository struct {
	root string
}

// NewJobRepository creates a new job repository.
func NewJobRepository(root string) *JobRepository {
	return &JobRepository{root: root}
}

// GetAll returns every job definition under the root directory.
func (r *JobRepository) GetAll(ctx context.Context) ([]*models.Job, error) {
	root := os.DirFS(r.root + "/jobs")

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list job files: %w", err)
	}

	jobs := make([]*models.Job, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		jobID := strings.TrimSuffix(file, ".json")

		job, err := r.GetByID(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
		}

		if job != nil {
			jobs = append(jobs, job)
		}
	}

	return jobs, nil
}

// GetByID retrieves a job definition by its ID. Returns nil when the job
// does not exist.
func (r *JobRepository) GetByID(_ context.Context, jobID string) (*models.Job, error) {
	filePath := filepath.Clean(path.Join(r.root, "jobs", jobID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch job %s: %w", jobID, err)
	}

	var job models.Job

	err = json.Unmarshal(body, &job)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}

	return &job, nil
}

// Save validates and writes a job definition. Invalid definitions never
// reach the store.
func (r *JobRepository) Save(_ context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	err := os.MkdirAll(r.root+"/jobs", 0750)
	if err != nil {
		return fmt.Errorf("failed to create jobs directory: %w", err)
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}

	job.UpdatedAt = now

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}

	filePath := path.Join(r.root+"/jobs", job.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// Delete removes a job definition by its ID.
func (r *JobRepository) Delete(_ context.Context, id string) error {
	filePath := path.Join(r.root+"/jobs", id+".json")

	err := os.Remove(filePath)

	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}

	return nil
}
