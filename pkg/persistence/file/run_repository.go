package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quickops/jobflow/pkg/models"
)

// JobRunRepository stores job run records under <root>/job_runs/<id>.json.
// Save is an upsert: the runner writes the record at start and again on
// every status transition.
type JobRunRepository struct {
	root string
}

// NewJobRunRepository creates a new job run repository.
func NewJobRunRepository(root string) *JobRunRepository {
	return &JobRunRepository{root: root}
}

// Save writes a run record.
func (r *JobRunRepository) Save(_ context.Context, run *models.JobRun) error {
	return writeDocument(r.root, "job_runs", run.ID, run)
}

// GetByID retrieves a run record by its ID. Returns nil when the record
// does not exist.
func (r *JobRunRepository) GetByID(_ context.Context, id string) (*models.JobRun, error) {
	var run models.JobRun

	found, err := readDocument(r.root, "job_runs", id, &run)
	if err != nil || !found {
		return nil, err
	}

	return &run, nil
}

// ListByJob returns every run record of a job, newest first.
func (r *JobRunRepository) ListByJob(ctx context.Context, jobID string) ([]*models.JobRun, error) {
	runs, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]*models.JobRun, 0)

	for _, run := range runs {
		if run.JobID == jobID {
			matches = append(matches, run)
		}
	}

	sortRunsByStartTime(matches)

	return matches, nil
}

// ListByFlowRun returns every run record belonging to one flow run, newest first.
func (r *JobRunRepository) ListByFlowRun(ctx context.Context, flowRunID string) ([]*models.JobRun, error) {
	runs, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]*models.JobRun, 0)

	for _, run := range runs {
		if run.FlowRunID == flowRunID {
			matches = append(matches, run)
		}
	}

	sortRunsByStartTime(matches)

	return matches, nil
}

func (r *JobRunRepository) loadAll(ctx context.Context) ([]*models.JobRun, error) {
	ids, err := listDocumentIDs(r.root, "job_runs")
	if err != nil {
		return nil, err
	}

	runs := make([]*models.JobRun, 0, len(ids))

	for _, id := range ids {
		run, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", id, err)
		}

		if run != nil {
			runs = append(runs, run)
		}
	}

	return runs, nil
}

func sortRunsByStartTime(runs []*models.JobRun) {
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})
}

// FlowRunRepository stores flow run records under <root>/flow_runs/<id>.json.
type FlowRunRepository struct {
	root string
}

// NewFlowRunRepository creates a new flow run repository.
func NewFlowRunRepository(root string) *FlowRunRepository {
	return &FlowRunRepository{root: root}
}

// Save writes a flow run record.
func (r *FlowRunRepository) Save(_ context.Context, run *models.FlowRun) error {
	return writeDocument(r.root, "flow_runs", run.ID, run)
}

// GetByID retrieves a flow run record by its ID. Returns nil when the
// record does not exist.
func (r *FlowRunRepository) GetByID(_ context.Context, id string) (*models.FlowRun, error) {
	var run models.FlowRun

	found, err := readDocument(r.root, "flow_runs", id, &run)
	if err != nil || !found {
		return nil, err
	}

	return &run, nil
}

// ListByFlow returns every run record of a flow, newest first.
func (r *FlowRunRepository) ListByFlow(ctx context.Context, flowID string) ([]*models.FlowRun, error) {
	ids, err := listDocumentIDs(r.root, "flow_runs")
	if err != nil {
		return nil, err
	}

	matches := make([]*models.FlowRun, 0)

	for _, id := range ids {
		run, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load flow run %s: %w", id, err)
		}

		if run != nil && run.FlowID == flowID {
			matches = append(matches, run)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].StartTime.After(matches[j].StartTime)
	})

	return matches, nil
}

// writeDocument marshals a record into <root>/<kind>/<id>.json.
func writeDocument(root, kind, id string, doc any) error {
	dir := path.Join(root, kind)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	return os.WriteFile(path.Join(dir, id+".json"), data, 0600)
}

// readDocument unmarshals <root>/<kind>/<id>.json into doc. The boolean
// reports whether the document exists.
func readDocument(root, kind, id string, doc any) (bool, error) {
	filePath := filepath.Clean(path.Join(root, kind, id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to fetch %s %s: %w", kind, id, err)
	}

	err = json.Unmarshal(body, doc)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}

	return true, nil
}

func listDocumentIDs(root, kind string) ([]string, error) {
	dir := os.DirFS(path.Join(root, kind))

	jsonFiles, err := fs.Glob(dir, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", kind, err)
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}
