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

// FlowRepository handles flow definition file operations. Documents live
// under <root>/flows/<id>.json.
type FlowRepository struct {
	root string
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(root string) *FlowRepository {
	return &FlowRepository{root: root}
}

// GetAll returns every flow definition under the root directory.
func (r *FlowRepository) GetAll(ctx context.Context) ([]*models.JobFlow, error) {
	root := os.DirFS(r.root + "/flows")

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list flow files: %w", err)
	}

	flows := make([]*models.JobFlow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		flowID := strings.TrimSuffix(file, ".json")

		flow, err := r.GetByID(ctx, flowID)
		if err != nil {
			return nil, fmt.Errorf("failed to load flow %s: %w", flowID, err)
		}

		if flow != nil {
			flows = append(flows, flow)
		}
	}

	return flows, nil
}

// GetByID retrieves a flow definition by its ID. Returns nil when the flow
// does not exist.
func (r *FlowRepository) GetByID(_ context.Context, flowID string) (*models.JobFlow, error) {
	filePath := filepath.Clean(path.Join(r.root, "flows", flowID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch flow %s: %w", flowID, err)
	}

	var flow models.JobFlow

	err = json.Unmarshal(body, &flow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow %s: %w", flowID, err)
	}

	return &flow, nil
}

// Save validates and writes a flow definition.
func (r *FlowRepository) Save(_ context.Context, flow *models.JobFlow) error {
	if err := flow.Validate(); err != nil {
		return err
	}

	err := os.MkdirAll(r.root+"/flows", 0750)
	if err != nil {
		return fmt.Errorf("failed to create flows directory: %w", err)
	}

	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	data, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flow %s: %w", flow.ID, err)
	}

	filePath := path.Join(r.root+"/flows", flow.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// Delete removes a flow definition by its ID.
func (r *FlowRepository) Delete(_ context.Context, id string) error {
	filePath := path.Join(r.root+"/flows", id+".json")

	err := os.Remove(filePath)

	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete flow %s: %w", id, err)
	}

	return nil
}
