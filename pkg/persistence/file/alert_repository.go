package file

import (
	"context"
	"fmt"
	"sort"

	"github.com/quickops/jobflow/pkg/models"
)

// AlertRepository stores dispatched alert records under <root>/alerts/<id>.json.
type AlertRepository struct {
	root string
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(root string) *AlertRepository {
	return &AlertRepository{root: root}
}

// Save writes an alert record.
func (r *AlertRepository) Save(_ context.Context, alert *models.Alert) error {
	return writeDocument(r.root, "alerts", alert.ID, alert)
}

// ListByJob returns every alert record of a job, newest first.
func (r *AlertRepository) ListByJob(_ context.Context, jobID string) ([]*models.Alert, error) {
	ids, err := listDocumentIDs(r.root, "alerts")
	if err != nil {
		return nil, err
	}

	matches := make([]*models.Alert, 0)

	for _, id := range ids {
		var alert models.Alert

		found, err := readDocument(r.root, "alerts", id, &alert)
		if err != nil {
			return nil, fmt.Errorf("failed to load alert %s: %w", id, err)
		}

		if found && alert.JobID == jobID {
			matches = append(matches, &alert)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	return matches, nil
}
