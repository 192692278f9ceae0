// Package notify provides the delivery channels alert dispatches go out on.
package notify

import (
	"context"

	"github.com/quickops/jobflow/pkg/models"
)

// Sender delivers one rendered alert to a single channel. Implementations
// must be safe for concurrent use.
type Sender interface {
	// Channel returns the name job and flow definitions reference in
	// their alert_channels list.
	Channel() string
	Send(ctx context.Context, alert *models.Alert) error
}
