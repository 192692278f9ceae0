// Package cmd holds the construction helpers shared by the daemons'
// command-line entry points.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quickops/jobflow/pkg/persistence"
	"github.com/quickops/jobflow/pkg/persistence/file"
	"github.com/quickops/jobflow/pkg/persistence/postgresql"
)

// NewPersistence selects a storage backend by URL scheme:
// postgres://... for PostgreSQL, anything else is treated as a directory
// path for the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}

		return store, nil
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}
