package persistence_test

import (
	"errors"
	"testing"

	"github.com/quickops/jobflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error constants are available", func(t *testing.T) {
		assert.NotNil(t, persistence.ErrJobNotFound)
		assert.NotNil(t, persistence.ErrFlowNotFound)
		assert.NotNil(t, persistence.ErrRunNotFound)
	})

	t.Run("error checking functions work correctly", func(t *testing.T) {
		jobErr := persistence.NewJobError("GetByID", "job-123", persistence.ErrJobNotFound)
		flowErr := persistence.NewFlowError("GetByID", "flow-456", persistence.ErrFlowNotFound)
		runErr := persistence.NewRunError("GetByID", "run-789", persistence.ErrRunNotFound)

		assert.True(t, persistence.IsJobNotFound(jobErr))
		assert.True(t, persistence.IsFlowNotFound(flowErr))
		assert.True(t, persistence.IsRunNotFound(runErr))

		// Test error unwrapping
		assert.True(t, errors.Is(jobErr, persistence.ErrJobNotFound))
		assert.True(t, errors.Is(flowErr, persistence.ErrFlowNotFound))
		assert.True(t, errors.Is(runErr, persistence.ErrRunNotFound))
	})

	t.Run("job error contains context", func(t *testing.T) {
		err := persistence.NewJobError("Save", "job-123", persistence.ErrJobNotFound)

		assert.Contains(t, err.Error(), "Save")
		assert.Contains(t, err.Error(), "job-123")
		assert.Contains(t, err.Error(), "job not found")
	})

	t.Run("run error contains context", func(t *testing.T) {
		err := persistence.NewRunError("ListByJob", "run-789", persistence.ErrRunNotFound)

		assert.Contains(t, err.Error(), "ListByJob")
		assert.Contains(t, err.Error(), "run-789")
		assert.Contains(t, err.Error(), "run not found")
	})
}
