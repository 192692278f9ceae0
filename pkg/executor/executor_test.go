package executor_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/quickops/jobflow/pkg/executor"
	"github.com/quickops/jobflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	actionType models.ActionType
	schema     map[string]any
}

func (s *stubExecutor) Type() models.ActionType { return s.actionType }

func (s *stubExecutor) Schema() map[string]any { return s.schema }

func (s *stubExecutor) Execute(_ context.Context, _ models.ActionConfig, _ map[string]any) (any, error) {
	return "stub", nil
}

func newHTTPStub() *stubExecutor {
	return &stubExecutor{
		actionType: models.ActionTypeHTTP,
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url":     map[string]any{"type": "string", "minLength": 1},
				"method":  map[string]any{"type": "string"},
				"headers": map[string]any{"type": "object"},
				"body":    map[string]any{"type": "string"},
			},
			"required":             []string{"url"},
			"additionalProperties": false,
		},
	}
}

func newTestRegistry() *executor.Registry {
	return executor.NewRegistry(slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

func TestRegistry_Create(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()
	registry.Register(newHTTPStub())

	exec, err := registry.Create(models.ActionTypeHTTP)
	require.NoError(t, err)
	assert.Equal(t, models.ActionTypeHTTP, exec.Type())
}

func TestRegistry_Create_NotRegistered(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()

	_, err := registry.Create(models.ActionTypeSQL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action type 'sql' not registered")
}

func TestRegistry_Available(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()
	registry.Register(newHTTPStub())
	registry.Register(&stubExecutor{actionType: models.ActionTypeShell})

	available := registry.Available()
	assert.Len(t, available, 2)
	assert.Contains(t, available, models.ActionTypeHTTP)
	assert.Contains(t, available, models.ActionTypeShell)
}

func TestRegistry_ValidateConfig(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()
	registry.Register(newHTTPStub())

	valid := models.ActionConfig{HTTP: &models.HTTPConfig{URL: "https://example.com"}}
	require.NoError(t, registry.ValidateConfig(models.ActionTypeHTTP, valid))

	invalid := models.ActionConfig{HTTP: &models.HTTPConfig{}}
	err := registry.ValidateConfig(models.ActionTypeHTTP, invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON schema validation failed")
}

func TestRegistry_ValidateConfig_MissingSection(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()
	registry.Register(newHTTPStub())

	err := registry.ValidateConfig(models.ActionTypeHTTP, models.ActionConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires the http config section")
}

func TestRegistry_ValidateConfig_NotRegistered(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()

	err := registry.ValidateConfig(models.ActionTypeScript, models.ActionConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}
