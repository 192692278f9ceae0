// Package executor defines the action executor contract and the registry
// that maps action types to implementations. One executor serves one action
// type; the set is closed and unknown types are rejected.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/quickops/jobflow/pkg/models"
)

// ActionExecutor runs the action of a single job attempt. Implementations
// must honor ctx cancellation: when the attempt deadline expires the
// executor returns promptly with the context error.
type ActionExecutor interface {
	// Type reports the action type this executor serves.
	Type() models.ActionType
	// Schema returns the JSON schema the raw config section must satisfy.
	Schema() map[string]any
	// Execute runs the action described by config against the merged input
	// params and returns the raw result value.
	Execute(ctx context.Context, config models.ActionConfig, params map[string]any) (any, error)
}

// Registry holds the executors available to a runner.
type Registry struct {
	logger    *slog.Logger
	executors map[models.ActionType]ActionExecutor
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		executors: make(map[models.ActionType]ActionExecutor),
	}
}

func (r *Registry) Register(exec ActionExecutor) {
	r.executors[exec.Type()] = exec
}

// Create returns the executor registered for the given action type.
func (r *Registry) Create(actionType models.ActionType) (ActionExecutor, error) {
	exec, ok := r.executors[actionType]
	if !ok {
		return nil, fmt.Errorf("action type '%s' not registered", actionType)
	}

	return exec, nil
}

// Available returns the registered action types.
func (r *Registry) Available() []models.ActionType {
	types := make([]models.ActionType, 0, len(r.executors))
	for actionType := range r.executors {
		types = append(types, actionType)
	}

	return types
}

// ValidateConfig checks a job's config section against the executor's JSON
// schema. Definitions reach the runner from stores that out-of-band writers
// can edit, so the typed validation at save time is re-checked structurally
// here before anything executes.
func (r *Registry) ValidateConfig(actionType models.ActionType, config models.ActionConfig) error {
	exec, err := r.Create(actionType)
	if err != nil {
		return err
	}

	section, err := config.Section(actionType)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(section)
	if err != nil {
		return fmt.Errorf("failed to marshal %s config: %w", actionType, err)
	}

	schemaLoader := gojsonschema.NewGoLoader(exec.Schema())
	dataLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errors []string
		for _, error := range result.Errors() {
			errors = append(errors, error.String())
		}

		return fmt.Errorf("JSON schema validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
