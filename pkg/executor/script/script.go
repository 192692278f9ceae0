// Package script implements the script action: a template program rendered
// against the run's input params. Templates can shape, combine, and coerce
// values but never execute host code.
package script

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/quickops/jobflow/pkg/models"
)

// Executor renders a job's script config section with text/template. The
// rendered output is coerced: JSON documents decode to structured values,
// then numbers, then booleans, falling back to the raw string.
type Executor struct {
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: logger}
}

func (e *Executor) Type() models.ActionType {
	return models.ActionTypeScript
}

// Schema returns the JSON schema for the script config section.
func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"source": map[string]any{
				"type":        "string",
				"description": "Template program rendered against {params, env}.",
			},
		},
		"required":             []string{"source"},
		"additionalProperties": false,
	}
}

func (e *Executor) Execute(ctx context.Context, config models.ActionConfig, params map[string]any) (any, error) {
	cfg := config.Script
	if cfg == nil {
		return nil, fmt.Errorf("script config section missing")
	}

	data := map[string]any{
		"params": params,
		"env":    getEnvVars(),
	}

	result, err := Render(cfg.Source, data)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Script rendered", "result_type", fmt.Sprintf("%T", result))

	return result, nil
}

// Render executes a template program against data and coerces the output.
func Render(source string, data any) (any, error) {
	tmpl, err := template.
		New("script").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)

				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute script: %w", err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse script output as json: %w", err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
