// Package shellcmd implements the shell action: a command run through
// `sh -c`, killed when the attempt deadline expires.
package shellcmd

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/quickops/jobflow/pkg/models"
)

// Executor runs a job's shell config section as a subprocess. Input params
// are exposed to the command as PARAM_<NAME> environment variables.
type Executor struct {
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: logger}
}

func (e *Executor) Type() models.ActionType {
	return models.ActionTypeShell
}

// Schema returns the JSON schema for the shell config section.
func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Command line executed through sh -c.",
			},
			"working_dir": map[string]any{
				"type":        "string",
				"description": "Directory the command runs in. Defaults to the system temp dir.",
			},
			"env": map[string]any{
				"type":        "object",
				"description": "Extra environment variables for the command.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
		},
		"required":             []string{"command"},
		"additionalProperties": false,
	}
}

// Execute runs the command and returns its stdout. A non-zero exit is an
// action error carrying the exit code and stderr.
func (e *Executor) Execute(ctx context.Context, config models.ActionConfig, params map[string]any) (any, error) {
	cfg := config.Shell
	if cfg == nil {
		return nil, fmt.Errorf("shell config section missing")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", cfg.Command)

	cmd.Dir = cfg.WorkingDir
	if cmd.Dir == "" {
		cmd.Dir = os.TempDir()
	}

	cmd.Env = buildEnv(cfg.Env, params)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.DebugContext(ctx, "Running shell command", "working_dir", cmd.Dir)

	err := cmd.Run()
	if err != nil {
		// The deadline expiring kills the process; report the context
		// error so the run is classified as a timeout, not a failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("command failed with code %d: %s",
				exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}

		return nil, fmt.Errorf("command failed to start: %w", err)
	}

	e.logger.InfoContext(ctx, "Shell command completed", "stdout_length", stdout.Len())

	return stdout.String(), nil
}

// buildEnv extends the parent environment with the configured variables
// and one PARAM_<NAME> entry per input param.
func buildEnv(configEnv map[string]string, params map[string]any) []string {
	env := os.Environ()

	for key, value := range configEnv {
		env = append(env, key+"="+value)
	}

	for key, value := range params {
		env = append(env, fmt.Sprintf("PARAM_%s=%v", strings.ToUpper(key), value))
	}

	return env
}
