// Package models defines the core domain models for job and flow execution.
package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// ActionType identifies the kind of work a job performs. The set is closed:
// executors are registered per type and unknown types are rejected at
// validation time, never at run time.
type ActionType string

const (
	ActionTypeHTTP   ActionType = "http"   // remote call
	ActionTypeShell  ActionType = "shell"  // local command
	ActionTypeSQL    ActionType = "sql"    // data query
	ActionTypeScript ActionType = "script" // sandboxed transform script
)

// Default execution policy applied when a job definition leaves the
// corresponding field unset.
const (
	DefaultRetryCount       = 3
	DefaultRetryIntervalSec = 60
	DefaultTimeoutSec       = 60
)

// HTTPConfig configures an http action.
type HTTPConfig struct {
	URL     string            `json:"url"               validate:"required,url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// ShellConfig configures a shell action. The command runs through `sh -c`
// and is killed when the attempt deadline expires.
type ShellConfig struct {
	Command    string            `json:"command"            validate:"required"`
	WorkingDir string            `json:"working_dir,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
}

// SQLConfig configures a sql action.
type SQLConfig struct {
	Driver string `json:"driver"        validate:"required,oneof=postgres"`
	DSN    string `json:"dsn"           validate:"required"`
	Query  string `json:"query"         validate:"required"`
}

// ScriptConfig configures a script action: a template program rendered
// against the input params. No host code is executed.
type ScriptConfig struct {
	Source string `json:"source" validate:"required"`
}

// ActionConfig is a tagged union: exactly the member matching the job's
// action type must be set. Loose config maps are rejected at save time.
type ActionConfig struct {
	HTTP   *HTTPConfig   `json:"http,omitempty"`
	Shell  *ShellConfig  `json:"shell,omitempty"`
	SQL    *SQLConfig    `json:"sql,omitempty"`
	Script *ScriptConfig `json:"script,omitempty"`
}

// Job is a reusable unit-of-work definition. Definitions are owned by
// configuration management and are read-only to the engine.
type Job struct {
	ID               string         `json:"id"                          validate:"required"`
	Name             string         `json:"name"                        validate:"required,min=1,max=100"`
	Type             ActionType     `json:"type"                        validate:"required,oneof=http shell sql script"`
	Config           ActionConfig   `json:"config"`
	CronExpr         string         `json:"cron_expr,omitempty"`
	RetryCount       int            `json:"retry_count"                 validate:"min=0"`
	RetryIntervalSec int            `json:"retry_interval_sec"          validate:"min=0"`
	TimeoutSec       int            `json:"timeout_sec"                 validate:"min=0"`
	Enabled          bool           `json:"enabled"`
	AlertOnFailure   bool           `json:"alert_on_failure"`
	AlertOnTimeout   bool           `json:"alert_on_timeout"`
	AlertChannels    []string       `json:"alert_channels,omitempty"`
	ParamsSchema     map[string]any `json:"params_schema,omitempty"` // optional JSON schema for input params
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// NewJob returns a job definition with the default execution policy.
func NewJob(id, name string, actionType ActionType, config ActionConfig) *Job {
	now := time.Now().UTC()

	return &Job{
		ID:               id,
		Name:             name,
		Type:             actionType,
		Config:           config,
		RetryCount:       DefaultRetryCount,
		RetryIntervalSec: DefaultRetryIntervalSec,
		TimeoutSec:       DefaultTimeoutSec,
		Enabled:          true,
		AlertOnFailure:   true,
		AlertOnTimeout:   true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Timeout returns the per-attempt execution deadline.
func (j *Job) Timeout() time.Duration {
	if j.TimeoutSec <= 0 {
		return time.Duration(DefaultTimeoutSec) * time.Second
	}

	return time.Duration(j.TimeoutSec) * time.Second
}

// RetryInterval returns the pause between retry attempts.
func (j *Job) RetryInterval() time.Duration {
	return time.Duration(j.RetryIntervalSec) * time.Second
}

var validate = validator.New()

// Validate checks the definition, including that the config union member
// matches the action type and any cron expression parses.
func (j *Job) Validate() error {
	if err := validate.Struct(j); err != nil {
		return fmt.Errorf("invalid job definition: %w", err)
	}

	if err := j.Config.validateFor(j.Type); err != nil {
		return fmt.Errorf("invalid job %s config: %w", j.ID, err)
	}

	if j.CronExpr != "" {
		if _, err := cron.ParseStandard(j.CronExpr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", j.CronExpr, err)
		}
	}

	return nil
}

// Section returns the config member matching the given action type, or an
// error when that member is absent.
func (c *ActionConfig) Section(actionType ActionType) (any, error) {
	switch actionType {
	case ActionTypeHTTP:
		if c.HTTP != nil {
			return c.HTTP, nil
		}
	case ActionTypeShell:
		if c.Shell != nil {
			return c.Shell, nil
		}
	case ActionTypeSQL:
		if c.SQL != nil {
			return c.SQL, nil
		}
	case ActionTypeScript:
		if c.Script != nil {
			return c.Script, nil
		}
	default:
		return nil, fmt.Errorf("unknown action type %q", actionType)
	}

	return nil, fmt.Errorf("action type %q requires the %s config section", actionType, actionType)
}

func (c *ActionConfig) validateFor(actionType ActionType) error {
	set := 0
	if c.HTTP != nil {
		set++
	}

	if c.Shell != nil {
		set++
	}

	if c.SQL != nil {
		set++
	}

	if c.Script != nil {
		set++
	}

	if set != 1 {
		return fmt.Errorf("exactly one config section must be set, found %d", set)
	}

	switch actionType {
	case ActionTypeHTTP:
		if c.HTTP == nil {
			return fmt.Errorf("action type %q requires the http config section", actionType)
		}

		return validate.Struct(c.HTTP)
	case ActionTypeShell:
		if c.Shell == nil {
			return fmt.Errorf("action type %q requires the shell config section", actionType)
		}

		return validate.Struct(c.Shell)
	case ActionTypeSQL:
		if c.SQL == nil {
			return fmt.Errorf("action type %q requires the sql config section", actionType)
		}

		return validate.Struct(c.SQL)
	case ActionTypeScript:
		if c.Script == nil {
			return fmt.Errorf("action type %q requires the script config section", actionType)
		}

		return validate.Struct(c.Script)
	default:
		return fmt.Errorf("unknown action type %q", actionType)
	}
}
