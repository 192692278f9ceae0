package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob_Defaults(t *testing.T) {
	job := NewJob("job-1", "nightly export", ActionTypeHTTP, ActionConfig{
		HTTP: &HTTPConfig{URL: "https://example.com/export", Method: "POST"},
	})

	assert.Equal(t, DefaultRetryCount, job.RetryCount)
	assert.Equal(t, DefaultRetryIntervalSec, job.RetryIntervalSec)
	assert.Equal(t, DefaultTimeoutSec, job.TimeoutSec)
	assert.True(t, job.Enabled)
	assert.True(t, job.AlertOnFailure)
	assert.True(t, job.AlertOnTimeout)
	assert.Equal(t, 60*time.Second, job.Timeout())
	assert.Equal(t, 60*time.Second, job.RetryInterval())

	require.NoError(t, job.Validate())
}

func TestJob_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Job)
		wantErr bool
	}{
		{
			name:    "valid http job",
			mutate:  func(*Job) {},
			wantErr: false,
		},
		{
			name: "missing name",
			mutate: func(j *Job) {
				j.Name = ""
			},
			wantErr: true,
		},
		{
			name: "config section does not match action type",
			mutate: func(j *Job) {
				j.Type = ActionTypeShell
			},
			wantErr: true,
		},
		{
			name: "two config sections set",
			mutate: func(j *Job) {
				j.Config.Shell = &ShellConfig{Command: "true"}
			},
			wantErr: true,
		},
		{
			name: "no config section set",
			mutate: func(j *Job) {
				j.Config.HTTP = nil
			},
			wantErr: true,
		},
		{
			name: "unknown action type",
			mutate: func(j *Job) {
				j.Type = "python"
			},
			wantErr: true,
		},
		{
			name: "invalid cron expression",
			mutate: func(j *Job) {
				j.CronExpr = "not-a-cron"
			},
			wantErr: true,
		},
		{
			name: "valid cron expression",
			mutate: func(j *Job) {
				j.CronExpr = "*/5 * * * *"
			},
			wantErr: false,
		},
		{
			name: "negative retry count",
			mutate: func(j *Job) {
				j.RetryCount = -1
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob("job-1", "nightly export", ActionTypeHTTP, ActionConfig{
				HTTP: &HTTPConfig{URL: "https://example.com/export"},
			})
			tt.mutate(job)

			err := job.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJob_Validate_SQLDriverAllowlist(t *testing.T) {
	job := NewJob("job-2", "usage rollup", ActionTypeSQL, ActionConfig{
		SQL: &SQLConfig{Driver: "postgres", DSN: "postgres://localhost/app", Query: "SELECT 1"},
	})
	require.NoError(t, job.Validate())

	job.Config.SQL.Driver = "sqlite3"
	assert.Error(t, job.Validate())
}
