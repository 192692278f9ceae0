package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a single job run attempt.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSuccess   RunStatus = "success"
	RunStatusFailed    RunStatus = "failed"
	RunStatusTimeout   RunStatus = "timeout"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusSkipped   RunStatus = "skipped"
)

// IsTerminal reports whether the status ends an attempt. A failed attempt
// may still spawn a new attempt under the retry policy, but the record
// itself is immutable once terminal.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailed, RunStatusTimeout, RunStatusCancelled, RunStatusSkipped:
		return true
	default:
		return false
	}
}

// TriggerMode records what started a run.
type TriggerMode string

const (
	TriggerScheduled TriggerMode = "scheduled"
	TriggerManual    TriggerMode = "manual"
	TriggerFlow      TriggerMode = "flow"
	TriggerRetry     TriggerMode = "retry"
)

// MaxResultBytes bounds the stored result payload of a run.
const MaxResultBytes = 10000

// JobRun is one execution attempt of a Job. It is mutated only by the
// job runner that owns it and becomes immutable once terminal.
type JobRun struct {
	ID            string         `json:"id"`
	TraceID       string         `json:"trace_id"` // shared across a retry lineage
	JobID         string         `json:"job_id"`
	Trigger       TriggerMode    `json:"trigger"`
	TriggerUser   string         `json:"trigger_user,omitempty"`
	Status        RunStatus      `json:"status"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       *time.Time     `json:"end_time,omitempty"`
	DurationMS    int64          `json:"duration_ms"`
	InputParams   map[string]any `json:"input_params,omitempty"`
	Result        string         `json:"result,omitempty"`
	ErrorMsg      string         `json:"error_msg,omitempty"`
	Attempt       int            `json:"attempt"` // 0 for the original run, 1..N for retries
	PrevAttemptID string         `json:"prev_attempt_id,omitempty"`
	FlowRunID     string         `json:"flow_run_id,omitempty"`
	NodeID        string         `json:"node_id,omitempty"`
}

// NewJobRun allocates a running attempt with a fresh id and trace id.
func NewJobRun(jobID string, trigger TriggerMode, params map[string]any) *JobRun {
	return &JobRun{
		ID:          uuid.New().String(),
		TraceID:     uuid.New().String(),
		JobID:       jobID,
		Trigger:     trigger,
		Status:      RunStatusRunning,
		StartTime:   time.Now().UTC(),
		InputParams: params,
	}
}

// NewRetryAttempt allocates the follow-up attempt of a failed run. The
// trace id is carried over so the lineage stays queryable as one unit.
func (r *JobRun) NewRetryAttempt() *JobRun {
	return &JobRun{
		ID:            uuid.New().String(),
		TraceID:       r.TraceID,
		JobID:         r.JobID,
		Trigger:       TriggerRetry,
		TriggerUser:   r.TriggerUser,
		Status:        RunStatusRunning,
		StartTime:     time.Now().UTC(),
		InputParams:   r.InputParams,
		Attempt:       r.Attempt + 1,
		PrevAttemptID: r.ID,
		FlowRunID:     r.FlowRunID,
		NodeID:        r.NodeID,
	}
}

// MarkSuccess finalizes the run with a truncated result payload.
func (r *JobRun) MarkSuccess(result string) {
	r.Result = TruncateResult(result)
	r.finish(RunStatusSuccess)
}

// MarkFailed finalizes the run as failed with the error message.
func (r *JobRun) MarkFailed(errMsg string) {
	r.ErrorMsg = errMsg
	r.finish(RunStatusFailed)
}

// MarkTimeout finalizes the run as timed out. Timeouts are terminal and
// never retried.
func (r *JobRun) MarkTimeout(errMsg string) {
	r.ErrorMsg = errMsg
	r.finish(RunStatusTimeout)
}

// MarkCancelled finalizes the run after cooperative cancellation.
func (r *JobRun) MarkCancelled(errMsg string) {
	r.ErrorMsg = errMsg
	r.finish(RunStatusCancelled)
}

func (r *JobRun) finish(status RunStatus) {
	now := time.Now().UTC()
	r.Status = status
	r.EndTime = &now
	r.DurationMS = now.Sub(r.StartTime).Milliseconds()
}

// TruncateResult caps a result payload at MaxResultBytes.
func TruncateResult(result string) string {
	if len(result) > MaxResultBytes {
		return result[:MaxResultBytes]
	}

	return result
}
