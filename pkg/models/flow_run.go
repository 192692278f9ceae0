package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FlowStatus is the lifecycle state of one flow run.
type FlowStatus string

const (
	FlowStatusPending   FlowStatus = "pending"
	FlowStatusRunning   FlowStatus = "running"
	FlowStatusSuccess   FlowStatus = "success"
	FlowStatusFailed    FlowStatus = "failed"
	FlowStatusPartial   FlowStatus = "partial" // finished with skipped nodes, none failed
	FlowStatusCancelled FlowStatus = "cancelled"
)

// IsTerminal reports whether the flow run is finished.
func (s FlowStatus) IsTerminal() bool {
	switch s {
	case FlowStatusSuccess, FlowStatusFailed, FlowStatusPartial, FlowStatusCancelled:
		return true
	default:
		return false
	}
}

// FlowRun is one execution instance of a JobFlow. Only the engine's
// coordinator goroutine mutates it; node workers report through the
// coordinator. It becomes immutable on a terminal status.
type FlowRun struct {
	ID           string               `json:"id"`
	FlowID       string               `json:"flow_id"`
	Trigger      TriggerMode          `json:"trigger"`
	TriggerUser  string               `json:"trigger_user,omitempty"`
	Status       FlowStatus           `json:"status"`
	StartTime    time.Time            `json:"start_time"`
	EndTime      *time.Time           `json:"end_time,omitempty"`
	DurationMS   int64                `json:"duration_ms"`
	InputParams  map[string]any       `json:"input_params,omitempty"`
	NodeStatuses map[string]RunStatus `json:"node_statuses"`
	NodeRuns     map[string]string    `json:"node_runs"` // node id -> final JobRun id
	FailedNodes  []string             `json:"failed_nodes,omitempty"`
	SkippedNodes []string             `json:"skipped_nodes,omitempty"`
	ErrorMsg     string               `json:"error_msg,omitempty"`
}

// NewFlowRun allocates a running instance with a fresh id.
func NewFlowRun(flowID string, trigger TriggerMode, user string, params map[string]any) *FlowRun {
	return &FlowRun{
		ID:           uuid.New().String(),
		FlowID:       flowID,
		Trigger:      trigger,
		TriggerUser:  user,
		Status:       FlowStatusRunning,
		StartTime:    time.Now().UTC(),
		InputParams:  params,
		NodeStatuses: make(map[string]RunStatus),
		NodeRuns:     make(map[string]string),
	}
}

// SetNodeStatus records a node's terminal status. The map is append-only
// per node: reassigning a terminal status is a programming error.
func (r *FlowRun) SetNodeStatus(nodeID string, status RunStatus) error {
	if existing, ok := r.NodeStatuses[nodeID]; ok && existing.IsTerminal() {
		return fmt.Errorf("node %s already terminal with status %s", nodeID, existing)
	}

	r.NodeStatuses[nodeID] = status

	switch status {
	case RunStatusFailed, RunStatusTimeout:
		r.FailedNodes = append(r.FailedNodes, nodeID)
	case RunStatusSkipped:
		r.SkippedNodes = append(r.SkippedNodes, nodeID)
	}

	return nil
}

// Finish derives the terminal status from the failed and skipped sets and
// seals the run: failed beats partial beats success.
func (r *FlowRun) Finish() {
	switch {
	case len(r.FailedNodes) > 0:
		r.finish(FlowStatusFailed)
	case len(r.SkippedNodes) > 0:
		r.finish(FlowStatusPartial)
	default:
		r.finish(FlowStatusSuccess)
	}
}

// MarkFailed seals the run as failed with an engine-level error message.
func (r *FlowRun) MarkFailed(errMsg string) {
	r.ErrorMsg = errMsg
	r.finish(FlowStatusFailed)
}

// MarkCancelled seals the run after cancellation.
func (r *FlowRun) MarkCancelled() {
	r.finish(FlowStatusCancelled)
}

func (r *FlowRun) finish(status FlowStatus) {
	now := time.Now().UTC()
	r.Status = status
	r.EndTime = &now
	r.DurationMS = now.Sub(r.StartTime).Milliseconds()
}
