// Package events defines the run lifecycle events exchanged between the
// scheduler and worker daemons.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/quickops/jobflow/pkg/models"
)

type EventType string

// Topic carries every run lifecycle event.
const Topic = "jobflow.runs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run requests, published by the scheduler (cron fire, queue message)
	// or any embedding caller.
	JobRunRequestedEvent  EventType = "job.run.requested"
	FlowRunRequestedEvent EventType = "flow.run.requested"

	// Terminal outcomes, published by the worker.
	JobRunFinishedEvent  EventType = "job.run.finished"
	FlowRunFinishedEvent EventType = "flow.run.finished"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]any),
	}
}

// JobRunRequested asks a worker to execute one job outside of any flow.
type JobRunRequested struct {
	BaseEvent

	JobID       string             `json:"job_id"`
	Trigger     models.TriggerMode `json:"trigger"`
	TriggerUser string             `json:"trigger_user,omitempty"`
	Params      map[string]any     `json:"params,omitempty"`
}

func (e JobRunRequested) GetType() EventType {
	return JobRunRequestedEvent
}

// FlowRunRequested asks a worker to execute one flow.
type FlowRunRequested struct {
	BaseEvent

	FlowID      string             `json:"flow_id"`
	Trigger     models.TriggerMode `json:"trigger"`
	TriggerUser string             `json:"trigger_user,omitempty"`
	Params      map[string]any     `json:"params,omitempty"`
}

func (e FlowRunRequested) GetType() EventType {
	return FlowRunRequestedEvent
}

// JobRunFinished reports the terminal attempt of a job run lineage.
type JobRunFinished struct {
	BaseEvent

	JobID      string           `json:"job_id"`
	RunID      string           `json:"run_id"`
	TraceID    string           `json:"trace_id"`
	Status     models.RunStatus `json:"status"`
	Attempt    int              `json:"attempt"`
	DurationMS int64            `json:"duration_ms"`
	Error      string           `json:"error,omitempty"`
}

func (e JobRunFinished) GetType() EventType {
	return JobRunFinishedEvent
}

// FlowRunFinished reports a terminal flow run.
type FlowRunFinished struct {
	BaseEvent

	FlowID       string            `json:"flow_id"`
	RunID        string            `json:"run_id"`
	Status       models.FlowStatus `json:"status"`
	DurationMS   int64             `json:"duration_ms"`
	FailedNodes  []string          `json:"failed_nodes,omitempty"`
	SkippedNodes []string          `json:"skipped_nodes,omitempty"`
	Error        string            `json:"error,omitempty"`
}

func (e FlowRunFinished) GetType() EventType {
	return FlowRunFinishedEvent
}
