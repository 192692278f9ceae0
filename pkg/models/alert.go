package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertKind classifies what a dispatched alert is about.
type AlertKind string

const (
	AlertFailure AlertKind = "failure"
	AlertTimeout AlertKind = "timeout"
	AlertSuccess AlertKind = "success" // recovery notice after a failed lineage
)

// AlertStatus tracks delivery of a dispatched alert.
type AlertStatus string

const (
	AlertStatusPending AlertStatus = "pending"
	AlertStatusSent    AlertStatus = "sent"
	AlertStatusFailed  AlertStatus = "failed" // no channel accepted it
)

// Alert is the persisted record of one dispatch: the rendered message and
// the channels it was handed to. Channel delivery failures do not fail the
// originating run; they only show up here and in the logs.
type Alert struct {
	ID        string      `json:"id"`
	Kind      AlertKind   `json:"kind"`
	JobID     string      `json:"job_id,omitempty"`
	FlowID    string      `json:"flow_id,omitempty"`
	RunID     string      `json:"run_id,omitempty"`
	Title     string      `json:"title"`
	Body      string      `json:"body"`
	Channels  []string    `json:"channels"`
	Status    AlertStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	SentAt    *time.Time  `json:"sent_at,omitempty"`
}

// NewAlert allocates a pending alert record.
func NewAlert(kind AlertKind, title, body string, channels []string) *Alert {
	return &Alert{
		ID:        uuid.New().String(),
		Kind:      kind,
		Title:     title,
		Body:      body,
		Channels:  channels,
		Status:    AlertStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// MarkSent records that every configured channel was attempted and at
// least one delivery succeeded.
func (a *Alert) MarkSent() {
	now := time.Now().UTC()
	a.Status = AlertStatusSent
	a.SentAt = &now
}

// MarkFailed records that no channel accepted the alert.
func (a *Alert) MarkFailed() {
	a.Status = AlertStatusFailed
}
