package models

import "time"

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSending   NotificationStatus = "sending"
	NotificationDelivered NotificationStatus = "delivered"
	NotificationFailed    NotificationStatus = "failed"
)

// NotificationRequest is the handoff from the escalation worker to the
// notification worker. It is created in the same transaction that advances
// the incident's step and consumed exactly once; delivered and failed are
// terminal.
type NotificationRequest struct {
	ID           string             `json:"id"`
	IncidentID   string             `json:"incident_id"`
	TargetMember string             `json:"target_member"`
	ChannelHints []string           `json:"channel_hints,omitempty"`
	StepIndex    int                `json:"step_index"`
	AttemptCount int                `json:"attempt_count"`
	Status       NotificationStatus `json:"status"`
	LastError    string             `json:"last_error,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}
