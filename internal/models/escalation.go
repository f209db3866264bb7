package models

import "time"

// TargetKind distinguishes a fixed member target from "whoever is currently
// on call" for a rotation.
type TargetKind string

const (
	TargetMember TargetKind = "member"
	TargetOnCall TargetKind = "oncall"
)

// EscalationTarget is a tagged variant. An oncall target is resolved against
// the schedule at the moment the step fires, not when the policy was created,
// so a handoff mid-escalation changes who gets paged next.
type EscalationTarget struct {
	Kind       TargetKind `json:"kind"`
	Member     string     `json:"member,omitempty"`
	RotationID string     `json:"rotation_id,omitempty"`
}

// EscalationStep is one tier of an escalation policy.
type EscalationStep struct {
	Target         EscalationTarget `json:"target"`
	TimeoutSeconds int              `json:"timeout_seconds"`
	Channels       []string         `json:"channels,omitempty"` // hints for the notification worker
}

// Timeout returns the step timeout as a duration.
func (s EscalationStep) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// EscalationPolicy is an ordered list of steps. Repeat is the number of extra
// full cycles allowed after the first pass through the list; once spent, the
// incident stays open but escalation stops advancing.
type EscalationPolicy struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Steps     []EscalationStep `json:"steps"`
	Repeat    int              `json:"repeat"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
