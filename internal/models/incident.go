package models

import "time"

type IncidentStatus string

const (
	IncidentOpen         IncidentStatus = "open"
	IncidentAcknowledged IncidentStatus = "acknowledged"
	IncidentResolved     IncidentStatus = "resolved"
)

// Incident is owned by the escalation subsystem once created. The intake path
// creates it; only the escalation worker and the acknowledge/resolve actions
// mutate it afterwards. StepIndex and EscalationCycle advance together under
// a compare-and-set, so two concurrent scans cannot advance the same timeout
// twice. A StepIndex equal to the policy's step count marks escalation as
// exhausted.
type Incident struct {
	ID                 string         `json:"id"`
	Key                string         `json:"key"`
	Title              string         `json:"title"`
	Body               string         `json:"body,omitempty"`
	Severity           int            `json:"severity"`
	EscalationPolicyID string         `json:"escalation_policy_id"`
	Status             IncidentStatus `json:"status"`
	StepIndex          int            `json:"step_index"`
	EscalationCycle    int            `json:"escalation_cycle"`
	StepEnteredAt      time.Time      `json:"step_entered_at"`
	CreatedAt          time.Time      `json:"created_at"`
	AcknowledgedAt     *time.Time     `json:"acknowledged_at,omitempty"`
	AcknowledgedBy     string         `json:"acknowledged_by,omitempty"`
	ResolvedAt         *time.Time     `json:"resolved_at,omitempty"`
}
