package models

import "time"

// ContactPoint binds a rotation member to one delivery channel. Configuration
// is channel-specific (email address, telegram chat id, phone number) and is
// stored as JSONB.
type ContactPoint struct {
	ID            string                 `json:"id"`
	MemberID      string                 `json:"member_id"`
	Type          string                 `json:"type"` // email | telegram | sms
	Configuration map[string]interface{} `json:"configuration"`
	Status        string                 `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// ContactPointCreate is the input structure for registering a contact point.
type ContactPointCreate struct {
	MemberID      string                 `json:"member_id" binding:"required"`
	Type          string                 `json:"type" binding:"required"`
	Configuration map[string]interface{} `json:"configuration" binding:"required"`
}
