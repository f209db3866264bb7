package models

import (
	"fmt"
	"time"
)

// ShiftLength is the declarative length of one on-call shift.
type ShiftLength string

const (
	ShiftLengthOneDay   ShiftLength = "one_day"
	ShiftLengthOneWeek  ShiftLength = "one_week"
	ShiftLengthTwoWeeks ShiftLength = "two_weeks"
	ShiftLengthOneMonth ShiftLength = "one_month"
)

// Days converts the shift length into its fixed day count.
func (l ShiftLength) Days() (int, error) {
	switch l {
	case ShiftLengthOneDay:
		return 1, nil
	case ShiftLengthOneWeek:
		return 7, nil
	case ShiftLengthTwoWeeks:
		return 14, nil
	case ShiftLengthOneMonth:
		return 30, nil
	default:
		return 0, fmt.Errorf("unknown shift length %q", string(l))
	}
}

// RotationPolicy declares an on-call rotation: an ordered member list, a shift
// length, and the clock time at which responsibility hands over. Shifts
// materialized from a policy are never rewritten; editing a policy supersedes
// its future shifts and regenerates them.
type RotationPolicy struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Members     []string    `json:"members"`
	ShiftLength ShiftLength `json:"shift_length"`
	HandoffTime string      `json:"handoff_time"` // "15:04"
	Start       time.Time   `json:"start"`
	End         *time.Time  `json:"end,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ShiftAssignment is one member's on-call interval, start inclusive, end
// exclusive. For a rotation the materialized shifts are gapless and
// non-overlapping: each shift ends exactly where the next begins.
type ShiftAssignment struct {
	RotationID string    `json:"rotation_id"`
	Member     string    `json:"member"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
}
