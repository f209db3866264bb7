// Package rotation materializes declarative rotation policies into concrete
// on-call shift timelines.
package rotation

import (
	"errors"
	"fmt"
	"time"

	"oncall-service/internal/models"
)

// ErrConfiguration marks a policy that can never produce a valid shift
// sequence. Generation fails fast and emits no partial output.
var ErrConfiguration = errors.New("invalid rotation configuration")

// Generate materializes the shift timeline for a policy over the given
// horizon. It is pure and deterministic: identical inputs yield identical
// output, which makes re-materialization when extending the horizon safe.
//
// Shift 0 starts at policy.Start exactly and ends at Start plus one shift
// length with the clock set to the handoff time, so a rotation can begin at
// an arbitrary time of day while every later transition stays pinned to the
// configured handoff. All subsequent shifts run handoff to handoff, and
// adjacent shifts always share a boundary: shift[i].EndsAt ==
// shift[i+1].StartsAt.
func Generate(policy models.RotationPolicy, members []string, horizonWeeks int) ([]models.ShiftAssignment, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: member list is empty", ErrConfiguration)
	}
	if horizonWeeks <= 0 {
		return nil, fmt.Errorf("%w: horizon must be positive, got %d weeks", ErrConfiguration, horizonWeeks)
	}
	shiftDays, err := policy.ShiftLength.Days()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	handoffHour, handoffMinute, err := parseHandoff(policy.HandoffTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	// Horizon rounds up to whole shifts.
	count := (horizonWeeks*7 + shiftDays - 1) / shiftDays

	var end time.Time
	if policy.End != nil {
		end = *policy.End
	}

	shifts := make([]models.ShiftAssignment, 0, count)
	cur := policy.Start
	for i := 0; i < count; i++ {
		if policy.End != nil && !cur.Before(end) {
			break
		}
		next := atHandoff(cur.AddDate(0, 0, shiftDays), handoffHour, handoffMinute)
		if policy.End != nil && next.After(end) {
			// The final shift is clipped to the end boundary, never overrun.
			next = end
		}
		shifts = append(shifts, models.ShiftAssignment{
			RotationID: policy.ID,
			Member:     members[i%len(members)],
			StartsAt:   cur,
			EndsAt:     next,
		})
		cur = next
	}
	return shifts, nil
}

// atHandoff pins t's clock to the handoff time, keeping date and location.
func atHandoff(t time.Time, hour, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
}

func parseHandoff(v string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, fmt.Errorf("handoff time %q is not HH:MM", v)
	}
	return t.Hour(), t.Minute(), nil
}
