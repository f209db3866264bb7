// Package escalation drives open incidents through their escalation policy:
// a timed, retryable sequence of steps that ultimately pages the right
// humans.
package escalation

import (
	"errors"
	"fmt"
	"time"

	"oncall-service/internal/models"
)

// ErrPolicy marks an escalation policy the state machine cannot run.
var ErrPolicy = errors.New("invalid escalation policy")

// Advance describes one due transition: the step that fires now and the
// state the incident moves to.
type Advance struct {
	Step      models.EscalationStep // the step whose target gets paged
	StepIndex int
	NextStep  int
	NextCycle int
}

// Exhausted reports whether this advance spends the policy's last step with
// no repeat budget left; afterwards the incident stays open but escalation
// stops.
func (a Advance) Exhausted(policy models.EscalationPolicy) bool {
	return a.NextStep >= len(policy.Steps)
}

// Evaluate applies the transition rule for one incident at one instant:
// if the incident is still open and the current step's timeout has elapsed,
// the step fires. Reaching the end of the step list wraps to step 0 while
// the policy's repeat budget lasts; once spent, the step index parks at
// len(steps) and Evaluate never fires again. Evaluate is pure; persisting
// the advance (and losing optimistic races) is the caller's concern.
func Evaluate(inc models.Incident, policy models.EscalationPolicy, now time.Time) (Advance, bool, error) {
	if len(policy.Steps) == 0 {
		return Advance{}, false, fmt.Errorf("%w: policy %s has no steps", ErrPolicy, policy.ID)
	}
	if inc.Status != models.IncidentOpen {
		return Advance{}, false, nil
	}
	if inc.StepIndex >= len(policy.Steps) {
		// Escalation exhausted; the incident stays open and is reported,
		// never advanced.
		return Advance{}, false, nil
	}
	if inc.StepIndex < 0 {
		return Advance{}, false, fmt.Errorf("%w: incident %s has step index %d", ErrPolicy, inc.ID, inc.StepIndex)
	}

	step := policy.Steps[inc.StepIndex]
	if now.Sub(inc.StepEnteredAt) < step.Timeout() {
		return Advance{}, false, nil
	}

	adv := Advance{
		Step:      step,
		StepIndex: inc.StepIndex,
		NextStep:  inc.StepIndex + 1,
		NextCycle: inc.EscalationCycle,
	}
	if adv.NextStep == len(policy.Steps) && inc.EscalationCycle < policy.Repeat {
		adv.NextStep = 0
		adv.NextCycle = inc.EscalationCycle + 1
	}
	return adv, true, nil
}
