package escalation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oncall-service/internal/models"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func twoStepPolicy(repeat int) models.EscalationPolicy {
	return models.EscalationPolicy{
		ID:     "esc-1",
		Name:   "default",
		Repeat: repeat,
		Steps: []models.EscalationStep{
			{
				Target:         models.EscalationTarget{Kind: models.TargetOnCall, RotationID: "rot-1"},
				TimeoutSeconds: 300,
			},
			{
				Target:         models.EscalationTarget{Kind: models.TargetMember, Member: "manager"},
				TimeoutSeconds: 600,
			},
		},
	}
}

func openIncident(step, cycle int, enteredAt time.Time) models.Incident {
	return models.Incident{
		ID:                 "inc-1",
		Status:             models.IncidentOpen,
		EscalationPolicyID: "esc-1",
		StepIndex:          step,
		EscalationCycle:    cycle,
		StepEnteredAt:      enteredAt,
	}
}

func TestEvaluate_TimeoutNotElapsed(t *testing.T) {
	_, due, err := Evaluate(openIncident(0, 0, t0), twoStepPolicy(0), t0.Add(299*time.Second))
	require.NoError(t, err)
	assert.False(t, due)
}

func TestEvaluate_FiresExactlyAtTimeout(t *testing.T) {
	adv, due, err := Evaluate(openIncident(0, 0, t0), twoStepPolicy(0), t0.Add(300*time.Second))
	require.NoError(t, err)
	require.True(t, due)
	assert.Equal(t, 0, adv.StepIndex)
	assert.Equal(t, 1, adv.NextStep)
	assert.Equal(t, 0, adv.NextCycle)
	assert.Equal(t, models.TargetOnCall, adv.Step.Target.Kind)
}

func TestEvaluate_AdvancesOneStepPerPass(t *testing.T) {
	// Even when the scan is very late, a single evaluation advances exactly
	// one step.
	adv, due, err := Evaluate(openIncident(0, 0, t0), twoStepPolicy(0), t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.True(t, due)
	assert.Equal(t, 1, adv.NextStep)
}

func TestEvaluate_LastStepWithoutRepeatExhausts(t *testing.T) {
	policy := twoStepPolicy(0)
	adv, due, err := Evaluate(openIncident(1, 0, t0), policy, t0.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, due)
	assert.Equal(t, 2, adv.NextStep, "step index parks at len(steps)")
	assert.True(t, adv.Exhausted(policy))

	// The exhausted incident stays open but never fires again.
	_, due, err = Evaluate(openIncident(2, 0, t0), policy, t0.Add(48*time.Hour))
	require.NoError(t, err)
	assert.False(t, due)
}

func TestEvaluate_RepeatWrapsToStepZero(t *testing.T) {
	policy := twoStepPolicy(2)

	adv, due, err := Evaluate(openIncident(1, 0, t0), policy, t0.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, due)
	assert.Equal(t, 0, adv.NextStep)
	assert.Equal(t, 1, adv.NextCycle)
	assert.False(t, adv.Exhausted(policy))

	// Second wrap spends the remaining budget.
	adv, due, err = Evaluate(openIncident(1, 1, t0), policy, t0.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, due)
	assert.Equal(t, 0, adv.NextStep)
	assert.Equal(t, 2, adv.NextCycle)

	// Budget spent: the end of the list now exhausts.
	adv, due, err = Evaluate(openIncident(1, 2, t0), policy, t0.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, due)
	assert.Equal(t, 2, adv.NextStep)
	assert.True(t, adv.Exhausted(policy))
}

func TestEvaluate_NonOpenStatusesFreezeEscalation(t *testing.T) {
	for _, status := range []models.IncidentStatus{models.IncidentAcknowledged, models.IncidentResolved} {
		inc := openIncident(0, 0, t0)
		inc.Status = status
		_, due, err := Evaluate(inc, twoStepPolicy(0), t0.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, due, "status %s must freeze escalation", status)
	}
}

func TestEvaluate_EmptyPolicy(t *testing.T) {
	_, _, err := Evaluate(openIncident(0, 0, t0), models.EscalationPolicy{ID: "esc-1"}, t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPolicy)
}
