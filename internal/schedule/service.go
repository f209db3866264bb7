// Package schedule owns shift materialization: it turns rotation policies
// into stored shift timelines and answers "who is on call right now".
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"oncall-service/internal/models"
	"oncall-service/internal/rotation"
)

const week = 7 * 24 * time.Hour

// Store is the durable shift store the service materializes into.
type Store interface {
	UpsertShifts(ctx context.Context, shifts []models.ShiftAssignment) error
	SupersedeFutureShifts(ctx context.Context, rotationID string, from time.Time) error
	CurrentAssignee(ctx context.Context, rotationID string, at time.Time) (string, error)
	LastShift(ctx context.Context, rotationID string) (models.ShiftAssignment, bool, error)
	ListRotationPolicies(ctx context.Context) ([]models.RotationPolicy, error)
}

// Service materializes shifts and resolves the current assignee.
type Service struct {
	store        Store
	logger       *logrus.Logger
	horizonWeeks int
	now          func() time.Time
}

func New(store Store, logger *logrus.Logger, horizonWeeks int) *Service {
	return &Service{
		store:        store,
		logger:       logger,
		horizonWeeks: horizonWeeks,
		now:          time.Now,
	}
}

// OnCall resolves who is on call for a rotation at the given instant.
// Returns the store's ErrNoCoverage when no materialized shift covers it.
func (s *Service) OnCall(ctx context.Context, rotationID string, at time.Time) (string, error) {
	return s.store.CurrentAssignee(ctx, rotationID, at)
}

// Materialize ensures the rotation's shifts are stored through the
// configured horizon. It is idempotent and only ever appends: generation
// continues from the current materialization boundary, preserving both the
// gapless adjacency and the member cycling phase of what is already stored.
func (s *Service) Materialize(ctx context.Context, policy models.RotationPolicy) error {
	now := s.now()
	through := now
	if policy.Start.After(now) {
		through = policy.Start
	}
	return s.ExtendThrough(ctx, policy, through.Add(time.Duration(s.horizonWeeks)*week))
}

// ExtendThrough appends shifts until the timeline covers the given instant.
func (s *Service) ExtendThrough(ctx context.Context, policy models.RotationPolicy, through time.Time) error {
	start := policy.Start
	members := policy.Members

	last, ok, err := s.store.LastShift(ctx, policy.ID)
	if err != nil {
		return err
	}
	if ok {
		// Continue handoff-to-handoff from the stored boundary, with the
		// member order rotated so the cycle picks up where it left off.
		start = last.EndsAt
		members = rotateAfter(policy.Members, last.Member)
	}

	if !through.After(start) {
		return nil
	}
	if policy.End != nil && !start.Before(*policy.End) {
		return nil
	}

	derived := policy
	derived.Start = start
	shifts, err := rotation.Generate(derived, members, weeksBetween(start, through))
	if err != nil {
		return fmt.Errorf("failed to generate shifts for rotation %s: %w", policy.ID, err)
	}
	if err := s.store.UpsertShifts(ctx, shifts); err != nil {
		return err
	}
	s.logger.Debugf("Materialized %d shifts for rotation %s through %s",
		len(shifts), policy.ID, through.Format(time.RFC3339))
	return nil
}

// Rematerialize handles a policy edit: future shifts are superseded (never
// deleted) and the timeline is regenerated from the edit boundary under the
// new policy. Past shifts and the shift in progress are untouched.
func (s *Service) Rematerialize(ctx context.Context, policy models.RotationPolicy, from time.Time) error {
	if err := s.store.SupersedeFutureShifts(ctx, policy.ID, from); err != nil {
		return err
	}
	return s.ExtendThrough(ctx, policy, from.Add(time.Duration(s.horizonWeeks)*week))
}

// rotateAfter reorders members so generation starts with the member
// following lastMember in rotation order. An unknown lastMember (e.g. the
// member list was edited) restarts the cycle from the front.
func rotateAfter(members []string, lastMember string) []string {
	for i, m := range members {
		if m == lastMember {
			next := (i + 1) % len(members)
			rotated := make([]string, 0, len(members))
			rotated = append(rotated, members[next:]...)
			rotated = append(rotated, members[:next]...)
			return rotated
		}
	}
	return members
}

func weeksBetween(start, through time.Time) int {
	d := through.Sub(start)
	weeks := int((d + week - 1) / week)
	if weeks < 1 {
		weeks = 1
	}
	return weeks
}
