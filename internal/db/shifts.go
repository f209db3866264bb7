package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"oncall-service/internal/models"
)

// UpsertShifts inserts materialized shifts, skipping rows whose (rotation,
// start) boundary is already present. Combined with the generator's
// determinism this makes horizon extension idempotent: re-materializing only
// appends future shifts and never rewrites existing ones.
func (d *DB) UpsertShifts(ctx context.Context, shifts []models.ShiftAssignment) error {
	if len(shifts) == 0 {
		return nil
	}
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin shift upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
	INSERT INTO shifts (rotation_id, member, starts_at, ends_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (rotation_id, starts_at) WHERE NOT superseded DO NOTHING`

	for _, s := range shifts {
		if _, err := tx.Exec(ctx, query, s.RotationID, s.Member, s.StartsAt, s.EndsAt); err != nil {
			return fmt.Errorf("failed to upsert shift at %s: %w", s.StartsAt, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit shift upsert: %w", err)
	}
	return nil
}

// CurrentAssignee resolves who is on call for a rotation at the given
// instant using a half-open interval lookup (starts_at <= at < ends_at).
// Returns ErrNoCoverage when no materialized shift covers the instant.
func (d *DB) CurrentAssignee(ctx context.Context, rotationID string, at time.Time) (string, error) {
	query := `
	SELECT member
	FROM shifts
	WHERE rotation_id = $1 AND NOT superseded AND starts_at <= $2 AND ends_at > $2
	ORDER BY starts_at DESC
	LIMIT 1`

	var member string
	err := d.Pool.QueryRow(ctx, query, rotationID, at).Scan(&member)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("rotation %s at %s: %w", rotationID, at.Format(time.RFC3339), ErrNoCoverage)
		}
		return "", fmt.Errorf("failed to resolve assignee for rotation %s: %w", rotationID, err)
	}
	return member, nil
}

// ListShifts returns the non-superseded shifts of a rotation in order.
func (d *DB) ListShifts(ctx context.Context, rotationID string) ([]models.ShiftAssignment, error) {
	query := `
	SELECT rotation_id, member, starts_at, ends_at
	FROM shifts
	WHERE rotation_id = $1 AND NOT superseded
	ORDER BY starts_at`

	rows, err := d.Pool.Query(ctx, query, rotationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shifts for rotation %s: %w", rotationID, err)
	}
	defer rows.Close()

	var shifts []models.ShiftAssignment
	for rows.Next() {
		var s models.ShiftAssignment
		if err := rows.Scan(&s.RotationID, &s.Member, &s.StartsAt, &s.EndsAt); err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		shifts = append(shifts, s)
	}
	return shifts, rows.Err()
}

// LastShift returns the latest non-superseded shift of a rotation, i.e. the
// current materialization boundary. The bool reports whether any shift
// exists.
func (d *DB) LastShift(ctx context.Context, rotationID string) (models.ShiftAssignment, bool, error) {
	query := `
	SELECT rotation_id, member, starts_at, ends_at
	FROM shifts
	WHERE rotation_id = $1 AND NOT superseded
	ORDER BY starts_at DESC
	LIMIT 1`

	var s models.ShiftAssignment
	err := d.Pool.QueryRow(ctx, query, rotationID).Scan(&s.RotationID, &s.Member, &s.StartsAt, &s.EndsAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ShiftAssignment{}, false, nil
		}
		return models.ShiftAssignment{}, false, fmt.Errorf("failed to get last shift for rotation %s: %w", rotationID, err)
	}
	return s, true, nil
}

// SupersedeFutureShifts marks every shift starting at or after the boundary
// as superseded. Past shifts are history and are never touched; superseded
// shifts are kept, not deleted.
func (d *DB) SupersedeFutureShifts(ctx context.Context, rotationID string, from time.Time) error {
	query := `
	UPDATE shifts
	SET superseded = TRUE
	WHERE rotation_id = $1 AND NOT superseded AND starts_at >= $2`

	if _, err := d.Pool.Exec(ctx, query, rotationID, from); err != nil {
		return fmt.Errorf("failed to supersede shifts for rotation %s: %w", rotationID, err)
	}
	return nil
}
