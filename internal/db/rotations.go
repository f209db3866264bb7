package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"oncall-service/internal/models"
)

// CreateRotationPolicy inserts a new rotation policy record.
func (d *DB) CreateRotationPolicy(ctx context.Context, p models.RotationPolicy) (models.RotationPolicy, error) {
	query := `
	INSERT INTO rotation_policies (id, name, members, shift_length, handoff_time, starts_at, ends_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	RETURNING created_at, updated_at`

	err := d.Pool.QueryRow(ctx, query,
		p.ID, p.Name, p.Members, string(p.ShiftLength), p.HandoffTime, p.Start, p.End,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return models.RotationPolicy{}, fmt.Errorf("failed to create rotation policy: %w", err)
	}
	return p, nil
}

// GetRotationPolicy retrieves a rotation policy by id.
func (d *DB) GetRotationPolicy(ctx context.Context, id string) (models.RotationPolicy, error) {
	query := `
	SELECT id, name, members, shift_length, handoff_time, starts_at, ends_at, created_at, updated_at
	FROM rotation_policies
	WHERE id = $1`

	var p models.RotationPolicy
	err := d.Pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Members, &p.ShiftLength, &p.HandoffTime,
		&p.Start, &p.End, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RotationPolicy{}, fmt.Errorf("rotation policy %s: %w", id, ErrNotFound)
		}
		return models.RotationPolicy{}, fmt.Errorf("failed to get rotation policy %s: %w", id, err)
	}
	return p, nil
}

// UpdateRotationPolicy replaces the declarative fields of an existing policy.
// The caller is responsible for superseding and regenerating future shifts.
func (d *DB) UpdateRotationPolicy(ctx context.Context, p models.RotationPolicy) error {
	query := `
	UPDATE rotation_policies
	SET name = $1, members = $2, shift_length = $3, handoff_time = $4,
	    starts_at = $5, ends_at = $6, updated_at = NOW()
	WHERE id = $7`

	tag, err := d.Pool.Exec(ctx, query,
		p.Name, p.Members, string(p.ShiftLength), p.HandoffTime, p.Start, p.End, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update rotation policy %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rotation policy %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

// ListRotationPolicies returns all rotation policies.
func (d *DB) ListRotationPolicies(ctx context.Context) ([]models.RotationPolicy, error) {
	query := `
	SELECT id, name, members, shift_length, handoff_time, starts_at, ends_at, created_at, updated_at
	FROM rotation_policies
	ORDER BY created_at`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rotation policies: %w", err)
	}
	defer rows.Close()

	var policies []models.RotationPolicy
	for rows.Next() {
		var p models.RotationPolicy
		err := rows.Scan(&p.ID, &p.Name, &p.Members, &p.ShiftLength, &p.HandoffTime,
			&p.Start, &p.End, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rotation policy: %w", err)
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}
