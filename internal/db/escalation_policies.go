package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"oncall-service/internal/models"
)

// CreateEscalationPolicy inserts a new escalation policy record.
func (d *DB) CreateEscalationPolicy(ctx context.Context, p models.EscalationPolicy) (models.EscalationPolicy, error) {
	query := `
	INSERT INTO escalation_policies (id, name, steps, repeat, created_at, updated_at)
	VALUES ($1, $2, $3, $4, NOW(), NOW())
	RETURNING created_at, updated_at`

	err := d.Pool.QueryRow(ctx, query, p.ID, p.Name, p.Steps, p.Repeat).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return models.EscalationPolicy{}, fmt.Errorf("failed to create escalation policy: %w", err)
	}
	return p, nil
}

// GetEscalationPolicy retrieves an escalation policy by id.
func (d *DB) GetEscalationPolicy(ctx context.Context, id string) (models.EscalationPolicy, error) {
	query := `
	SELECT id, name, steps, repeat, created_at, updated_at
	FROM escalation_policies
	WHERE id = $1`

	var p models.EscalationPolicy
	err := d.Pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Steps, &p.Repeat, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.EscalationPolicy{}, fmt.Errorf("escalation policy %s: %w", id, ErrNotFound)
		}
		return models.EscalationPolicy{}, fmt.Errorf("failed to get escalation policy %s: %w", id, err)
	}
	return p, nil
}

// ListEscalationPolicies returns all escalation policies.
func (d *DB) ListEscalationPolicies(ctx context.Context) ([]models.EscalationPolicy, error) {
	query := `
	SELECT id, name, steps, repeat, created_at, updated_at
	FROM escalation_policies
	ORDER BY created_at`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalation policies: %w", err)
	}
	defer rows.Close()

	var policies []models.EscalationPolicy
	for rows.Next() {
		var p models.EscalationPolicy
		if err := rows.Scan(&p.ID, &p.Name, &p.Steps, &p.Repeat, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan escalation policy: %w", err)
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}
