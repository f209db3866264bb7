package db

import (
	"context"
	"fmt"

	"oncall-service/internal/models"
)

// CreateContactPoint inserts a new contact point for a member.
func (d *DB) CreateContactPoint(ctx context.Context, cp models.ContactPoint) (models.ContactPoint, error) {
	query := `
	INSERT INTO contact_points (id, member_id, type, configuration, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	RETURNING created_at, updated_at`

	err := d.Pool.QueryRow(ctx, query,
		cp.ID, cp.MemberID, cp.Type, cp.Configuration, cp.Status,
	).Scan(&cp.CreatedAt, &cp.UpdatedAt)
	if err != nil {
		return models.ContactPoint{}, fmt.Errorf("failed to create contact point: %w", err)
	}
	return cp, nil
}

// GetContactPointsByMember returns all active contact points for a member.
func (d *DB) GetContactPointsByMember(ctx context.Context, memberID string) ([]models.ContactPoint, error) {
	query := `
	SELECT id, member_id, type, configuration, status, created_at, updated_at
	FROM contact_points
	WHERE member_id = $1 AND status = 'active'`

	rows, err := d.Pool.Query(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to get contact points for member %s: %w", memberID, err)
	}
	defer rows.Close()

	var cps []models.ContactPoint
	for rows.Next() {
		var cp models.ContactPoint
		err := rows.Scan(&cp.ID, &cp.MemberID, &cp.Type, &cp.Configuration,
			&cp.Status, &cp.CreatedAt, &cp.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact point: %w", err)
		}
		cps = append(cps, cp)
	}
	return cps, rows.Err()
}

// DeleteContactPoint performs a soft-delete by marking status and updating
// the timestamp.
func (d *DB) DeleteContactPoint(ctx context.Context, id string) error {
	query := `
	UPDATE contact_points
	SET status = 'deleted', updated_at = NOW()
	WHERE id = $1`

	if _, err := d.Pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete contact point %s: %w", id, err)
	}
	return nil
}
