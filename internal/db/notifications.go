package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"oncall-service/internal/models"
)

const notificationColumns = `id, incident_id, target_member, channel_hints, step_index,
	attempt_count, status, last_error, created_at, updated_at`

func scanNotification(row pgx.Row) (models.NotificationRequest, error) {
	var n models.NotificationRequest
	err := row.Scan(
		&n.ID, &n.IncidentID, &n.TargetMember, &n.ChannelHints, &n.StepIndex,
		&n.AttemptCount, &n.Status, &n.LastError, &n.CreatedAt, &n.UpdatedAt,
	)
	return n, err
}

// ClaimNextNotification atomically claims the oldest pending request for
// delivery, moving it to the sending state. FOR UPDATE SKIP LOCKED lets
// multiple workers claim concurrently without handing the same request to
// two of them. Returns ErrNotFound when the queue is empty.
func (d *DB) ClaimNextNotification(ctx context.Context) (models.NotificationRequest, error) {
	query := `
	UPDATE notification_requests
	SET status = 'sending', updated_at = NOW()
	WHERE id = (
		SELECT id FROM notification_requests
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING ` + notificationColumns

	n, err := scanNotification(d.Pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.NotificationRequest{}, ErrNotFound
		}
		return models.NotificationRequest{}, fmt.Errorf("failed to claim notification: %w", err)
	}
	return n, nil
}

// MarkNotification records the delivery outcome of a claimed request.
// Delivered and failed are terminal.
func (d *DB) MarkNotification(ctx context.Context, id string, status models.NotificationStatus, attempts int, lastError string) error {
	query := `
	UPDATE notification_requests
	SET status = $1, attempt_count = $2, last_error = $3, updated_at = NOW()
	WHERE id = $4`

	tag, err := d.Pool.Exec(ctx, query, string(status), attempts, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

// ResetInFlightNotifications requeues requests stuck in sending, e.g. after
// a crash mid-delivery. Called once on worker startup.
func (d *DB) ResetInFlightNotifications(ctx context.Context) (int64, error) {
	query := `
	UPDATE notification_requests
	SET status = 'pending', updated_at = NOW()
	WHERE status = 'sending'`

	tag, err := d.Pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reset in-flight notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListNotificationsByIncident returns all requests emitted for an incident.
func (d *DB) ListNotificationsByIncident(ctx context.Context, incidentID string) ([]models.NotificationRequest, error) {
	query := `
	SELECT ` + notificationColumns + `
	FROM notification_requests
	WHERE incident_id = $1
	ORDER BY created_at`

	rows, err := d.Pool.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications for incident %s: %w", incidentID, err)
	}
	defer rows.Close()

	var requests []models.NotificationRequest
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		requests = append(requests, n)
	}
	return requests, rows.Err()
}
