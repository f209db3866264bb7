package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"oncall-service/internal/models"
)

const incidentColumns = `id, key, title, body, severity, escalation_policy_id, status,
	step_index, escalation_cycle, step_entered_at, created_at,
	acknowledged_at, acknowledged_by, resolved_at`

func scanIncident(row pgx.Row) (models.Incident, error) {
	var inc models.Incident
	err := row.Scan(
		&inc.ID, &inc.Key, &inc.Title, &inc.Body, &inc.Severity,
		&inc.EscalationPolicyID, &inc.Status, &inc.StepIndex, &inc.EscalationCycle,
		&inc.StepEnteredAt, &inc.CreatedAt,
		&inc.AcknowledgedAt, &inc.AcknowledgedBy, &inc.ResolvedAt,
	)
	return inc, err
}

// CreateIncident inserts a new open incident at escalation step 0. A second
// trigger with the same key while an incident for it is still active is a
// no-op; the bool reports whether a row was actually created.
func (d *DB) CreateIncident(ctx context.Context, inc models.Incident) (bool, error) {
	query := `
	INSERT INTO incidents (id, key, title, body, severity, escalation_policy_id, status,
		step_index, escalation_cycle, step_entered_at, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (key) WHERE status <> 'resolved' DO NOTHING`

	tag, err := d.Pool.Exec(ctx, query,
		inc.ID, inc.Key, inc.Title, inc.Body, inc.Severity, inc.EscalationPolicyID,
		string(inc.Status), inc.StepIndex, inc.EscalationCycle, inc.StepEnteredAt, inc.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create incident: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetIncident retrieves an incident by id.
func (d *DB) GetIncident(ctx context.Context, id string) (models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	inc, err := scanIncident(d.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Incident{}, fmt.Errorf("incident %s: %w", id, ErrNotFound)
		}
		return models.Incident{}, fmt.Errorf("failed to get incident %s: %w", id, err)
	}
	return inc, nil
}

// ListOpenIncidents returns every incident still in the open state, oldest
// first. This is the escalation worker's scan set.
func (d *DB) ListOpenIncidents(ctx context.Context) ([]models.Incident, error) {
	return d.listIncidentsWhere(ctx, `WHERE status = 'open' ORDER BY created_at`)
}

// ListIncidents returns incidents, optionally filtered by status.
func (d *DB) ListIncidents(ctx context.Context, status string) ([]models.Incident, error) {
	if status == "" {
		return d.listIncidentsWhere(ctx, `ORDER BY created_at DESC`)
	}
	return d.listIncidentsWhere(ctx, `WHERE status = $1 ORDER BY created_at DESC`, status)
}

func (d *DB) listIncidentsWhere(ctx context.Context, clause string, args ...interface{}) ([]models.Incident, error) {
	rows, err := d.Pool.Query(ctx, `SELECT `+incidentColumns+` FROM incidents `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// AdvanceIncident moves an open incident to the next escalation step and, in
// the same transaction, enqueues the notification request the fired step
// produced (req may be nil when the step resolved to a coverage gap). The
// update is a compare-and-set on (step_index, escalation_cycle): if a
// concurrent scan already advanced the incident, ErrConflict is returned and
// nothing is written, so a single timeout can never advance twice.
func (d *DB) AdvanceIncident(ctx context.Context, inc models.Incident, nextStep, nextCycle int, firedAt time.Time, req *models.NotificationRequest) error {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin incident advance: %w", err)
	}
	defer tx.Rollback(ctx)

	update := `
	UPDATE incidents
	SET step_index = $1, escalation_cycle = $2, step_entered_at = $3
	WHERE id = $4 AND status = 'open' AND step_index = $5 AND escalation_cycle = $6`

	tag, err := tx.Exec(ctx, update,
		nextStep, nextCycle, firedAt, inc.ID, inc.StepIndex, inc.EscalationCycle)
	if err != nil {
		return fmt.Errorf("failed to advance incident %s: %w", inc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("incident %s step %d: %w", inc.ID, inc.StepIndex, ErrConflict)
	}

	if req != nil {
		insert := `
		INSERT INTO notification_requests (id, incident_id, target_member, channel_hints,
			step_index, attempt_count, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $7)`
		hints := req.ChannelHints
		if hints == nil {
			hints = []string{}
		}
		_, err = tx.Exec(ctx, insert,
			req.ID, req.IncidentID, req.TargetMember, hints, req.StepIndex,
			string(models.NotificationPending), firedAt)
		if err != nil {
			return fmt.Errorf("failed to enqueue notification for incident %s: %w", inc.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit incident advance: %w", err)
	}
	return nil
}

// AcknowledgeIncident moves an open incident to acknowledged and freezes
// escalation. Acknowledging an incident that is already acknowledged (or
// resolved) is a no-op, not an error.
func (d *DB) AcknowledgeIncident(ctx context.Context, id, actor string, at time.Time) (models.Incident, error) {
	query := `
	UPDATE incidents
	SET status = 'acknowledged', acknowledged_at = $1, acknowledged_by = $2
	WHERE id = $3 AND status = 'open'`

	if _, err := d.Pool.Exec(ctx, query, at, actor, id); err != nil {
		return models.Incident{}, fmt.Errorf("failed to acknowledge incident %s: %w", id, err)
	}
	return d.GetIncident(ctx, id)
}

// ResolveIncident marks an incident resolved. Idempotent like acknowledge.
func (d *DB) ResolveIncident(ctx context.Context, id string, at time.Time) (models.Incident, error) {
	query := `
	UPDATE incidents
	SET status = 'resolved', resolved_at = $1
	WHERE id = $2 AND status <> 'resolved'`

	if _, err := d.Pool.Exec(ctx, query, at, id); err != nil {
		return models.Incident{}, fmt.Errorf("failed to resolve incident %s: %w", id, err)
	}
	return d.GetIncident(ctx, id)
}

// ResolveIncidentByKey auto-resolves the active incident carrying the intake
// key, if any. Used by the intake path when a monitoring tool reports
// recovery.
func (d *DB) ResolveIncidentByKey(ctx context.Context, key string, at time.Time) error {
	query := `
	UPDATE incidents
	SET status = 'resolved', resolved_at = $1
	WHERE key = $2 AND status <> 'resolved'`

	if _, err := d.Pool.Exec(ctx, query, at, key); err != nil {
		return fmt.Errorf("failed to resolve incident by key %s: %w", key, err)
	}
	return nil
}
