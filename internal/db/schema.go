package db

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS rotation_policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		members JSONB NOT NULL,
		shift_length TEXT NOT NULL,
		handoff_time TEXT NOT NULL,
		starts_at TIMESTAMPTZ NOT NULL,
		ends_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS shifts (
		id BIGSERIAL PRIMARY KEY,
		rotation_id TEXT NOT NULL REFERENCES rotation_policies(id),
		member TEXT NOT NULL,
		starts_at TIMESTAMPTZ NOT NULL,
		ends_at TIMESTAMPTZ NOT NULL,
		superseded BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS shifts_active_start_idx
		ON shifts (rotation_id, starts_at) WHERE NOT superseded`,
	`CREATE INDEX IF NOT EXISTS shifts_coverage_idx
		ON shifts (rotation_id, starts_at, ends_at) WHERE NOT superseded`,
	`CREATE TABLE IF NOT EXISTS escalation_policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		steps JSONB NOT NULL,
		repeat INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS incidents (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		severity INT NOT NULL DEFAULT 0,
		escalation_policy_id TEXT NOT NULL REFERENCES escalation_policies(id),
		status TEXT NOT NULL,
		step_index INT NOT NULL DEFAULT 0,
		escalation_cycle INT NOT NULL DEFAULT 0,
		step_entered_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		acknowledged_at TIMESTAMPTZ,
		acknowledged_by TEXT NOT NULL DEFAULT '',
		resolved_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS incidents_active_key_idx
		ON incidents (key) WHERE status <> 'resolved'`,
	`CREATE INDEX IF NOT EXISTS incidents_status_idx ON incidents (status)`,
	`CREATE TABLE IF NOT EXISTS notification_requests (
		id TEXT PRIMARY KEY,
		incident_id TEXT NOT NULL REFERENCES incidents(id),
		target_member TEXT NOT NULL,
		channel_hints JSONB NOT NULL DEFAULT '[]',
		step_index INT NOT NULL DEFAULT 0,
		attempt_count INT NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS notification_requests_pending_idx
		ON notification_requests (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS contact_points (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		type TEXT NOT NULL,
		configuration JSONB NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS contact_points_member_idx ON contact_points (member_id)`,
}

// EnsureSchema creates the tables and indexes the service needs. Every
// statement is idempotent, so running it on each startup is safe.
func (d *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
