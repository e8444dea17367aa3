package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema holds the tables this service owns. Statements avoid dialect-specific types so the
// same DDL runs on Postgres and on SQLite. Timestamps are always bound from Go in UTC.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS event_log (
		id              TEXT PRIMARY KEY,
		event_type      TEXT NOT NULL,
		event_category  TEXT NOT NULL,
		actor_id        TEXT NOT NULL,
		actor_role      TEXT NOT NULL,
		subject_type    TEXT NOT NULL,
		subject_id      TEXT NOT NULL,
		job_id          TEXT,
		old_state       TEXT,
		new_state       TEXT,
		metadata        TEXT NOT NULL,
		idempotency_key TEXT NOT NULL,
		created_at      TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_event_log_idempotency_key ON event_log (idempotency_key)`,
	`CREATE INDEX IF NOT EXISTS idx_event_log_job ON event_log (job_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_event_log_subject ON event_log (subject_type, subject_id)`,

	`CREATE TABLE IF NOT EXISTS notification_queue (
		id              TEXT PRIMARY KEY,
		event_id        TEXT NOT NULL REFERENCES event_log (id),
		recipient_id    TEXT NOT NULL,
		channel         TEXT NOT NULL,
		event_type      TEXT NOT NULL,
		category        TEXT NOT NULL,
		title           TEXT NOT NULL,
		body            TEXT NOT NULL,
		action_url      TEXT NOT NULL DEFAULT '',
		payload         TEXT NOT NULL DEFAULT '{}',
		status          TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'sent', 'failed', 'suppressed', 'dead_letter')),
		attempt_count   INTEGER NOT NULL DEFAULT 0,
		max_attempts    INTEGER NOT NULL DEFAULT 5,
		next_attempt_at TIMESTAMP,
		last_error      TEXT,
		claim_token     TEXT,
		claimed_by      TEXT,
		created_at      TIMESTAMP NOT NULL,
		updated_at      TIMESTAMP NOT NULL,
		sent_at         TIMESTAMP,
		failed_at       TIMESTAMP,
		CHECK (attempt_count >= 0 AND attempt_count <= max_attempts),
		CHECK (status NOT IN ('pending', 'failed') OR next_attempt_at IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_queue_due ON notification_queue (status, next_attempt_at)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_queue_event ON notification_queue (event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_queue_recipient ON notification_queue (recipient_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS in_app_notifications (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		event_type TEXT NOT NULL,
		title      TEXT NOT NULL,
		body       TEXT NOT NULL,
		action_url TEXT NOT NULL DEFAULT '',
		is_read    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_in_app_notifications_user ON in_app_notifications (user_id, created_at)`,
}

// Migrate creates the service-owned tables if they do not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
