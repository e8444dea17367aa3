// Package storagetest opens throwaway SQLite databases carrying the service schema plus the
// marketplace tables the service reads and writes.
package storagetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/samims/tradenotify/internal/storage"
)

var marketplaceSchema = []string{
	`CREATE TABLE users (
		id                          TEXT PRIMARY KEY,
		email                       TEXT,
		email_notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		email_preferences           TEXT
	)`,
	`CREATE TABLE contracts (
		id          TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		vendor_id   TEXT NOT NULL,
		job_id      TEXT,
		is_locked   BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at  TIMESTAMP
	)`,
	`CREATE TABLE contract_milestones (
		id          TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL REFERENCES contracts (id),
		title       TEXT NOT NULL,
		status      TEXT NOT NULL,
		updated_at  TIMESTAMP
	)`,
	`CREATE TABLE milestone_audit (
		id           TEXT PRIMARY KEY,
		milestone_id TEXT NOT NULL,
		actor_id     TEXT NOT NULL,
		actor_role   TEXT NOT NULL,
		from_status  TEXT NOT NULL,
		to_status    TEXT NOT NULL,
		note         TEXT,
		created_at   TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE conversations (
		id              TEXT PRIMARY KEY,
		contract_id     TEXT,
		customer_id     TEXT NOT NULL,
		vendor_id       TEXT NOT NULL,
		last_message_id TEXT,
		is_locked       BOOLEAN NOT NULL DEFAULT FALSE,
		is_disputed     BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at      TIMESTAMP
	)`,
	`CREATE TABLE messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations (id),
		sender_id       TEXT,
		sender_role     TEXT NOT NULL,
		message_type    TEXT NOT NULL,
		body            TEXT NOT NULL,
		metadata        TEXT,
		created_at      TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE finance_credit_lots (
		id              TEXT PRIMARY KEY,
		vendor_id       TEXT NOT NULL,
		remaining_cents INTEGER NOT NULL,
		currency        TEXT NOT NULL DEFAULT 'gbp',
		origin          TEXT NOT NULL,
		expires_at      TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE finance_ledger_entries (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		currency     TEXT NOT NULL,
		entry_type   TEXT NOT NULL,
		reason_code  TEXT,
		created_by   TEXT NOT NULL,
		metadata     TEXT,
		created_at   TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE finance_vendor_scores (
		vendor_id  TEXT PRIMARY KEY,
		score      INTEGER NOT NULL,
		updated_at TIMESTAMP
	)`,
	`CREATE TABLE finance_score_events (
		id         TEXT PRIMARY KEY,
		vendor_id  TEXT NOT NULL,
		delta      INTEGER NOT NULL,
		reason     TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
}

// NewDB returns a migrated database in the test's temp dir. A file is used instead of
// :memory: because every pooled connection to :memory: would see its own empty database.
func NewDB(t testing.TB) *sqlx.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "tradenotify.db") +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate&_time_format=sqlite"

	db, err := sqlx.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, storage.Migrate(ctx, db))
	for _, stmt := range marketplaceSchema {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return db
}

// AddUser inserts a user; prefs is the raw email_preferences document ("" for NULL).
func AddUser(t testing.TB, db *sqlx.DB, id, email string, enabled bool, prefs string) {
	t.Helper()
	var doc any
	if prefs != "" {
		doc = prefs
	}
	_, err := db.Exec(`INSERT INTO users (id, email, email_notifications_enabled, email_preferences) VALUES (?, ?, ?, ?)`,
		id, email, enabled, doc)
	require.NoError(t, err)
}

// Contract describes a contract with one milestone and an optional conversation.
type Contract struct {
	ID              string
	CustomerID      string
	VendorID        string
	JobID           string
	ConversationID  string
	MilestoneID     string
	MilestoneTitle  string
	MilestoneStatus string
}

func AddContract(t testing.TB, db *sqlx.DB, c Contract) {
	t.Helper()
	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO contracts (id, customer_id, vendor_id, job_id, is_locked, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.CustomerID, c.VendorID, c.JobID, false, now)
	require.NoError(t, err)
	if c.MilestoneID != "" {
		_, err = db.Exec(`INSERT INTO contract_milestones (id, contract_id, title, status, updated_at) VALUES (?, ?, ?, ?, ?)`,
			c.MilestoneID, c.ID, c.MilestoneTitle, c.MilestoneStatus, now)
		require.NoError(t, err)
	}
	if c.ConversationID != "" {
		AddConversation(t, db, c.ConversationID, c.ID, c.CustomerID, c.VendorID)
	}
}

func AddConversation(t testing.TB, db *sqlx.DB, id, contractID, customerID, vendorID string) {
	t.Helper()
	var contract any
	if contractID != "" {
		contract = contractID
	}
	_, err := db.Exec(`INSERT INTO conversations (id, contract_id, customer_id, vendor_id, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, contract, customerID, vendorID, time.Now().UTC())
	require.NoError(t, err)
}

// Count runs a COUNT(*) style query and returns the single integer.
func Count(t testing.TB, db *sqlx.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, query, args...))
	return n
}
