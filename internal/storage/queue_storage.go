package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/model"
)

const queueColumns = `id, event_id, recipient_id, channel, event_type, category, title, body, action_url,
	payload, status, attempt_count, max_attempts, next_attempt_at, last_error, claim_token,
	created_at, updated_at, sent_at`

type queueRow struct {
	ID            string     `db:"id"`
	EventID       string     `db:"event_id"`
	RecipientID   string     `db:"recipient_id"`
	Channel       string     `db:"channel"`
	EventType     string     `db:"event_type"`
	Category      string     `db:"category"`
	Title         string     `db:"title"`
	Body          string     `db:"body"`
	ActionURL     string     `db:"action_url"`
	Payload       string     `db:"payload"`
	Status        string     `db:"status"`
	AttemptCount  int        `db:"attempt_count"`
	MaxAttempts   int        `db:"max_attempts"`
	NextAttemptAt *time.Time `db:"next_attempt_at"`
	LastError     *string    `db:"last_error"`
	ClaimToken    *string    `db:"claim_token"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	SentAt        *time.Time `db:"sent_at"`
}

func (r queueRow) toModel() model.QueueEntry {
	e := model.QueueEntry{
		ID:            r.ID,
		EventID:       r.EventID,
		RecipientID:   r.RecipientID,
		Channel:       model.Channel(r.Channel),
		EventType:     model.EventType(r.EventType),
		Category:      model.Category(r.Category),
		Title:         r.Title,
		Body:          r.Body,
		ActionURL:     r.ActionURL,
		Status:        model.Status(r.Status),
		AttemptCount:  r.AttemptCount,
		MaxAttempts:   r.MaxAttempts,
		NextAttemptAt: r.NextAttemptAt,
		LastError:     deref(r.LastError),
		ClaimToken:    deref(r.ClaimToken),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		SentAt:        r.SentAt,
	}
	if r.Payload != "" && r.Payload != "{}" {
		_ = json.Unmarshal([]byte(r.Payload), &e.Data)
	}
	return e
}

type queueStorage struct {
	db *sqlx.DB
}

// NewQueueStorage creates the notification queue store
func NewQueueStorage(db *sqlx.DB) QueueStorage {
	return &queueStorage{db: db}
}

// Enqueue inserts a pending row inside the caller's transaction
func (s *queueStorage) Enqueue(ctx context.Context, q Querier, e *model.QueueEntry) error {
	if e == nil {
		return fmt.Errorf("queue entry cannot be nil")
	}
	if e.NextAttemptAt == nil {
		return fmt.Errorf("queue entry %s has no next_attempt_at", e.ID)
	}
	payload := []byte("{}")
	if len(e.Data) > 0 {
		var err error
		if payload, err = json.Marshal(e.Data); err != nil {
			return fmt.Errorf("encode queue payload: %w", err)
		}
	}

	query := q.Rebind(`INSERT INTO notification_queue
		(id, event_id, recipient_id, channel, event_type, category, title, body, action_url, payload,
		 status, attempt_count, max_attempts, next_attempt_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := q.ExecContext(ctx, query,
		e.ID, e.EventID, e.RecipientID, string(e.Channel), string(e.EventType), string(e.Category),
		e.Title, e.Body, e.ActionURL, string(payload),
		string(model.StatusPending), e.AttemptCount, e.MaxAttempts, e.NextAttemptAt.UTC(),
		e.CreatedAt.UTC(), e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// ClaimDue leases up to limit due rows to owner. Each row is taken with a conditional update that
// pushes next_attempt_at to leaseUntil, so a concurrent worker's update on the same row affects
// zero rows and skips it. A crashed owner's rows become due again once the lease passes.
func (s *queueStorage) ClaimDue(ctx context.Context, owner string, now, leaseUntil time.Time, limit int) ([]model.QueueEntry, error) {
	now, leaseUntil = now.UTC(), leaseUntil.UTC()

	var candidates []string
	selectQuery := s.db.Rebind(`SELECT id FROM notification_queue
		WHERE status = ? AND next_attempt_at <= ?
		ORDER BY next_attempt_at LIMIT ?`)
	if err := s.db.SelectContext(ctx, &candidates, selectQuery, string(model.StatusPending), now, limit); err != nil {
		return nil, fmt.Errorf("select due notifications: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	claimQuery := s.db.Rebind(`UPDATE notification_queue
		SET next_attempt_at = ?, claim_token = ?, claimed_by = ?, updated_at = ?
		WHERE id = ? AND status = ? AND next_attempt_at <= ?`)

	claimed := make([]string, 0, len(candidates))
	for _, id := range candidates {
		token := uuid.NewString()
		res, err := s.db.ExecContext(ctx, claimQuery, leaseUntil, token, owner, now, id, string(model.StatusPending), now)
		if err != nil {
			return nil, fmt.Errorf("claim notification %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 1 {
			claimed = append(claimed, id)
		}
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT `+queueColumns+` FROM notification_queue WHERE id IN (?) AND claimed_by = ?`, claimed, owner)
	if err != nil {
		return nil, fmt.Errorf("build claimed query: %w", err)
	}
	var rows []queueRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load claimed notifications: %w", err)
	}

	byID := make(map[string]queueRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	entries := make([]model.QueueEntry, 0, len(rows))
	for _, id := range claimed {
		if r, ok := byID[id]; ok {
			entries = append(entries, r.toModel())
		}
	}
	return entries, nil
}

func (s *queueStorage) MarkSent(ctx context.Context, id, token string, at time.Time) error {
	at = at.UTC()
	return s.transition(ctx, id, token, `status = ?, sent_at = ?, next_attempt_at = NULL, last_error = NULL`,
		string(model.StatusSent), at, at)
}

func (s *queueStorage) MarkSuppressed(ctx context.Context, id, token, reason string, at time.Time) error {
	return s.transition(ctx, id, token, `status = ?, next_attempt_at = NULL, last_error = ?`,
		string(model.StatusSuppressed), reason, at.UTC())
}

func (s *queueStorage) MarkRetry(ctx context.Context, id, token string, attempts int, next time.Time, lastErr string, at time.Time) error {
	return s.transition(ctx, id, token, `attempt_count = ?, next_attempt_at = ?, last_error = ?`,
		attempts, next.UTC(), lastErr, at.UTC())
}

func (s *queueStorage) MarkDeadLetter(ctx context.Context, id, token string, attempts int, lastErr string, at time.Time) error {
	at = at.UTC()
	return s.transition(ctx, id, token, `status = ?, attempt_count = ?, next_attempt_at = NULL, last_error = ?, failed_at = ?`,
		string(model.StatusDeadLetter), attempts, lastErr, at, at)
}

// transition applies set to a pending row still held by token. The last arg must be updated_at.
func (s *queueStorage) transition(ctx context.Context, id, token, set string, args ...any) error {
	query := s.db.Rebind(`UPDATE notification_queue SET ` + set + `,
		claim_token = NULL, claimed_by = NULL, updated_at = ?
		WHERE id = ? AND claim_token = ? AND status = ?`)
	args = append(args, id, token, string(model.StatusPending))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update notification %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("notification %s: %w", id, appErr.ErrLeaseLost)
	}
	return nil
}

func (s *queueStorage) Get(ctx context.Context, id string) (*model.QueueEntry, error) {
	var row queueRow
	query := s.db.Rebind(`SELECT ` + queueColumns + ` FROM notification_queue WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.NewNotFound("notification %s", id)
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	e := row.toModel()
	return &e, nil
}

func (s *queueStorage) ListByEvent(ctx context.Context, eventID string) ([]model.QueueEntry, error) {
	query := s.db.Rebind(`SELECT ` + queueColumns + ` FROM notification_queue WHERE event_id = ? ORDER BY recipient_id, channel`)
	return s.list(ctx, query, eventID)
}

func (s *queueStorage) ListByStatus(ctx context.Context, status model.Status, limit int) ([]model.QueueEntry, error) {
	query := s.db.Rebind(`SELECT ` + queueColumns + ` FROM notification_queue WHERE status = ? ORDER BY updated_at DESC LIMIT ?`)
	return s.list(ctx, query, string(status), limit)
}

func (s *queueStorage) list(ctx context.Context, query string, args ...any) ([]model.QueueEntry, error) {
	var rows []queueRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	entries := make([]model.QueueEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toModel())
	}
	return entries, nil
}

// Stats reports counts by status, the oldest pending row and the most recent error
func (s *queueStorage) Stats(ctx context.Context) (model.QueueStats, error) {
	stats := model.QueueStats{Counts: map[model.Status]int{}}

	var counts []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &counts, `SELECT status, COUNT(*) AS n FROM notification_queue GROUP BY status`); err != nil {
		return stats, fmt.Errorf("count notifications: %w", err)
	}
	for _, c := range counts {
		stats.Counts[model.Status(c.Status)] = c.N
	}

	var oldest time.Time
	err := s.db.GetContext(ctx, &oldest, s.db.Rebind(`SELECT created_at FROM notification_queue
		WHERE status = ? ORDER BY created_at LIMIT 1`), string(model.StatusPending))
	switch {
	case err == nil:
		stats.OldestPending = &oldest
	case !errors.Is(err, sql.ErrNoRows):
		return stats, fmt.Errorf("oldest pending: %w", err)
	}

	var last struct {
		LastError string    `db:"last_error"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err = s.db.GetContext(ctx, &last, s.db.Rebind(`SELECT last_error, updated_at FROM notification_queue
		WHERE last_error IS NOT NULL AND status <> ? ORDER BY updated_at DESC LIMIT 1`), string(model.StatusSuppressed))
	switch {
	case err == nil:
		stats.LastError = last.LastError
		stats.LastErrorAt = &last.UpdatedAt
	case !errors.Is(err, sql.ErrNoRows):
		return stats, fmt.Errorf("last error: %w", err)
	}
	return stats, nil
}

// PurgeTerminal deletes sent, suppressed and dead-lettered rows last touched before the cutoff
func (s *queueStorage) PurgeTerminal(ctx context.Context, before time.Time) (int64, error) {
	query := s.db.Rebind(`DELETE FROM notification_queue WHERE status IN (?, ?, ?) AND updated_at < ?`)
	res, err := s.db.ExecContext(ctx, query,
		string(model.StatusSent), string(model.StatusSuppressed), string(model.StatusDeadLetter), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return res.RowsAffected()
}
