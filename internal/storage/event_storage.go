package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/model"
)

const eventColumns = `id, event_type, event_category, actor_id, actor_role, subject_type, subject_id,
	job_id, old_state, new_state, metadata, idempotency_key, created_at`

type eventRow struct {
	ID             string    `db:"id"`
	Type           string    `db:"event_type"`
	Category       string    `db:"event_category"`
	ActorID        string    `db:"actor_id"`
	ActorRole      string    `db:"actor_role"`
	SubjectType    string    `db:"subject_type"`
	SubjectID      string    `db:"subject_id"`
	JobID          *string   `db:"job_id"`
	OldState       *string   `db:"old_state"`
	NewState       *string   `db:"new_state"`
	Metadata       string    `db:"metadata"`
	IdempotencyKey string    `db:"idempotency_key"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r eventRow) toModel() model.Event {
	return model.Event{
		ID:             r.ID,
		Type:           model.EventType(r.Type),
		Category:       r.Category,
		ActorID:        r.ActorID,
		ActorRole:      r.ActorRole,
		SubjectType:    r.SubjectType,
		SubjectID:      r.SubjectID,
		JobID:          deref(r.JobID),
		OldState:       deref(r.OldState),
		NewState:       deref(r.NewState),
		Metadata:       json.RawMessage(r.Metadata),
		IdempotencyKey: r.IdempotencyKey,
		CreatedAt:      r.CreatedAt,
	}
}

type eventStorage struct {
	db *sqlx.DB
}

// NewEventStorage creates the event log store
func NewEventStorage(db *sqlx.DB) EventStorage {
	return &eventStorage{db: db}
}

func (s *eventStorage) Insert(ctx context.Context, q Querier, e *model.Event) (bool, error) {
	if e == nil {
		return false, fmt.Errorf("event cannot be nil")
	}
	query := q.Rebind(`INSERT INTO event_log (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key) DO NOTHING`)

	res, err := q.ExecContext(ctx, query,
		e.ID, string(e.Type), e.Category, e.ActorID, e.ActorRole, e.SubjectType, e.SubjectID,
		nullable(e.JobID), nullable(e.OldState), nullable(e.NewState), string(e.Metadata),
		e.IdempotencyKey, e.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *eventStorage) GetByIdempotencyKey(ctx context.Context, q Querier, key string) (*model.Event, error) {
	var row eventRow
	query := q.Rebind(`SELECT ` + eventColumns + ` FROM event_log WHERE idempotency_key = ?`)
	if err := sqlx.GetContext(ctx, q, &row, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.NewNotFound("event with idempotency key %q", key)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	e := row.toModel()
	return &e, nil
}

// ListByJob returns a job's history in emission order
func (s *eventStorage) ListByJob(ctx context.Context, jobID string, limit int) ([]model.Event, error) {
	query := s.db.Rebind(`SELECT ` + eventColumns + ` FROM event_log WHERE job_id = ? ORDER BY id LIMIT ?`)
	return s.list(ctx, query, jobID, limit)
}

func (s *eventStorage) ListBySubject(ctx context.Context, subjectType, subjectID string, limit int) ([]model.Event, error) {
	query := s.db.Rebind(`SELECT ` + eventColumns + ` FROM event_log
		WHERE subject_type = ? AND subject_id = ? ORDER BY id LIMIT ?`)
	return s.list(ctx, query, subjectType, subjectID, limit)
}

func (s *eventStorage) list(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := make([]model.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toModel())
	}
	return events, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
