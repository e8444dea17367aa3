package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/model"
)

type contractStorage struct {
	db *sqlx.DB
}

// NewContractStorage creates the store for milestone transitions
func NewContractStorage(db *sqlx.DB) ContractStorage {
	return &contractStorage{db: db}
}

func (s *contractStorage) GetMilestone(ctx context.Context, q Querier, milestoneID string) (*model.Milestone, error) {
	var m model.Milestone
	query := q.Rebind(`SELECT m.id, m.contract_id, m.title, m.status,
			c.customer_id, c.vendor_id, COALESCE(c.job_id, '') AS job_id,
			COALESCE(cv.id, '') AS conversation_id, c.is_locked
		FROM contract_milestones m
		JOIN contracts c ON c.id = m.contract_id
		LEFT JOIN conversations cv ON cv.contract_id = c.id
		WHERE m.id = ?`)
	if err := sqlx.GetContext(ctx, q, &m, query, milestoneID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.NewNotFound("milestone %s", milestoneID)
		}
		return nil, fmt.Errorf("get milestone: %w", err)
	}
	return &m, nil
}

// UpdateMilestoneStatus moves a milestone only if it is still in from.
func (s *contractStorage) UpdateMilestoneStatus(ctx context.Context, q Querier, id string, from, to model.MilestoneStatus, at time.Time) error {
	query := q.Rebind(`UPDATE contract_milestones SET status = ?, updated_at = ? WHERE id = ? AND status = ?`)
	res, err := q.ExecContext(ctx, query, string(to), at.UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("update milestone: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return appErr.NewConflict("milestone %s is no longer %s", id, from)
	}
	return nil
}

func (s *contractStorage) AddMilestoneAudit(ctx context.Context, q Querier, a MilestoneAudit) error {
	query := q.Rebind(`INSERT INTO milestone_audit
		(id, milestone_id, actor_id, actor_role, from_status, to_status, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := q.ExecContext(ctx, query, uuid.NewString(), a.MilestoneID, a.ActorID, a.ActorRole,
		string(a.FromStatus), string(a.ToStatus), nullable(a.Note), a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert milestone audit: %w", err)
	}
	return nil
}

func (s *contractStorage) LockContract(ctx context.Context, q Querier, contractID string, at time.Time) error {
	query := q.Rebind(`UPDATE contracts SET is_locked = ?, updated_at = ? WHERE id = ?`)
	if _, err := q.ExecContext(ctx, query, true, at.UTC(), contractID); err != nil {
		return fmt.Errorf("lock contract: %w", err)
	}
	return nil
}

func (s *contractStorage) MarkConversationDisputed(ctx context.Context, q Querier, conversationID string, at time.Time) error {
	query := q.Rebind(`UPDATE conversations SET is_disputed = ?, is_locked = ?, updated_at = ? WHERE id = ?`)
	if _, err := q.ExecContext(ctx, query, true, true, at.UTC(), conversationID); err != nil {
		return fmt.Errorf("mark conversation disputed: %w", err)
	}
	return nil
}
