// Package milestone applies contract milestone status changes and emits their events in the same transaction.
package milestone

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/internal/service"
	"github.com/samims/tradenotify/internal/storage"
)

// UpdateRequest asks to move a milestone to Status on behalf of an actor.
type UpdateRequest struct {
	MilestoneID string
	ActorID     string
	ActorRole   string
	Status      model.MilestoneStatus
	Reason      string
}

type Result struct {
	Milestone *model.Milestone
	Event     *model.Event
	// Degraded is set when the change committed but its notifications could not be queued.
	Degraded bool
}

type Service interface {
	UpdateStatus(ctx context.Context, req UpdateRequest) (*Result, error)
}

type milestoneService struct {
	db        *sqlx.DB
	contracts storage.ContractStorage
	broker    service.EventBroker
	now       func() time.Time
	l         *slog.Logger
}

func NewService(db *sqlx.DB, contracts storage.ContractStorage, broker service.EventBroker, logger *slog.Logger) Service {
	return &milestoneService{
		db:        db,
		contracts: contracts,
		broker:    broker,
		now:       time.Now,
		l:         logger.With("layer", "milestone", "component", "milestoneService"),
	}
}

// UpdateStatus records the change with an audit row. A dispute also locks the contract and its
// conversation. Completed and disputed changes emit their event inside the same transaction, so
// either all of it commits or none of it does.
func (s *milestoneService) UpdateStatus(ctx context.Context, req UpdateRequest) (*Result, error) {
	if req.MilestoneID == "" || req.ActorID == "" || req.ActorRole == "" {
		return nil, appErr.NewInvalid("milestone_id, actor_id and actor_role are required")
	}

	var result Result
	err := storage.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		m, err := s.contracts.GetMilestone(ctx, tx, req.MilestoneID)
		if err != nil {
			return err
		}
		if err := authorize(m, req); err != nil {
			return err
		}
		if !m.Status.CanTransition(req.Status) {
			return appErr.NewConflict("milestone %s cannot move from %s to %s", m.ID, m.Status, req.Status)
		}

		now := s.now()
		from := m.Status
		if err := s.contracts.UpdateMilestoneStatus(ctx, tx, m.ID, from, req.Status, now); err != nil {
			return err
		}
		if err := s.contracts.AddMilestoneAudit(ctx, tx, storage.MilestoneAudit{
			MilestoneID: m.ID,
			ActorID:     req.ActorID,
			ActorRole:   req.ActorRole,
			FromStatus:  from,
			ToStatus:    req.Status,
			Note:        req.Reason,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		if req.Status == model.MilestoneStatusDisputed {
			if err := s.contracts.LockContract(ctx, tx, m.ContractID, now); err != nil {
				return err
			}
			m.ContractLocked = true
			if m.ConversationID != "" {
				if err := s.contracts.MarkConversationDisputed(ctx, tx, m.ConversationID, now); err != nil {
					return err
				}
			}
		}
		m.Status = req.Status
		result.Milestone = m

		evt, err := s.broker.Emit(ctx, tx, emitRequest(m, from, req))
		if appErr.IsDegraded(err) {
			s.l.WarnContext(ctx, "Milestone updated without notifications", slog.String("milestone_id", m.ID), slog.Any("error", err))
			result.Degraded = true
			err = nil
		}
		if err != nil {
			return err
		}
		result.Event = evt
		return nil
	})
	if err != nil {
		s.l.ErrorContext(ctx, "Milestone status update failed",
			slog.String("milestone_id", req.MilestoneID), slog.String("status", string(req.Status)), slog.Any("error", err))
		return nil, err
	}
	s.l.InfoContext(ctx, "Milestone status updated",
		slog.String("milestone_id", req.MilestoneID), slog.String("status", string(req.Status)), slog.String("event_id", result.Event.ID))
	return &result, nil
}

func authorize(m *model.Milestone, req UpdateRequest) error {
	switch req.ActorRole {
	case model.RoleAdmin:
		return nil
	case model.RoleCustomer:
		if req.ActorID == m.CustomerID {
			return nil
		}
	case model.RoleVendor:
		if req.ActorID == m.VendorID {
			return nil
		}
	}
	return appErr.NewInvalid("%s %s is not a party to contract %s", req.ActorRole, req.ActorID, m.ContractID)
}

func emitRequest(m *model.Milestone, from model.MilestoneStatus, req UpdateRequest) service.EmitRequest {
	var payload model.Payload
	switch req.Status {
	case model.MilestoneStatusDisputed:
		payload = model.MilestoneDisputed{
			MilestoneID:    m.ID,
			ContractID:     m.ContractID,
			ConversationID: m.ConversationID,
			CustomerID:     m.CustomerID,
			VendorID:       m.VendorID,
			Title:          m.Title,
			Reason:         req.Reason,
		}
	default:
		payload = model.MilestoneCompleted{
			MilestoneID:    m.ID,
			ContractID:     m.ContractID,
			ConversationID: m.ConversationID,
			CustomerID:     m.CustomerID,
			VendorID:       m.VendorID,
			Title:          m.Title,
		}
	}
	return service.EmitRequest{
		ActorID:     req.ActorID,
		ActorRole:   req.ActorRole,
		SubjectType: "milestone",
		SubjectID:   m.ID,
		JobID:       m.JobID,
		OldState:    string(from),
		NewState:    string(req.Status),
		Payload:     payload,
	}
}
