package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/samims/tradenotify/internal/model"
)

// Querier is satisfied by both *sqlx.DB and *sqlx.Tx, so writes can join a caller's transaction.
type Querier = sqlx.ExtContext

// HealthCheckStorage is the readiness probe surface
type HealthCheckStorage interface {
	Ping(ctx context.Context) error
}

// EventStorage persists the append-only event log
type EventStorage interface {
	// Insert appends e. It returns false when an event with the same idempotency key already exists.
	Insert(ctx context.Context, q Querier, e *model.Event) (bool, error)
	GetByIdempotencyKey(ctx context.Context, q Querier, key string) (*model.Event, error)
	ListByJob(ctx context.Context, jobID string, limit int) ([]model.Event, error)
	ListBySubject(ctx context.Context, subjectType, subjectID string, limit int) ([]model.Event, error)
}

// QueueStorage persists notification queue rows. Creation joins the emitting transaction;
// every later transition is guarded by the claim token handed out by ClaimDue.
type QueueStorage interface {
	Enqueue(ctx context.Context, q Querier, e *model.QueueEntry) error
	ClaimDue(ctx context.Context, owner string, now, leaseUntil time.Time, limit int) ([]model.QueueEntry, error)
	MarkSent(ctx context.Context, id, token string, at time.Time) error
	MarkSuppressed(ctx context.Context, id, token, reason string, at time.Time) error
	MarkRetry(ctx context.Context, id, token string, attempts int, next time.Time, lastErr string, at time.Time) error
	MarkDeadLetter(ctx context.Context, id, token string, attempts int, lastErr string, at time.Time) error
	Get(ctx context.Context, id string) (*model.QueueEntry, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.QueueEntry, error)
	ListByStatus(ctx context.Context, status model.Status, limit int) ([]model.QueueEntry, error)
	Stats(ctx context.Context) (model.QueueStats, error)
	PurgeTerminal(ctx context.Context, before time.Time) (int64, error)
}

// UserStorage reads the user-owned notification settings and contact details
type UserStorage interface {
	ResolvePreferences(ctx context.Context, userID string, category model.Category) (model.Preference, error)
	Email(ctx context.Context, userID string) (string, error)
}

// SystemMessage is a system_alert row posted into a conversation thread.
type SystemMessage struct {
	ID             string
	ConversationID string
	Body           string
	Metadata       string
	CreatedAt      time.Time
}

// MessageStorage writes system messages and in-app notifications
type MessageStorage interface {
	// AddSystemMessage returns false when a message with the same id was already written.
	AddSystemMessage(ctx context.Context, q Querier, m SystemMessage) (bool, error)
	AddInApp(ctx context.Context, n model.InAppNotification) error
}

// FinanceStorage backs the credit expiry and score recovery jobs
type FinanceStorage interface {
	ExpiredLots(ctx context.Context, now time.Time, limit int) ([]model.CreditLot, error)
	// ExpireLot zeroes the lot and writes its ledger entry; false means another run got there first.
	ExpireLot(ctx context.Context, lot model.CreditLot, now time.Time) (bool, error)
	RecoverableVendors(ctx context.Context) ([]model.VendorScore, error)
	LastNegativeScoreAt(ctx context.Context, vendorID string) (*time.Time, error)
	RecoveryGrantedSince(ctx context.Context, vendorID string, since time.Time) (int, error)
	// ApplyRecovery adds delta to the score observed in vs; false means the score moved underneath us.
	ApplyRecovery(ctx context.Context, vs model.VendorScore, delta int, now time.Time) (bool, error)
}

// MilestoneAudit records who changed a milestone and how.
type MilestoneAudit struct {
	MilestoneID string
	ActorID     string
	ActorRole   string
	FromStatus  model.MilestoneStatus
	ToStatus    model.MilestoneStatus
	Note        string
	CreatedAt   time.Time
}

// ContractStorage is the milestone/contract slice the status transition touches
type ContractStorage interface {
	GetMilestone(ctx context.Context, q Querier, milestoneID string) (*model.Milestone, error)
	UpdateMilestoneStatus(ctx context.Context, q Querier, id string, from, to model.MilestoneStatus, at time.Time) error
	AddMilestoneAudit(ctx context.Context, q Querier, a MilestoneAudit) error
	LockContract(ctx context.Context, q Querier, contractID string, at time.Time) error
	MarkConversationDisputed(ctx context.Context, q Querier, conversationID string, at time.Time) error
}
