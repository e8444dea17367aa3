package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/internal/storage"
	"github.com/samims/tradenotify/internal/storage/storagetest"
	"github.com/samims/tradenotify/pkg/tracing"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	db        *sqlx.DB
	events    storage.EventStorage
	queue     storage.QueueStorage
	users     storage.UserStorage
	messages  storage.MessageStorage
	contracts storage.ContractStorage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storagetest.NewDB(t)
	return &fixture{
		db:        db,
		events:    storage.NewEventStorage(db),
		queue:     storage.NewQueueStorage(db),
		users:     storage.NewUserStorage(db),
		messages:  storage.NewMessageStorage(db),
		contracts: storage.NewContractStorage(db),
	}
}

// seedParties adds cust1 and vend1 with contract c1, milestone m1 and conversation conv1.
func (f *fixture) seedParties(t *testing.T) {
	t.Helper()
	storagetest.AddUser(t, f.db, "cust1", "cust1@example.com", true, "")
	storagetest.AddUser(t, f.db, "vend1", "vend1@example.com", true, "")
	storagetest.AddContract(t, f.db, storagetest.Contract{
		ID: "c1", CustomerID: "cust1", VendorID: "vend1", JobID: "job1", ConversationID: "conv1",
		MilestoneID: "m1", MilestoneTitle: "First fix", MilestoneStatus: string(model.MilestoneStatusPlanned),
	})
}

func (f *fixture) broker(prefs PreferenceResolver) *eventBroker {
	b := NewEventBroker(f.events, f.queue, f.messages, prefs, tracing.NewNoopTracer(),
		BrokerConfig{BaseURL: "https://app.example.com/"}, discardLogger()).(*eventBroker)
	b.now = func() time.Time { return t0 }
	return b
}

// emit runs Emit in its own transaction and commits unless Emit failed for a non-degraded reason.
func (f *fixture) emit(t *testing.T, b EventBroker, req EmitRequest) (*model.Event, error) {
	t.Helper()
	var (
		evt     *model.Event
		emitErr error
	)
	err := storage.WithTx(context.Background(), f.db, func(tx *sqlx.Tx) error {
		evt, emitErr = b.Emit(context.Background(), tx, req)
		if appErr.IsDegraded(emitErr) {
			return nil
		}
		return emitErr
	})
	if emitErr == nil {
		require.NoError(t, err)
	}
	return evt, emitErr
}

func disputedRequest() EmitRequest {
	return EmitRequest{
		ActorID:     "cust1",
		ActorRole:   model.RoleCustomer,
		SubjectType: "milestone",
		SubjectID:   "m1",
		JobID:       "job1",
		OldState:    string(model.MilestoneStatusPlanned),
		NewState:    string(model.MilestoneStatusDisputed),
		Payload: model.MilestoneDisputed{
			MilestoneID:    "m1",
			ContractID:     "c1",
			ConversationID: "conv1",
			CustomerID:     "cust1",
			VendorID:       "vend1",
			Title:          "First fix",
			Reason:         "work incomplete",
		},
	}
}
