package milestone

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/internal/service"
	"github.com/samims/tradenotify/internal/storage"
	"github.com/samims/tradenotify/internal/storage/storagetest"
	"github.com/samims/tradenotify/pkg/tracing"
)

func newService(t *testing.T, vendorEnabled bool) (Service, *sqlx.DB) {
	t.Helper()
	db := storagetest.NewDB(t)
	storagetest.AddUser(t, db, "cust1", "cust1@example.com", true, "")
	storagetest.AddUser(t, db, "vend1", "vend1@example.com", vendorEnabled, "")
	storagetest.AddContract(t, db, storagetest.Contract{
		ID: "c1", CustomerID: "cust1", VendorID: "vend1", JobID: "job1", ConversationID: "conv1",
		MilestoneID: "m1", MilestoneTitle: "First fix", MilestoneStatus: string(model.MilestoneStatusPlanned),
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	broker := service.NewEventBroker(storage.NewEventStorage(db), storage.NewQueueStorage(db), storage.NewMessageStorage(db),
		storage.NewUserStorage(db), tracing.NewNoopTracer(), service.BrokerConfig{BaseURL: "https://app.example.com"}, logger)
	return NewService(db, storage.NewContractStorage(db), broker, logger), db
}

func dispute() UpdateRequest {
	return UpdateRequest{
		MilestoneID: "m1", ActorID: "cust1", ActorRole: model.RoleCustomer,
		Status: model.MilestoneStatusDisputed, Reason: "work incomplete",
	}
}

func TestUpdateStatus_Disputed(t *testing.T) {
	svc, db := newService(t, true)

	res, err := svc.UpdateStatus(context.Background(), dispute())
	require.NoError(t, err)
	require.NotNil(t, res.Event)
	assert.False(t, res.Degraded)
	assert.Equal(t, model.EventMilestoneDisputed, res.Event.Type)
	assert.Equal(t, string(model.MilestoneStatusPlanned), res.Event.OldState)
	assert.True(t, res.Milestone.ContractLocked)

	assert.Equal(t, 1, storagetest.Count(t, db, `SELECT COUNT(*) FROM event_log`))
	assert.Equal(t, 2, storagetest.Count(t, db, `SELECT COUNT(*) FROM notification_queue WHERE status = 'pending'`))
	assert.Equal(t, 1, storagetest.Count(t, db, `SELECT COUNT(*) FROM contracts WHERE id = 'c1' AND is_locked = ?`, true))
	assert.Equal(t, 1, storagetest.Count(t, db, `SELECT COUNT(*) FROM conversations WHERE id = 'conv1' AND is_disputed = ? AND is_locked = ?`, true, true))
	assert.Equal(t, 1, storagetest.Count(t, db, `SELECT COUNT(*) FROM contract_milestones WHERE id = 'm1' AND status = 'disputed'`))
	assert.Equal(t, 1, storagetest.Count(t, db, `SELECT COUNT(*) FROM milestone_audit WHERE milestone_id = 'm1' AND from_status = 'planned' AND to_status = 'disputed'`))
}

func TestUpdateStatus_VendorOptedOut(t *testing.T) {
	svc, db := newService(t, false)

	_, err := svc.UpdateStatus(context.Background(), dispute())
	require.NoError(t, err)
	assert.Equal(t, 1, storagetest.Count(t, db, `SELECT COUNT(*) FROM notification_queue WHERE recipient_id = 'cust1'`))
	assert.Equal(t, 1, storagetest.Count(t, db, `SELECT COUNT(*) FROM notification_queue`))
}

func TestUpdateStatus_Completed(t *testing.T) {
	svc, db := newService(t, true)

	req := dispute()
	req.ActorID, req.ActorRole, req.Status = "vend1", model.RoleVendor, model.MilestoneStatusCompleted
	res, err := svc.UpdateStatus(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.EventMilestoneCompleted, res.Event.Type)
	assert.False(t, res.Milestone.ContractLocked)
	assert.Equal(t, 0, storagetest.Count(t, db, `SELECT COUNT(*) FROM contracts WHERE is_locked = ?`, true))
}

func TestUpdateStatus_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*UpdateRequest)
		check  func(error) bool
	}{
		{name: "unknown milestone", mutate: func(r *UpdateRequest) { r.MilestoneID = "m9" }, check: appErr.IsNotFound},
		{name: "not a party", mutate: func(r *UpdateRequest) { r.ActorID = "cust2" }, check: appErr.IsInvalid},
		{name: "vendor acting as customer", mutate: func(r *UpdateRequest) { r.ActorID = "vend1" }, check: appErr.IsInvalid},
		{name: "missing actor", mutate: func(r *UpdateRequest) { r.ActorID = "" }, check: appErr.IsInvalid},
		{name: "transition not allowed", mutate: func(r *UpdateRequest) { r.Status = model.MilestoneStatusAgreed }, check: appErr.IsConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, db := newService(t, true)
			req := dispute()
			tt.mutate(&req)

			_, err := svc.UpdateStatus(context.Background(), req)
			assert.True(t, tt.check(err), "got %v", err)
			assert.Equal(t, 0, storagetest.Count(t, db, `SELECT COUNT(*) FROM event_log`))
			assert.Equal(t, 0, storagetest.Count(t, db, `SELECT COUNT(*) FROM milestone_audit`))
		})
	}
}

func TestUpdateStatus_DisputeTwiceConflicts(t *testing.T) {
	svc, db := newService(t, true)
	_, err := svc.UpdateStatus(context.Background(), dispute())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), dispute())
	assert.True(t, appErr.IsConflict(err))
	assert.Equal(t, 1, storagetest.Count(t, db, `SELECT COUNT(*) FROM event_log`))
}
