package storage_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/internal/storage"
	"github.com/samims/tradenotify/internal/storage/storagetest"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEvent(key string) *model.Event {
	return &model.Event{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Type:           model.EventJobPosted,
		Category:       model.EventJobPosted.Category(),
		ActorID:        "cust1",
		ActorRole:      model.RoleCustomer,
		SubjectType:    "job",
		SubjectID:      "job1",
		JobID:          "job1",
		Metadata:       json.RawMessage(`{"customer_id":"cust1"}`),
		IdempotencyKey: key,
		CreatedAt:      t0,
	}
}

func seedEntry(t *testing.T, db *sqlx.DB, q storage.QueueStorage, evt *model.Event, due time.Time) model.QueueEntry {
	t.Helper()
	e := model.QueueEntry{
		ID:            uuid.NewString(),
		EventID:       evt.ID,
		RecipientID:   "cust1",
		Channel:       model.ChannelEmail,
		EventType:     evt.Type,
		Category:      model.CategoryJobUpdates,
		Title:         "Job posted",
		Body:          "Your job is live",
		Data:          map[string]string{"job_id": "job1"},
		MaxAttempts:   model.DefaultMaxAttempts,
		NextAttemptAt: &due,
		CreatedAt:     t0,
	}
	require.NoError(t, q.Enqueue(context.Background(), db, &e))
	return e
}

func TestEventStorage_InsertIsIdempotentOnKey(t *testing.T) {
	db := storagetest.NewDB(t)
	events := storage.NewEventStorage(db)
	ctx := context.Background()

	first := newEvent("k1")
	inserted, err := events.Insert(ctx, db, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = events.Insert(ctx, db, newEvent("k1"))
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := events.GetByIdempotencyKey(ctx, db, "k1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "job1", got.JobID)
	assert.Empty(t, got.OldState)
	assert.JSONEq(t, `{"customer_id":"cust1"}`, string(got.Metadata))

	_, err = events.GetByIdempotencyKey(ctx, db, "missing")
	assert.True(t, appErr.IsNotFound(err))
}

func TestEventStorage_ListByJobKeepsEmissionOrder(t *testing.T) {
	db := storagetest.NewDB(t)
	events := storage.NewEventStorage(db)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		e := newEvent(uuid.NewString())
		_, err := events.Insert(ctx, db, e)
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}

	got, err := events.ListByJob(ctx, "job1", 10)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, e := range got {
		assert.Equal(t, ids[i], e.ID)
	}
}

func TestQueueStorage_ClaimAndTransitions(t *testing.T) {
	db := storagetest.NewDB(t)
	events := storage.NewEventStorage(db)
	queue := storage.NewQueueStorage(db)
	ctx := context.Background()

	evt := newEvent("k1")
	_, err := events.Insert(ctx, db, evt)
	require.NoError(t, err)

	due := seedEntry(t, db, queue, evt, t0)
	future := seedEntry(t, db, queue, evt, t0.Add(time.Hour))

	claimed, err := queue.ClaimDue(ctx, "w1", t0, t0.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.NotEmpty(t, claimed[0].ClaimToken)
	assert.Equal(t, map[string]string{"job_id": "job1"}, claimed[0].Data)

	// leased rows are not due again until the lease passes
	again, err := queue.ClaimDue(ctx, "w2", t0.Add(30*time.Second), t0.Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	err = queue.MarkSent(ctx, due.ID, "wrong-token", t0)
	assert.ErrorIs(t, err, appErr.ErrLeaseLost)

	require.NoError(t, queue.MarkRetry(ctx, due.ID, claimed[0].ClaimToken, 1, t0.Add(4*time.Second), "smtp 503", t0))
	got, err := queue.Get(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Equal(t, "smtp 503", got.LastError)
	assert.Empty(t, got.ClaimToken)
	require.NotNil(t, got.NextAttemptAt)
	assert.WithinDuration(t, t0.Add(4*time.Second), *got.NextAttemptAt, time.Millisecond)

	// the old token no longer works after a completed transition
	err = queue.MarkSent(ctx, due.ID, claimed[0].ClaimToken, t0)
	assert.ErrorIs(t, err, appErr.ErrLeaseLost)

	claimed, err = queue.ClaimDue(ctx, "w1", t0.Add(5*time.Second), t0.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, queue.MarkSent(ctx, due.ID, claimed[0].ClaimToken, t0.Add(5*time.Second)))

	got, err = queue.Get(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status)
	assert.Nil(t, got.NextAttemptAt)
	require.NotNil(t, got.SentAt)

	claimed, err = queue.ClaimDue(ctx, "w1", t0.Add(2*time.Hour), t0.Add(3*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, future.ID, claimed[0].ID)
	require.NoError(t, queue.MarkDeadLetter(ctx, future.ID, claimed[0].ClaimToken, 5, "bounced", t0.Add(2*time.Hour)))

	dead, err := queue.ListByStatus(ctx, model.StatusDeadLetter, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 5, dead[0].AttemptCount)

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Counts[model.StatusSent])
	assert.Equal(t, 1, stats.Counts[model.StatusDeadLetter])
	assert.Nil(t, stats.OldestPending)
	assert.Equal(t, "bounced", stats.LastError)

	purged, err := queue.PurgeTerminal(ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, purged)
}

func TestQueueStorage_ConcurrentClaimsNeverOverlap(t *testing.T) {
	db := storagetest.NewDB(t)
	events := storage.NewEventStorage(db)
	queue := storage.NewQueueStorage(db)
	ctx := context.Background()

	evt := newEvent("k1")
	_, err := events.Insert(ctx, db, evt)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		seedEntry(t, db, queue, evt, t0)
	}

	var (
		mu   sync.Mutex
		seen = map[string]string{}
		wg   sync.WaitGroup
	)
	for _, owner := range []string{"w1", "w2", "w3"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := queue.ClaimDue(ctx, owner, t0, t0.Add(time.Minute), 20)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, e := range claimed {
				prev, dup := seen[e.ID]
				assert.False(t, dup, "row %s claimed by %s and %s", e.ID, prev, owner)
				seen[e.ID] = owner
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 20)
}

func TestQueueStorage_AttemptCountCannotExceedMax(t *testing.T) {
	db := storagetest.NewDB(t)
	events := storage.NewEventStorage(db)
	queue := storage.NewQueueStorage(db)
	ctx := context.Background()

	evt := newEvent("k1")
	_, err := events.Insert(ctx, db, evt)
	require.NoError(t, err)
	entry := seedEntry(t, db, queue, evt, t0)

	claimed, err := queue.ClaimDue(ctx, "w1", t0, t0.Add(time.Minute), 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	err = queue.MarkRetry(ctx, entry.ID, claimed[0].ClaimToken, model.DefaultMaxAttempts+1, t0, "x", t0)
	assert.Error(t, err)
}

func TestUserStorage_ResolvePreferences(t *testing.T) {
	db := storagetest.NewDB(t)
	users := storage.NewUserStorage(db)
	ctx := context.Background()

	storagetest.AddUser(t, db, "u1", "u1@example.com", true, "")
	storagetest.AddUser(t, db, "u2", "u2@example.com", false, "")
	storagetest.AddUser(t, db, "u3", "", true, `{"disputes":false}`)

	tests := []struct {
		name     string
		user     string
		category model.Category
		want     model.Preference
		notFound bool
	}{
		{name: "defaults", user: "u1", category: model.CategoryDisputes, want: model.Preference{EmailEnabled: true, CategoryEnabled: true}},
		{name: "opt-in default", user: "u1", category: model.CategoryNewsletter, want: model.Preference{EmailEnabled: true, CategoryEnabled: false}},
		{name: "master off", user: "u2", category: model.CategoryDisputes, want: model.Preference{EmailEnabled: false, CategoryEnabled: true}},
		{name: "category off", user: "u3", category: model.CategoryDisputes, want: model.Preference{EmailEnabled: true, CategoryEnabled: false}},
		{name: "missing user", user: "nobody", category: model.CategoryDisputes, notFound: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := users.ResolvePreferences(ctx, tt.user, tt.category)
			if tt.notFound {
				assert.True(t, appErr.IsNotFound(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	email, err := users.Email(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", email)

	email, err = users.Email(ctx, "u3")
	require.NoError(t, err)
	assert.Empty(t, email)
}

func TestMessageStorage_SystemMessageAndInApp(t *testing.T) {
	db := storagetest.NewDB(t)
	messages := storage.NewMessageStorage(db)
	ctx := context.Background()
	storagetest.AddConversation(t, db, "conv1", "", "cust1", "vend1")

	msg := storage.SystemMessage{ID: "m1", ConversationID: "conv1", Body: "Milestone disputed", CreatedAt: t0}
	added, err := messages.AddSystemMessage(ctx, db, msg)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = messages.AddSystemMessage(ctx, db, msg)
	require.NoError(t, err)
	assert.False(t, added)

	var last string
	require.NoError(t, db.Get(&last, `SELECT last_message_id FROM conversations WHERE id = ?`, "conv1"))
	assert.Equal(t, "m1", last)

	_, err = messages.AddSystemMessage(ctx, db, storage.SystemMessage{ID: "m2", ConversationID: "nope", Body: "x", CreatedAt: t0})
	assert.Error(t, err)

	n := model.InAppNotification{ID: "q1", UserID: "cust1", EventType: model.EventMilestoneDisputed, Title: "t", Body: "b", CreatedAt: t0}
	require.NoError(t, messages.AddInApp(ctx, n))
	require.NoError(t, messages.AddInApp(ctx, n))
	assert.Equal(t, 1, storagetest.Count(t, db, `SELECT COUNT(*) FROM in_app_notifications WHERE user_id = ?`, "cust1"))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := storagetest.NewDB(t)
	events := storage.NewEventStorage(db)
	ctx := context.Background()

	err := storage.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := events.Insert(ctx, tx, newEvent("k1")); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, storagetest.Count(t, db, `SELECT COUNT(*) FROM event_log`))
}

func TestNewLocker_NonPostgresAlwaysGrants(t *testing.T) {
	db := storagetest.NewDB(t)
	locker := storage.NewLocker(db)

	release, ok, err := locker.TryLock(context.Background(), "credit-expiry")
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}
