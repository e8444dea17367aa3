package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/storage"
	"github.com/samims/tradenotify/internal/storage/storagetest"
)

var now = time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addLot(t *testing.T, db *sqlx.DB, id, vendor string, cents int64, expires time.Time) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO finance_credit_lots (id, vendor_id, remaining_cents, currency, origin, expires_at)
		VALUES (?, ?, ?, 'gbp', 'promo', ?)`, id, vendor, cents, expires.UTC())
	require.NoError(t, err)
}

func addScore(t *testing.T, db *sqlx.DB, vendor string, score int, negatives ...time.Time) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO finance_vendor_scores (vendor_id, score, updated_at) VALUES (?, ?, ?)`, vendor, score, now)
	require.NoError(t, err)
	for i, at := range negatives {
		_, err := db.Exec(`INSERT INTO finance_score_events (id, vendor_id, delta, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
			vendor+"-neg-"+string(rune('a'+i)), vendor, -5, "late_cancellation", at.UTC())
		require.NoError(t, err)
	}
}

func TestCreditExpiry_IsIdempotent(t *testing.T) {
	db := storagetest.NewDB(t)
	addLot(t, db, "lot1", "vend1", 1500, now.Add(-time.Hour))
	addLot(t, db, "lot2", "vend1", 250, now.Add(-48*time.Hour))
	addLot(t, db, "lot3", "vend2", 900, now.Add(time.Hour))
	addLot(t, db, "lot4", "vend2", 0, now.Add(-time.Hour))

	job := NewCreditExpiry(storage.NewFinanceStorage(db), discardLogger())
	job.now = func() time.Time { return now }

	first, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Applied())
	require.NoError(t, first.Err())

	ledger := `SELECT COUNT(*) FROM finance_ledger_entries WHERE entry_type = 'credit_expired'`
	assert.Equal(t, 2, storagetest.Count(t, db, ledger))
	assert.Equal(t, 1, storagetest.Count(t, db,
		`SELECT COUNT(*) FROM finance_ledger_entries WHERE user_id = 'vend1' AND amount_cents = -1500 AND reason_code = 'promo' AND created_by = 'system'`))
	assert.Equal(t, 1, storagetest.Count(t, db, `SELECT COUNT(*) FROM finance_credit_lots WHERE remaining_cents > 0`))

	second, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Applied())
	assert.Equal(t, 2, storagetest.Count(t, db, ledger))
}

func TestCreditExpiry_PagesThroughBatches(t *testing.T) {
	db := storagetest.NewDB(t)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		addLot(t, db, id, "vend1", 100, now.Add(-time.Hour))
	}
	job := NewCreditExpiry(storage.NewFinanceStorage(db), discardLogger())
	job.now = func() time.Time { return now }
	job.batch = 2

	summary, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Applied())
}

func TestScoreRecovery_IsIdempotent(t *testing.T) {
	db := storagetest.NewDB(t)
	day := 24 * time.Hour
	addScore(t, db, "vend1", 90, now.Add(-200*day), now.Add(-95*day))
	addScore(t, db, "vend2", 99, now.Add(-400*day))
	addScore(t, db, "vend3", 80, now.Add(-10*day))
	addScore(t, db, "vend4", 70)

	job := NewScoreRecovery(storage.NewFinanceStorage(db), discardLogger())
	job.now = func() time.Time { return now }

	first, err := job.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Err())
	assert.Equal(t, 2, first.Applied())

	score := func(vendor string) int {
		var s int
		require.NoError(t, db.Get(&s, `SELECT score FROM finance_vendor_scores WHERE vendor_id = ?`, vendor))
		return s
	}
	assert.Equal(t, 93, score("vend1"))
	assert.Equal(t, 100, score("vend2"))
	assert.Equal(t, 80, score("vend3"))
	assert.Equal(t, 70, score("vend4"))

	recoveries := `SELECT COUNT(*) FROM finance_score_events WHERE reason = 'score_recovery'`
	assert.Equal(t, 2, storagetest.Count(t, db, recoveries))

	second, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Applied())
	assert.Equal(t, 2, storagetest.Count(t, db, recoveries))
	assert.Equal(t, 93, score("vend1"))
}

func TestRecoveryDelta(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		name    string
		score   int
		since   time.Duration
		granted int
		want    int
	}{
		{name: "less than one period", score: 80, since: 29 * day, want: 0},
		{name: "one full period", score: 80, since: 30 * day, want: 1},
		{name: "several periods", score: 80, since: 95 * day, want: 3},
		{name: "already granted", score: 83, since: 95 * day, granted: 3, want: 0},
		{name: "partly granted", score: 81, since: 95 * day, granted: 1, want: 2},
		{name: "capped at maximum", score: 99, since: 400 * day, want: 1},
		{name: "negative event in the future", score: 50, since: -day, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecoveryDelta(tt.score, now.Add(-tt.since), tt.granted, now))
		})
	}
}

type blockingJob struct {
	started chan struct{}
	release chan struct{}
}

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Run(ctx context.Context) (Summary, error) {
	close(j.started)
	<-j.release
	s := Summary{Job: j.Name()}
	s.Add("row1", true, nil)
	s.Add("row2", false, errors.New("boom"))
	return s, nil
}

func TestRunner_SingleFlight(t *testing.T) {
	db := storagetest.NewDB(t)
	r := NewRunner(storage.NewLocker(db), discardLogger())
	job := &blockingJob{started: make(chan struct{}), release: make(chan struct{})}

	done := make(chan Summary)
	go func() {
		s, err := r.Run(context.Background(), job)
		assert.NoError(t, err)
		done <- s
	}()
	<-job.started

	_, err := r.Run(context.Background(), job)
	assert.ErrorIs(t, err, appErr.ErrJobBusy)

	close(job.release)
	s := <-done
	assert.Equal(t, 1, s.Applied())
	assert.Equal(t, 1, s.Failed())
	assert.ErrorContains(t, s.Err(), "row2: boom")
}

type heldLocker struct{}

func (heldLocker) TryLock(context.Context, string) (func(), bool, error) { return nil, false, nil }

func TestRunner_BusyElsewhere(t *testing.T) {
	r := NewRunner(heldLocker{}, discardLogger())
	job := NewCreditExpiry(nil, discardLogger())

	_, err := r.Run(context.Background(), job)
	assert.True(t, errors.Is(err, appErr.ErrJobBusy))
}

var _ Job = (*ScoreRecovery)(nil)
