package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/internal/storage"
)

// ScoreRecovery gives a vendor one point back for every full recovery period since its last
// negative score event, up to the maximum score.
type ScoreRecovery struct {
	store storage.FinanceStorage
	now   func() time.Time
	log   *slog.Logger
}

func NewScoreRecovery(store storage.FinanceStorage, log *slog.Logger) *ScoreRecovery {
	return &ScoreRecovery{
		store: store,
		now:   time.Now,
		log:   log.With("layer", "jobs", "component", "scoreRecovery"),
	}
}

func (j *ScoreRecovery) Name() string { return "score_recovery" }

func (j *ScoreRecovery) Run(ctx context.Context) (Summary, error) {
	now := j.now()
	summary := Summary{Job: j.Name(), Started: now}

	vendors, err := j.store.RecoverableVendors(ctx)
	if err != nil {
		return summary, err
	}
	for _, vs := range vendors {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		applied, err := j.recover(ctx, vs, now)
		if err != nil {
			j.log.ErrorContext(ctx, "Failed to recover vendor score", slog.String("vendor_id", vs.VendorID), slog.Any("error", err))
		}
		summary.Add(vs.VendorID, applied, err)
	}
	summary.Finished = j.now()
	return summary, nil
}

func (j *ScoreRecovery) recover(ctx context.Context, vs model.VendorScore, now time.Time) (bool, error) {
	last, err := j.store.LastNegativeScoreAt(ctx, vs.VendorID)
	if err != nil || last == nil {
		return false, err
	}
	granted, err := j.store.RecoveryGrantedSince(ctx, vs.VendorID, *last)
	if err != nil {
		return false, err
	}
	delta := RecoveryDelta(vs.Score, *last, granted, now)
	if delta <= 0 {
		return false, nil
	}
	applied, err := j.store.ApplyRecovery(ctx, vs, delta, now)
	if applied {
		j.log.InfoContext(ctx, "Vendor score recovered",
			slog.String("vendor_id", vs.VendorID), slog.Int("from", vs.Score), slog.Int("delta", delta))
	}
	return applied, err
}

// RecoveryDelta is the number of points still owed: one per full period since lastNegative,
// minus what was already granted, without passing the maximum score.
func RecoveryDelta(score int, lastNegative time.Time, granted int, now time.Time) int {
	if now.Before(lastNegative) {
		return 0
	}
	earned := int(now.Sub(lastNegative) / model.ScoreRecoveryPeriod)
	return max(0, min(earned-granted, model.MaxVendorScore-score))
}
