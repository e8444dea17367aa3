package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/samims/tradenotify/internal/storage"
)

const defaultBatchSize = 200

// CreditExpiry zeroes expired credit lots and writes a credit_expired ledger entry for each.
type CreditExpiry struct {
	store storage.FinanceStorage
	batch int
	now   func() time.Time
	log   *slog.Logger
}

func NewCreditExpiry(store storage.FinanceStorage, log *slog.Logger) *CreditExpiry {
	return &CreditExpiry{
		store: store,
		batch: defaultBatchSize,
		now:   time.Now,
		log:   log.With("layer", "jobs", "component", "creditExpiry"),
	}
}

func (j *CreditExpiry) Name() string { return "credit_expiry" }

func (j *CreditExpiry) Run(ctx context.Context) (Summary, error) {
	now := j.now()
	summary := Summary{Job: j.Name(), Started: now}

	for {
		lots, err := j.store.ExpiredLots(ctx, now, j.batch)
		if err != nil {
			return summary, err
		}
		progressed := false
		for _, lot := range lots {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			applied, err := j.store.ExpireLot(ctx, lot, now)
			if err != nil {
				j.log.ErrorContext(ctx, "Failed to expire credit lot", slog.String("lot_id", lot.ID), slog.Any("error", err))
			} else if applied {
				progressed = true
				j.log.InfoContext(ctx, "Credit lot expired",
					slog.String("lot_id", lot.ID), slog.String("vendor_id", lot.VendorID), slog.Int64("amount_cents", lot.RemainingCents))
			}
			summary.Add(lot.ID, applied, err)
		}
		// a short page is the last one; a page with no progress would only be selected again
		if len(lots) < j.batch || !progressed {
			break
		}
	}
	summary.Finished = j.now()
	return summary, nil
}
