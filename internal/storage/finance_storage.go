package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/samims/tradenotify/internal/model"
)

type financeStorage struct {
	db *sqlx.DB
}

// NewFinanceStorage creates the store behind the credit and score jobs
func NewFinanceStorage(db *sqlx.DB) FinanceStorage {
	return &financeStorage{db: db}
}

func (s *financeStorage) ExpiredLots(ctx context.Context, now time.Time, limit int) ([]model.CreditLot, error) {
	var lots []model.CreditLot
	query := s.db.Rebind(`SELECT id, vendor_id, remaining_cents, currency, origin, expires_at
		FROM finance_credit_lots
		WHERE expires_at <= ? AND remaining_cents > 0
		ORDER BY expires_at LIMIT ?`)
	if err := s.db.SelectContext(ctx, &lots, query, now.UTC(), limit); err != nil {
		return nil, fmt.Errorf("select expired lots: %w", err)
	}
	return lots, nil
}

// ExpireLot only zeroes the lot if it still holds exactly the observed balance, so the ledger
// amount always matches what was removed and a second run cannot write a second entry.
func (s *financeStorage) ExpireLot(ctx context.Context, lot model.CreditLot, now time.Time) (bool, error) {
	now = now.UTC()
	applied := false
	err := WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE finance_credit_lots SET remaining_cents = 0
			WHERE id = ? AND remaining_cents = ? AND remaining_cents > 0 AND expires_at <= ?`),
			lot.ID, lot.RemainingCents, now)
		if err != nil {
			return fmt.Errorf("zero lot %s: %w", lot.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}

		metadata, err := json.Marshal(map[string]string{"creditLotId": lot.ID})
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO finance_ledger_entries
			(id, user_id, amount_cents, currency, entry_type, reason_code, created_by, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			uuid.NewString(), lot.VendorID, -lot.RemainingCents, lot.Currency,
			model.LedgerCreditExpired, lot.Origin, model.CreatedBySystem, string(metadata), now)
		if err != nil {
			return fmt.Errorf("insert ledger entry for lot %s: %w", lot.ID, err)
		}
		applied = true
		return nil
	})
	return applied, err
}

func (s *financeStorage) RecoverableVendors(ctx context.Context) ([]model.VendorScore, error) {
	var scores []model.VendorScore
	query := s.db.Rebind(`SELECT vendor_id, score FROM finance_vendor_scores WHERE score < ? ORDER BY vendor_id`)
	if err := s.db.SelectContext(ctx, &scores, query, model.MaxVendorScore); err != nil {
		return nil, fmt.Errorf("select vendor scores: %w", err)
	}
	return scores, nil
}

func (s *financeStorage) LastNegativeScoreAt(ctx context.Context, vendorID string) (*time.Time, error) {
	var at time.Time
	query := s.db.Rebind(`SELECT created_at FROM finance_score_events
		WHERE vendor_id = ? AND delta < 0 ORDER BY created_at DESC LIMIT 1`)
	if err := s.db.GetContext(ctx, &at, query, vendorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last negative score event: %w", err)
	}
	return &at, nil
}

func (s *financeStorage) RecoveryGrantedSince(ctx context.Context, vendorID string, since time.Time) (int, error) {
	var granted int
	query := s.db.Rebind(`SELECT COALESCE(SUM(delta), 0) FROM finance_score_events
		WHERE vendor_id = ? AND reason = ? AND created_at > ?`)
	if err := s.db.GetContext(ctx, &granted, query, vendorID, model.ScoreReasonRecovery, since.UTC()); err != nil {
		return 0, fmt.Errorf("sum recovery events: %w", err)
	}
	return granted, nil
}

func (s *financeStorage) ApplyRecovery(ctx context.Context, vs model.VendorScore, delta int, now time.Time) (bool, error) {
	now = now.UTC()
	applied := false
	err := WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE finance_vendor_scores SET score = score + ?, updated_at = ?
			WHERE vendor_id = ? AND score = ? AND score + ? <= ?`),
			delta, now, vs.VendorID, vs.Score, delta, model.MaxVendorScore)
		if err != nil {
			return fmt.Errorf("update score for %s: %w", vs.VendorID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO finance_score_events (id, vendor_id, delta, reason, created_at)
			VALUES (?, ?, ?, ?, ?)`),
			uuid.NewString(), vs.VendorID, delta, model.ScoreReasonRecovery, now)
		if err != nil {
			return fmt.Errorf("insert score event for %s: %w", vs.VendorID, err)
		}
		applied = true
		return nil
	})
	return applied, err
}
