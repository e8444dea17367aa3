package model

import "time"

// CreditLot is a block of vendor credit with an expiry date.
type CreditLot struct {
	ID             string    `db:"id"`
	VendorID       string    `db:"vendor_id"`
	RemainingCents int64     `db:"remaining_cents"`
	Currency       string    `db:"currency"`
	Origin         string    `db:"origin"`
	ExpiresAt      time.Time `db:"expires_at"`
}

// LedgerEntry types and creators written by the periodic jobs.
const (
	LedgerCreditExpired = "credit_expired"
	CreatedBySystem     = "system"
)

// VendorScore is a vendor's trust score, capped at MaxVendorScore.
type VendorScore struct {
	VendorID string `db:"vendor_id"`
	Score    int    `db:"score"`
}

const (
	MaxVendorScore      = 100
	ScoreReasonRecovery = "score_recovery"
	ScoreRecoveryPeriod = 30 * 24 * time.Hour
)
