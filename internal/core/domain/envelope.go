package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CoinTypeUnknown is stored until the asset type of an envelope is resolved.
const CoinTypeUnknown = "unknown"

// TxDigestUnknown is stored for envelopes rebuilt from chain state when the
// creating transaction cannot be resolved. Their created_at is the Unix epoch.
const TxDigestUnknown = "unknown"

// EnvelopeMode selects how the total amount is split between claimers.
type EnvelopeMode int16

const (
	EnvelopeModeEqual  EnvelopeMode = 0
	EnvelopeModeRandom EnvelopeMode = 1
)

// Envelope is the projection of an on-chain red envelope object.
type Envelope struct {
	EnvelopeID           string          `json:"envelope_id"            db:"envelope_id"`
	Network              Network         `json:"network"                db:"network"`
	Owner                string          `json:"owner"                  db:"owner"`
	CoinType             string          `json:"coin_type"              db:"coin_type"`
	TotalAmount          decimal.Decimal `json:"total_amount"           db:"total_amount"`
	TotalCount           int64           `json:"total_count"            db:"total_count"`
	Mode                 EnvelopeMode    `json:"mode"                   db:"mode"`
	RemainingCount       int64           `json:"remaining_count"        db:"remaining_count"`
	IsActive             bool            `json:"is_active"              db:"is_active"`
	RequiresVerification bool            `json:"requires_verification"  db:"requires_verification"`
	CreatedAt            time.Time       `json:"created_at"             db:"created_at"`
	TxDigest             string          `json:"tx_digest"              db:"tx_digest"`
}

// ClampRemaining keeps RemainingCount within [0, TotalCount].
func (e *Envelope) ClampRemaining() {
	e.RemainingCount = ClampCount(e.RemainingCount, e.TotalCount)
}

// ClampCount bounds remaining to [0, total].
func ClampCount(remaining, total int64) int64 {
	if remaining > total {
		remaining = total
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Claim is a single share withdrawn from an envelope.
type Claim struct {
	ClaimID    int64           `json:"claim_id"    db:"claim_id"`
	EnvelopeID string          `json:"envelope_id" db:"envelope_id"`
	Network    Network         `json:"network"     db:"network"`
	Claimer    string          `json:"claimer"     db:"claimer"`
	Amount     decimal.Decimal `json:"amount"      db:"amount"`
	ClaimedAt  time.Time       `json:"claimed_at"  db:"claimed_at"`
	TxDigest   string          `json:"tx_digest"   db:"tx_digest"`
}

// EnvelopeDetail is an envelope together with every claim recorded against it.
type EnvelopeDetail struct {
	Envelope Envelope `json:"envelope"`
	Claims   []Claim  `json:"claims"`
}

// ClaimWithEnvelope pairs a claim with the envelope it was taken from.
type ClaimWithEnvelope struct {
	Envelope Envelope `json:"envelope"`
	Claim    Claim    `json:"claim"`
}
