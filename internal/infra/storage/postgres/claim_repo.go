package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
)

const claimColumns = `claim_id, envelope_id, network, claimer, amount, claimed_at, tx_digest`

// ClaimRepo implements storage.ClaimRepository using PostgreSQL.
type ClaimRepo struct {
	db *DB
}

// NewClaimRepo creates a new PostgreSQL claim repository.
func NewClaimRepo(db *DB) *ClaimRepo {
	return &ClaimRepo{db: db}
}

// Insert stores a claim and fills in its ClaimID. A missing parent envelope
// surfaces as storage.ErrEnvelopeNotFound.
func (r *ClaimRepo) Insert(ctx context.Context, claim *domain.Claim) (bool, error) {
	query := `
		INSERT INTO claims (envelope_id, network, claimer, amount, claimed_at, tx_digest)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (envelope_id, network, tx_digest) DO NOTHING
		RETURNING claim_id
	`
	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		claim.EnvelopeID, string(claim.Network), claim.Claimer,
		claim.Amount, claim.ClaimedAt, claim.TxDigest,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil // Conflict, row already recorded
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert claim: %w", classify(err))
	}
	claim.ClaimID = id
	return true, nil
}

// ListByEnvelope returns claims for an envelope, newest first.
func (r *ClaimRepo) ListByEnvelope(
	ctx context.Context,
	network domain.Network,
	envelopeID string,
) ([]domain.Claim, error) {
	query := `
		SELECT ` + claimColumns + ` FROM claims
		WHERE envelope_id = $1 AND network = $2
		ORDER BY claimed_at DESC, claim_id DESC
	`
	var claims []domain.Claim
	if err := r.db.SelectContext(ctx, &claims, query, envelopeID, string(network)); err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	return claims, nil
}

type claimWithEnvelopeRow struct {
	ClaimID     int64           `db:"claim_id"`
	EnvelopeID  string          `db:"envelope_id"`
	Network     string          `db:"network"`
	Claimer     string          `db:"claimer"`
	Amount      decimal.Decimal `db:"amount"`
	ClaimedAt   time.Time       `db:"claimed_at"`
	TxDigest    string          `db:"tx_digest"`
	Owner       string          `db:"owner"`
	CoinType    string          `db:"coin_type"`
	TotalAmount decimal.Decimal `db:"total_amount"`
	TotalCount  int64           `db:"total_count"`
	Mode        int16           `db:"mode"`
	Remaining   int64           `db:"remaining_count"`
	IsActive    bool            `db:"is_active"`
	Verify      bool            `db:"requires_verification"`
	CreatedAt   time.Time       `db:"created_at"`
	EnvTxDigest string          `db:"env_tx_digest"`
}

// ListByClaimer returns claims made by an address joined with their envelope.
func (r *ClaimRepo) ListByClaimer(
	ctx context.Context,
	network domain.Network,
	claimer string,
) ([]domain.ClaimWithEnvelope, error) {
	query := `
		SELECT c.claim_id, c.envelope_id, c.network, c.claimer, c.amount, c.claimed_at, c.tx_digest,
			e.owner, e.coin_type, e.total_amount, e.total_count, e.mode, e.remaining_count,
			e.is_active, e.requires_verification, e.created_at, e.tx_digest AS env_tx_digest
		FROM claims c
		JOIN envelopes e ON e.envelope_id = c.envelope_id AND e.network = c.network
		WHERE c.claimer = $1 AND ($2 = '' OR c.network = $2)
		ORDER BY c.claimed_at DESC, c.claim_id DESC
	`
	var rows []claimWithEnvelopeRow
	if err := r.db.SelectContext(ctx, &rows, query, claimer, string(network)); err != nil {
		return nil, fmt.Errorf("failed to list claims by claimer: %w", err)
	}

	out := make([]domain.ClaimWithEnvelope, 0, len(rows))
	for _, row := range rows {
		n := domain.Network(row.Network)
		out = append(out, domain.ClaimWithEnvelope{
			Envelope: domain.Envelope{
				EnvelopeID:           row.EnvelopeID,
				Network:              n,
				Owner:                row.Owner,
				CoinType:             row.CoinType,
				TotalAmount:          row.TotalAmount,
				TotalCount:           row.TotalCount,
				Mode:                 domain.EnvelopeMode(row.Mode),
				RemainingCount:       row.Remaining,
				IsActive:             row.IsActive,
				RequiresVerification: row.Verify,
				CreatedAt:            row.CreatedAt,
				TxDigest:             row.EnvTxDigest,
			},
			Claim: domain.Claim{
				ClaimID:    row.ClaimID,
				EnvelopeID: row.EnvelopeID,
				Network:    n,
				Claimer:    row.Claimer,
				Amount:     row.Amount,
				ClaimedAt:  row.ClaimedAt,
				TxDigest:   row.TxDigest,
			},
		})
	}
	return out, nil
}

// Count returns the number of claims recorded.
func (r *ClaimRepo) Count(ctx context.Context, network domain.Network) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM claims WHERE ($1 = '' OR network = $1)`
	if err := r.db.GetContext(ctx, &n, query, string(network)); err != nil {
		return 0, fmt.Errorf("failed to count claims: %w", err)
	}
	return n, nil
}
