package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
	"github.com/vietddude/envelope-indexer/internal/infra/storage"
)

const envelopeColumns = `envelope_id, network, owner, coin_type, total_amount, total_count, mode,
	remaining_count, is_active, requires_verification, created_at, tx_digest`

// EnvelopeRepo implements storage.EnvelopeRepository using PostgreSQL.
type EnvelopeRepo struct {
	db *DB
}

// NewEnvelopeRepo creates a new PostgreSQL envelope repository.
func NewEnvelopeRepo(db *DB) *EnvelopeRepo {
	return &EnvelopeRepo{db: db}
}

// Insert stores a new envelope; an existing row for the key wins.
func (r *EnvelopeRepo) Insert(ctx context.Context, env *domain.Envelope) (bool, error) {
	query := `
		INSERT INTO envelopes (` + envelopeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (envelope_id, network) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		env.EnvelopeID, string(env.Network), env.Owner, env.CoinType,
		env.TotalAmount, env.TotalCount, int16(env.Mode),
		env.RemainingCount, env.IsActive, env.RequiresVerification,
		env.CreatedAt, env.TxDigest,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert envelope: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert envelope: %w", err)
	}
	return n > 0, nil
}

// Get retrieves an envelope by key.
func (r *EnvelopeRepo) Get(
	ctx context.Context,
	network domain.Network,
	envelopeID string,
) (*domain.Envelope, error) {
	var env domain.Envelope
	query := `SELECT ` + envelopeColumns + ` FROM envelopes WHERE envelope_id = $1 AND network = $2`
	err := r.db.GetContext(ctx, &env, query, envelopeID, string(network))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrEnvelopeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get envelope: %w", err)
	}
	return &env, nil
}

// DecrementRemaining lowers remaining_count by one, never below zero.
func (r *EnvelopeRepo) DecrementRemaining(
	ctx context.Context,
	network domain.Network,
	envelopeID string,
) (bool, error) {
	query := `
		UPDATE envelopes SET remaining_count = remaining_count - 1
		WHERE envelope_id = $1 AND network = $2 AND remaining_count > 0
	`
	res, err := r.db.ExecContext(ctx, query, envelopeID, string(network))
	if err != nil {
		return false, fmt.Errorf("failed to decrement envelope: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to decrement envelope: %w", err)
	}
	return n > 0, nil
}

// UpdateState overwrites the mutable state of an envelope from chain truth.
// remaining_count is bounded by the stored total_count.
func (r *EnvelopeRepo) UpdateState(
	ctx context.Context,
	network domain.Network,
	envelopeID string,
	remaining int64,
	active bool,
) (bool, error) {
	query := `
		UPDATE envelopes
		SET remaining_count = GREATEST(LEAST($3, total_count), 0), is_active = $4
		WHERE envelope_id = $1 AND network = $2
	`
	res, err := r.db.ExecContext(ctx, query, envelopeID, string(network), remaining, active)
	if err != nil {
		return false, fmt.Errorf("failed to update envelope: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update envelope: %w", err)
	}
	return n > 0, nil
}

// ListByOwner returns envelopes created by owner. An empty network matches all.
func (r *EnvelopeRepo) ListByOwner(
	ctx context.Context,
	network domain.Network,
	owner string,
) ([]domain.Envelope, error) {
	query := `
		SELECT ` + envelopeColumns + ` FROM envelopes
		WHERE owner = $1 AND ($2 = '' OR network = $2)
		ORDER BY created_at DESC
	`
	var envs []domain.Envelope
	if err := r.db.SelectContext(ctx, &envs, query, owner, string(network)); err != nil {
		return nil, fmt.Errorf("failed to list envelopes: %w", err)
	}
	return envs, nil
}

// ListActive returns envelopes with shares left. limit <= 0 means no limit.
func (r *EnvelopeRepo) ListActive(
	ctx context.Context,
	network domain.Network,
	limit int,
) ([]domain.Envelope, error) {
	query := `
		SELECT ` + envelopeColumns + ` FROM envelopes
		WHERE is_active AND remaining_count > 0 AND ($1 = '' OR network = $1)
		ORDER BY created_at DESC
	`
	args := []any{string(network)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	var envs []domain.Envelope
	if err := r.db.SelectContext(ctx, &envs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list active envelopes: %w", err)
	}
	return envs, nil
}

// Count returns total and active envelope counts.
func (r *EnvelopeRepo) Count(ctx context.Context, network domain.Network) (int, int, error) {
	var row struct {
		Total  int `db:"total"`
		Active int `db:"active"`
	}
	query := `
		SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE is_active) AS active
		FROM envelopes WHERE ($1 = '' OR network = $1)
	`
	if err := r.db.GetContext(ctx, &row, query, string(network)); err != nil {
		return 0, 0, fmt.Errorf("failed to count envelopes: %w", err)
	}
	return row.Total, row.Active, nil
}
