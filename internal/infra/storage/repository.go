package storage

import (
	"context"
	"errors"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
)

// ErrEnvelopeNotFound is returned when no envelope exists for the key.
var ErrEnvelopeNotFound = errors.New("envelope not found")

// EnvelopeRepository handles envelope storage operations
type EnvelopeRepository interface {
	// Insert stores a new envelope. Returns false when the (envelope_id, network)
	// key already exists; the existing row is left untouched.
	Insert(ctx context.Context, env *domain.Envelope) (bool, error)

	// Get retrieves an envelope by key or ErrEnvelopeNotFound
	Get(ctx context.Context, network domain.Network, envelopeID string) (*domain.Envelope, error)

	// DecrementRemaining atomically decrements remaining_count if it is above zero.
	// Returns false when no row matched the guard.
	DecrementRemaining(ctx context.Context, network domain.Network, envelopeID string) (bool, error)

	// UpdateState overwrites remaining_count and is_active of an existing
	// envelope. remaining_count is clamped to [0, total_count].
	// Returns false when the envelope does not exist.
	UpdateState(
		ctx context.Context,
		network domain.Network,
		envelopeID string,
		remaining int64,
		active bool,
	) (bool, error)

	// ListByOwner returns envelopes created by owner, newest first
	ListByOwner(ctx context.Context, network domain.Network, owner string) ([]domain.Envelope, error)

	// ListActive returns envelopes that still have shares left, newest first
	ListActive(ctx context.Context, network domain.Network, limit int) ([]domain.Envelope, error)

	// Count returns total and active envelope counts for a network
	Count(ctx context.Context, network domain.Network) (total int, active int, err error)
}

// ClaimRepository handles claim storage operations
type ClaimRepository interface {
	// Insert stores a claim. Returns false when a claim with the same
	// (envelope_id, network, tx_digest) already exists.
	Insert(ctx context.Context, claim *domain.Claim) (bool, error)

	// ListByEnvelope returns claims for an envelope, newest first
	ListByEnvelope(ctx context.Context, network domain.Network, envelopeID string) ([]domain.Claim, error)

	// ListByClaimer returns claims made by an address joined with their envelope
	ListByClaimer(ctx context.Context, network domain.Network, claimer string) ([]domain.ClaimWithEnvelope, error)

	// Count returns the number of claims recorded for a network
	Count(ctx context.Context, network domain.Network) (int, error)
}

// Store is the projection store used by the reconciliation engine.
type Store interface {
	Envelopes() EnvelopeRepository
	Claims() ClaimRepository
}
