package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
	"github.com/vietddude/envelope-indexer/internal/infra/storage"
)

type envelopeKey struct {
	network domain.Network
	id      string
}

type claimKey struct {
	network  domain.Network
	id       string
	txDigest string
}

// MemoryStorage keeps the projection in process memory. It enforces the same
// uniqueness and conditional-update rules as the PostgreSQL schema.
type MemoryStorage struct {
	envelopes   map[envelopeKey]*domain.Envelope
	claims      []*domain.Claim
	claimIndex  map[claimKey]struct{}
	nextClaimID int64
	mu          sync.RWMutex
}

var _ storage.Store = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		envelopes:  make(map[envelopeKey]*domain.Envelope),
		claimIndex: make(map[claimKey]struct{}),
	}
}

func (s *MemoryStorage) Envelopes() storage.EnvelopeRepository { return &EnvelopeRepo{store: s} }
func (s *MemoryStorage) Claims() storage.ClaimRepository       { return &ClaimRepo{store: s} }

func matchNetwork(filter, n domain.Network) bool {
	return filter == "" || filter == n
}

// -----------------------------------------------------------------------------
// Envelope Repository
// -----------------------------------------------------------------------------

type EnvelopeRepo struct {
	store *MemoryStorage
}

func (r *EnvelopeRepo) Insert(ctx context.Context, env *domain.Envelope) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := envelopeKey{env.Network, env.EnvelopeID}
	if _, ok := r.store.envelopes[key]; ok {
		return false, nil
	}
	cp := *env
	r.store.envelopes[key] = &cp
	return true, nil
}

func (r *EnvelopeRepo) Get(
	ctx context.Context,
	network domain.Network,
	envelopeID string,
) (*domain.Envelope, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	env, ok := r.store.envelopes[envelopeKey{network, envelopeID}]
	if !ok {
		return nil, storage.ErrEnvelopeNotFound
	}
	cp := *env
	return &cp, nil
}

func (r *EnvelopeRepo) DecrementRemaining(
	ctx context.Context,
	network domain.Network,
	envelopeID string,
) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	env, ok := r.store.envelopes[envelopeKey{network, envelopeID}]
	if !ok || env.RemainingCount <= 0 {
		return false, nil
	}
	env.RemainingCount--
	return true, nil
}

func (r *EnvelopeRepo) UpdateState(
	ctx context.Context,
	network domain.Network,
	envelopeID string,
	remaining int64,
	active bool,
) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	env, ok := r.store.envelopes[envelopeKey{network, envelopeID}]
	if !ok {
		return false, nil
	}
	env.RemainingCount = domain.ClampCount(remaining, env.TotalCount)
	env.IsActive = active
	return true, nil
}

func (r *EnvelopeRepo) ListByOwner(
	ctx context.Context,
	network domain.Network,
	owner string,
) ([]domain.Envelope, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.Envelope
	for _, env := range r.store.envelopes {
		if matchNetwork(network, env.Network) && env.Owner == owner {
			out = append(out, *env)
		}
	}
	sortEnvelopes(out)
	return out, nil
}

func (r *EnvelopeRepo) ListActive(
	ctx context.Context,
	network domain.Network,
	limit int,
) ([]domain.Envelope, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.Envelope
	for _, env := range r.store.envelopes {
		if matchNetwork(network, env.Network) && env.IsActive && env.RemainingCount > 0 {
			out = append(out, *env)
		}
	}
	sortEnvelopes(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *EnvelopeRepo) Count(ctx context.Context, network domain.Network) (int, int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var total, active int
	for _, env := range r.store.envelopes {
		if !matchNetwork(network, env.Network) {
			continue
		}
		total++
		if env.IsActive {
			active++
		}
	}
	return total, active, nil
}

func sortEnvelopes(envs []domain.Envelope) {
	sort.Slice(envs, func(i, j int) bool {
		return envs[i].CreatedAt.After(envs[j].CreatedAt)
	})
}

// -----------------------------------------------------------------------------
// Claim Repository
// -----------------------------------------------------------------------------

type ClaimRepo struct {
	store *MemoryStorage
}

func (r *ClaimRepo) Insert(ctx context.Context, claim *domain.Claim) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.envelopes[envelopeKey{claim.Network, claim.EnvelopeID}]; !ok {
		return false, storage.ErrEnvelopeNotFound
	}
	key := claimKey{claim.Network, claim.EnvelopeID, claim.TxDigest}
	if _, ok := r.store.claimIndex[key]; ok {
		return false, nil
	}
	r.store.nextClaimID++
	cp := *claim
	cp.ClaimID = r.store.nextClaimID
	r.store.claims = append(r.store.claims, &cp)
	r.store.claimIndex[key] = struct{}{}
	claim.ClaimID = cp.ClaimID
	return true, nil
}

func (r *ClaimRepo) ListByEnvelope(
	ctx context.Context,
	network domain.Network,
	envelopeID string,
) ([]domain.Claim, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.Claim
	for _, c := range r.store.claims {
		if c.Network == network && c.EnvelopeID == envelopeID {
			out = append(out, *c)
		}
	}
	sortClaims(out)
	return out, nil
}

func (r *ClaimRepo) ListByClaimer(
	ctx context.Context,
	network domain.Network,
	claimer string,
) ([]domain.ClaimWithEnvelope, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var claims []domain.Claim
	for _, c := range r.store.claims {
		if matchNetwork(network, c.Network) && c.Claimer == claimer {
			claims = append(claims, *c)
		}
	}
	sortClaims(claims)

	out := make([]domain.ClaimWithEnvelope, 0, len(claims))
	for _, c := range claims {
		env, ok := r.store.envelopes[envelopeKey{c.Network, c.EnvelopeID}]
		if !ok {
			continue
		}
		out = append(out, domain.ClaimWithEnvelope{Envelope: *env, Claim: c})
	}
	return out, nil
}

func (r *ClaimRepo) Count(ctx context.Context, network domain.Network) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	n := 0
	for _, c := range r.store.claims {
		if matchNetwork(network, c.Network) {
			n++
		}
	}
	return n, nil
}

func sortClaims(claims []domain.Claim) {
	sort.SliceStable(claims, func(i, j int) bool {
		return claims[i].ClaimedAt.After(claims[j].ClaimedAt)
	})
}
