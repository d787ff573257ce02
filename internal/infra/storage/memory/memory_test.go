package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
	"github.com/vietddude/envelope-indexer/internal/infra/storage"
)

func seedEnvelope(t *testing.T, s *MemoryStorage, id string, count int64) {
	t.Helper()
	ok, err := s.Envelopes().Insert(context.Background(), &domain.Envelope{
		EnvelopeID:     id,
		Network:        domain.NetworkTestnet,
		Owner:          "0xA",
		TotalAmount:    decimal.NewFromInt(1000),
		TotalCount:     count,
		RemainingCount: count,
		IsActive:       true,
		CreatedAt:      time.Now(),
		TxDigest:       "D-" + id,
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryStorage_EnvelopeInsertIsFirstWriterWins(t *testing.T) {
	s := NewMemoryStorage()
	seedEnvelope(t, s, "0xE", 3)

	ok, err := s.Envelopes().Insert(context.Background(), &domain.Envelope{
		EnvelopeID: "0xE",
		Network:    domain.NetworkTestnet,
		Owner:      "0xOther",
	})
	require.NoError(t, err)
	assert.False(t, ok)

	env, err := s.Envelopes().Get(context.Background(), domain.NetworkTestnet, "0xE")
	require.NoError(t, err)
	assert.Equal(t, "0xA", env.Owner)

	_, err = s.Envelopes().Get(context.Background(), domain.NetworkMainnet, "0xE")
	assert.ErrorIs(t, err, storage.ErrEnvelopeNotFound)
}

func TestMemoryStorage_DecrementStopsAtZero(t *testing.T) {
	s := NewMemoryStorage()
	seedEnvelope(t, s, "0xE", 1)
	ctx := context.Background()

	ok, err := s.Envelopes().DecrementRemaining(ctx, domain.NetworkTestnet, "0xE")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Envelopes().DecrementRemaining(ctx, domain.NetworkTestnet, "0xE")
	require.NoError(t, err)
	assert.False(t, ok)

	env, _ := s.Envelopes().Get(ctx, domain.NetworkTestnet, "0xE")
	assert.Equal(t, int64(0), env.RemainingCount)
}

func TestMemoryStorage_ClaimRules(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	_, err := s.Claims().Insert(ctx, &domain.Claim{
		EnvelopeID: "0xE", Network: domain.NetworkTestnet, TxDigest: "D2",
	})
	assert.ErrorIs(t, err, storage.ErrEnvelopeNotFound)

	seedEnvelope(t, s, "0xE", 3)
	claim := &domain.Claim{
		EnvelopeID: "0xE",
		Network:    domain.NetworkTestnet,
		Claimer:    "0xB",
		Amount:     decimal.NewFromInt(400),
		ClaimedAt:  time.Now(),
		TxDigest:   "D2",
	}
	ok, err := s.Claims().Insert(ctx, claim)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), claim.ClaimID)

	dup := *claim
	ok, err = s.Claims().Insert(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, ok)

	byClaimer, err := s.Claims().ListByClaimer(ctx, "", "0xB")
	require.NoError(t, err)
	require.Len(t, byClaimer, 1)
	assert.Equal(t, "0xA", byClaimer[0].Envelope.Owner)

	n, err := s.Claims().Count(ctx, domain.NetworkTestnet)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStorage_ListActive(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	seedEnvelope(t, s, "0x1", 2)
	seedEnvelope(t, s, "0x2", 2)

	_, err := s.Envelopes().UpdateState(ctx, domain.NetworkTestnet, "0x1", 0, false)
	require.NoError(t, err)

	active, err := s.Envelopes().ListActive(ctx, domain.NetworkTestnet, 0)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "0x2", active[0].EnvelopeID)

	total, activeCount, err := s.Envelopes().Count(ctx, domain.NetworkTestnet)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, activeCount)
}

func TestMemoryStorage_UpdateStateClampsToTotal(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	seedEnvelope(t, s, "0x1", 2)

	ok, err := s.Envelopes().UpdateState(ctx, domain.NetworkTestnet, "0x1", 9, true)
	require.NoError(t, err)
	require.True(t, ok)
	env, err := s.Envelopes().Get(ctx, domain.NetworkTestnet, "0x1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), env.RemainingCount)

	_, err = s.Envelopes().UpdateState(ctx, domain.NetworkTestnet, "0x1", -3, false)
	require.NoError(t, err)
	env, err = s.Envelopes().Get(ctx, domain.NetworkTestnet, "0x1")
	require.NoError(t, err)
	assert.Zero(t, env.RemainingCount)

	ok, err = s.Envelopes().UpdateState(ctx, domain.NetworkTestnet, "0xMissing", 1, true)
	require.NoError(t, err)
	assert.False(t, ok)
}
