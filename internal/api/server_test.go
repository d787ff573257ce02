package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
	"github.com/vietddude/envelope-indexer/internal/indexing/reconcile"
	"github.com/vietddude/envelope-indexer/internal/infra/chain/sui"
	"github.com/vietddude/envelope-indexer/internal/infra/storage/memory"
)

type fakeResyncer struct {
	envErr error
	txErr  error
	calls  []string
}

func (f *fakeResyncer) ResyncEnvelope(ctx context.Context, id string) (*domain.Envelope, error) {
	f.calls = append(f.calls, "envelope:"+id)
	if f.envErr != nil {
		return nil, f.envErr
	}
	return &domain.Envelope{EnvelopeID: id, Network: domain.NetworkTestnet, RemainingCount: 2, IsActive: true}, nil
}

func (f *fakeResyncer) ResyncTransaction(ctx context.Context, digest string) (*reconcile.TransactionResync, error) {
	f.calls = append(f.calls, "tx:"+digest)
	if f.txErr != nil {
		return nil, f.txErr
	}
	return &reconcile.TransactionResync{Digest: digest, Claims: 1, Applied: 1}, nil
}

func seed(t *testing.T) *memory.MemoryStorage {
	t.Helper()
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	envs := []*domain.Envelope{
		{EnvelopeID: "0xA", Network: domain.NetworkTestnet, Owner: "0xo", CoinType: "0x2::sui::SUI",
			TotalAmount: decimal.NewFromInt(1000), TotalCount: 4, RemainingCount: 3, IsActive: true,
			CreatedAt: base, TxDigest: "D1"},
		{EnvelopeID: "0xB", Network: domain.NetworkTestnet, Owner: "0xo", CoinType: "0x2::sui::SUI",
			TotalAmount: decimal.NewFromInt(10), TotalCount: 1, RemainingCount: 0, IsActive: false,
			CreatedAt: base.Add(time.Hour), TxDigest: "D3"},
		{EnvelopeID: "0xA", Network: domain.NetworkMainnet, Owner: "0xz", CoinType: "0x2::sui::SUI",
			TotalAmount: decimal.NewFromInt(5), TotalCount: 5, RemainingCount: 5, IsActive: true,
			CreatedAt: base, TxDigest: "M1"},
	}
	for _, env := range envs {
		_, err := store.Envelopes().Insert(ctx, env)
		require.NoError(t, err)
	}
	_, err := store.Claims().Insert(ctx, &domain.Claim{
		EnvelopeID: "0xA", Network: domain.NetworkTestnet, Claimer: "0xc",
		Amount: decimal.NewFromInt(250), ClaimedAt: base.Add(time.Minute), TxDigest: "D2",
	})
	require.NoError(t, err)
	return store
}

func newTestServer(t *testing.T, rs *fakeResyncer) http.Handler {
	t.Helper()
	return NewServer(seed(t), map[domain.Network]Resyncer{domain.NetworkTestnet: rs}, domain.NetworkTestnet).Handler()
}

func do(t *testing.T, h http.Handler, method, target string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestListByOwner(t *testing.T) {
	h := newTestServer(t, &fakeResyncer{})

	var envs []domain.Envelope
	code := do(t, h, http.MethodGet, "/api/envelopes?owner=0xO&network=testnet", &envs)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, envs, 2)
	assert.Equal(t, "0xB", envs[0].EnvelopeID, "newest first")

	code = do(t, h, http.MethodGet, "/api/envelopes?address=0xz", &envs)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, envs, 1)
	assert.Equal(t, domain.NetworkMainnet, envs[0].Network)

	var errBody map[string]string
	code = do(t, h, http.MethodGet, "/api/envelopes", &errBody)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, errBody["message"])
}

func TestListActive(t *testing.T) {
	h := newTestServer(t, &fakeResyncer{})

	var envs []domain.Envelope
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/envelopes/active", &envs))
	assert.Len(t, envs, 2)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/envelopes/active?network=testnet", &envs))
	require.Len(t, envs, 1)
	assert.Equal(t, "0xA", envs[0].EnvelopeID)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/envelopes/active?limit=-1", nil))
}

func TestListClaims(t *testing.T) {
	h := newTestServer(t, &fakeResyncer{})

	var claims []domain.ClaimWithEnvelope
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/claims?claimer=0xC", &claims))
	require.Len(t, claims, 1)
	assert.Equal(t, "D2", claims[0].Claim.TxDigest)
	assert.Equal(t, "0xA", claims[0].Envelope.EnvelopeID)
	assert.Equal(t, int64(3), claims[0].Envelope.RemainingCount)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/claims?claimer=0xnobody", &claims))
	assert.Empty(t, claims)
}

func TestGetEnvelope(t *testing.T) {
	h := newTestServer(t, &fakeResyncer{})

	var detail domain.EnvelopeDetail
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/envelopes/0xA", &detail))
	assert.Equal(t, domain.NetworkTestnet, detail.Envelope.Network)
	assert.True(t, detail.Envelope.TotalAmount.Equal(decimal.NewFromInt(1000)))
	require.Len(t, detail.Claims, 1)
	assert.Equal(t, "0xc", detail.Claims[0].Claimer)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/envelopes/0xA?network=mainnet", &detail))
	assert.Equal(t, "0xz", detail.Envelope.Owner)
	assert.Empty(t, detail.Claims)

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/envelopes/0xMISSING", &errBody))
	assert.Equal(t, "Envelope not found", errBody["message"])
}

func TestSyncEndpoints(t *testing.T) {
	rs := &fakeResyncer{}
	h := newTestServer(t, rs)

	var env domain.Envelope
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/envelopes/sync/0xA", &env))
	assert.Equal(t, int64(2), env.RemainingCount)

	var result reconcile.TransactionResync
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/transactions/sync/D2", &result))
	assert.Equal(t, "D2", result.Digest)
	assert.Equal(t, []string{"envelope:0xA", "tx:D2"}, rs.calls)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/envelopes/sync/0xA?network=mainnet", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/envelopes/sync/0xA", nil))
}

func TestSyncErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("get 0xA: %w", sui.ErrObjectNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: D9", reconcile.ErrNoClaimEvent), http.StatusNotFound},
		{sui.ErrWrongObjectType, http.StatusUnprocessableEntity},
		{fmt.Errorf("rpc: connection refused"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			h := newTestServer(t, &fakeResyncer{envErr: tc.err, txErr: tc.err})
			var body map[string]string
			assert.Equal(t, tc.code, do(t, h, http.MethodPost, "/api/envelopes/sync/0xA", &body))
			assert.Contains(t, body["message"], tc.err.Error())
			assert.Equal(t, tc.code, do(t, h, http.MethodPost, "/api/transactions/sync/D9", nil))
		})
	}
}
