package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
	"github.com/vietddude/envelope-indexer/internal/infra/storage"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return &DB{DB: sqlx.NewDb(raw, "postgres")}, mock
}

func envelopeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"envelope_id", "network", "owner", "coin_type", "total_amount", "total_count", "mode",
		"remaining_count", "is_active", "requires_verification", "created_at", "tx_digest",
	})
}

func TestEnvelopeRepo_InsertReportsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnvelopeRepo(db)
	env := &domain.Envelope{
		EnvelopeID:     "0xE",
		Network:        domain.NetworkTestnet,
		Owner:          "0xA",
		CoinType:       "0x2::sui::SUI",
		TotalAmount:    decimal.NewFromInt(1000),
		TotalCount:     3,
		RemainingCount: 3,
		IsActive:       true,
		CreatedAt:      time.Unix(1700000000, 0).UTC(),
		TxDigest:       "D1",
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO envelopes")).
		WithArgs("0xE", "testnet", "0xA", "0x2::sui::SUI",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), true, false, sqlmock.AnyArg(), "D1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO envelopes")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.Insert(context.Background(), env)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Insert(context.Background(), env)
	require.NoError(t, err)
	assert.False(t, inserted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnvelopeRepo_Get(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnvelopeRepo(db)
	created := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM envelopes WHERE envelope_id = $1 AND network = $2")).
		WithArgs("0xE", "testnet").
		WillReturnRows(envelopeRows().AddRow(
			"0xE", "testnet", "0xA", "0x2::sui::SUI", "1000", int64(3), int64(1),
			int64(2), true, false, created, "D1",
		))
	mock.ExpectQuery(regexp.QuoteMeta("FROM envelopes WHERE envelope_id = $1 AND network = $2")).
		WithArgs("0xMissing", "testnet").
		WillReturnRows(envelopeRows())

	env, err := repo.Get(context.Background(), domain.NetworkTestnet, "0xE")
	require.NoError(t, err)
	assert.Equal(t, domain.NetworkTestnet, env.Network)
	assert.Equal(t, domain.EnvelopeModeRandom, env.Mode)
	assert.Equal(t, int64(2), env.RemainingCount)
	assert.True(t, env.TotalAmount.Equal(decimal.NewFromInt(1000)))

	_, err = repo.Get(context.Background(), domain.NetworkTestnet, "0xMissing")
	assert.ErrorIs(t, err, storage.ErrEnvelopeNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnvelopeRepo_DecrementIsGuarded(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnvelopeRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("AND remaining_count > 0")).
		WithArgs("0xE", "testnet").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("AND remaining_count > 0")).
		WithArgs("0xE", "testnet").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.DecrementRemaining(context.Background(), domain.NetworkTestnet, "0xE")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DecrementRemaining(context.Background(), domain.NetworkTestnet, "0xE")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnvelopeRepo_UpdateStateIsBoundedByTotal(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnvelopeRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("SET remaining_count = GREATEST(LEAST($3, total_count), 0), is_active = $4")).
		WithArgs("0xE", "testnet", int64(9), false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateState(context.Background(), domain.NetworkTestnet, "0xE", 9, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnvelopeRepo_ListActiveAppliesLimit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnvelopeRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $2")).
		WithArgs("mainnet", 10).
		WillReturnRows(envelopeRows())

	envs, err := repo.ListActive(context.Background(), domain.NetworkMainnet, 10)
	require.NoError(t, err)
	assert.Empty(t, envs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepo_Insert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClaimRepo(db)
	claim := &domain.Claim{
		EnvelopeID: "0xE",
		Network:    domain.NetworkTestnet,
		Claimer:    "0xB",
		Amount:     decimal.NewFromInt(400),
		ClaimedAt:  time.Unix(1700000100, 0).UTC(),
		TxDigest:   "D2",
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO claims")).
		WithArgs("0xE", "testnet", "0xB", sqlmock.AnyArg(), sqlmock.AnyArg(), "D2").
		WillReturnRows(sqlmock.NewRows([]string{"claim_id"}).AddRow(int64(7)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO claims")).
		WillReturnRows(sqlmock.NewRows([]string{"claim_id"}))

	inserted, err := repo.Insert(context.Background(), claim)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(7), claim.ClaimID)

	dup := *claim
	inserted, err = repo.Insert(context.Background(), &dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepo_InsertMissingParent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClaimRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO claims")).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO claims")).
		WillReturnError(&pq.Error{Code: "23503"})

	claim := &domain.Claim{EnvelopeID: "0xE", Network: domain.NetworkTestnet, TxDigest: "D2"}

	_, err := repo.Insert(context.Background(), claim)
	assert.ErrorIs(t, err, storage.ErrEnvelopeNotFound)

	_, err = repo.Insert(context.Background(), claim)
	assert.ErrorIs(t, err, storage.ErrEnvelopeNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(&pgconn.PgError{Code: "23503"}), storage.ErrEnvelopeNotFound)
	assert.ErrorIs(t, classify(&pq.Error{Code: "23503"}), storage.ErrEnvelopeNotFound)
	other := &pgconn.PgError{Code: "23505"}
	assert.Equal(t, error(other), classify(other))
}
