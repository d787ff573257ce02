package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/vietddude/envelope-indexer/internal/infra/storage"
)

const sqlStateForeignKeyViolation = "23503"

// sqlState extracts the SQLSTATE code from either driver's error type.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// classify maps a missing-parent violation onto ErrEnvelopeNotFound. Unique
// violations never surface since every insert uses ON CONFLICT DO NOTHING.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if sqlState(err) == sqlStateForeignKeyViolation {
		return storage.ErrEnvelopeNotFound
	}
	return err
}
