package errors

import (
	stderrs "errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgErrUniqueViolation = "23505"

// IsDuplicateKey reports whether err is a Postgres unique constraint violation.
func IsDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return stderrs.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}

// FromPostgres wraps a pgx error with a mapped code. A nil err stays nil.
func FromPostgres(err error, msg string) error {
	if err == nil {
		return nil
	}
	if IsDuplicateKey(err) {
		return Wrap(err, ErrorCodeDuplicateKey, msg)
	}
	return Wrap(err, ErrorCodeDB, msg)
}
