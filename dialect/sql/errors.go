package sql

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE codes reported when a lock cannot be granted.
const (
	// CodeLockNotAvailable is raised by NOWAIT and by an expired lock_timeout.
	CodeLockNotAvailable = "55P03"
	// CodeQueryCanceled is raised by an expired statement_timeout.
	CodeQueryCanceled = "57014"
	// CodeDeadlockDetected is raised when the server breaks a deadlock.
	CodeDeadlockDetected = "40P01"
)

// sqlStateError is an interface for errors that provide SQLSTATE codes.
type sqlStateError interface {
	SQLState() string
}

// SQLState extracts the SQLSTATE code from a driver error chain. It
// understands lib/pq, pgx and any error exposing SQLState().
func SQLState(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	var se sqlStateError
	if errors.As(err, &se) {
		return se.SQLState(), true
	}
	return "", false
}

// IsLockNotAvailable reports if the server refused a lock immediately
// (NOWAIT) or after lock_timeout expired.
func IsLockNotAvailable(err error) bool {
	code, ok := SQLState(err)
	return ok && code == CodeLockNotAvailable
}

// IsQueryCanceled reports if the statement was canceled, e.g. by statement_timeout.
func IsQueryCanceled(err error) bool {
	code, ok := SQLState(err)
	return ok && code == CodeQueryCanceled
}

// IsDeadlock reports if the server aborted the statement to break a deadlock.
func IsDeadlock(err error) bool {
	code, ok := SQLState(err)
	return ok && code == CodeDeadlockDetected
}
