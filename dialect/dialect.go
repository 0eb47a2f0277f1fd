package dialect

import (
	"context"
	"database/sql/driver"
)

// Dialect names for external usage.
const (
	Postgres = "postgres"
	PGX      = "pgx"
)

// ExecQuerier wraps the 2 database operations.
type ExecQuerier interface {
	// Exec executes a query that does not return records. For example, in SQL, INSERT or UPDATE.
	// It scans the result into the pointer v. For SQL drivers, it is dialect/sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for pgkit clients.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	// The provided context is used until the transaction is committed or rolled back.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps the Exec and Query operations in transaction.
type Tx interface {
	ExecQuerier
	driver.Tx
}

// InTx reports whether the given ExecQuerier runs inside a transaction.
func InTx(ex ExecQuerier) bool {
	_, ok := ex.(Tx)
	return ok
}

// IsPostgres reports whether the dialect name refers to a PostgreSQL driver.
func IsPostgres(name string) bool {
	return name == Postgres || name == PGX
}
