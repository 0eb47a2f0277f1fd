// Package pgkit is a set of PostgreSQL helpers for database/sql based applications.
//
// The module is split in small packages that share the error types defined
// here:
//
//   - lock: table level locks and advisory locks with scoped release
//   - query: raw SQL queries materialized into tuples, ordered maps or structs
//   - search: full-text search filters built on tsvector/tsquery
//   - config: YAML configuration of connection aliases
//
// # Errors
//
// Lock failures are reported as *LockUnavailableError (NOWAIT) or
// *LockTimeoutError (timeout). Both wrap the driver error and match the
// sentinel values:
//
//	if errors.Is(err, pgkit.ErrLockUnavailable) { ... }
//
// Errors that are not lock related are returned as reported by the driver,
// wrapped with %w, and can be inspected with errors.As.
//
// # Concurrency
//
// Nothing in this module coordinates goroutines. Mutual exclusion comes from
// the PostgreSQL server, and a connection, session or transaction handle must
// not be used from more than one goroutine at a time.
package pgkit
