// Package dialect defines the driver abstraction used by pgkit.
//
// pgkit only talks to PostgreSQL, but it can do so through two
// database/sql drivers:
//
//	dialect.Postgres = "postgres" // github.com/lib/pq
//	dialect.PGX      = "pgx"      // github.com/jackc/pgx/v5/stdlib
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// # Transaction Interface
//
// The Tx interface adds Commit and Rollback to ExecQuerier:
//
//	type Tx interface {
//	    ExecQuerier
//	    Commit() error
//	    Rollback() error
//	}
//
// Lock helpers use InTx to decide between transaction and session scoped
// statements, so wrappers around a Tx must keep implementing Tx.
//
// # Sub-packages
//
//   - dialect/sql: database/sql backed driver, pinned sessions and the alias registry
package dialect
