// Package sql is the PostgreSQL driver layer of pgkit.
//
// A Driver wraps a database/sql pool opened with lib/pq ("postgres") or the
// pgx stdlib adapter ("pgx"):
//
//	drv, err := sql.Open(dialect.PGX, "postgres://localhost/app")
//
// Session level state in PostgreSQL, such as session advisory locks and SET
// parameters, belongs to a single connection. Driver.Session pins one pooled
// connection so that a lock and its release run on the same backend:
//
//	sess, err := drv.Session(ctx)
//	defer sess.Close()
//
// A Registry maps connection aliases to drivers and carries an explicit
// default alias:
//
//	reg := sql.NewRegistry()
//	reg.Register(sql.DefaultAlias, drv)
//	sess, err := reg.Session(ctx, "") // default alias
//
// # Errors
//
// SQLState, IsLockNotAvailable and IsQueryCanceled classify errors of both
// drivers by SQLSTATE code.
//
// # Statistics
//
// EnableStats counts statements, errors and lock failures, and reports slow
// statements to a hook or a slog logger:
//
//	stats := drv.EnableStats(sql.WithSlowQueryLog(nil))
//	fmt.Println(stats.Stats())
package sql
