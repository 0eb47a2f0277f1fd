package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/pgkit"
	"github.com/syssam/pgkit/dialect"
	"github.com/syssam/pgkit/dialect/sql"
)

// Advisory acquires the advisory lock identified by key on ex.
//
// The lock family follows the scope: transaction scoped locks
// (pg_advisory_xact_lock) end with the transaction and Release issues no
// statement; session scoped locks (pg_advisory_lock) are released by
// Release with pg_advisory_unlock on the same handle. Session locks require
// ex to stay on a single connection, i.e. a *sql.Session or a dialect.Tx;
// a pooled *sql.Driver is rejected with pgkit.ErrInvalidOptions.
//
// With NoWait the try variant is used and a refused lock fails with
// *pgkit.LockUnavailableError. WithTimeout fails with
// *pgkit.LockTimeoutError once the timeout elapsed. Outside a transaction a
// timeout is rejected with pgkit.ErrTimeoutRequiresTx unless SessionTimeout
// is given.
func Advisory(ctx context.Context, ex dialect.ExecQuerier, key Key, opts ...Option) (*Guard, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	inTx := dialect.InTx(ex)
	scope := o.scope
	switch scope {
	case ScopeAuto:
		scope = ScopeSession
		if inTx {
			scope = ScopeTransaction
		}
	case ScopeTransaction:
		if !inTx {
			return nil, pgkit.ErrTxRequired
		}
	}
	if _, pooled := ex.(*sql.Driver); pooled && scope == ScopeSession {
		return nil, fmt.Errorf("%w: session advisory lock needs a pinned connection, use Driver.Session", pgkit.ErrInvalidOptions)
	}
	if o.timeout > 0 && !inTx && !o.sessionTimeout {
		return nil, pgkit.ErrTimeoutRequiresTx
	}
	target := key.String()
	acquire := func() error {
		stmt := "SELECT " + lockFunction(o.nowait, scope == ScopeTransaction, o.shared) + "(" + key.placeholders() + ")"
		if !o.nowait {
			return ex.Exec(ctx, stmt, key.Args(), nil)
		}
		var ok bool
		if err := queryRow(ctx, ex, stmt, key.Args(), &ok); err != nil {
			return err
		}
		if !ok {
			return pgkit.NewLockUnavailableError(target, nil)
		}
		return nil
	}
	if o.timeout > 0 {
		err = withLockTimeout(ctx, ex, o.timeout, inTx, acquire)
	} else {
		err = acquire()
	}
	if err != nil {
		return nil, classify(ctx, err, target, o)
	}
	o.log.DebugContext(ctx, "advisory lock acquired",
		"key", target, "scope", scope.String(), "shared", o.shared, "nowait", o.nowait, "timeout", o.timeout)
	g := &Guard{
		ex:       ex,
		target:   target,
		key:      key,
		advisory: true,
		shared:   o.shared,
		scope:    scope,
		timeout:  o.timeout,
		log:      o.log,
	}
	if scope == ScopeSession {
		g.release = func(ctx context.Context) error {
			var held bool
			stmt := "SELECT " + unlockFunction(o.shared) + "(" + key.placeholders() + ")"
			if err := queryRow(ctx, ex, stmt, key.Args(), &held); err != nil {
				return err
			}
			if !held {
				o.log.WarnContext(ctx, "advisory lock was not held at release", "key", target)
			}
			return nil
		}
	}
	return g, nil
}

// WithAdvisory acquires the advisory lock and runs fn. The guard is released
// on every exit path of fn, including panics.
func WithAdvisory(ctx context.Context, ex dialect.ExecQuerier, key Key, fn func(context.Context) error, opts ...Option) (err error) {
	g, err := Advisory(ctx, ex, key, opts...)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, g.Release(ctx)) }()
	return fn(ctx)
}

// lockFunction returns the name of the advisory lock function, e.g.
// pg_try_advisory_xact_lock_shared.
func lockFunction(nowait, xact, shared bool) string {
	var b strings.Builder
	b.WriteString("pg_")
	if nowait {
		b.WriteString("try_")
	}
	b.WriteString("advisory_")
	if xact {
		b.WriteString("xact_")
	}
	b.WriteString("lock")
	if shared {
		b.WriteString("_shared")
	}
	return b.String()
}

func unlockFunction(shared bool) string {
	if shared {
		return "pg_advisory_unlock_shared"
	}
	return "pg_advisory_unlock"
}
