package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/syssam/pgkit"
	"github.com/syssam/pgkit/dialect"
	"github.com/syssam/pgkit/dialect/sql"
)

// queryRow runs a query returning a single row and scans it into dest.
func queryRow(ctx context.Context, ex dialect.ExecQuerier, query string, args []any, dest ...any) error {
	rows := &sql.Rows{}
	if err := ex.Query(ctx, query, args, rows); err != nil {
		return err
	}
	err := scanOne(rows, query, dest...)
	return errors.Join(err, rows.Close())
}

func scanOne(rows *sql.Rows, query string, dest ...any) error {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return fmt.Errorf("lock: %q returned no rows", query)
	}
	return rows.Scan(dest...)
}

// formatLockTimeout formats d for the lock_timeout setting. Sub-millisecond
// remainders round up since 0 disables the timeout.
func formatLockTimeout(d time.Duration) string {
	ms := d.Milliseconds()
	if d%time.Millisecond != 0 {
		ms++
	}
	return strconv.FormatInt(ms, 10) + "ms"
}

const (
	showLockTimeout = "SELECT current_setting('lock_timeout')"
	setLockTimeout  = "SELECT set_config('lock_timeout', $1, $2)"
)

// withLockTimeout runs acquire with lock_timeout set to d and restores the
// previous value afterwards. With local set, the setting is transaction local.
func withLockTimeout(ctx context.Context, ex dialect.ExecQuerier, d time.Duration, local bool, acquire func() error) error {
	var prev, applied string
	if err := queryRow(ctx, ex, showLockTimeout, []any{}, &prev); err != nil {
		return fmt.Errorf("lock: read lock_timeout: %w", err)
	}
	if err := queryRow(ctx, ex, setLockTimeout, []any{formatLockTimeout(d), local}, &applied); err != nil {
		return fmt.Errorf("lock: set lock_timeout: %w", err)
	}
	err := acquire()
	if err != nil && local {
		// The failed statement aborted the transaction, which discards
		// the local setting as well.
		return err
	}
	if rerr := queryRow(context.WithoutCancel(ctx), ex, setLockTimeout, []any{prev, local}, &applied); rerr != nil {
		return errors.Join(err, fmt.Errorf("lock: restore lock_timeout: %w", rerr))
	}
	return err
}

// classify maps lock related server errors to the pgkit lock errors.
func classify(ctx context.Context, err error, target string, o *options) error {
	var unavailable *pgkit.LockUnavailableError
	if errors.As(err, &unavailable) {
		return err
	}
	if ctx.Err() == nil && (sql.IsLockNotAvailable(err) || sql.IsQueryCanceled(err)) {
		switch {
		case o.nowait:
			return pgkit.NewLockUnavailableError(target, err)
		case o.timeout > 0:
			return pgkit.NewLockTimeoutError(target, o.timeout, err)
		}
	}
	return fmt.Errorf("lock: acquire %s: %w", target, err)
}
