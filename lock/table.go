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

// TableNamer is implemented by models that are stored in a table.
type TableNamer interface {
	TableName() string
}

// TableName is a TableNamer for a literal, optionally schema qualified, name.
type TableName string

// TableName implements TableNamer.
func (t TableName) TableName() string { return string(t) }

// Table locks the given tables with a single LOCK TABLE statement.
//
// Table locks last until the end of the transaction. ex should be a
// dialect.Tx: outside an explicit transaction the statement runs in an
// implicit single statement transaction, which PostgreSQL rejects. The
// returned guard has nothing to release; calling Release is still
// recommended so that the call site does not depend on the lock kind.
//
// NoWait makes the call fail with *pgkit.LockUnavailableError instead of
// blocking. WithTimeout makes it fail with *pgkit.LockTimeoutError once the
// timeout elapsed; it requires ex to be a transaction.
func Table(ctx context.Context, ex dialect.ExecQuerier, tables []string, opts ...Option) (*Guard, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	stmt, err := tableStatement(tables, o)
	if err != nil {
		return nil, err
	}
	inTx := dialect.InTx(ex)
	if o.timeout > 0 && !inTx {
		return nil, pgkit.ErrTimeoutRequiresTx
	}
	target := strings.Join(tables, ", ")
	exec := func() error {
		return ex.Exec(ctx, stmt, []any{}, nil)
	}
	if o.timeout > 0 {
		err = withLockTimeout(ctx, ex, o.timeout, true, exec)
	} else {
		err = exec()
	}
	if err != nil {
		return nil, classify(ctx, err, target, o)
	}
	o.log.DebugContext(ctx, "table lock acquired",
		"tables", tables, "mode", o.mode.String(), "nowait", o.nowait, "timeout", o.timeout)
	return &Guard{
		ex:      ex,
		target:  target,
		tables:  tables,
		mode:    o.mode,
		scope:   ScopeTransaction,
		timeout: o.timeout,
		log:     o.log,
	}, nil
}

// TableFor locks the tables of the given models. See Table.
func TableFor(ctx context.Context, ex dialect.ExecQuerier, models []TableNamer, opts ...Option) (*Guard, error) {
	tables, err := tablesOf(models)
	if err != nil {
		return nil, err
	}
	return Table(ctx, ex, tables, opts...)
}

// WithTable locks the tables and runs fn. The guard is released on every
// exit path of fn, including panics.
func WithTable(ctx context.Context, ex dialect.ExecQuerier, tables []string, fn func(context.Context) error, opts ...Option) (err error) {
	g, err := Table(ctx, ex, tables, opts...)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, g.Release(ctx)) }()
	return fn(ctx)
}

func tablesOf(models []TableNamer) ([]string, error) {
	tables := make([]string, len(models))
	for i, m := range models {
		if m == nil {
			return nil, fmt.Errorf("%w: nil model at position %d", pgkit.ErrInvalidOptions, i)
		}
		tables[i] = m.TableName()
	}
	return tables, nil
}

// tableStatement builds the LOCK TABLE statement.
func tableStatement(tables []string, o *options) (string, error) {
	if len(tables) == 0 {
		return "", fmt.Errorf("%w: no table to lock", pgkit.ErrInvalidOptions)
	}
	quoted := make([]string, len(tables))
	for i, t := range tables {
		q, err := quoteTable(t)
		if err != nil {
			return "", err
		}
		quoted[i] = q
	}
	var b strings.Builder
	b.WriteString("LOCK TABLE ")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(o.mode.clause())
	if o.nowait {
		b.WriteString(" NOWAIT")
	}
	return b.String(), nil
}

func quoteTable(name string) (string, error) {
	q, err := sql.QuoteIdentifier(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", pgkit.ErrInvalidOptions, err)
	}
	return q, nil
}
