package lock

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/pgkit/dialect"
	"github.com/syssam/pgkit/dialect/sql"
)

// Manager acquires locks on connections resolved by alias. Every lock gets
// its own pinned session, returned to the pool on release, so the work
// guarded by the lock must run on Guard.Conn.
type Manager struct {
	reg      *sql.Registry
	alias    string
	defaults []Option
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithAlias sets the alias used when no Using option is given.
// By default the registry default alias is used.
func WithAlias(alias string) ManagerOption {
	return func(m *Manager) {
		m.alias = alias
	}
}

// WithDefaults sets options applied before the options of every call.
func WithDefaults(opts ...Option) ManagerOption {
	return func(m *Manager) {
		m.defaults = append(m.defaults, opts...)
	}
}

// NewManager returns a Manager resolving aliases with reg.
func NewManager(reg *sql.Registry, opts ...ManagerOption) *Manager {
	m := &Manager{reg: reg}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) options(opts []Option) ([]Option, *options, error) {
	all := make([]Option, 0, len(m.defaults)+len(opts))
	all = append(all, m.defaults...)
	all = append(all, opts...)
	o, err := buildOptions(all)
	if err != nil {
		return nil, nil, err
	}
	if o.alias == "" {
		o.alias = m.alias
	}
	return all, o, nil
}

// Table pins a session of the selected alias, starts a transaction on it
// and locks the tables inside that transaction. The transaction is exposed
// by Guard.Conn; releasing the guard commits it and returns the session.
func (m *Manager) Table(ctx context.Context, tables []string, opts ...Option) (*Guard, error) {
	all, o, err := m.options(opts)
	if err != nil {
		return nil, err
	}
	sess, tx, err := m.begin(ctx, o.alias)
	if err != nil {
		return nil, err
	}
	g, err := Table(ctx, tx, tables, all...)
	if err != nil {
		return nil, errors.Join(err, tx.Rollback(), sess.Close())
	}
	g.release = func(context.Context) error {
		return errors.Join(tx.Commit(), sess.Close())
	}
	return g, nil
}

// TableFor is like Table for the tables of the given models.
func (m *Manager) TableFor(ctx context.Context, models []TableNamer, opts ...Option) (*Guard, error) {
	tables, err := tablesOf(models)
	if err != nil {
		return nil, err
	}
	return m.Table(ctx, tables, opts...)
}

// WithTable locks the tables in a new transaction and runs fn inside it.
// The transaction is committed when fn succeeds and rolled back when it
// fails or panics; the session is returned to the pool in both cases.
func (m *Manager) WithTable(ctx context.Context, tables []string, fn func(context.Context, dialect.Tx) error, opts ...Option) (err error) {
	all, o, err := m.options(opts)
	if err != nil {
		return err
	}
	sess, tx, err := m.begin(ctx, o.alias)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			err = errors.Join(err, tx.Rollback())
		}
		err = errors.Join(err, sess.Close())
	}()
	if _, err := Table(ctx, tx, tables, all...); err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	committed = true
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lock: commit: %w", err)
	}
	return nil
}

// Advisory pins a session of the selected alias and takes a session scoped
// advisory lock on it. Releasing the guard unlocks and returns the session.
// A timeout changes lock_timeout on the pinned session and restores it
// before the session goes back to the pool.
func (m *Manager) Advisory(ctx context.Context, key Key, opts ...Option) (*Guard, error) {
	all, o, err := m.options(opts)
	if err != nil {
		return nil, err
	}
	sess, err := m.reg.Session(ctx, o.alias)
	if err != nil {
		return nil, err
	}
	g, err := Advisory(ctx, sess, key, append(all, WithScope(ScopeSession), SessionTimeout())...)
	if err != nil {
		return nil, errors.Join(err, sess.Close())
	}
	unlock := g.release
	g.release = func(ctx context.Context) error {
		return errors.Join(unlock(ctx), sess.Close())
	}
	return g, nil
}

// WithAdvisory holds the advisory lock while fn runs on the pinned session.
func (m *Manager) WithAdvisory(ctx context.Context, key Key, fn func(context.Context, dialect.ExecQuerier) error, opts ...Option) (err error) {
	g, err := m.Advisory(ctx, key, opts...)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, g.Release(ctx)) }()
	return fn(ctx, g.Conn())
}

func (m *Manager) begin(ctx context.Context, alias string) (*sql.Session, dialect.Tx, error) {
	sess, err := m.reg.Session(ctx, alias)
	if err != nil {
		return nil, nil, err
	}
	tx, err := sess.Tx(ctx)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("lock: begin: %w", err), sess.Close())
	}
	return sess, tx, nil
}
