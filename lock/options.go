package lock

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/syssam/pgkit"
)

// Scope selects which advisory lock family is used.
type Scope int

const (
	// ScopeAuto uses transaction level locks inside a transaction and
	// session level locks otherwise.
	ScopeAuto Scope = iota
	// ScopeSession uses pg_advisory_lock. The lock is held until it is
	// released explicitly or the session ends, even across transactions.
	ScopeSession
	// ScopeTransaction uses pg_advisory_xact_lock. The lock is held until
	// the transaction ends and no unlock statement is issued.
	ScopeTransaction
)

// String returns the scope name.
func (s Scope) String() string {
	switch s {
	case ScopeAuto:
		return "auto"
	case ScopeSession:
		return "session"
	case ScopeTransaction:
		return "transaction"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// ParseScope parses a scope name as returned by Scope.String.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "", "auto":
		return ScopeAuto, nil
	case "session":
		return ScopeSession, nil
	case "transaction":
		return ScopeTransaction, nil
	}
	return ScopeAuto, fmt.Errorf("%w: unknown lock scope %q", pgkit.ErrInvalidOptions, s)
}

// options holds the acquisition options shared by table and advisory locks.
type options struct {
	mode           Mode
	nowait         bool
	timeout        time.Duration
	timeoutSet     bool
	shared         bool
	scope          Scope
	sessionTimeout bool
	alias          string
	log            *slog.Logger
}

// Option configures a lock acquisition.
type Option func(*options)

// WithMode sets the table lock mode. Ignored by advisory locks.
func WithMode(m Mode) Option {
	return func(o *options) {
		o.mode = m
	}
}

// NoWait fails with pgkit.ErrLockUnavailable instead of waiting for the lock.
// It replaces an earlier WithTimeout.
func NoWait() Option {
	return func(o *options) {
		o.nowait = true
		o.timeout, o.timeoutSet = 0, false
	}
}

// WithTimeout bounds the wait for the lock using the lock_timeout setting.
// A zero timeout is the same as NoWait. Timeouts apply inside a transaction;
// see SessionTimeout for advisory locks outside of one. It replaces an
// earlier NoWait.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
		o.timeoutSet = true
		o.nowait = false
	}
}

// Shared requests a shared advisory lock instead of an exclusive one.
// Ignored by table locks, which use WithMode.
func Shared() Option {
	return func(o *options) {
		o.shared = true
	}
}

// WithScope selects the advisory lock scope. Ignored by table locks, which
// always end with the transaction.
func WithScope(s Scope) Option {
	return func(o *options) {
		o.scope = s
	}
}

// SessionTimeout allows WithTimeout on advisory locks taken outside a
// transaction. lock_timeout is then changed at session level for the
// acquisition statement and restored right after it.
func SessionTimeout() Option {
	return func(o *options) {
		o.sessionTimeout = true
	}
}

// Using selects the connection alias. Only used by Manager.
func Using(alias string) Option {
	return func(o *options) {
		o.alias = alias
	}
}

// WithLogger sets the logger used for acquisition and release events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

func buildOptions(opts []Option) (*options, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if !o.mode.Valid() {
		return nil, fmt.Errorf("%w: unknown lock mode %q", pgkit.ErrInvalidOptions, string(o.mode))
	}
	if o.scope < ScopeAuto || o.scope > ScopeTransaction {
		return nil, fmt.Errorf("%w: unknown lock scope %s", pgkit.ErrInvalidOptions, o.scope)
	}
	switch {
	case o.timeout < 0:
		return nil, fmt.Errorf("%w: lock timeout must not be negative", pgkit.ErrInvalidOptions)
	case o.timeoutSet && o.timeout == 0:
		o.nowait = true
	}
	return o, nil
}
