package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/syssam/pgkit"
	"github.com/syssam/pgkit/dialect"
)

// Guard represents an acquired lock. Release must be called on every exit
// path, typically with defer right after a successful acquisition:
//
//	g, err := lock.Advisory(ctx, sess, key)
//	if err != nil {
//	    return err
//	}
//	defer g.Release(ctx)
//
// A Guard must not outlive the connection or transaction it was acquired
// on, and it is not safe for concurrent use.
type Guard struct {
	ex       dialect.ExecQuerier
	target   string
	tables   []string
	key      Key
	advisory bool
	mode     Mode
	shared   bool
	scope    Scope
	timeout  time.Duration
	release  func(context.Context) error
	released bool
	log      *slog.Logger
}

// Release releases the lock. Only the first call has an effect; later
// calls return nil. Release is not canceled with ctx so that locks are
// returned even when the surrounding work was aborted.
//
// Table locks and transaction scoped advisory locks have no release
// statement: the server drops them when the transaction ends.
func (g *Guard) Release(ctx context.Context) error {
	if g == nil || g.released {
		return nil
	}
	g.released = true
	if g.release == nil {
		return nil
	}
	if err := g.release(context.WithoutCancel(ctx)); err != nil {
		g.log.WarnContext(ctx, "lock release failed", "target", g.target, "error", err)
		return &pgkit.ReleaseError{Target: g.target, Err: err}
	}
	g.log.DebugContext(ctx, "lock released", "target", g.target)
	return nil
}

// Released reports whether Release was called.
func (g *Guard) Released() bool { return g.released }

// Conn returns the handle the lock was acquired on. For guards returned by
// Manager it is the pinned session or transaction to run the guarded work on.
func (g *Guard) Conn() dialect.ExecQuerier { return g.ex }

// Target returns a description of the locked tables or advisory key.
func (g *Guard) Target() string { return g.target }

// Tables returns the locked tables of a table lock.
func (g *Guard) Tables() []string { return g.tables }

// Key returns the advisory key. ok is false for table locks.
func (g *Guard) Key() (k Key, ok bool) { return g.key, g.advisory }

// Mode returns the table lock mode.
func (g *Guard) Mode() Mode { return g.mode }

// Shared reports whether the advisory lock is shared.
func (g *Guard) Shared() bool { return g.shared }

// Scope returns the effective scope, ScopeSession or ScopeTransaction.
func (g *Guard) Scope() Scope { return g.scope }

// Timeout returns the timeout the lock was acquired with, and whether
// one was in effect.
func (g *Guard) Timeout() (time.Duration, bool) { return g.timeout, g.timeout > 0 }
