package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/syssam/pgkit"
	"github.com/syssam/pgkit/dialect"
	"github.com/syssam/pgkit/dialect/sql"
)

// Context executes queries on a single connection. Contexts returned by
// Open own a pinned session and release it on Close; contexts returned by
// Bind run on a connection owned by the caller.
//
// Close closes every Results still open and must be called on every exit
// path, typically with defer.
type Context struct {
	ex      dialect.ExecQuerier
	release func() error
	log     *slog.Logger

	mu     sync.Mutex
	open   map[io.Closer]struct{}
	closed bool
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger of the query context.
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) {
		c.log = l
	}
}

// Open pins a session of the connection registered under alias (the
// registry default when empty) and returns a Context running on it.
func Open(ctx context.Context, reg *sql.Registry, alias string, opts ...Option) (*Context, error) {
	sess, err := reg.Session(ctx, alias)
	if err != nil {
		return nil, fmt.Errorf("query: open context: %w", err)
	}
	c := Bind(sess, opts...)
	c.release = sess.Close
	return c, nil
}

// Bind returns a Context running on ex, for example an open transaction.
// Closing the Context does not close ex.
func Bind(ex dialect.ExecQuerier, opts ...Option) *Context {
	c := &Context{ex: ex, open: make(map[io.Closer]struct{})}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Run opens a Context, passes it to fn and closes it when fn returns or
// panics.
func Run(ctx context.Context, reg *sql.Registry, alias string, fn func(*Context) error, opts ...Option) (err error) {
	c, err := Open(ctx, reg, alias, opts...)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, c.Close()) }()
	return fn(c)
}

// Conn returns the connection the Context runs on.
func (c *Context) Conn() dialect.ExecQuerier { return c.ex }

// Close closes the open results and releases the session. Only the first
// call has an effect.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	open := c.open
	c.open = nil
	c.mu.Unlock()

	var errs []error
	for r := range open {
		errs = append(errs, r.Close())
	}
	if c.release != nil {
		errs = append(errs, c.release())
	}
	return errors.Join(errs...)
}

func (c *Context) track(r io.Closer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return pgkit.ErrClosed
	}
	c.open[r] = struct{}{}
	return nil
}

func (c *Context) untrack(r io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.open, r)
}

// Execute sends q to the server and returns its rows, materialized lazily
// with the materializer of q. Driver errors are returned as is.
func Execute[T any](ctx context.Context, c *Context, q Query[T]) (*Results[T], error) {
	if q.m == nil {
		return nil, fmt.Errorf("%w: query has no materializer", pgkit.ErrInvalidOptions)
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, pgkit.ErrClosed
	}
	rows := &sql.Rows{}
	if err := c.ex.Query(ctx, q.text, q.Args(), rows); err != nil {
		c.log.DebugContext(ctx, "query failed", "query", q.text, "error", err)
		return nil, err
	}
	r, err := newResults(rows, q.m)
	if err != nil {
		return nil, err
	}
	if err := c.track(r); err != nil {
		return nil, errors.Join(err, r.Close())
	}
	r.onClose = func(r *Results[T]) { c.untrack(r) }
	c.log.DebugContext(ctx, "query executed", "query", q.text, "args", len(q.args))
	return r, nil
}

// Exec runs a statement that returns no rows, such as an UPDATE.
func (c *Context) Exec(ctx context.Context, text string, args ...any) (sql.Result, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, pgkit.ErrClosed
	}
	var res sql.Result
	if err := c.ex.Exec(ctx, text, args, &res); err != nil {
		return nil, err
	}
	return res, nil
}
