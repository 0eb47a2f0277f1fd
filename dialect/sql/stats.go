package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// QueryStats holds statement execution statistics of a Driver, including
// the sessions and transactions it opened.
type QueryStats struct {
	// TotalQueries is the total number of queries executed.
	TotalQueries atomic.Int64
	// TotalExecs is the total number of statements executed with Exec.
	TotalExecs atomic.Int64
	// TotalDuration is the total time spent executing statements.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowQueries is the count of statements exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors is the count of failed statements.
	Errors atomic.Int64
	// LockFailures is the count of statements that failed because a lock
	// was not available (NOWAIT or lock_timeout).
	LockFailures atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
		LockFailures:  s.LockFailures.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
	s.LockFailures.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of query statistics.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
	LockFailures  int64
}

// AvgQueryDuration returns the average statement duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d lock_failures=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors, s.LockFailures,
	)
}

// SlowQueryHook is a function called when a slow statement is detected.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// recorder records the statements of a Driver. It is shared by the Conn
// of the driver and of every session and transaction opened from it.
type recorder struct {
	stats *QueryStats
	log   *slog.Logger // statement log, nil when disabled

	mu            sync.RWMutex
	slowThreshold time.Duration
	slowHook      SlowQueryHook
}

// StatsOption configures statistics collection.
type StatsOption func(*recorder)

// WithSlowThreshold sets the threshold for slow statement detection.
// Default is 100ms. Lock acquisitions that wait show up here as well.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(r *recorder) {
		r.slowThreshold = d
	}
}

// WithSlowQueryHook sets a callback function for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(r *recorder) {
		r.slowHook = hook
	}
}

// WithSlowQueryLog logs slow statements at Warn level to l, or to the
// default logger when l is nil.
func WithSlowQueryLog(l *slog.Logger) StatsOption {
	return WithSlowQueryHook(func(ctx context.Context, query string, args []any, duration time.Duration) {
		if l == nil {
			l = slog.Default()
		}
		l.WarnContext(ctx, "slow query detected", "duration", duration, "query", query, "args", len(args))
	})
}

// WithStatementLog logs every statement at Debug level to l.
func WithStatementLog(l *slog.Logger) StatsOption {
	return func(r *recorder) {
		r.log = l
	}
}

// EnableStats enables statistics collection on the driver, and on the
// sessions and transactions opened from it afterwards. It must be called
// before the driver is shared.
//
//	drv, _ := sql.Open(dialect.PGX, dsn)
//	stats := drv.EnableStats(
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(nil),
//	)
//	...
//	fmt.Println(stats.Stats())
func (d *Driver) EnableStats(opts ...StatsOption) *QueryStats {
	r := &recorder{
		stats:         &QueryStats{},
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	d.rec = r
	return r.stats
}

// QueryStats returns the statistics of the driver, or nil when they are
// not enabled.
func (d *Driver) QueryStats() *QueryStats {
	if d.rec == nil {
		return nil
	}
	return d.rec.stats
}

// SlowThreshold returns the current slow statement threshold.
func (d *Driver) SlowThreshold() time.Duration {
	if d.rec == nil {
		return 0
	}
	d.rec.mu.RLock()
	defer d.rec.mu.RUnlock()
	return d.rec.slowThreshold
}

// SetSlowThreshold updates the slow statement threshold. It has no effect
// when statistics are not enabled.
func (d *Driver) SetSlowThreshold(threshold time.Duration) {
	if d.rec == nil {
		return
	}
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	d.rec.slowThreshold = threshold
}

func (r *recorder) record(ctx context.Context, query string, args any, start time.Time, err error, isQuery bool) {
	duration := time.Since(start)
	if isQuery {
		r.stats.TotalQueries.Add(1)
	} else {
		r.stats.TotalExecs.Add(1)
	}
	r.stats.TotalDuration.Add(int64(duration))
	if err != nil {
		r.stats.Errors.Add(1)
		if IsLockNotAvailable(err) {
			r.stats.LockFailures.Add(1)
		}
	}
	argv, _ := args.([]any)
	if r.log != nil {
		r.log.DebugContext(ctx, "statement executed", "query", query, "args", len(argv), "duration", duration, "error", err)
	}

	r.mu.RLock()
	threshold := r.slowThreshold
	hook := r.slowHook
	r.mu.RUnlock()

	if duration > threshold {
		r.stats.SlowQueries.Add(1)
		if hook != nil {
			hook(ctx, query, argv, duration)
		}
	}
}

// OpenWithStats opens a driver with statistics collection enabled.
func OpenWithStats(driverName, source string, opts ...StatsOption) (*Driver, *QueryStats, error) {
	drv, err := Open(driverName, source)
	if err != nil {
		return nil, nil, err
	}
	return drv, drv.EnableStats(opts...), nil
}
