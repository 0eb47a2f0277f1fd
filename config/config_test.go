package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/pgkit"
	"github.com/syssam/pgkit/dialect"
	"github.com/syssam/pgkit/dialect/sql"
	"github.com/syssam/pgkit/lock"
)

const sample = `
default_alias: primary
databases:
  primary:
    dsn: ${PGKIT_TEST_DSN}
    max_open_conns: 4
    max_idle_conns: 2
    conn_max_lifetime: 5m
    slow_query_threshold: 250ms
  reports:
    driver: postgres
    dsn: postgres://reports@localhost:5432/reports?sslmode=disable
lock:
  timeout: 2s
  scope: transaction
  mode: share_row_exclusive
log:
  level: debug
  format: json
`

func TestParse(t *testing.T) {
	t.Setenv("PGKIT_TEST_DSN", "postgres://app@localhost:5432/app?sslmode=disable")
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "primary", c.DefaultAlias)
	require.Len(t, c.Databases, 2)
	primary := c.Databases["primary"]
	assert.Equal(t, dialect.PGX, primary.Driver)
	assert.Equal(t, "postgres://app@localhost:5432/app?sslmode=disable", primary.DSN)
	assert.Equal(t, 4, primary.MaxOpenConns)
	assert.Equal(t, 2, primary.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, primary.ConnMaxLifetime)
	assert.Equal(t, 250*time.Millisecond, primary.SlowQueryThreshold)
	assert.Equal(t, dialect.Postgres, c.Databases["reports"].Driver)

	require.NotNil(t, c.Lock.Timeout)
	assert.Equal(t, 2*time.Second, *c.Lock.Timeout)
	assert.Len(t, c.LockOptions(), 3)
}

func TestParseDefaults(t *testing.T) {
	c, err := Parse([]byte("databases:\n  default:\n    dsn: postgres://localhost/app\n"))
	require.NoError(t, err)
	assert.Equal(t, sql.DefaultAlias, c.DefaultAlias)
	assert.Equal(t, dialect.PGX, c.Databases["default"].Driver)
	assert.Empty(t, c.LockOptions())
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"no_default", "databases:\n  primary:\n    dsn: x\n"},
		{"driver", "databases:\n  default:\n    driver: mysql\n    dsn: x\n"},
		{"dsn", "databases:\n  default:\n    dsn: ${PGKIT_TEST_UNSET}\n"},
		{"pool", "databases:\n  default:\n    dsn: x\n    max_open_conns: -1\n"},
		{"duration", "databases:\n  default:\n    dsn: x\n    conn_max_lifetime: -1s\n"},
		{"scope", "databases:\n  default:\n    dsn: x\nlock:\n  scope: global\n"},
		{"mode", "databases:\n  default:\n    dsn: x\nlock:\n  mode: total\n"},
		{"nowait_timeout", "databases:\n  default:\n    dsn: x\nlock:\n  nowait: true\n  timeout: 1s\n"},
		{"negative_timeout", "databases:\n  default:\n    dsn: x\nlock:\n  timeout: -1s\n"},
		{"level", "databases:\n  default:\n    dsn: x\nlog:\n  level: loud\n"},
		{"format", "databases:\n  default:\n    dsn: x\nlog:\n  format: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, pgkit.ErrInvalidOptions), err)
		})
	}

	t.Run("unknown_field", func(t *testing.T) {
		_, err := Parse([]byte("databases:\n  default:\n    dsn: x\n    password: secret\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config: parse")
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pgkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("databases:\n  default:\n    dsn: postgres://localhost/app\nlock:\n  timeout: 0s\n"), 0o600))
	c, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, c.Lock.Timeout)
	assert.Zero(t, *c.Lock.Timeout)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	c := &Config{Log: Log{Level: "debug", Format: "json"}}
	c.Logger(&buf).Debug("lock acquired", "target", "advisory(1)")
	assert.Contains(t, buf.String(), `"msg":"lock acquired"`)

	buf.Reset()
	c = &Config{Log: Log{Level: "warn"}}
	l := c.Logger(&buf)
	l.Info("hidden")
	l.Warn("lock release failed")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=\"lock release failed\"")
}

func TestOpenRegistry(t *testing.T) {
	t.Setenv("PGKIT_TEST_DSN", "postgres://app@localhost:5432/app?sslmode=disable")
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	reg, err := c.OpenRegistry(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	assert.Equal(t, "primary", reg.DefaultAlias())
	assert.Equal(t, []string{"primary", "reports"}, reg.Aliases())

	primary, err := reg.Driver("")
	require.NoError(t, err)
	assert.Equal(t, dialect.PGX, primary.Dialect())
	assert.Equal(t, 4, primary.DB().Stats().MaxOpenConnections)
	require.NotNil(t, primary.QueryStats())
	assert.Equal(t, 250*time.Millisecond, primary.SlowThreshold())

	reports, err := reg.Driver("reports")
	require.NoError(t, err)
	assert.Equal(t, dialect.Postgres, reports.Dialect())
	assert.Nil(t, reports.QueryStats())
}

func TestNewManager(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	reg := sql.NewRegistry(sql.WithDefaultAlias("primary"))
	require.NoError(t, reg.Register("primary", sql.OpenDB(dialect.Postgres, db)))

	c, err := Parse([]byte("default_alias: primary\ndatabases:\n  primary:\n    dsn: x\nlock:\n  nowait: true\n  mode: exclusive\n"))
	require.NoError(t, err)
	m := c.NewManager(reg, nil)

	mock.ExpectBegin()
	mock.ExpectExec(`LOCK TABLE "jobs" IN EXCLUSIVE MODE NOWAIT`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ctx := context.Background()
	g, err := m.Table(ctx, []string{"jobs"})
	require.NoError(t, err)
	assert.Equal(t, lock.Exclusive, g.Mode())
	require.NoError(t, g.Release(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewManagerTimeout(t *testing.T) {
	const (
		showLockTimeout = "SELECT current_setting('lock_timeout')"
		setLockTimeout  = "SELECT set_config('lock_timeout', $1, $2)"
	)
	newManager := func(t *testing.T, doc string) (*lock.Manager, sqlmock.Sqlmock) {
		t.Helper()
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		reg := sql.NewRegistry()
		require.NoError(t, reg.Register(sql.DefaultAlias, sql.OpenDB(dialect.Postgres, db)))
		c, err := Parse([]byte("databases:\n  default:\n    dsn: x\n" + doc))
		require.NoError(t, err)
		return c.NewManager(reg, nil), mock
	}
	ctx := context.Background()

	t.Run("advisory_with_configured_timeout", func(t *testing.T) {
		m, mock := newManager(t, "lock:\n  timeout: 2s\n")
		mock.ExpectQuery(showLockTimeout).WillReturnRows(sqlmock.NewRows([]string{"current_setting"}).AddRow("0"))
		mock.ExpectQuery(setLockTimeout).WithArgs("2000ms", false).WillReturnRows(sqlmock.NewRows([]string{"set_config"}).AddRow("2s"))
		mock.ExpectExec("SELECT pg_advisory_lock($1)").WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(setLockTimeout).WithArgs("0", false).WillReturnRows(sqlmock.NewRows([]string{"set_config"}).AddRow("0"))
		mock.ExpectQuery("SELECT pg_advisory_unlock($1)").WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(true))

		g, err := m.Advisory(ctx, lock.SingleKey(1))
		require.NoError(t, err)
		require.NoError(t, g.Release(ctx))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("call_timeout_overrides_configured_nowait", func(t *testing.T) {
		m, mock := newManager(t, "lock:\n  nowait: true\n")
		mock.ExpectBegin()
		mock.ExpectQuery(showLockTimeout).WillReturnRows(sqlmock.NewRows([]string{"current_setting"}).AddRow("0"))
		mock.ExpectQuery(setLockTimeout).WithArgs("5000ms", true).WillReturnRows(sqlmock.NewRows([]string{"set_config"}).AddRow("5s"))
		mock.ExpectExec(`LOCK TABLE "t1"`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(setLockTimeout).WithArgs("0", true).WillReturnRows(sqlmock.NewRows([]string{"set_config"}).AddRow("0"))
		mock.ExpectCommit()

		g, err := m.Table(ctx, []string{"t1"}, lock.WithTimeout(5*time.Second))
		require.NoError(t, err)
		require.NoError(t, g.Release(ctx))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
