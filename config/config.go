// Package config loads the pgkit configuration of an application: the
// connection aliases, the default alias, lock defaults and logging.
//
//	default_alias: primary
//	databases:
//	  primary:
//	    driver: pgx
//	    dsn: ${DATABASE_URL}
//	    max_open_conns: 10
//	    slow_query_threshold: 250ms
//	  reports:
//	    dsn: postgres://reports@localhost/reports
//	lock:
//	  timeout: 2s
//	  scope: auto
//	log:
//	  level: debug
//	  format: json
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/pgkit"
	"github.com/syssam/pgkit/dialect"
	"github.com/syssam/pgkit/dialect/sql"
	"github.com/syssam/pgkit/lock"
)

type (
	// Config is the root of the configuration file.
	Config struct {
		DefaultAlias string              `yaml:"default_alias"`
		Databases    map[string]Database `yaml:"databases"`
		Lock         Lock                `yaml:"lock"`
		Log          Log                 `yaml:"log"`
	}

	// Database configures one connection alias.
	Database struct {
		// Driver is "pgx" (default) or "postgres" (lib/pq).
		Driver          string        `yaml:"driver"`
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		// SlowQueryThreshold enables statement statistics and logs the
		// statements running longer than the threshold.
		SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`
	}

	// Lock holds the default lock options of the lock.Manager.
	Lock struct {
		// Timeout is the lock_timeout used for acquisitions. Zero means
		// nowait, unset means wait forever.
		Timeout *time.Duration `yaml:"timeout"`
		NoWait  bool           `yaml:"nowait"`
		Scope   string         `yaml:"scope"`
		Mode    string         `yaml:"mode"`
	}

	// Log configures the slog logger.
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}
)

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML configuration. Environment variables
// in DSNs, written as $VAR or ${VAR}, are expanded.
func Parse(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	for alias, db := range c.Databases {
		db.DSN = os.ExpandEnv(db.DSN)
		if db.Driver == "" {
			db.Driver = dialect.PGX
		}
		c.Databases[alias] = db
	}
	if c.DefaultAlias == "" {
		c.DefaultAlias = sql.DefaultAlias
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports the first invalid setting of the configuration.
func (c *Config) Validate() error {
	if len(c.Databases) == 0 {
		return invalid("no databases configured")
	}
	if _, ok := c.Databases[c.DefaultAlias]; !ok {
		return invalid("default alias %q is not configured", c.DefaultAlias)
	}
	for _, alias := range c.aliases() {
		db := c.Databases[alias]
		switch {
		case !dialect.IsPostgres(db.Driver):
			return invalid("database %q: unsupported driver %q", alias, db.Driver)
		case db.DSN == "":
			return invalid("database %q: empty dsn", alias)
		case db.MaxOpenConns < 0 || db.MaxIdleConns < 0:
			return invalid("database %q: negative pool size", alias)
		case db.ConnMaxLifetime < 0 || db.SlowQueryThreshold < 0:
			return invalid("database %q: negative duration", alias)
		}
	}
	if _, err := c.lockOptions(); err != nil {
		return err
	}
	if _, err := c.level(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return invalid("unknown log format %q", c.Log.Format)
	}
	return nil
}

// OpenRegistry opens a driver for every configured alias and registers it.
// The registry is closed again if any driver fails to open. Slow statements
// are logged to logger, or to the default logger when it is nil.
func (c *Config) OpenRegistry(logger *slog.Logger) (*sql.Registry, error) {
	reg := sql.NewRegistry(sql.WithDefaultAlias(c.DefaultAlias))
	for _, alias := range c.aliases() {
		db := c.Databases[alias]
		drv, err := sql.Open(db.Driver, db.DSN)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("config: open %q: %w", alias, err), reg.Close())
		}
		pool := drv.DB()
		if db.MaxOpenConns > 0 {
			pool.SetMaxOpenConns(db.MaxOpenConns)
		}
		if db.MaxIdleConns > 0 {
			pool.SetMaxIdleConns(db.MaxIdleConns)
		}
		if db.ConnMaxLifetime > 0 {
			pool.SetConnMaxLifetime(db.ConnMaxLifetime)
		}
		if db.SlowQueryThreshold > 0 {
			l := logger
			if l == nil {
				l = slog.Default()
			}
			drv.EnableStats(
				sql.WithSlowThreshold(db.SlowQueryThreshold),
				sql.WithSlowQueryLog(l.With("alias", alias)),
			)
		}
		if err := reg.Register(alias, drv); err != nil {
			return nil, errors.Join(err, drv.Close(), reg.Close())
		}
	}
	return reg, nil
}

// Logger returns a slog logger writing to w with the configured level and
// format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// LockOptions returns the configured lock defaults, to be passed to
// lock.WithDefaults.
func (c *Config) LockOptions() []lock.Option {
	opts, _ := c.lockOptions()
	return opts
}

// NewManager returns a lock.Manager bound to reg and the default alias,
// using the configured lock defaults and logger.
func (c *Config) NewManager(reg *sql.Registry, logger *slog.Logger) *lock.Manager {
	opts := c.LockOptions()
	if logger != nil {
		opts = append(opts, lock.WithLogger(logger))
	}
	return lock.NewManager(reg, lock.WithAlias(c.DefaultAlias), lock.WithDefaults(opts...))
}

func (c *Config) lockOptions() ([]lock.Option, error) {
	var opts []lock.Option
	scope, err := lock.ParseScope(strings.ToLower(c.Lock.Scope))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if scope != lock.ScopeAuto {
		opts = append(opts, lock.WithScope(scope))
	}
	if c.Lock.Mode != "" {
		mode := lock.Mode(strings.ToUpper(strings.ReplaceAll(c.Lock.Mode, "_", " ")))
		if !mode.Valid() {
			return nil, invalid("unknown lock mode %q", c.Lock.Mode)
		}
		opts = append(opts, lock.WithMode(mode))
	}
	if c.Lock.NoWait {
		if c.Lock.Timeout != nil && *c.Lock.Timeout > 0 {
			return nil, invalid("lock: can't set both nowait and timeout")
		}
		opts = append(opts, lock.NoWait())
	}
	if t := c.Lock.Timeout; t != nil {
		if *t < 0 {
			return nil, invalid("lock: negative timeout")
		}
		opts = append(opts, lock.WithTimeout(*t))
	}
	return opts, nil
}

func (c *Config) level() (slog.Level, error) {
	var level slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, invalid("log level: %v", err)
	}
	return level, nil
}

func (c *Config) aliases() []string {
	aliases := make([]string, 0, len(c.Databases))
	for alias := range c.Databases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("config: %w: %s", pgkit.ErrInvalidOptions, fmt.Sprintf(format, args...))
}
