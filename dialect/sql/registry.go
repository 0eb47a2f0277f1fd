package sql

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultAlias is the alias used by NewRegistry when none is configured.
const DefaultAlias = "default"

// ErrUnknownAlias is returned when a connection alias is not registered.
var ErrUnknownAlias = errors.New("dialect/sql: unknown connection alias")

// Registry maps connection aliases to drivers. The default alias is an
// explicit part of the registry and is used when callers pass an empty alias.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]*Driver
	def     string
}

// RegistryOption configures the Registry.
type RegistryOption func(*Registry)

// WithDefaultAlias sets the alias resolved for an empty alias.
func WithDefaultAlias(alias string) RegistryOption {
	return func(r *Registry) {
		r.def = alias
	}
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{drivers: make(map[string]*Driver), def: DefaultAlias}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds the driver to the alias. Registering an alias twice is an error.
func (r *Registry) Register(alias string, drv *Driver) error {
	if alias == "" {
		return errors.New("dialect/sql: empty connection alias")
	}
	if drv == nil {
		return fmt.Errorf("dialect/sql: nil driver for alias %q", alias)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.drivers[alias]; ok {
		return fmt.Errorf("dialect/sql: connection alias %q already registered", alias)
	}
	r.drivers[alias] = drv
	return nil
}

// DefaultAlias returns the alias resolved for an empty alias.
func (r *Registry) DefaultAlias() string { return r.def }

// Aliases returns the registered aliases in sorted order.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	aliases := make([]string, 0, len(r.drivers))
	for alias := range r.drivers {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// Driver returns the driver registered under alias.
func (r *Registry) Driver(alias string) (*Driver, error) {
	if alias == "" {
		alias = r.def
	}
	r.mu.RLock()
	drv, ok := r.drivers[alias]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlias, alias)
	}
	return drv, nil
}

// Session pins a connection of the driver registered under alias.
func (r *Registry) Session(ctx context.Context, alias string) (*Session, error) {
	drv, err := r.Driver(alias)
	if err != nil {
		return nil, err
	}
	return drv.Session(ctx)
}

// Close closes all registered drivers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for alias, drv := range r.drivers {
		if err := drv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("dialect/sql: close %q: %w", alias, err))
		}
		delete(r.drivers, alias)
	}
	return errors.Join(errs...)
}
