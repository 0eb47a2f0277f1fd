package sql

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/pgkit/dialect"
)

func TestRegistry(t *testing.T) {
	primary, primaryMock, err := sqlmock.New()
	require.NoError(t, err)
	primaryMock.ExpectClose()
	replica, replicaMock, err := sqlmock.New()
	require.NoError(t, err)
	replicaMock.ExpectClose()

	reg := NewRegistry(WithDefaultAlias("primary"))
	require.NoError(t, reg.Register("primary", OpenDB(dialect.Postgres, primary)))
	require.NoError(t, reg.Register("replica", OpenDB(dialect.PGX, replica)))

	t.Run("duplicate", func(t *testing.T) {
		err := reg.Register("primary", OpenDB(dialect.Postgres, primary))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("empty_alias_resolves_default", func(t *testing.T) {
		drv, err := reg.Driver("")
		require.NoError(t, err)
		assert.Same(t, primary, drv.DB())
	})

	t.Run("named", func(t *testing.T) {
		drv, err := reg.Driver("replica")
		require.NoError(t, err)
		assert.Equal(t, dialect.PGX, drv.Dialect())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := reg.Session(context.Background(), "analytics")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownAlias))
	})

	assert.Equal(t, []string{"primary", "replica"}, reg.Aliases())
	assert.Equal(t, "primary", reg.DefaultAlias())
	require.NoError(t, reg.Close())
	assert.Empty(t, reg.Aliases())
	require.NoError(t, primaryMock.ExpectationsWereMet())
	require.NoError(t, replicaMock.ExpectationsWereMet())
}

func TestRegistryRejectsInvalid(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, DefaultAlias, reg.DefaultAlias())
	assert.Error(t, reg.Register("", nil))
	assert.Error(t, reg.Register("default", nil))
}
