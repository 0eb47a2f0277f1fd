package query

import (
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/pgkit"
)

var (
	nameColumns = []string{"first_name", "last_name"}
	nameValues  = []any{"John", "Doe"}
)

func dictKeys(d Dict) []string {
	var keys []string
	for p := d.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

func TestPlainMaterializer(t *testing.T) {
	values := []any{"John", "Doe"}
	row, err := PlainMaterializer{}.Materialize(nameColumns, values)
	require.NoError(t, err)
	assert.Equal(t, []any{"John", "Doe"}, row)

	values[0] = "Jane"
	assert.Equal(t, "John", row[0], "row must not alias the scan buffer")
}

func TestDictMaterializer(t *testing.T) {
	row, err := DictMaterializer{}.Materialize(nameColumns, nameValues)
	require.NoError(t, err)
	assert.Equal(t, 2, row.Len())
	assert.Equal(t, nameColumns, dictKeys(row))
	v, ok := row.Get("first_name")
	require.True(t, ok)
	assert.Equal(t, "John", v)
	v, _ = row.Get("last_name")
	assert.Equal(t, "Doe", v)

	t.Run("column_order", func(t *testing.T) {
		row, err := DictMaterializer{}.Materialize([]string{"z", "a", "m"}, []any{1, 2, 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"z", "a", "m"}, dictKeys(row))
	})
}

func TestFlatMaterializer(t *testing.T) {
	v, err := FlatMaterializer{}.Materialize([]string{"id"}, []any{int64(7)})
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	_, err = FlatMaterializer{}.Materialize(nil, nil)
	assert.True(t, pgkit.IsMaterializationError(err))
}

func TestMaterializerFunc(t *testing.T) {
	full := MaterializerFunc[string](func(_ []string, values []any) (string, error) {
		return values[0].(string) + " " + values[1].(string), nil
	})
	v, err := full.Materialize(nameColumns, nameValues)
	require.NoError(t, err)
	assert.Equal(t, "John Doe", v)
}

type person struct {
	FirstName string
	LastName  string
}

type profile struct {
	FirstName string
	LastName  string  `db:"last_name"`
	Email     *string `db:"email"`
	Note      string  `db:"note,optional"`
	Age       int32
	Nickname  sql.NullString
	Joined    time.Time
	Ignored   string `db:"-"`
}

type Base struct {
	ID int64
}

type account struct {
	Base
	Name string
}

func TestTypedMaterializer(t *testing.T) {
	t.Run("struct", func(t *testing.T) {
		p, err := NewTypedMaterializer[person]().Materialize(nameColumns, nameValues)
		require.NoError(t, err)
		assert.Equal(t, person{FirstName: "John", LastName: "Doe"}, p)
	})

	t.Run("pointer", func(t *testing.T) {
		p, err := NewTypedMaterializer[*person]().Materialize(nameColumns, nameValues)
		require.NoError(t, err)
		assert.Equal(t, &person{FirstName: "John", LastName: "Doe"}, p)
	})

	t.Run("missing_required_column", func(t *testing.T) {
		_, err := NewTypedMaterializer[person]().Materialize([]string{"first_name"}, []any{"John"})
		require.Error(t, err)
		assert.True(t, pgkit.IsMaterializationError(err))
		var me *pgkit.MaterializationError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, "last_name", me.Column)
		assert.Equal(t, "query.person", me.Type)
	})

	t.Run("extra_column", func(t *testing.T) {
		_, err := NewTypedMaterializer[person]().Materialize(
			[]string{"first_name", "last_name", "username"}, []any{"John", "Doe", "jdoe"})
		assert.ErrorIs(t, err, pgkit.ErrMaterialization)
	})

	t.Run("optional_and_conversions", func(t *testing.T) {
		joined := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		cols := []string{"first_name", "last_name", "email", "age", "nickname", "joined"}
		p, err := NewTypedMaterializer[profile]().Materialize(cols, []any{"John", "Doe", nil, int64(42), "jd", joined})
		require.NoError(t, err)
		assert.Equal(t, "John", p.FirstName)
		assert.Nil(t, p.Email)
		assert.Empty(t, p.Note)
		assert.Equal(t, int32(42), p.Age)
		assert.Equal(t, sql.NullString{String: "jd", Valid: true}, p.Nickname)
		assert.Equal(t, joined, p.Joined)

		p, err = NewTypedMaterializer[profile]().Materialize(cols, []any{"John", "Doe", "j@doe.io", "7", nil, joined})
		require.NoError(t, err)
		require.NotNil(t, p.Email)
		assert.Equal(t, "j@doe.io", *p.Email)
		assert.Equal(t, int32(7), p.Age)
		assert.False(t, p.Nickname.Valid)
	})

	t.Run("unconvertible", func(t *testing.T) {
		cols := []string{"first_name", "last_name", "age", "nickname", "joined"}
		_, err := NewTypedMaterializer[profile]().Materialize(cols, []any{"John", "Doe", "old", nil, time.Now()})
		var me *pgkit.MaterializationError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, "age", me.Column)

		_, err = NewTypedMaterializer[profile]().Materialize(cols, []any{"John", "Doe", int64(1) << 40, nil, time.Now()})
		assert.True(t, pgkit.IsMaterializationError(err))
	})

	t.Run("fractional_into_integer", func(t *testing.T) {
		type counter struct {
			N int  `db:"n"`
			U uint `db:"u,optional"`
		}
		m := NewTypedMaterializer[counter]()
		for _, v := range []any{1.9, float32(-0.5), math.NaN(), math.Inf(1), 1e19} {
			_, err := m.Materialize([]string{"n"}, []any{v})
			var me *pgkit.MaterializationError
			require.ErrorAs(t, err, &me, "%v", v)
			assert.Equal(t, "n", me.Column)
		}
		_, err := m.Materialize([]string{"n", "u"}, []any{1, -1.0})
		assert.True(t, pgkit.IsMaterializationError(err))

		c, err := m.Materialize([]string{"n", "u"}, []any{2.0, float32(3)})
		require.NoError(t, err)
		assert.Equal(t, counter{N: 2, U: 3}, c)

		n, err := NewTypedMaterializer[int32]().Materialize([]string{"count"}, []any{7.5})
		assert.Zero(t, n)
		assert.True(t, pgkit.IsMaterializationError(err))
	})

	t.Run("null_into_value", func(t *testing.T) {
		_, err := NewTypedMaterializer[person]().Materialize(nameColumns, []any{"John", nil})
		assert.True(t, pgkit.IsMaterializationError(err))
	})

	t.Run("embedded", func(t *testing.T) {
		a, err := NewTypedMaterializer[account]().Materialize([]string{"id", "name"}, []any{int64(3), "ops"})
		require.NoError(t, err)
		assert.Equal(t, int64(3), a.ID)
		assert.Equal(t, "ops", a.Name)
	})

	t.Run("scalar", func(t *testing.T) {
		m := NewTypedMaterializer[int64]()
		n, err := m.Materialize([]string{"count"}, []any{"12"})
		require.NoError(t, err)
		assert.Equal(t, int64(12), n)

		_, err = m.Materialize(nameColumns, nameValues)
		assert.True(t, pgkit.IsMaterializationError(err))
	})

	t.Run("bytes_are_copied", func(t *testing.T) {
		type blob struct{ Data []byte }
		buf := []byte{1, 2, 3}
		b, err := NewTypedMaterializer[blob]().Materialize([]string{"data"}, []any{buf})
		require.NoError(t, err)
		buf[0] = 9
		assert.Equal(t, []byte{1, 2, 3}, b.Data)
	})
}

func TestPositionalMaterializer(t *testing.T) {
	t.Run("by_position", func(t *testing.T) {
		p, err := NewPositionalMaterializer[person]().Materialize([]string{"given", "family"}, nameValues)
		require.NoError(t, err)
		assert.Equal(t, person{FirstName: "John", LastName: "Doe"}, p)
	})

	t.Run("pointer", func(t *testing.T) {
		p, err := NewPositionalMaterializer[*person]().Materialize([]string{"a", "b"}, nameValues)
		require.NoError(t, err)
		assert.Equal(t, &person{FirstName: "John", LastName: "Doe"}, p)
	})

	t.Run("embedded_in_place", func(t *testing.T) {
		a, err := NewPositionalMaterializer[account]().Materialize([]string{"id", "name"}, []any{int64(7), "acme"})
		require.NoError(t, err)
		assert.Equal(t, account{Base: Base{ID: 7}, Name: "acme"}, a)
	})

	t.Run("optional_trailing_fields", func(t *testing.T) {
		type contact struct {
			Name   string
			Email  *string
			Note   string `db:"note,optional"`
			Secret string `db:"-"`
		}
		m := NewPositionalMaterializer[contact]()
		c, err := m.Materialize([]string{"name"}, []any{"John"})
		require.NoError(t, err)
		assert.Equal(t, contact{Name: "John"}, c)

		email := "john@example.com"
		c, err = m.Materialize([]string{"name", "email", "note"}, []any{"John", email, "vip"})
		require.NoError(t, err)
		assert.Equal(t, contact{Name: "John", Email: &email, Note: "vip"}, c)
	})

	t.Run("missing_required", func(t *testing.T) {
		_, err := NewPositionalMaterializer[person]().Materialize([]string{"first_name"}, []any{"John"})
		var me *pgkit.MaterializationError
		require.ErrorAs(t, err, &me)
		assert.Contains(t, me.Error(), "LastName")
	})

	t.Run("too_many_columns", func(t *testing.T) {
		_, err := NewPositionalMaterializer[person]().Materialize([]string{"a", "b", "c"}, []any{"John", "Doe", 1})
		var me *pgkit.MaterializationError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, "c", me.Column)
	})

	t.Run("conversion_error", func(t *testing.T) {
		_, err := NewPositionalMaterializer[account]().Materialize([]string{"id", "name"}, []any{1.5, "acme"})
		var me *pgkit.MaterializationError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, "id", me.Column)
	})

	t.Run("scalar", func(t *testing.T) {
		s, err := NewPositionalMaterializer[string]().Materialize([]string{"username"}, []any{[]byte("jdoe")})
		require.NoError(t, err)
		assert.Equal(t, "jdoe", s)

		_, err = NewPositionalMaterializer[string]().Materialize(nameColumns, nameValues)
		assert.True(t, pgkit.IsMaterializationError(err))
	})
}

func TestColumnMaterializer(t *testing.T) {
	id, err := ColumnMaterializer[int64]{}.Materialize([]string{"id", "name"}, []any{int32(5), "acme"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	_, err = ColumnMaterializer[int64]{}.Materialize(nil, nil)
	assert.True(t, pgkit.IsMaterializationError(err))

	_, err = ColumnMaterializer[int64]{}.Materialize([]string{"name"}, []any{"acme"})
	assert.True(t, pgkit.IsMaterializationError(err))
}
