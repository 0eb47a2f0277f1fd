package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryBuild(t *testing.T) {
	tests := []struct {
		name     string
		query    Query
		wantExpr string
		wantArgs []any
	}{
		{
			name:     "plain_default",
			query:    Query{Text: "john doe"},
			wantExpr: "plainto_tsquery($1)",
			wantArgs: []any{"john doe"},
		},
		{
			name:     "phrase_with_config",
			query:    Query{Text: "john doe", Type: Phrase, Config: "english"},
			wantExpr: "phraseto_tsquery($1::regconfig, $2)",
			wantArgs: []any{"english", "john doe"},
		},
		{
			name:     "websearch",
			query:    Query{Text: `"john doe" -mike`, Type: WebSearch},
			wantExpr: "websearch_to_tsquery($1)",
			wantArgs: []any{`"john doe" -mike`},
		},
		{
			name:     "raw_inverted",
			query:    Query{Text: "john & !doe", Type: Raw, Invert: true},
			wantExpr: "!!(to_tsquery($1))",
			wantArgs: []any{"john & !doe"},
		},
		{
			name:     "custom",
			query:    Query{Text: "HELL | fo", Type: Custom, Prefix: true},
			wantExpr: "to_tsquery($1)",
			wantArgs: []any{"('HELL':* | 'fo':*)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, args, ok, err := tt.query.Build(1)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.wantExpr, expr)
			assert.Equal(t, tt.wantArgs, args)
		})
	}

	t.Run("empty", func(t *testing.T) {
		_, _, ok, err := Query{Text: "  "}.Build(1)
		require.NoError(t, err)
		assert.False(t, ok)
		_, _, ok, err = Query{Text: "()", Type: Custom}.Build(1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown_type", func(t *testing.T) {
		_, _, _, err := Query{Text: "a", Type: "fuzzy"}.Build(1)
		assert.Error(t, err)
	})
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("WebSearch")
	require.NoError(t, err)
	assert.Equal(t, WebSearch, typ)
	typ, err = ParseType("")
	require.NoError(t, err)
	assert.Equal(t, Plain, typ)
	_, err = ParseType("fuzzy")
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	t.Run("columns", func(t *testing.T) {
		f := Filter{Columns: []string{"first_name", "last_name"}, Options: Options{Type: Custom}}
		p, ok, err := f.Predicate("(John | Mike | Dan) Doe", 1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, `to_tsvector(COALESCE("first_name", '') || ' ' || COALESCE("last_name", '')) @@ to_tsquery($1)`, p.SQL)
		assert.Equal(t, []any{"('John' | 'Mike' | 'Dan') & 'Doe'"}, p.Args)
	})

	t.Run("config_weight_offset", func(t *testing.T) {
		f := Filter{Columns: []string{"auth_user.first_name"}, Weight: "A", Options: Options{Config: "english", Invert: true}}
		p, ok, err := f.Predicate("john", 3)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, `setweight(to_tsvector($3::regconfig, COALESCE("auth_user"."first_name", '')), 'A') @@ !!(plainto_tsquery($4::regconfig, $5))`, p.SQL)
		assert.Equal(t, []any{"english", "english", "john"}, p.Args)
	})

	t.Run("empty_value", func(t *testing.T) {
		f := Filter{Columns: []string{"first_name"}}
		_, ok, err := f.Predicate("", 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("invalid", func(t *testing.T) {
		_, _, err := Filter{}.Predicate("john", 1)
		assert.Error(t, err)
		_, _, err = Filter{Columns: []string{"name"}, Weight: "E"}.Predicate("john", 1)
		assert.Error(t, err)
		_, _, err = Filter{Columns: []string{"public."}}.Predicate("john", 1)
		assert.Error(t, err)
	})
}

func TestStoredFilter(t *testing.T) {
	f := StoredFilter{Column: "search_vector", Options: Options{Type: Custom, Prefix: true}}
	p, ok, err := f.Predicate("HELL | fo", 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"search_vector" @@ to_tsquery($2)`, p.SQL)
	assert.Equal(t, []any{"('HELL':* | 'fo':*)"}, p.Args)

	_, ok, err = f.Predicate("&&", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
