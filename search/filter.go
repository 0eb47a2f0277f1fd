package search

import (
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/pgkit/dialect/sql"
)

// Predicate is a SQL boolean expression and its arguments.
type Predicate struct {
	SQL  string
	Args []any
}

// Options are the query settings shared by Filter and StoredFilter.
type Options struct {
	Type   Type
	Config string
	Invert bool
	Prefix bool
}

func (o Options) query(value string) Query {
	return Query{Text: value, Type: o.Type, Config: o.Config, Invert: o.Invert, Prefix: o.Prefix}
}

// Filter matches search input against a tsvector computed from columns.
type Filter struct {
	Columns []string
	// Weight labels the vector with setweight, one of A, B, C or D.
	Weight string
	Options
}

// Predicate returns the filter predicate for value with placeholders
// numbered from $next. ok is false when value has nothing to search for,
// in which case no filtering should be applied.
func (f Filter) Predicate(value string, next int) (p Predicate, ok bool, err error) {
	if len(f.Columns) == 0 {
		return p, false, errors.New("search: filter has no columns")
	}
	cols := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		q, err := sql.QuoteIdentifier(c)
		if err != nil {
			return p, false, err
		}
		cols[i] = "COALESCE(" + q + ", '')"
	}
	var vector strings.Builder
	if f.Weight != "" {
		if len(f.Weight) != 1 || !strings.Contains("ABCD", f.Weight) {
			return p, false, fmt.Errorf("search: invalid weight %q", f.Weight)
		}
		vector.WriteString("setweight(")
	}
	vector.WriteString("to_tsvector(")
	if f.Config != "" {
		vector.WriteString(placeholder(next))
		vector.WriteString("::regconfig, ")
		p.Args = append(p.Args, f.Config)
		next++
	}
	vector.WriteString(strings.Join(cols, " || ' ' || "))
	vector.WriteByte(')')
	if f.Weight != "" {
		vector.WriteString(", '" + f.Weight + "')")
	}
	return match(vector.String(), f.query(value), p.Args, next)
}

// StoredFilter matches search input against a stored tsvector column.
type StoredFilter struct {
	Column string
	Options
}

// Predicate returns the filter predicate for value. See Filter.Predicate.
func (f StoredFilter) Predicate(value string, next int) (Predicate, bool, error) {
	col, err := sql.QuoteIdentifier(f.Column)
	if err != nil {
		return Predicate{}, false, err
	}
	return match(col, f.query(value), nil, next)
}

func match(vector string, q Query, args []any, next int) (Predicate, bool, error) {
	expr, qargs, ok, err := q.Build(next)
	if err != nil || !ok {
		return Predicate{}, false, err
	}
	return Predicate{
		SQL:  vector + " @@ " + expr,
		Args: append(args, qargs...),
	}, true, nil
}
