package query

import (
	"errors"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/syssam/pgkit"
)

// Materializer converts one result row into a T. columns and values have
// the same length and are owned by the caller: implementations must copy
// what they keep.
type Materializer[T any] interface {
	Materialize(columns []string, values []any) (T, error)
}

// MaterializerFunc adapts a function to the Materializer interface.
type MaterializerFunc[T any] func(columns []string, values []any) (T, error)

// Materialize calls f(columns, values).
func (f MaterializerFunc[T]) Materialize(columns []string, values []any) (T, error) {
	return f(columns, values)
}

// PlainMaterializer returns the row values in column order.
type PlainMaterializer struct{}

// Materialize implements Materializer.
func (PlainMaterializer) Materialize(_ []string, values []any) ([]any, error) {
	return slices.Clone(values), nil
}

// DictMaterializer returns the row as an ordered map from column name to
// value. Iteration order is the column order. When a column name repeats,
// the last value wins and keeps the position of the first occurrence.
type DictMaterializer struct{}

// Materialize implements Materializer.
func (DictMaterializer) Materialize(columns []string, values []any) (Dict, error) {
	row := orderedmap.New[string, any](orderedmap.WithCapacity[string, any](len(columns)))
	for i, c := range columns {
		row.Set(c, values[i])
	}
	return row, nil
}

// FlatMaterializer returns the value of the first column. It is meant for
// single column queries such as SELECT id FROM ...
type FlatMaterializer struct{}

// Materialize implements Materializer.
func (FlatMaterializer) Materialize(columns []string, values []any) (any, error) {
	if len(values) == 0 {
		return nil, pgkit.NewMaterializationError("any", "", errors.New("row has no columns"))
	}
	return values[0], nil
}

var (
	_ Materializer[[]any] = PlainMaterializer{}
	_ Materializer[Dict]  = DictMaterializer{}
	_ Materializer[any]   = FlatMaterializer{}
)
