package query

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/jmoiron/sqlx"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/syssam/pgkit"
)

// Dict is the row shape produced by DictMaterializer: column names mapped to
// values, iterated in column order.
type Dict = *orderedmap.OrderedMap[string, any]

// Query is an immutable query descriptor. The SQL text is sent as is using
// the driver placeholder syntax ($1, $2, ...); it is not parsed or validated.
type Query[T any] struct {
	text string
	args []any
	m    Materializer[T]
}

// New returns a query materializing rows with DictMaterializer.
func New(text string, args ...any) Query[Dict] {
	return With[Dict](DictMaterializer{}, text, args...)
}

// With returns a query materializing rows with m.
func With[T any](m Materializer[T], text string, args ...any) Query[T] {
	return Query[T]{text: text, args: slices.Clone(args), m: m}
}

// Named returns a query using :name parameters. arg is a map[string]any or
// a struct whose fields are matched by their db tag. The parameters are
// compiled to positional placeholders. A literal colon, as in a ::type cast,
// must be written as two colons (x::::int).
func Named(text string, arg any) (Query[Dict], error) {
	compiled, args, err := sqlx.Named(text, arg)
	if err != nil {
		return Query[Dict]{}, fmt.Errorf("query: compile named parameters: %w", err)
	}
	return New(sqlx.Rebind(sqlx.DOLLAR, compiled), args...), nil
}

// AsType returns a copy of q bound to a materializer building T. The new
// materializer depends on the one q is bound to:
//
//   - DictMaterializer: TypedMaterializer, columns matched to fields by name
//   - PlainMaterializer: PositionalMaterializer, columns matched by position
//   - FlatMaterializer: ColumnMaterializer, the first column converted to T
//
// Any other materializer already builds its own type and AsType fails with
// pgkit.ErrSealed. q is left unchanged and both queries stay usable.
func AsType[T, S any](q Query[S]) (Query[T], error) {
	var m Materializer[T]
	switch any(q.m).(type) {
	case DictMaterializer:
		m = NewTypedMaterializer[T]()
	case PlainMaterializer:
		m = NewPositionalMaterializer[T]()
	case FlatMaterializer:
		m = ColumnMaterializer[T]{}
	default:
		return Query[T]{}, fmt.Errorf("query: as %s: %w: %T", reflect.TypeFor[T](), pgkit.ErrSealed, q.m)
	}
	return WithMaterializer(q, m), nil
}

// WithMaterializer returns a copy of q bound to m.
func WithMaterializer[T, S any](q Query[S], m Materializer[T]) Query[T] {
	return Query[T]{text: q.text, args: slices.Clone(q.args), m: m}
}

// Text returns the SQL text.
func (q Query[T]) Text() string { return q.text }

// Args returns a copy of the query arguments.
func (q Query[T]) Args() []any { return slices.Clone(q.args) }

// Materializer returns the bound materializer.
func (q Query[T]) Materializer() Materializer[T] { return q.m }

// String returns the SQL text.
func (q Query[T]) String() string { return q.text }
