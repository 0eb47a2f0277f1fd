package query

import (
	"errors"
	"reflect"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx/reflectx"

	"github.com/syssam/pgkit"
)

// PositionalMaterializer builds a T from each row by position: the n-th
// column goes to the n-th field of T in declaration order, with the fields
// of embedded structs in place. Unexported fields and fields tagged db:"-"
// are skipped. Column names are ignored.
//
// A row may have fewer columns than T has fields when the remaining fields
// are pointers or tagged optional; more columns than fields is an error.
// For a non-struct T the row must have a single column.
type PositionalMaterializer[T any] struct {
	typ    reflect.Type
	fields []positionalField
}

type positionalField struct {
	name     string
	index    []int
	optional bool
}

// NewPositionalMaterializer returns a PositionalMaterializer for T.
func NewPositionalMaterializer[T any]() *PositionalMaterializer[T] {
	m := &PositionalMaterializer[T]{typ: reflect.TypeFor[T]()}
	if st := structType(m.typ); st != nil {
		m.fields = positionalFields(st, nil)
	}
	return m
}

// Materialize implements Materializer.
func (m *PositionalMaterializer[T]) Materialize(columns []string, values []any) (T, error) {
	var out T
	dst := reflect.ValueOf(&out).Elem()
	st := structType(m.typ)
	if st == nil {
		return out, materializeScalar(m.typ, dst, columns, values)
	}
	if len(values) > len(m.fields) {
		return out, materializeErrorf(m.typ, columns[len(m.fields)], "%d columns for %d fields", len(values), len(m.fields))
	}
	for _, f := range m.fields[len(values):] {
		if !f.optional {
			return out, materializeErrorf(m.typ, "", "no column for required field %s", f.name)
		}
	}
	if dst.Kind() == reflect.Pointer {
		dst.Set(reflect.New(st))
		dst = dst.Elem()
	}
	for i, f := range m.fields[:len(values)] {
		if err := assign(reflectx.FieldByIndexes(dst, f.index), values[i]); err != nil {
			return out, pgkit.NewMaterializationError(m.typ.String(), columns[i], err)
		}
	}
	return out, nil
}

func positionalFields(t reflect.Type, parent []int) []positionalField {
	var fields []positionalField
	for i := range t.NumField() {
		f := t.Field(i)
		name, opts, _ := strings.Cut(f.Tag.Get("db"), ",")
		if name == "-" {
			continue
		}
		index := append(slices.Clone(parent), i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct && !leaf(f.Type) {
			fields = append(fields, positionalFields(f.Type, index)...)
			continue
		}
		if !f.IsExported() {
			continue
		}
		fields = append(fields, positionalField{
			name:     f.Name,
			index:    index,
			optional: f.Type.Kind() == reflect.Pointer || slices.Contains(strings.Split(opts, ","), "optional"),
		})
	}
	return fields
}

// ColumnMaterializer converts the first column of each row to T and ignores
// the others.
type ColumnMaterializer[T any] struct{}

// Materialize implements Materializer.
func (ColumnMaterializer[T]) Materialize(columns []string, values []any) (T, error) {
	var out T
	typ := reflect.TypeFor[T]()
	if len(values) == 0 {
		return out, pgkit.NewMaterializationError(typ.String(), "", errors.New("row has no columns"))
	}
	if err := assign(reflect.ValueOf(&out).Elem(), values[0]); err != nil {
		return out, pgkit.NewMaterializationError(typ.String(), columns[0], err)
	}
	return out, nil
}

var (
	_ Materializer[struct{}] = (*PositionalMaterializer[struct{}])(nil)
	_ Materializer[int64]    = ColumnMaterializer[int64]{}
)
