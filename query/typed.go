package query

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-openapi/inflect"
	"github.com/jmoiron/sqlx/reflectx"
	"github.com/spf13/cast"

	"github.com/syssam/pgkit"
)

// mapper matches columns to struct fields by their db tag, and otherwise by
// the snake_case form of the field name (FirstName -> first_name).
var mapper = reflectx.NewMapperFunc("db", inflect.Underscore)

var (
	scannerType = reflect.TypeFor[sql.Scanner]()
	timeType    = reflect.TypeFor[time.Time]()
	bytesType   = reflect.TypeFor[[]byte]()
)

// TypedMaterializer builds a T from each row.
//
// When T is a struct, or a pointer to one, columns are matched to fields
// by name. Every column must match a field, and every top level field must
// be matched by a column unless it is a pointer or is tagged optional:
//
//	type User struct {
//	    FirstName string
//	    LastName  string
//	    Email     *string `db:"email"`
//	    Note      string  `db:"note,optional"`
//	}
//
// For any other T the row must have a single column, which is converted
// to T.
//
// Values are assigned directly when their type allows it, through Scan for
// sql.Scanner fields, and converted with spf13/cast otherwise. Any failure
// is reported as a *pgkit.MaterializationError.
type TypedMaterializer[T any] struct {
	typ   reflect.Type
	mu    sync.Mutex
	plans map[string]*plan
}

// plan maps the columns of one result shape to struct fields.
type plan struct {
	fields [][]int // field index per column
}

// NewTypedMaterializer returns a TypedMaterializer for T.
func NewTypedMaterializer[T any]() *TypedMaterializer[T] {
	return &TypedMaterializer[T]{
		typ:   reflect.TypeFor[T](),
		plans: make(map[string]*plan),
	}
}

// Materialize implements Materializer.
func (m *TypedMaterializer[T]) Materialize(columns []string, values []any) (T, error) {
	var out T
	dst := reflect.ValueOf(&out).Elem()
	st := structType(m.typ)
	if st == nil {
		return out, materializeScalar(m.typ, dst, columns, values)
	}
	p, err := m.plan(st, columns)
	if err != nil {
		return out, err
	}
	if dst.Kind() == reflect.Pointer {
		dst.Set(reflect.New(st))
		dst = dst.Elem()
	}
	for i, idx := range p.fields {
		if err := assign(reflectx.FieldByIndexes(dst, idx), values[i]); err != nil {
			return out, pgkit.NewMaterializationError(m.name(), columns[i], err)
		}
	}
	return out, nil
}

// plan returns the field mapping of the given columns, computing it once per
// column set.
func (m *TypedMaterializer[T]) plan(st reflect.Type, columns []string) (*plan, error) {
	key := strings.Join(columns, "\x00")
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.plans[key]; ok {
		return p, nil
	}
	tm := mapper.TypeMap(st)
	p := &plan{fields: make([][]int, len(columns))}
	seen := make(map[string]struct{}, len(columns))
	for i, c := range columns {
		fi := tm.GetByPath(c)
		if fi == nil {
			return nil, m.errorf(c, "no field for column")
		}
		if _, ok := seen[c]; ok {
			return nil, m.errorf(c, "duplicate column")
		}
		seen[c] = struct{}{}
		p.fields[i] = fi.Index
	}
	for _, fi := range tm.Index {
		if !required(fi) {
			continue
		}
		if _, ok := seen[fi.Path]; !ok {
			return nil, m.errorf(fi.Path, "missing column for required field %s", fi.Field.Name)
		}
	}
	m.plans[key] = p
	return p, nil
}

func (m *TypedMaterializer[T]) name() string { return m.typ.String() }

func (m *TypedMaterializer[T]) errorf(column, format string, args ...any) error {
	return materializeErrorf(m.typ, column, format, args...)
}

func materializeErrorf(typ reflect.Type, column, format string, args ...any) error {
	return pgkit.NewMaterializationError(typ.String(), column, fmt.Errorf(format, args...))
}

// materializeScalar stores the only column of a row into dst.
func materializeScalar(typ reflect.Type, dst reflect.Value, columns []string, values []any) error {
	if len(columns) != 1 {
		return materializeErrorf(typ, "", "expected 1 column, got %d", len(columns))
	}
	if err := assign(dst, values[0]); err != nil {
		return pgkit.NewMaterializationError(typ.String(), columns[0], err)
	}
	return nil
}

// structType returns the struct type behind t, or nil if t is not a struct
// or pointer to struct mapped field by field.
func structType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || leaf(t) {
		return nil
	}
	return t
}

// leaf reports whether values of t are assigned as a whole rather than
// field by field.
func leaf(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() != reflect.Struct || t == timeType || reflect.PointerTo(t).Implements(scannerType)
}

// required reports whether a column must be present for the field: top
// level (or promoted from an embedded struct) leaf fields that are neither
// pointers nor tagged optional.
func required(fi *reflectx.FieldInfo) bool {
	if fi == nil || fi.Embedded || fi.Name == "" || !leaf(fi.Field.Type) {
		return false
	}
	if _, ok := fi.Options["optional"]; ok {
		return false
	}
	if fi.Field.Type.Kind() == reflect.Pointer {
		return false
	}
	for p := fi.Parent; p != nil && p.Parent != nil; p = p.Parent {
		if !p.Embedded {
			return false
		}
	}
	return true
}

// assign stores v into dst.
func assign(dst reflect.Value, v any) error {
	if dst.CanAddr() && dst.Addr().Type().Implements(scannerType) {
		return dst.Addr().Interface().(sql.Scanner).Scan(v)
	}
	if v == nil {
		switch dst.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		return fmt.Errorf("NULL value into %s", dst.Type())
	}
	src := reflect.ValueOf(v)
	if src.Type().AssignableTo(dst.Type()) {
		if b, ok := v.([]byte); ok {
			// Driver buffers may be reused by the next row.
			dst.Set(reflect.ValueOf(append([]byte(nil), b...)))
			return nil
		}
		dst.Set(src)
		return nil
	}
	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), v); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}
	if b, ok := v.([]byte); ok && dst.Type() != bytesType {
		v = string(b)
	}
	return convert(dst, v)
}

// convert stores v into dst using spf13/cast.
func convert(dst reflect.Value, v any) error {
	var (
		out any
		err error
	)
	switch {
	case dst.Type() == timeType:
		out, err = cast.ToTimeE(v)
	case dst.Type() == bytesType:
		var s string
		s, err = cast.ToStringE(v)
		out = []byte(s)
	default:
		switch dst.Kind() {
		case reflect.String:
			out, err = cast.ToStringE(v)
		case reflect.Bool:
			out, err = cast.ToBoolE(v)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if err := integral(v, math.MinInt64, math.MaxInt64); err != nil {
				return fmt.Errorf("convert %T to %s: %w", v, dst.Type(), err)
			}
			var n int64
			if n, err = cast.ToInt64E(v); err == nil {
				if dst.OverflowInt(n) {
					return fmt.Errorf("value %d overflows %s", n, dst.Type())
				}
				dst.SetInt(n)
				return nil
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if err := integral(v, 0, math.MaxUint64); err != nil {
				return fmt.Errorf("convert %T to %s: %w", v, dst.Type(), err)
			}
			var n uint64
			if n, err = cast.ToUint64E(v); err == nil {
				if dst.OverflowUint(n) {
					return fmt.Errorf("value %d overflows %s", n, dst.Type())
				}
				dst.SetUint(n)
				return nil
			}
		case reflect.Float32, reflect.Float64:
			var f float64
			if f, err = cast.ToFloat64E(v); err == nil {
				if dst.OverflowFloat(f) {
					return fmt.Errorf("value %v overflows %s", f, dst.Type())
				}
				dst.SetFloat(f)
				return nil
			}
		default:
			err = errors.New("unsupported conversion")
		}
	}
	if err != nil {
		return fmt.Errorf("convert %T to %s: %w", v, dst.Type(), err)
	}
	rv := reflect.ValueOf(out)
	if !rv.Type().ConvertibleTo(dst.Type()) {
		return fmt.Errorf("convert %T to %s", v, dst.Type())
	}
	dst.Set(rv.Convert(dst.Type()))
	return nil
}

// integral rejects floating point values that do not denote an integer in
// [lo, hi), since cast truncates them.
func integral(v any, lo, hi float64) error {
	var f float64
	switch x := v.(type) {
	case float32:
		f = float64(x)
	case float64:
		f = x
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return fmt.Errorf("value %v is not an integer", v)
	}
	if f < lo || f >= hi {
		return fmt.Errorf("value %v out of range", v)
	}
	return nil
}
