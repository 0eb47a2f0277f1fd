package query

import (
	"errors"
	"iter"
	"strings"

	"github.com/syssam/pgkit/dialect/sql"
)

// Results is a lazy, forward only sequence of materialized rows. Rows are
// fetched and materialized one at a time by Next. A Results can be iterated
// once; after the last row, an error or Close, Next returns false.
//
// A Results is not safe for concurrent use.
type Results[T any] struct {
	rows    *sql.Rows
	columns []string
	binary  []bool
	m       Materializer[T]
	cur     T
	err     error
	done    bool
	onClose func(*Results[T])
}

func newResults[T any](rows *sql.Rows, m Materializer[T]) (*Results[T], error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Join(err, rows.Close())
	}
	return &Results[T]{rows: rows, columns: columns, m: m}, nil
}

// isBinary reports whether column i holds bytea values. Column types are
// only looked up once a driver reports raw bytes.
func (r *Results[T]) isBinary(i int) bool {
	if r.binary == nil {
		r.binary = make([]bool, len(r.columns))
		if types, err := r.rows.ColumnTypes(); err == nil {
			for j, t := range types {
				r.binary[j] = strings.EqualFold(t.DatabaseTypeName(), "BYTEA")
			}
		}
	}
	return r.binary[i]
}

// Columns returns the column names of the result set.
func (r *Results[T]) Columns() []string { return r.columns }

// Next fetches and materializes the next row. It returns false when the
// rows are exhausted or an error occurred; Err tells them apart.
func (r *Results[T]) Next() bool {
	if r.done {
		return false
	}
	if !r.rows.Next() {
		r.finish(r.rows.Err())
		return false
	}
	values := make([]any, len(r.columns))
	dest := make([]any, len(r.columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := r.rows.Scan(dest...); err != nil {
		r.finish(err)
		return false
	}
	for i, v := range values {
		// Text columns may be reported as raw bytes by the driver.
		if b, ok := v.([]byte); ok && !r.isBinary(i) {
			values[i] = string(b)
		}
	}
	v, err := r.m.Materialize(r.columns, values)
	if err != nil {
		r.finish(err)
		return false
	}
	r.cur = v
	return true
}

// Value returns the row materialized by the last successful call to Next.
func (r *Results[T]) Value() T { return r.cur }

// Err returns the error that stopped the iteration, if any.
func (r *Results[T]) Err() error { return r.err }

// Close releases the server cursor. It is safe to call Close more than once.
func (r *Results[T]) Close() error {
	if r.done {
		return nil
	}
	r.finish(nil)
	return r.err
}

// finish records err, closes the rows and detaches the results from their
// context. Only the first call has an effect.
func (r *Results[T]) finish(err error) {
	if r.done {
		return
	}
	r.done = true
	var zero T
	r.cur = zero
	r.err = errors.Join(err, r.rows.Close())
	if r.onClose != nil {
		r.onClose(r)
	}
}

// All returns an iterator over the remaining rows. An error stops the
// iteration after being yielded with the zero T. Breaking out of the loop
// closes the results.
func (r *Results[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer r.Close()
		for r.Next() {
			if !yield(r.cur, nil) {
				return
			}
		}
		if err := r.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// Collect reads all remaining rows into a slice and closes r. A zero row
// result yields an empty, non nil slice.
func Collect[T any](r *Results[T]) ([]T, error) {
	out := make([]T, 0)
	for r.Next() {
		out = append(out, r.cur)
	}
	if err := r.Close(); err != nil {
		return out, err
	}
	return out, r.Err()
}
