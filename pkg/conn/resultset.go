package conn

import (
	"database/sql"
	"fmt"
	"iter"
	"reflect"
	"sync"

	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/leapstack-labs/leaprow/pkg/schema"
)

// Row is an untyped result row keyed by column name. Text columns returned
// as []byte are converted to string.
type Row map[string]any

// KeyFunc derives a map key from a row and its 0-based offset.
type KeyFunc[E any] func(row E, offset int) any

// ValueFunc derives a map value from a row, its offset and its key.
type ValueFunc[E any] func(row E, offset int, key any) any

// ResultSet is a forward-only cursor over a query result.
//
// The first row is fetched when the set is created, so HasRows and FirstRow
// never consume anything beyond it. Every other read is single-pass: Next,
// All, GetArray, GetMap and GetColumn share one cursor, and rows they have
// consumed are gone. GetArray after partial iteration returns only the
// remaining rows; a second GetArray returns an empty slice.
//
// The cursor is closed when it is exhausted, on error, or by Close. Drain or
// close a ResultSet before issuing another query on the same Connection.
type ResultSet[E any] struct {
	rows    *sql.Rows
	sql     string
	columns []string
	hydrate func(columns []string, values []any) (E, error)
	release func()

	first   E
	hasRows bool
	pending bool // first row fetched but not yet returned by Next

	current E
	offset  int
	err     error

	closeOnce sync.Once
	closed    bool
}

func newResultSet[E any](rows *sql.Rows, query string, hydrate func([]string, []any) (E, error), release func()) (*ResultSet[E], error) {
	rs := &ResultSet[E]{rows: rows, sql: query, hydrate: hydrate, release: release, offset: -1}

	cols, err := rows.Columns()
	if err != nil {
		_ = rs.Close()
		return nil, core.NewQueryError(query, err)
	}
	rs.columns = cols

	row, ok, err := rs.fetch()
	if err != nil {
		_ = rs.Close()
		return nil, err
	}
	if ok {
		rs.first = row
		rs.hasRows = true
		rs.pending = true
	}
	return rs, nil
}

// fetch advances the cursor and hydrates the row. It closes the cursor when
// no rows remain.
func (rs *ResultSet[E]) fetch() (E, bool, error) {
	var zero E
	if rs.closed {
		return zero, false, nil
	}
	if !rs.rows.Next() {
		err := rs.rows.Err()
		_ = rs.Close()
		if err != nil {
			return zero, false, core.NewQueryError(rs.sql, err)
		}
		return zero, false, nil
	}

	values := make([]any, len(rs.columns))
	ptrs := make([]any, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rs.rows.Scan(ptrs...); err != nil {
		_ = rs.Close()
		return zero, false, core.NewQueryError(rs.sql, err)
	}

	row, err := rs.hydrate(rs.columns, values)
	if err != nil {
		_ = rs.Close()
		return zero, false, err
	}
	return row, true, nil
}

// Columns returns the result column names.
func (rs *ResultSet[E]) Columns() []string { return rs.columns }

// HasRows reports whether the query matched at least one row.
func (rs *ResultSet[E]) HasRows() bool { return rs.hasRows }

// FirstRow returns the first row. ok is false when the result is empty.
func (rs *ResultSet[E]) FirstRow() (row E, ok bool) { return rs.first, rs.hasRows }

// Next advances to the next row, which is then available from Row.
func (rs *ResultSet[E]) Next() bool {
	if rs.err != nil {
		return false
	}
	if rs.pending {
		rs.pending = false
		rs.current = rs.first
		rs.offset = 0
		return true
	}
	row, ok, err := rs.fetch()
	if err != nil {
		rs.err = err
		return false
	}
	if !ok {
		return false
	}
	rs.current = row
	rs.offset++
	return true
}

// Row returns the row Next advanced to.
func (rs *ResultSet[E]) Row() E { return rs.current }

// Offset returns the 0-based position of the current row, or -1 before the first Next.
func (rs *ResultSet[E]) Offset() int { return rs.offset }

// Err returns the error, if any, that stopped iteration.
func (rs *ResultSet[E]) Err() error { return rs.err }

// Close releases the cursor. It is safe to call more than once.
func (rs *ResultSet[E]) Close() error {
	var err error
	rs.closeOnce.Do(func() {
		rs.closed = true
		rs.pending = false
		err = rs.rows.Close()
		if rs.release != nil {
			rs.release()
		}
	})
	return err
}

// All iterates the remaining rows with their offsets. Stopping early closes the cursor.
func (rs *ResultSet[E]) All() iter.Seq2[int, E] {
	return func(yield func(int, E) bool) {
		for rs.Next() {
			if !yield(rs.offset, rs.current) {
				_ = rs.Close()
				return
			}
		}
	}
}

// GetArray drains all rows not yet iterated into a slice.
func (rs *ResultSet[E]) GetArray() ([]E, error) {
	out := make([]E, 0)
	for rs.Next() {
		out = append(out, rs.current)
	}
	return out, rs.err
}

// GetMap drains the remaining rows into a map. A nil key uses the row offset;
// a nil value uses the row itself.
func (rs *ResultSet[E]) GetMap(key KeyFunc[E], value ValueFunc[E]) (map[any]any, error) {
	out := make(map[any]any)
	for rs.Next() {
		var k any = rs.offset
		if key != nil {
			k = key(rs.current, rs.offset)
		}
		var v any = rs.current
		if value != nil {
			v = value(rs.current, rs.offset, k)
		}
		out[k] = v
	}
	return out, rs.err
}

// GetColumn drains the remaining rows, returning one column's values.
func (rs *ResultSet[E]) GetColumn(name string) ([]any, error) {
	read := rs.Field(name)
	out := make([]any, 0)
	for rs.Next() {
		out = append(out, read(rs.current, rs.offset))
	}
	return out, rs.err
}

// Field returns a KeyFunc reading the named column off each row.
func (rs *ResultSet[E]) Field(name string) KeyFunc[E] {
	return func(row E, _ int) any { return FieldOf(row, name) }
}

// FieldValue returns a ValueFunc reading the named column off each row.
func (rs *ResultSet[E]) FieldValue(name string) ValueFunc[E] {
	return func(row E, _ int, _ any) any { return FieldOf(row, name) }
}

// Collect drains the remaining rows of rs into a typed map.
func Collect[E any, K comparable, V any](rs *ResultSet[E], key func(E, int) K, value func(E, int) V) (map[K]V, error) {
	out := make(map[K]V)
	for rs.Next() {
		out[key(rs.current, rs.offset)] = value(rs.current, rs.offset)
	}
	return out, rs.err
}

// FieldOf reads a column from a Row, a map, or a mapped struct. Unknown
// columns yield nil.
func FieldOf(row any, name string) any {
	switch r := row.(type) {
	case Row:
		return r[name]
	case map[string]any:
		return r[name]
	case nil:
		return nil
	}
	cm, err := schema.ColumnIndex(reflect.TypeOf(row))
	if err != nil {
		return nil
	}
	v, _ := cm.Value(row, name)
	return v
}

// rowHydrator builds untyped rows.
func rowHydrator(columns []string, values []any) (Row, error) {
	row := make(Row, len(columns))
	for i, c := range columns {
		if b, ok := values[i].([]byte); ok {
			row[c] = string(b)
			continue
		}
		row[c] = values[i]
	}
	return row, nil
}

// structHydrator builds *T rows through T's column map.
func structHydrator[T any](onFetch func(*T) error) (func([]string, []any) (*T, error), error) {
	cm, err := schema.ColumnIndex(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return func(columns []string, values []any) (*T, error) {
		row := new(T)
		if err := cm.Hydrate(row, columns, values); err != nil {
			return nil, fmt.Errorf("hydrate %s: %w", cm.Type, err)
		}
		if onFetch != nil {
			if err := onFetch(row); err != nil {
				return nil, err
			}
		}
		return row, nil
	}, nil
}
