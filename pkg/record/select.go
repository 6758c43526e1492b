package record

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/leapstack-labs/leaprow/pkg/conn"
	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/leapstack-labs/leaprow/pkg/schema"
)

// Where maps field names to constraint values: nil matches NULL, a slice
// matches any of its elements, anything else matches by equality.
type Where map[string]any

// Key addresses a row by primary-key field name, for SelectByPK and DeleteByPK.
type Key map[string]any

// Option adjusts a select.
type Option func(*options)

type options struct {
	page  conn.Paginator
	order []schema.OrderTerm // nil means the table's default ordering
	or    bool
	sql   string
	args  []any
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithPage limits the result. SelectAll also stores the unpaginated row
// count in paginators that implement conn.TotalSetter.
func WithPage(p conn.Paginator) Option {
	return func(o *options) { o.page = p }
}

// WithOrder replaces the table's default ordering. WithOrder() with no terms
// selects no ordering at all.
func WithOrder(terms ...schema.OrderTerm) Option {
	return func(o *options) { o.order = append([]schema.OrderTerm{}, terms...) }
}

// Asc orders by field ascending.
func Asc(field string) schema.OrderTerm { return schema.OrderTerm{Field: field} }

// Desc orders by field descending.
func Desc(field string) schema.OrderTerm { return schema.OrderTerm{Field: field, Desc: true} }

// Or joins SelectBy constraints with OR instead of AND.
func Or() Option {
	return func(o *options) { o.or = true }
}

// WithSQL makes SelectAll run query instead of selecting every column of the
// table. Ordering is only appended when WithOrder is given as well.
func WithSQL(query string, args ...any) Option {
	return func(o *options) {
		o.sql = query
		o.args = args
	}
}

// SelectBy selects the rows matching every constraint in where (any, with Or).
func (t *Table[T]) SelectBy(ctx context.Context, where Where, opts ...Option) (*conn.ResultSet[*T], error) {
	if len(where) == 0 {
		return nil, core.NewConfigError(t.info.Entity(), "select", core.ErrEmptyConstraints, "")
	}
	o := buildOptions(opts)

	c, err := t.reader(ctx)
	if err != nil {
		return nil, err
	}
	cond, args, err := t.whereClause(c, where, o.or)
	if err != nil {
		return nil, err
	}
	order, err := t.orderClause(c, o.order, true)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + t.columns(c) + " FROM " + c.QuoteQualified(t.info.Table) + " WHERE " + cond + order
	return t.selectObjects(ctx, c, query, o.page, args)
}

// SelectByPK returns the row with the given primary key, or nil when there
// is none. values are given in key declaration order, or as a single Key.
// Unlike updates and deletes it does not fall back to the auto-increment
// field; the table must declare a primary key.
func (t *Table[T]) SelectByPK(ctx context.Context, values ...any) (*T, error) {
	keys := t.info.PrimaryKey()
	if len(keys) == 0 {
		return nil, core.NewConfigError(t.info.Entity(), "select", core.ErrNoPrimaryKey, "")
	}
	c, err := t.reader(ctx)
	if err != nil {
		return nil, err
	}
	cond, args, err := keyClause(c, keys, values)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + t.columns(c) + " FROM " + c.QuoteQualified(t.info.Table) + " WHERE " + cond
	return t.selectOne(ctx, c, query, args)
}

// SelectAll selects every row, or the rows of a WithSQL statement.
func (t *Table[T]) SelectAll(ctx context.Context, opts ...Option) (*conn.ResultSet[*T], error) {
	o := buildOptions(opts)

	c, err := t.reader(ctx)
	if err != nil {
		return nil, err
	}

	query, args := o.sql, o.args
	if query == "" {
		query = "SELECT " + t.columns(c) + " FROM " + c.QuoteQualified(t.info.Table)
	}
	order, err := t.orderClause(c, o.order, o.sql == "")
	if err != nil {
		return nil, err
	}

	if ts, ok := o.page.(conn.TotalSetter); ok {
		var total int64
		if o.sql == "" {
			total, err = t.CountAll(ctx)
		} else {
			total, err = count(ctx, c, "SELECT COUNT(*) FROM ("+o.sql+") AS counted", args)
		}
		if err != nil {
			return nil, err
		}
		ts.SetTotal(total)
	}

	return t.selectObjects(ctx, c, query+order, o.page, args)
}

// CountAll returns the number of rows in the table.
func (t *Table[T]) CountAll(ctx context.Context) (int64, error) {
	c, err := t.reader(ctx)
	if err != nil {
		return 0, err
	}
	return count(ctx, c, "SELECT COUNT(*) FROM "+c.QuoteQualified(t.info.Table), nil)
}

// FindOneBy looks a row up by a unique-indexed field.
func (t *Table[T]) FindOneBy(ctx context.Context, field string, value any) (*T, error) {
	f, err := t.info.MustField(field)
	if err != nil {
		return nil, err
	}
	if !f.Unique {
		return nil, core.NewConfigError(t.info.Entity(), "find", core.ErrUnsupportedField, "%s is not unique-indexed", field)
	}
	rs, err := t.SelectBy(ctx, Where{field: value})
	if err != nil {
		return nil, err
	}
	defer func() { _ = rs.Close() }()
	row, _ := rs.FirstRow()
	return row, nil
}

// FindBy selects the rows matching a non-unique indexed field.
func (t *Table[T]) FindBy(ctx context.Context, field string, value any, opts ...Option) (*conn.ResultSet[*T], error) {
	f, err := t.info.MustField(field)
	if err != nil {
		return nil, err
	}
	if !f.Indexed || f.Unique {
		return nil, core.NewConfigError(t.info.Entity(), "find", core.ErrUnsupportedField, "%s is not a non-unique index", field)
	}
	return t.SelectBy(ctx, Where{field: value}, opts...)
}

func (t *Table[T]) selectObjects(ctx context.Context, c *conn.Connection, query string, page conn.Paginator, args []any) (*conn.ResultSet[*T], error) {
	return conn.SelectObjects(ctx, c, query, conn.SelectOptions[T]{
		Paginator: page,
		OnFetch:   t.loaded,
	}, args...)
}

func (t *Table[T]) selectOne(ctx context.Context, c *conn.Connection, query string, args []any) (*T, error) {
	rs, err := t.selectObjects(ctx, c, query, nil, args)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rs.Close() }()
	row, _ := rs.FirstRow()
	return row, nil
}

// whereClause renders where with fields in sorted order.
func (t *Table[T]) whereClause(c *conn.Connection, where Where, or bool) (string, []any, error) {
	names := make([]string, 0, len(where))
	for name := range where {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	var args []any
	for _, name := range names {
		f, err := t.info.MustField(name)
		if err != nil {
			return "", nil, err
		}
		part, arg, ok := constraint(c.Quote(f.Name), f, where[name])
		parts = append(parts, part)
		if ok {
			args = append(args, arg)
		}
	}

	sep := " AND "
	if or {
		sep = " OR "
	}
	return strings.Join(parts, sep), args, nil
}

// constraint renders one comparison. ok is false when it binds no argument.
func constraint(col string, f *schema.Field, v any) (string, any, bool) {
	if isNull(v) {
		return col + " IS NULL", nil, false
	}
	if rv := reflect.ValueOf(v); isConstraintList(rv, f) {
		list := make([]any, rv.Len())
		for i := range list {
			list[i] = schema.TypeCast(rv.Index(i).Interface(), f.Type)
		}
		return col + " IN (?)", list, true
	}
	return col + " = ?", schema.TypeCast(v, f.Type), true
}

// isConstraintList reports whether v matches by IN. A []byte is a single
// value for string and untyped fields and a list for the others.
func isConstraintList(v reflect.Value, f *schema.Field) bool {
	switch v.Kind() {
	case reflect.Array:
		return true
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.Uint8 {
			return true
		}
		return f.Type != schema.TypeString && f.Type != schema.TypeNull
	}
	return false
}

func (t *Table[T]) orderClause(c *conn.Connection, terms []schema.OrderTerm, useDefault bool) (string, error) {
	if terms == nil {
		if !useDefault {
			return "", nil
		}
		terms = t.info.Order
	}
	if err := t.info.ValidateOrder(terms); err != nil {
		return "", err
	}
	if clause := schema.FormatOrder(terms, c.Quote); clause != "" {
		return " ORDER BY " + clause, nil
	}
	return "", nil
}

// keyClause matches keys against values given positionally or as one Key.
func keyClause(c *conn.Connection, keys []*schema.Field, values []any) (string, []any, error) {
	if len(values) == 1 {
		if byName, ok := values[0].(Key); ok {
			return keyClauseByName(c, keys, byName)
		}
	}
	if len(values) != len(keys) {
		return "", nil, core.NewQueryError("", fmt.Errorf("%w: %d key values given for %d key fields", core.ErrBind, len(values), len(keys)))
	}

	parts := make([]string, len(keys))
	var args []any
	for i, f := range keys {
		part, arg, ok := keyConstraint(c.Quote(f.Name), f, values[i])
		parts[i] = part
		if ok {
			args = append(args, arg)
		}
	}
	return strings.Join(parts, " AND "), args, nil
}

func keyClauseByName(c *conn.Connection, keys []*schema.Field, byName Key) (string, []any, error) {
	if len(byName) != len(keys) {
		return "", nil, core.NewQueryError("", fmt.Errorf("%w: %d key values given for %d key fields", core.ErrBind, len(byName), len(keys)))
	}
	values := make([]any, len(keys))
	for i, f := range keys {
		v, ok := byName[f.Name]
		if !ok {
			return "", nil, core.NewQueryError("", fmt.Errorf("%w: missing value for key field %q", core.ErrBind, f.Name))
		}
		values[i] = v
	}
	return keyClause(c, keys, values)
}

func keyConstraint(col string, f *schema.Field, v any) (string, any, bool) {
	if isNull(v) {
		return col + " IS NULL", nil, false
	}
	return col + " = ?", schema.TypeCast(v, f.Type), true
}

func count(ctx context.Context, c *conn.Connection, query string, args []any) (int64, error) {
	v, err := c.SelectSingleValue(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := schema.TypeCast(v, schema.TypeInt).(int64)
	return n, nil
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map:
		return rv.IsNil()
	}
	return false
}
