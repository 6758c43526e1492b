package schema

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/leapstack-labs/leaprow/pkg/core"
)

// Routing names the registry connections used for reads and writes.
// An empty name selects the registry's default connection.
type Routing struct {
	Read  string
	Write string
}

// OrderTerm is one column of an ORDER BY clause.
type OrderTerm struct {
	Field string
	Desc  bool
}

// TableInfo is the compiled metadata of an entity type. It is built once per
// type by For and never modified afterwards.
type TableInfo struct {
	Type      reflect.Type
	Table     string
	Routing   Routing
	Order     []OrderTerm
	Immutable bool

	fields        []*Field
	byName        map[string]*Field
	primaryKey    []*Field
	autoIncrement *Field
	writeFields   []*Field
}

// Entity returns the entity type name used in error messages.
func (ti *TableInfo) Entity() string {
	if ti.Type == nil {
		return ti.Table
	}
	return ti.Type.String()
}

// Fields returns all mapped fields in declaration order.
func (ti *TableInfo) Fields() []*Field { return ti.fields }

// Field looks up a field by column name.
func (ti *TableInfo) Field(name string) (*Field, bool) {
	f, ok := ti.byName[name]
	return f, ok
}

// HasField reports whether name is a mapped column.
func (ti *TableInfo) HasField(name string) bool {
	_, ok := ti.byName[name]
	return ok
}

// MustField returns the named field or a QueryError wrapping core.ErrUnknownField.
func (ti *TableInfo) MustField(name string) (*Field, error) {
	if f, ok := ti.byName[name]; ok {
		return f, nil
	}
	return nil, core.NewQueryError("", fmt.Errorf("%w: %s has no field %q", core.ErrUnknownField, ti.Entity(), name))
}

// FieldNames returns all column names in declaration order.
func (ti *TableInfo) FieldNames() []string { return names(ti.fields) }

// PrimaryKey returns the primary-key fields in declaration order.
func (ti *TableInfo) PrimaryKey() []*Field { return ti.primaryKey }

// AutoIncrement returns the auto-increment field, or nil.
func (ti *TableInfo) AutoIncrement() *Field { return ti.autoIncrement }

// WriteFields returns all fields minus the auto-increment and read-only ones.
func (ti *TableInfo) WriteFields() []*Field { return ti.writeFields }

// WriteFieldNames returns the column names of WriteFields.
func (ti *TableInfo) WriteFieldNames() []string { return names(ti.writeFields) }

// KeyFields returns the fields identifying a row: the primary key, or the
// auto-increment field when no primary key is declared.
func (ti *TableInfo) KeyFields(op string) ([]*Field, error) {
	if len(ti.primaryKey) > 0 {
		return ti.primaryKey, nil
	}
	if ti.autoIncrement != nil {
		return []*Field{ti.autoIncrement}, nil
	}
	return nil, core.NewConfigError(ti.Entity(), op, core.ErrNoPrimaryKey, "")
}

// UniqueFinders returns the unique-indexed fields. Each supports a lookup
// returning at most one row.
func (ti *TableInfo) UniqueFinders() []*Field {
	return ti.filter(func(f *Field) bool { return f.Unique })
}

// IndexFinders returns the non-unique indexed fields. Each supports a lookup
// returning a result set.
func (ti *TableInfo) IndexFinders() []*Field {
	return ti.filter(func(f *Field) bool { return f.Indexed && !f.Unique })
}

// ForeignKeys returns the fields that reference another entity.
func (ti *TableInfo) ForeignKeys() []*Field {
	return ti.filter((*Field).IsForeignKey)
}

// OrderClause renders Order with quote applied to each column, without the
// ORDER BY keyword. It returns "" when no default ordering is declared.
func (ti *TableInfo) OrderClause(quote func(string) string) string {
	return FormatOrder(ti.Order, quote)
}

// FormatOrder renders terms as "col ASC, col2 DESC".
func FormatOrder(terms []OrderTerm, quote func(string) string) string {
	if len(terms) == 0 {
		return ""
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		dir := "ASC"
		if t.Desc {
			dir = "DESC"
		}
		parts[i] = quote(t.Field) + " " + dir
	}
	return strings.Join(parts, ", ")
}

// ParseOrder parses "id DESC, heading" into order terms.
func ParseOrder(spec string) ([]OrderTerm, error) {
	var terms []OrderTerm
	for _, part := range strings.Split(spec, ",") {
		words := strings.Fields(part)
		switch len(words) {
		case 0:
			continue
		case 1:
			terms = append(terms, OrderTerm{Field: words[0]})
		case 2:
			switch strings.ToUpper(words[1]) {
			case "ASC":
				terms = append(terms, OrderTerm{Field: words[0]})
			case "DESC":
				terms = append(terms, OrderTerm{Field: words[0], Desc: true})
			default:
				return nil, fmt.Errorf("invalid order direction %q", words[1])
			}
		default:
			return nil, fmt.Errorf("invalid order term %q", strings.TrimSpace(part))
		}
	}
	return terms, nil
}

// ValidateOrder checks that every term names a mapped field.
func (ti *TableInfo) ValidateOrder(terms []OrderTerm) error {
	for _, t := range terms {
		if _, err := ti.MustField(t.Field); err != nil {
			return err
		}
	}
	return nil
}

// Get reads a field from entity, which must be a struct or a pointer to one.
// nil pointers yield nil.
func (ti *TableInfo) Get(entity any, field string) (any, error) {
	f, err := ti.MustField(field)
	if err != nil {
		return nil, err
	}
	rv, err := ti.structValue(entity, false)
	if err != nil {
		return nil, err
	}
	return f.value(rv), nil
}

// Set assigns v to a field of entity, which must be a non-nil pointer.
// Values are converted to the field's Go type where the kinds allow it.
func (ti *TableInfo) Set(entity any, field string, v any) error {
	f, err := ti.MustField(field)
	if err != nil {
		return err
	}
	rv, err := ti.structValue(entity, true)
	if err != nil {
		return err
	}
	if err := f.assign(rv, v); err != nil {
		return fmt.Errorf("set %s.%s: %w", ti.Entity(), field, err)
	}
	return nil
}

// Values returns every field value of entity keyed by column name.
func (ti *TableInfo) Values(entity any) (map[string]any, error) {
	rv, err := ti.structValue(entity, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(ti.fields))
	for _, f := range ti.fields {
		out[f.Name] = f.value(rv)
	}
	return out, nil
}

// BindValue returns the field value of entity coerced by the field's type tag.
func (ti *TableInfo) BindValue(entity any, f *Field) (any, error) {
	rv, err := ti.structValue(entity, false)
	if err != nil {
		return nil, err
	}
	return TypeCast(f.value(rv), f.Type), nil
}

func (ti *TableInfo) structValue(entity any, settable bool) (reflect.Value, error) {
	rv := reflect.ValueOf(entity)
	if settable {
		if rv.Kind() != reflect.Pointer || rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: %s requires a non-nil pointer, got %T", core.ErrNotEntity, ti.Entity(), entity)
		}
	}
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: nil %T", core.ErrNotEntity, entity)
		}
		rv = rv.Elem()
	}
	if rv.Type() != ti.Type {
		return reflect.Value{}, fmt.Errorf("%w: %T is not %s", core.ErrNotEntity, entity, ti.Entity())
	}
	return rv, nil
}

func (ti *TableInfo) filter(keep func(*Field) bool) []*Field {
	var out []*Field
	for _, f := range ti.fields {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

func names(fields []*Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}
