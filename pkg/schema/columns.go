package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/leapstack-labs/leaprow/pkg/core"
)

// ColumnMap maps result columns onto the fields of a struct type.
type ColumnMap struct {
	Type   reflect.Type
	byName map[string]*Field
}

var columnCache sync.Map // reflect.Type -> *ColumnMap

// ColumnIndex returns the column map of an arbitrary struct type. Entities
// map their compiled fields; other structs map every exported field by its
// db tag name, or by its lower-cased Go name when untagged. Embedded structs
// are flattened; `db:"-"` skips a field.
func ColumnIndex(t reflect.Type) (*ColumnMap, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: cannot map columns onto %v", core.ErrNotEntity, t)
	}
	if v, ok := columnCache.Load(t); ok {
		return v.(*ColumnMap), nil
	}

	cm := &ColumnMap{Type: t, byName: make(map[string]*Field)}
	if IsEntity(t) {
		ti, err := For(t)
		if err != nil {
			return nil, err
		}
		for _, f := range ti.fields {
			cm.byName[strings.ToLower(f.Name)] = f
		}
	} else {
		indexStruct(cm, t, nil)
	}

	v, _ := columnCache.LoadOrStore(t, cm)
	return v.(*ColumnMap), nil
}

func indexStruct(cm *ColumnMap, t reflect.Type, prefix []int) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append(make([]int, 0, len(prefix)+1), prefix...), i)
		raw := sf.Tag.Get(TagField)
		if raw == "-" {
			continue
		}
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && raw == "" {
			indexStruct(cm, sf.Type, index)
			continue
		}
		if !sf.IsExported() {
			continue
		}

		name, _, _ := strings.Cut(raw, ",")
		if name == "" {
			name = sf.Name
		}
		key := strings.ToLower(strings.TrimSpace(name))
		if _, seen := cm.byName[key]; seen {
			continue
		}
		ft, nullable, _ := inferType(sf.Type)
		cm.byName[key] = &Field{
			Name:     name,
			GoName:   sf.Name,
			Index:    index,
			Type:     ft,
			Nullable: nullable,
			goType:   sf.Type,
		}
	}
}

// Lookup finds the field for a result column, ignoring case.
func (cm *ColumnMap) Lookup(column string) (*Field, bool) {
	f, ok := cm.byName[strings.ToLower(column)]
	return f, ok
}

// Value reads the field mapped to column from src, a struct or a pointer to
// one. ok is false for unmapped columns and nil pointers.
func (cm *ColumnMap) Value(src any, column string) (v any, ok bool) {
	f, found := cm.Lookup(column)
	if !found {
		return nil, false
	}
	rv := reflect.ValueOf(src)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Type() != cm.Type {
		return nil, false
	}
	return f.value(rv), true
}

// Assign stores v into the field mapped to column on dst, a pointer to the
// mapped struct. Unmapped columns are ignored.
func (cm *ColumnMap) Assign(dst reflect.Value, column string, v any) error {
	f, ok := cm.Lookup(column)
	if !ok {
		return nil
	}
	if err := f.assign(dst.Elem(), v); err != nil {
		return fmt.Errorf("column %q: %w", column, err)
	}
	return nil
}

// Hydrate assigns a row of column values to dst, a pointer to the mapped struct.
func (cm *ColumnMap) Hydrate(dst any, columns []string, values []any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Type() != cm.Type {
		return fmt.Errorf("%w: hydrate expects *%s, got %T", core.ErrNotEntity, cm.Type, dst)
	}
	for i, col := range columns {
		if i >= len(values) {
			break
		}
		if err := cm.Assign(rv, col, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func configErr(entity string, sentinel error, format string, args ...any) error {
	return core.NewConfigError(entity, "compile", sentinel, format, args...)
}
