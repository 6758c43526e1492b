package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/leaprow/pkg/core"
)

// Descriptor tag keys, read from the embedded base struct:
//
//	record.Model `table:"blog" conn:"read=replica,write=main" order:"id DESC" immutable:"true"`
const (
	TagTable     = "table"
	TagConn      = "conn"
	TagOrder     = "order"
	TagImmutable = "immutable"
	TagField     = "db"
)

var descriptorKeys = []string{TagTable, TagConn, TagOrder, TagImmutable}

type cacheEntry struct {
	once sync.Once
	info *TableInfo
	err  error
}

var (
	cache    sync.Map // reflect.Type -> *cacheEntry
	compiles atomic.Int64
)

// Of returns the TableInfo of entity type T.
func Of[T any]() (*TableInfo, error) {
	return For(reflect.TypeFor[T]())
}

// For returns the TableInfo of t (or of the struct t points to), compiling it
// on first use. Compilation errors are cached as well.
func For(t reflect.Type) (*TableInfo, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, core.NewConfigError(fmt.Sprint(t), "compile", core.ErrNotEntity, "not a struct type")
	}

	v, _ := cache.LoadOrStore(t, &cacheEntry{})
	entry := v.(*cacheEntry)
	entry.once.Do(func() {
		compiles.Add(1)
		entry.info, entry.err = compile(t)
	})
	return entry.info, entry.err
}

// IsEntity reports whether t declares a table descriptor or embeds a type
// that does.
func IsEntity(t reflect.Type) bool {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return false
	}
	if _, ok := descriptorField(t); ok {
		return true
	}
	_, ok := parentField(t)
	return ok
}

func compile(t reflect.Type) (*TableInfo, error) {
	entity := t.String()
	ti := &TableInfo{Type: t}

	descIdx, hasDesc := descriptorField(t)
	parentIdx, hasParent := parentField(t)
	if !hasDesc && !hasParent {
		return nil, core.NewConfigError(entity, "compile", core.ErrNoTableInfo,
			"embed record.Model with a `table` tag or embed another entity")
	}

	if hasParent {
		parent, err := For(t.Field(parentIdx).Type)
		if err != nil {
			return nil, err
		}
		ti.Table = parent.Table
		ti.Routing = parent.Routing
		ti.Order = append([]OrderTerm(nil), parent.Order...)
		ti.Immutable = parent.Immutable
		for _, f := range parent.fields {
			ti.fields = append(ti.fields, f.clone([]int{parentIdx}))
		}
	}

	if hasDesc {
		if err := applyDescriptor(ti, t.Field(descIdx).Tag); err != nil {
			return nil, err
		}
	}

	skip := map[int]bool{}
	if hasDesc {
		skip[descIdx] = true
	}
	if hasParent {
		skip[parentIdx] = true
	}
	own, err := collectFields(entity, t, nil, skip)
	if err != nil {
		return nil, err
	}
	ti.fields = append(ti.fields, own...)

	if err := finish(ti); err != nil {
		return nil, err
	}
	return ti, nil
}

// descriptorField finds the embedded field carrying descriptor tags.
func descriptorField(t reflect.Type) (int, bool) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.Anonymous {
			continue
		}
		for _, key := range descriptorKeys {
			if _, ok := sf.Tag.Lookup(key); ok {
				return i, true
			}
		}
	}
	return 0, false
}

// parentField finds the first embedded entity struct (by value). The
// descriptor field itself qualifies when it is an entity, so an abstract base
// can be embedded with only the descriptor keys it overrides.
func parentField(t reflect.Type) (int, bool) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.Anonymous || sf.Type.Kind() != reflect.Struct {
			continue
		}
		if IsEntity(sf.Type) {
			return i, true
		}
	}
	return 0, false
}

func applyDescriptor(ti *TableInfo, tag reflect.StructTag) error {
	entity := ti.Type.String()

	if table, ok := tag.Lookup(TagTable); ok {
		ti.Table = strings.TrimSpace(table)
	}

	if conn, ok := tag.Lookup(TagConn); ok {
		r, err := ParseRouting(conn)
		if err != nil {
			return core.NewConfigError(entity, "compile", core.ErrUnknownRouting, "%v", err)
		}
		ti.Routing = r
	}

	if order, ok := tag.Lookup(TagOrder); ok {
		terms, err := ParseOrder(order)
		if err != nil {
			return core.NewConfigError(entity, "compile", core.ErrUnsupportedField, "order: %v", err)
		}
		ti.Order = terms
	}

	if imm, ok := tag.Lookup(TagImmutable); ok {
		if strings.TrimSpace(imm) == "" {
			ti.Immutable = true
		} else {
			b, err := strconv.ParseBool(imm)
			if err != nil {
				return core.NewConfigError(entity, "compile", core.ErrUnsupportedField, "immutable: %v", err)
			}
			ti.Immutable = b
		}
	}
	return nil
}

// ParseRouting parses a conn tag: "main" routes reads and writes to one
// connection, "read=replica,write=main" splits them.
func ParseRouting(spec string) (Routing, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Routing{}, nil
	}
	if !strings.Contains(spec, "=") {
		return Routing{Read: spec, Write: spec}, nil
	}

	var r Routing
	for _, part := range strings.Split(spec, ",") {
		k, v, _ := strings.Cut(part, "=")
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "read":
			r.Read = strings.TrimSpace(v)
		case "write":
			r.Write = strings.TrimSpace(v)
		default:
			return Routing{}, fmt.Errorf("unknown connection mode %q", strings.TrimSpace(k))
		}
	}
	return r, nil
}

// collectFields walks t for db-tagged fields, flattening embedded structs
// that are not entities. Top-level indices in skip are ignored.
func collectFields(entity string, t reflect.Type, prefix []int, skip map[int]bool) ([]*Field, error) {
	var out []*Field
	for i := 0; i < t.NumField(); i++ {
		if skip[i] {
			continue
		}
		sf := t.Field(i)
		index := append(append(make([]int, 0, len(prefix)+1), prefix...), i)
		raw, hasTag := sf.Tag.Lookup(TagField)

		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && !hasTag {
			nested, err := collectFields(entity, sf.Type, index, nil)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}

		tag, ok := parseFieldTag(raw)
		if !ok {
			continue
		}
		f, err := newField(entity, sf, index, tag)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// finish derives indexes and validates the merged field list.
func finish(ti *TableInfo) error {
	entity := ti.Type.String()
	ti.byName = make(map[string]*Field, len(ti.fields))

	for _, f := range ti.fields {
		if _, dup := ti.byName[f.Name]; dup {
			return core.NewConfigError(entity, "compile", core.ErrUnsupportedField, "duplicate column %q", f.Name)
		}
		ti.byName[f.Name] = f

		if f.PrimaryKey {
			ti.primaryKey = append(ti.primaryKey, f)
		}
		if f.AutoIncr {
			if ti.autoIncrement != nil {
				return core.NewConfigError(entity, "compile", core.ErrUnsupportedField,
					"more than one auto-increment field (%s, %s)", ti.autoIncrement.Name, f.Name)
			}
			ti.autoIncrement = f
		}
		if !f.AutoIncr && !f.ReadOnly {
			ti.writeFields = append(ti.writeFields, f)
		}
	}

	for _, term := range ti.Order {
		if !ti.HasField(term.Field) {
			return core.NewConfigError(entity, "compile", core.ErrUnknownField, "order by %q", term.Field)
		}
	}
	return nil
}
