package schema

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/leapstack-labs/leaprow/pkg/core"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	bytesType   = reflect.TypeOf([]byte(nil))
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// Field describes one mapped column of an entity.
type Field struct {
	Name     string // column name
	GoName   string // struct field name
	Index    []int  // index path from the entity struct
	Type     FieldType
	Nullable bool // declared as a pointer or interface

	PrimaryKey bool
	ReadOnly   bool
	AutoIncr   bool
	Unique     bool
	Indexed    bool
	ForeignKey bool
	FKTarget   string // referenced table, when declared as fk=<table>

	goType reflect.Type
}

// GoType returns the declared Go type of the field.
func (f *Field) GoType() reflect.Type { return f.goType }

// IsForeignKey reports whether the field looks like a reference to another
// entity: flagged fk, or named *_id and not part of this table's key.
func (f *Field) IsForeignKey() bool {
	if f.ForeignKey {
		return true
	}
	return !f.PrimaryKey && !f.AutoIncr && strings.HasSuffix(f.Name, "_id")
}

func (f *Field) clone(prefix []int) *Field {
	c := *f
	c.Index = append(append(make([]int, 0, len(prefix)+len(f.Index)), prefix...), f.Index...)
	return &c
}

// fieldTag is the parsed form of a `db:"name,flag,..."` tag.
type fieldTag struct {
	name  string
	flags map[string]string
}

// parseFieldTag parses a db tag. ok is false for "-" and missing tags.
func parseFieldTag(tag string) (ft fieldTag, ok bool) {
	if tag == "" || tag == "-" {
		return fieldTag{}, false
	}
	parts := strings.Split(tag, ",")
	ft.name = strings.TrimSpace(parts[0])
	ft.flags = make(map[string]string, len(parts)-1)
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k, v, _ := strings.Cut(p, "=")
		ft.flags[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return ft, true
}

// newField builds a Field from a struct field and its parsed tag.
// entity is used for error messages only.
func newField(entity string, sf reflect.StructField, index []int, tag fieldTag) (*Field, error) {
	if !sf.IsExported() {
		return nil, configErr(entity, core.ErrUnsupportedField, "field %s is unexported", sf.Name)
	}

	name := tag.name
	if name == "" {
		name = snakeCase(sf.Name)
	}

	f := &Field{
		Name:   name,
		GoName: sf.Name,
		Index:  index,
		goType: sf.Type,
	}

	for flag, val := range tag.flags {
		switch flag {
		case "pk", "primary":
			f.PrimaryKey = true
		case "readonly":
			f.ReadOnly = true
		case "autoincr", "autoincrement":
			f.AutoIncr = true
		case "unique":
			f.Unique = true
		case "index":
			f.Indexed = true
		case "fk":
			f.ForeignKey = true
			f.FKTarget = val
		case "type":
			// explicit override, e.g. db:"flags,type=int"
		default:
			return nil, configErr(entity, core.ErrUnsupportedField, "field %s: unknown flag %q", sf.Name, flag)
		}
	}

	t, nullable, err := inferType(sf.Type)
	if err != nil {
		return nil, configErr(entity, core.ErrUnsupportedField, "field %s: %v", sf.Name, err)
	}
	f.Type = t
	f.Nullable = nullable
	if override, ok := tag.flags["type"]; ok {
		f.Type = ParseFieldType(override)
	}

	if f.AutoIncr && f.Type != TypeInt {
		return nil, configErr(entity, core.ErrUnsupportedField, "field %s: auto-increment field must be an integer", sf.Name)
	}
	return f, nil
}

// inferType maps a Go type to a FieldType. Pointers are dereferenced and make
// the field nullable.
func inferType(t reflect.Type) (FieldType, bool, error) {
	nullable := false
	if t.Kind() == reflect.Pointer {
		nullable = true
		t = t.Elem()
	}

	switch {
	case t == timeType:
		return TypeNull, nullable, nil
	case t == bytesType:
		return TypeString, nullable, nil
	case t.Implements(valuerType) || reflect.PointerTo(t).Implements(scannerType):
		return TypeNull, nullable, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return TypeBool, nullable, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInt, nullable, nil
	case reflect.Float32, reflect.Float64:
		return TypeFloat, nullable, nil
	case reflect.String:
		return TypeString, nullable, nil
	case reflect.Interface:
		return TypeNull, true, nil
	}
	return TypeNull, false, fmt.Errorf("unsupported type %s", t)
}

// value reads the field from an entity struct value. nil pointers yield nil.
func (f *Field) value(entity reflect.Value) any {
	fv := entity.FieldByIndex(f.Index)
	switch fv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if fv.IsNil() {
			return nil
		}
		return fv.Elem().Interface()
	case reflect.Slice:
		if fv.IsNil() {
			return nil
		}
		if b, ok := fv.Interface().([]byte); ok {
			return append([]byte(nil), b...)
		}
	}
	return fv.Interface()
}

// assign stores v into the field of an addressable entity struct value,
// converting between compatible kinds.
func (f *Field) assign(entity reflect.Value, v any) error {
	return assignValue(entity.FieldByIndex(f.Index), v)
}

// assignValue stores v into dst. nil resets dst to its zero value.
func assignValue(dst reflect.Value, v any) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := assignValue(elem.Elem(), v); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	if dst.CanAddr() {
		if sc, ok := dst.Addr().Interface().(sql.Scanner); ok {
			return sc.Scan(v)
		}
	}

	src := reflect.ValueOf(v)
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}

	switch dst.Kind() {
	case reflect.Bool:
		dst.SetBool(toBool(v))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(toInt(v))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i := toInt(v)
		if i < 0 {
			return fmt.Errorf("cannot assign negative %d to %s", i, dst.Type())
		}
		dst.SetUint(uint64(i))
		return nil
	case reflect.Float32, reflect.Float64:
		dst.SetFloat(toFloat(v))
		return nil
	case reflect.String:
		dst.SetString(toString(v))
		return nil
	}

	if dst.Type() == bytesType {
		switch x := v.(type) {
		case string:
			dst.SetBytes([]byte(x))
			return nil
		}
	}
	if dst.Type() == timeType {
		if tm, ok := parseTime(v); ok {
			dst.Set(reflect.ValueOf(tm))
			return nil
		}
	}
	if src.Type().ConvertibleTo(dst.Type()) {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", v, dst.Type())
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(v any) (time.Time, bool) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case []byte:
		s = string(x)
	case int64:
		return time.Unix(x, 0).UTC(), true
	default:
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if tm, err := time.Parse(layout, s); err == nil {
			return tm, true
		}
	}
	return time.Time{}, false
}

// snakeCase converts a Go identifier to a column name: AuthorID -> author_id.
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
