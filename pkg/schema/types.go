package schema

import (
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// FieldType is the declared value type of a column, used to coerce values
// before they are bound to a statement.
type FieldType int

const (
	// TypeNull passes values through unchanged (interfaces, time.Time,
	// driver.Valuer implementations).
	TypeNull FieldType = iota
	TypeString
	TypeBool
	TypeInt
	TypeFloat
)

func (t FieldType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// ParseFieldType maps a type name to a FieldType. Unknown names map to TypeString.
func ParseFieldType(name string) FieldType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "null":
		return TypeNull
	case "bool", "boolean":
		return TypeBool
	case "int", "integer":
		return TypeInt
	case "float", "double", "real":
		return TypeFloat
	default:
		return TypeString
	}
}

// TypeCast coerces v to the Go representation of t: bool, int64, float64 or
// string. nil (including typed nil pointers) is returned as nil whatever t is.
// Values that cannot be interpreted become the zero value of t. Unknown types
// are treated as TypeString. TypeCast never panics.
func TypeCast(v any, t FieldType) any {
	v = indirect(v)
	if v == nil {
		return nil
	}

	switch t {
	case TypeNull:
		return v
	case TypeBool:
		return toBool(v)
	case TypeInt:
		return toInt(v)
	case TypeFloat:
		return toFloat(v)
	default:
		return toString(v)
	}
}

// indirect dereferences pointers and unwraps driver.Valuer values.
func indirect(v any) any {
	if v == nil {
		return nil
	}
	if _, ok := v.(time.Time); ok {
		return v
	}
	if valuer, ok := v.(driver.Valuer); ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		dv, err := valuer.Value()
		if err != nil {
			return nil
		}
		return dv
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

func toBool(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.String:
		return parseBool(rv.String())
	case reflect.Slice:
		if b, ok := v.([]byte); ok {
			return parseBool(string(b))
		}
		return rv.Len() > 0
	}
	return false
}

func parseBool(s string) bool {
	s = strings.TrimSpace(s)
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0
	}
	switch strings.ToLower(s) {
	case "", "no", "off":
		return false
	}
	return true
}

func toInt(v any) int64 {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return 1
		}
		return 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return math.MaxInt64
		}
		return int64(u) //nolint:gosec // bounded above
	case reflect.Float32, reflect.Float64:
		return floatToInt(rv.Float())
	case reflect.String:
		return parseInt(rv.String())
	case reflect.Slice:
		if b, ok := v.([]byte); ok {
			return parseInt(string(b))
		}
	}
	if tm, ok := v.(time.Time); ok {
		return tm.Unix()
	}
	return 0
}

func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return floatToInt(f)
	}
	return 0
}

func floatToInt(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

func toFloat(v any) float64 {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return 1
		}
		return 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return parseFloat(rv.String())
	case reflect.Slice:
		if b, ok := v.([]byte); ok {
			return parseFloat(string(b))
		}
	}
	return 0
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return "1"
		}
		return "0"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64)
	case reflect.String:
		return rv.String()
	}
	return fmt.Sprint(v)
}
