package conn

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/leapstack-labs/leaprow/pkg/dialect"
	"github.com/leapstack-labs/leaprow/pkg/schema"
)

// Named holds :name parameters. Passing a single Named (or any map with
// string keys) as the only argument selects named binding.
type Named map[string]any

// Typed pairs a value with the type it is coerced to before binding.
type Typed struct {
	Value any
	Type  schema.FieldType
}

// T is shorthand for Typed{Value: v, Type: t}.
func T(v any, t schema.FieldType) Typed {
	return Typed{Value: v, Type: t}
}

// BindMode selects how statement arguments are matched to placeholders.
type BindMode int

const (
	// BindAuto uses named binding when the only argument is a map with
	// string keys and positional binding otherwise.
	BindAuto BindMode = iota
	// BindPositional matches ? placeholders to arguments in order.
	BindPositional
	// BindNamed matches :name placeholders to the keys of a single map.
	BindNamed
)

func (m BindMode) String() string {
	switch m {
	case BindPositional:
		return "positional"
	case BindNamed:
		return "named"
	default:
		return "auto"
	}
}

// namedArgs returns the parameter map when args is a single string-keyed map.
func namedArgs(args []any) (map[string]any, bool) {
	if len(args) != 1 {
		return nil, false
	}
	switch m := args[0].(type) {
	case Named:
		return m, true
	case map[string]any:
		return m, true
	}
	rv := reflect.ValueOf(args[0])
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// resolveMode decides the binding mode for args, rejecting a forced mode
// that contradicts the argument shape.
func resolveMode(mode BindMode, args []any) (BindMode, map[string]any, error) {
	params, isNamed := namedArgs(args)
	switch mode {
	case BindNamed:
		if !isNamed {
			return mode, nil, fmt.Errorf("%w: named binding needs a single map argument, got %d arguments", core.ErrBind, len(args))
		}
	case BindPositional:
		if isNamed {
			return mode, nil, fmt.Errorf("%w: positional binding cannot take a parameter map", core.ErrBind)
		}
	default:
		mode = BindPositional
		if isNamed {
			mode = BindNamed
		}
	}
	return mode, params, nil
}

// bind rewrites query into the dialect's placeholder style and returns the
// flattened driver arguments. Slice arguments expand into one placeholder
// per element; an empty slice becomes NULL. Typed arguments are coerced.
// Positional queries without any ? are passed through unchanged, so native
// placeholders such as $1 still work.
func bind(d *dialect.Dialect, query string, mode BindMode, args []any) (string, []any, error) {
	mode, params, err := resolveMode(mode, args)
	if err != nil {
		return "", nil, err
	}

	b := &binder{d: d, query: query, args: make([]any, 0, len(args))}
	if mode == BindNamed {
		b.lookup = func(name string) (any, error) {
			if v, ok := params[name]; ok {
				return v, nil
			}
			return nil, fmt.Errorf("%w: missing value for :%s", core.ErrBind, name)
		}
		return b.run()
	}

	next := 0
	b.next = func() (any, error) {
		if next >= len(args) {
			return nil, fmt.Errorf("%w: statement has more placeholders than the %d arguments given", core.ErrBind, len(args))
		}
		v := args[next]
		next++
		return v, nil
	}
	out, bound, err := b.run()
	if err != nil {
		return "", nil, err
	}
	if b.count == 0 {
		return query, resolveAll(args), nil
	}
	if next != len(args) {
		return "", nil, fmt.Errorf("%w: %d arguments given for %d placeholders", core.ErrBind, len(args), next)
	}
	return out, bound, nil
}

// countPlaceholders returns the number of ? placeholders outside literals and
// comments. Unparseable statements count as zero; bind reports their error.
func countPlaceholders(d *dialect.Dialect, query string) int {
	b := &binder{d: d, query: query, next: func() (any, error) { return nil, nil }}
	if _, _, err := b.run(); err != nil {
		return 0
	}
	return b.count
}

type binder struct {
	d      *dialect.Dialect
	query  string
	lookup func(name string) (any, error) // named mode
	next   func() (any, error)            // positional mode

	out   strings.Builder
	args  []any
	count int // placeholders seen in the source query
}

func (b *binder) run() (string, []any, error) {
	q := b.query
	b.out.Grow(len(q) + 8)
	i := 0
	for i < len(q) {
		r, w := utf8.DecodeRuneInString(q[i:])
		switch r {
		case '\'', '"', '`':
			j, err := skipQuoted(q, i+w, byte(r), r != '`' && b.d.BackslashEscapes)
			if err != nil {
				return "", nil, err
			}
			b.out.WriteString(q[i:j])
			i = j
			continue
		case '-':
			if strings.HasPrefix(q[i:], "--") {
				j := skipLineComment(q, i+2)
				b.out.WriteString(q[i:j])
				i = j
				continue
			}
		case '/':
			if strings.HasPrefix(q[i:], "/*") {
				j, err := skipBlockComment(q, i+2)
				if err != nil {
					return "", nil, err
				}
				b.out.WriteString(q[i:j])
				i = j
				continue
			}
		case '$':
			if j, ok, err := skipDollarQuoted(q, i); err != nil {
				return "", nil, err
			} else if ok {
				b.out.WriteString(q[i:j])
				i = j
				continue
			}
		case '?':
			if b.next != nil {
				v, err := b.next()
				if err != nil {
					return "", nil, err
				}
				b.count++
				b.emit(v)
				i += w
				continue
			}
		case ':':
			if strings.HasPrefix(q[i:], "::") {
				b.out.WriteString("::")
				i += 2
				continue
			}
			if b.lookup != nil {
				if name, end := parseIdent(q, i+1); name != "" {
					v, err := b.lookup(name)
					if err != nil {
						return "", nil, err
					}
					b.count++
					b.emit(v)
					i = end
					continue
				}
			}
		}
		b.out.WriteString(q[i : i+w])
		i += w
	}
	return b.out.String(), b.args, nil
}

// emit writes the placeholder(s) for v and records its driver value(s).
func (b *binder) emit(v any) {
	rv := reflect.ValueOf(v)
	if isList(rv) {
		n := rv.Len()
		if n == 0 {
			b.out.WriteString("NULL")
			return
		}
		for i := 0; i < n; i++ {
			if i > 0 {
				b.out.WriteString(", ")
			}
			b.placeholder(rv.Index(i).Interface())
		}
		return
	}
	b.placeholder(v)
}

func (b *binder) placeholder(v any) {
	b.args = append(b.args, resolveArg(v))
	b.out.WriteString(b.d.FormatPlaceholder(len(b.args)))
}

// resolveArg coerces Typed values.
func resolveArg(v any) any {
	if t, ok := v.(Typed); ok {
		return schema.TypeCast(t.Value, t.Type)
	}
	return v
}

func resolveAll(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = resolveArg(a)
	}
	return out
}

// isList reports whether v expands into several placeholders. []byte is a scalar.
func isList(v reflect.Value) bool {
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Slice:
		return v.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return true
	}
	return false
}

// skipQuoted returns the index just past the literal whose body starts at i.
// A doubled quote is always an escape; a backslash is one when backslash is set.
func skipQuoted(s string, i int, quote byte, backslash bool) (int, error) {
	for i < len(s) {
		c := s[i]
		i++
		if backslash && c == '\\' {
			i++
			continue
		}
		if c == quote {
			if i < len(s) && s[i] == quote {
				i++
				continue
			}
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: unterminated %c-quoted text", core.ErrBind, quote)
}

func skipLineComment(s string, i int) int {
	for i < len(s) {
		if s[i] == '\n' {
			return i + 1
		}
		i++
	}
	return i
}

func skipBlockComment(s string, i int) (int, error) {
	for i < len(s)-1 {
		if s[i] == '*' && s[i+1] == '/' {
			return i + 2, nil
		}
		i++
	}
	return 0, fmt.Errorf("%w: unterminated block comment", core.ErrBind)
}

// skipDollarQuoted handles $$...$$ and $tag$...$tag$ (PostgreSQL).
func skipDollarQuoted(s string, i int) (int, bool, error) {
	j := i + 1
	for j < len(s) && s[j] != '$' && isIdentRune(rune(s[j])) {
		j++
	}
	if j >= len(s) || s[j] != '$' {
		return 0, false, nil
	}
	// $1 style placeholders are not dollar quotes
	if j > i+1 && unicode.IsDigit(rune(s[i+1])) {
		return 0, false, nil
	}
	tag := s[i : j+1]
	idx := strings.Index(s[j+1:], tag)
	if idx < 0 {
		return 0, true, fmt.Errorf("%w: unterminated dollar-quoted string", core.ErrBind)
	}
	return j + 1 + idx + len(tag), true, nil
}

func isIdentRune(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

func parseIdent(s string, i int) (string, int) {
	start := i
	for i < len(s) {
		r, w := utf8.DecodeRuneInString(s[i:])
		if !isIdentRune(r) {
			break
		}
		i += w
	}
	return s[start:i], i
}
