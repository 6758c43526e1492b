package conn

import (
	"fmt"
	"reflect"

	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/leapstack-labs/leaprow/pkg/dialect"
)

// Paginator yields the LIMIT and OFFSET appended to a query.
type Paginator interface {
	LimitOffset() (limit, offset int)
}

// TotalSetter is implemented by paginators that record the unpaginated row count.
type TotalSetter interface {
	SetTotal(total int64)
}

// Limit selects Count rows starting at Offset.
type Limit struct {
	Count  int
	Offset int
}

// LimitOffset implements Paginator.
func (l Limit) LimitOffset() (int, int) { return l.Count, l.Offset }

// Range is a raw [limit, offset] pair.
type Range [2]int

// LimitOffset implements Paginator.
func (r Range) LimitOffset() (int, int) { return r[0], r[1] }

// Page selects the Number-th page (1-based) of Size rows. Total is filled in
// by operations that count the unpaginated result.
type Page struct {
	Size   int
	Number int
	Total  int64
}

// LimitOffset implements Paginator. Page numbers below 1 are treated as 1.
func (p *Page) LimitOffset() (int, int) {
	n := p.Number
	if n < 1 {
		n = 1
	}
	return p.Size, (n - 1) * p.Size
}

// SetTotal implements TotalSetter.
func (p *Page) SetTotal(total int64) { p.Total = total }

// Pages returns the number of pages needed for Total rows.
func (p *Page) Pages() int {
	if p.Size <= 0 || p.Total <= 0 {
		return 0
	}
	return int((p.Total + int64(p.Size) - 1) / int64(p.Size))
}

// isNilPaginator treats typed nil pointers as absent.
func isNilPaginator(p Paginator) bool {
	if p == nil {
		return true
	}
	rv := reflect.ValueOf(p)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// paginate appends LIMIT/OFFSET to query with the matching arguments. Named
// statements get :_limit and :_offset added to a copy of their parameter map.
// Positional statements written with native $n placeholders get native
// placeholders numbered after their own arguments.
func paginate(d *dialect.Dialect, query string, mode BindMode, args []any, p Paginator) (string, BindMode, []any, error) {
	if isNilPaginator(p) {
		return query, mode, args, nil
	}
	limit, offset := p.LimitOffset()

	mode, params, err := resolveMode(mode, args)
	if err != nil {
		return "", mode, nil, err
	}

	if mode == BindNamed {
		named := make(Named, len(params)+2)
		for k, v := range params {
			named[k] = v
		}
		named["_limit"] = limit
		named["_offset"] = offset
		return query + " LIMIT :_limit OFFSET :_offset", mode, []any{named}, nil
	}

	out := make([]any, 0, len(args)+2)
	out = append(out, args...)
	out = append(out, limit, offset)

	if len(args) > 0 && countPlaceholders(d, query) == 0 {
		if d.Placeholder != dialect.PlaceholderDollar {
			return "", mode, nil, fmt.Errorf("%w: cannot paginate a %s statement without ? placeholders", core.ErrBind, d.Name)
		}
		n := len(args)
		return query + " LIMIT " + d.FormatPlaceholder(n+1) + " OFFSET " + d.FormatPlaceholder(n+2), mode, out, nil
	}
	return query + " LIMIT ? OFFSET ?", mode, out, nil
}
