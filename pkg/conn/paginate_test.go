package conn

import (
	"testing"

	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/leapstack-labs/leaprow/pkg/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPage(t *testing.T) {
	tests := []struct {
		name       string
		page       Page
		wantLimit  int
		wantOffset int
		wantPages  int
	}{
		{"first page", Page{Size: 10, Number: 1, Total: 25}, 10, 0, 3},
		{"third page", Page{Size: 10, Number: 3, Total: 25}, 10, 20, 3},
		{"page zero is first", Page{Size: 5, Number: 0, Total: 5}, 5, 0, 1},
		{"no total", Page{Size: 5, Number: 2}, 5, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, offset := tt.page.LimitOffset()
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
			assert.Equal(t, tt.wantPages, tt.page.Pages())
		})
	}
}

func TestPaginate(t *testing.T) {
	t.Run("nil paginator leaves query alone", func(t *testing.T) {
		var p *Page
		q, mode, args, err := paginate(dialect.SQLite, "SELECT 1", BindAuto, nil, p)
		require.NoError(t, err)
		assert.Equal(t, "SELECT 1", q)
		assert.Equal(t, BindAuto, mode)
		assert.Nil(t, args)
	})

	t.Run("positional", func(t *testing.T) {
		q, mode, args, err := paginate(dialect.SQLite, "SELECT * FROM t WHERE a = ?", BindAuto, []any{"x"}, Limit{Count: 10, Offset: 30})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM t WHERE a = ? LIMIT ? OFFSET ?", q)
		assert.Equal(t, BindPositional, mode)
		assert.Equal(t, []any{"x", 10, 30}, args)
	})

	t.Run("range", func(t *testing.T) {
		q, _, args, err := paginate(dialect.SQLite, "SELECT * FROM t", BindAuto, nil, Range{3, 6})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM t LIMIT ? OFFSET ?", q)
		assert.Equal(t, []any{3, 6}, args)
	})

	t.Run("named copies the parameter map", func(t *testing.T) {
		params := Named{"a": "x"}
		q, mode, args, err := paginate(dialect.SQLite, "SELECT * FROM t WHERE a = :a", BindAuto, []any{params}, &Page{Size: 5, Number: 2})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM t WHERE a = :a LIMIT :_limit OFFSET :_offset", q)
		assert.Equal(t, BindNamed, mode)
		assert.Equal(t, []any{Named{"a": "x", "_limit": 5, "_offset": 5}}, args)
		assert.Len(t, params, 1)
	})

	t.Run("native dollar placeholders", func(t *testing.T) {
		q, _, args, err := paginate(dialect.Postgres, "SELECT * FROM t WHERE id = $1", BindAuto, []any{5}, Limit{Count: 10})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM t WHERE id = $1 LIMIT $2 OFFSET $3", q)
		assert.Equal(t, []any{5, 10, 0}, args)

		bound, bargs, err := bind(dialect.Postgres, q, BindAuto, args)
		require.NoError(t, err)
		assert.Equal(t, q, bound)
		assert.Equal(t, []any{5, 10, 0}, bargs)
	})

	t.Run("question placeholders on postgres", func(t *testing.T) {
		q, _, args, err := paginate(dialect.Postgres, "SELECT * FROM t WHERE id = ?", BindAuto, []any{5}, Limit{Count: 10})
		require.NoError(t, err)
		bound, _, err := bind(dialect.Postgres, q, BindAuto, args)
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM t WHERE id = $1 LIMIT $2 OFFSET $3", bound)
	})

	t.Run("native placeholders without dollar style", func(t *testing.T) {
		_, _, _, err := paginate(dialect.SQLite, "SELECT * FROM t WHERE id = $1", BindAuto, []any{5}, Limit{Count: 10})
		assert.ErrorIs(t, err, core.ErrBind)
	})

	t.Run("contradicting mode", func(t *testing.T) {
		_, _, _, err := paginate(dialect.SQLite, "SELECT * FROM t", BindNamed, []any{1}, Limit{Count: 1})
		require.Error(t, err)
	})
}
