package conn

import (
	"testing"

	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/leapstack-labs/leaprow/pkg/dialect"
	"github.com/leapstack-labs/leaprow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBind(t *testing.T) {
	tests := []struct {
		name     string
		dialect  *dialect.Dialect
		query    string
		mode     BindMode
		args     []any
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "positional question",
			dialect:  dialect.SQLite,
			query:    "SELECT * FROM t WHERE a = ? AND b = ?",
			args:     []any{1, "x"},
			wantSQL:  "SELECT * FROM t WHERE a = ? AND b = ?",
			wantArgs: []any{1, "x"},
		},
		{
			name:     "positional rewritten to dollar",
			dialect:  dialect.Postgres,
			query:    "SELECT * FROM t WHERE a = ? AND b = ?",
			args:     []any{1, "x"},
			wantSQL:  "SELECT * FROM t WHERE a = $1 AND b = $2",
			wantArgs: []any{1, "x"},
		},
		{
			name:     "slice expands",
			dialect:  dialect.Postgres,
			query:    "SELECT * FROM t WHERE a = ? AND id IN (?)",
			args:     []any{"x", []int{1, 2, 3}},
			wantSQL:  "SELECT * FROM t WHERE a = $1 AND id IN ($2, $3, $4)",
			wantArgs: []any{"x", 1, 2, 3},
		},
		{
			name:     "empty slice becomes NULL",
			dialect:  dialect.SQLite,
			query:    "SELECT * FROM t WHERE id IN (?)",
			args:     []any{[]int{}},
			wantSQL:  "SELECT * FROM t WHERE id IN (NULL)",
			wantArgs: []any{},
		},
		{
			name:     "bytes are scalar",
			dialect:  dialect.SQLite,
			query:    "UPDATE t SET b = ?",
			args:     []any{[]byte("raw")},
			wantSQL:  "UPDATE t SET b = ?",
			wantArgs: []any{[]byte("raw")},
		},
		{
			name:     "question mark inside literal is kept",
			dialect:  dialect.Postgres,
			query:    "SELECT '?' AS q, \"a?\" FROM t WHERE id = ?",
			args:     []any{1},
			wantSQL:  "SELECT '?' AS q, \"a?\" FROM t WHERE id = $1",
			wantArgs: []any{1},
		},
		{
			name:     "backslash escaped quote in mysql literal",
			dialect:  dialect.MySQL,
			query:    `SELECT * FROM t WHERE a = 'it\'s ?' AND b = ?`,
			args:     []any{1},
			wantSQL:  `SELECT * FROM t WHERE a = 'it\'s ?' AND b = ?`,
			wantArgs: []any{1},
		},
		{
			name:     "backslash is literal outside mysql",
			dialect:  dialect.Postgres,
			query:    `SELECT * FROM t WHERE path = 'C:\' AND id = ?`,
			args:     []any{1},
			wantSQL:  `SELECT * FROM t WHERE path = 'C:\' AND id = $1`,
			wantArgs: []any{1},
		},
		{
			name:     "native placeholders pass through",
			dialect:  dialect.Postgres,
			query:    "SELECT * FROM t WHERE id = $1",
			args:     []any{1},
			wantSQL:  "SELECT * FROM t WHERE id = $1",
			wantArgs: []any{1},
		},
		{
			name:     "named",
			dialect:  dialect.Postgres,
			query:    "UPDATE t SET a = :a WHERE id = :id",
			args:     []any{Named{"a": "x", "id": 7}},
			wantSQL:  "UPDATE t SET a = $1 WHERE id = $2",
			wantArgs: []any{"x", 7},
		},
		{
			name:     "named repeated",
			dialect:  dialect.SQLite,
			query:    "SELECT * FROM t WHERE a = :v OR b = :v",
			args:     []any{map[string]any{"v": 1}},
			wantSQL:  "SELECT * FROM t WHERE a = ? OR b = ?",
			wantArgs: []any{1, 1},
		},
		{
			name:     "named with typed map",
			dialect:  dialect.SQLite,
			query:    "SELECT * FROM t WHERE a = :a",
			args:     []any{map[string]int{"a": 3}},
			wantSQL:  "SELECT * FROM t WHERE a = ?",
			wantArgs: []any{3},
		},
		{
			name:     "named skips literals comments and casts",
			dialect:  dialect.Postgres,
			query:    "SELECT ':x', id::text FROM t -- :x\nWHERE a = :x /* :x */",
			args:     []any{Named{"x": 1}},
			wantSQL:  "SELECT ':x', id::text FROM t -- :x\nWHERE a = $1 /* :x */",
			wantArgs: []any{1},
		},
		{
			name:     "named slice expands",
			dialect:  dialect.SQLite,
			query:    "SELECT * FROM t WHERE id IN (:ids)",
			args:     []any{Named{"ids": []int64{4, 5}}},
			wantSQL:  "SELECT * FROM t WHERE id IN (?, ?)",
			wantArgs: []any{int64(4), int64(5)},
		},
		{
			name:     "dollar quoted body is skipped",
			dialect:  dialect.Postgres,
			query:    "SELECT $$ ? $$, ?",
			args:     []any{1},
			wantSQL:  "SELECT $$ ? $$, $1",
			wantArgs: []any{1},
		},
		{
			name:     "typed values are coerced",
			dialect:  dialect.SQLite,
			query:    "INSERT INTO t (a, b, c) VALUES (?, ?, ?)",
			args:     []any{T("5", schema.TypeInt), T(1, schema.TypeBool), T(nil, schema.TypeString)},
			wantSQL:  "INSERT INTO t (a, b, c) VALUES (?, ?, ?)",
			wantArgs: []any{int64(5), true, nil},
		},
		{
			name:     "forced positional with no arguments",
			dialect:  dialect.SQLite,
			query:    "SELECT 1",
			mode:     BindPositional,
			wantSQL:  "SELECT 1",
			wantArgs: []any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSQL, gotArgs, err := bind(tt.dialect, tt.query, tt.mode, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, gotSQL)
			assert.Equal(t, tt.wantArgs, gotArgs)
		})
	}
}

func TestBind_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		mode  BindMode
		args  []any
	}{
		{"missing named value", "SELECT :a, :b", BindAuto, []any{Named{"a": 1}}},
		{"too few positional", "SELECT ?, ?", BindAuto, []any{1}},
		{"too many positional", "SELECT ?", BindAuto, []any{1, 2}},
		{"forced named with positional args", "SELECT :a", BindNamed, []any{1}},
		{"forced positional with map", "SELECT ?", BindPositional, []any{Named{"a": 1}}},
		{"unterminated literal", "SELECT 'abc WHERE a = ?", BindAuto, []any{1}},
		{"unterminated comment", "SELECT ? /* oops", BindAuto, []any{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := bind(dialect.SQLite, tt.query, tt.mode, tt.args)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrBind)
		})
	}
}

func TestResolveMode(t *testing.T) {
	mode, params, err := resolveMode(BindAuto, []any{Named{"a": 1}})
	require.NoError(t, err)
	assert.Equal(t, BindNamed, mode)
	assert.Equal(t, map[string]any{"a": 1}, params)

	mode, _, err = resolveMode(BindAuto, []any{1, 2})
	require.NoError(t, err)
	assert.Equal(t, BindPositional, mode)

	// two maps are two positional values
	mode, _, err = resolveMode(BindAuto, []any{Named{}, Named{}})
	require.NoError(t, err)
	assert.Equal(t, BindPositional, mode)

	assert.Equal(t, "named", BindNamed.String())
}
