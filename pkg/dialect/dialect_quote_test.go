package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		dialect *Dialect
		input   string
		want    string
	}{
		{"sqlite plain", SQLite, "heading", `"heading"`},
		{"sqlite escapes quote", SQLite, `we"ird`, `"we""ird"`},
		{"postgres plain", Postgres, "blog", `"blog"`},
		{"mysql backtick", MySQL, "order", "`order`"},
		{"mysql escapes backtick", MySQL, "a`b", "`a``b`"},
		{"duckdb plain", DuckDB, "id", `"id"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.QuoteIdentifier(tt.input))
		})
	}
}

func TestQuoteQualified(t *testing.T) {
	assert.Equal(t, `"blog"."heading"`, SQLite.QuoteQualified("blog.heading"))
	assert.Equal(t, "`blog`.`heading`", MySQL.QuoteQualified("blog.heading"))
	assert.Equal(t, `"id"`, Postgres.QuoteQualified("id"))
}

func TestFormatPlaceholder(t *testing.T) {
	assert.Equal(t, "?", SQLite.FormatPlaceholder(3))
	assert.Equal(t, "$3", Postgres.FormatPlaceholder(3))
	assert.Equal(t, "?", MySQL.FormatPlaceholder(1))
}

func TestInsertIDStrategy(t *testing.T) {
	assert.True(t, SQLite.SupportsReturning())
	assert.True(t, Postgres.SupportsReturning())
	assert.False(t, MySQL.SupportsReturning())
}

func TestRegistry(t *testing.T) {
	Register(&Dialect{Name: "Test_Dialect"})

	d, ok := Get("test_dialect")
	assert.True(t, ok)
	assert.Equal(t, "Test_Dialect", d.Name)

	_, ok = Get("ansi")
	assert.True(t, ok, "ansi is registered by default")

	assert.Contains(t, List(), "test_dialect")

	_, ok = Get("nope")
	assert.False(t, ok)
}
