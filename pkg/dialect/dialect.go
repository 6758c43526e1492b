// Package dialect provides SQL dialect configuration for statement building.
//
// A Dialect describes the few things that differ between database families
// as far as this module is concerned: how identifiers are quoted, how bind
// placeholders are written, and how a generated auto-increment value is read
// back after an INSERT. Concrete dialects are declared here and registered by
// the adapter packages in pkg/adapters/*.
package dialect

import (
	"strconv"
	"strings"
)

// PlaceholderStyle defines how query parameters are formatted.
type PlaceholderStyle int

const (
	// PlaceholderQuestion uses ? for all parameters (DuckDB, MySQL, SQLite).
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar uses $1, $2, etc. for parameters (PostgreSQL).
	PlaceholderDollar
)

// InsertIDStrategy defines how a generated key is read back after INSERT.
type InsertIDStrategy int

const (
	// InsertIDResult reads sql.Result.LastInsertId (MySQL).
	InsertIDResult InsertIDStrategy = iota
	// InsertIDReturning appends RETURNING <column> to the INSERT (PostgreSQL, SQLite, DuckDB).
	InsertIDReturning
)

// IdentifierConfig defines how identifiers are quoted.
type IdentifierConfig struct {
	Quote    string // Quote character: ", `, [
	QuoteEnd string // End quote character (usually same as Quote, ] for [)
	Escape   string // Escape sequence for QuoteEnd inside a name: "", ``, ]]
}

// Dialect represents a SQL dialect configuration.
type Dialect struct {
	Name        string
	Identifiers IdentifierConfig

	DefaultSchema string           // Default schema name ("main" for DuckDB, "public" for Postgres)
	Placeholder   PlaceholderStyle // How to format query parameters
	InsertID      InsertIDStrategy // How generated keys are returned

	// BackslashEscapes is set when a backslash escapes the next character
	// inside string literals ('it\'s'), as in MySQL's default SQL mode.
	BackslashEscapes bool
}

// FormatPlaceholder returns a placeholder for the given parameter index (1-based).
// Returns "?" for PlaceholderQuestion style, "$1", "$2" etc. for PlaceholderDollar style.
func (d *Dialect) FormatPlaceholder(index int) string {
	switch d.Placeholder {
	case PlaceholderDollar:
		return "$" + strconv.Itoa(index)
	default: // PlaceholderQuestion
		return "?"
	}
}

// QuoteIdentifier quotes an identifier using the dialect's quote characters.
func (d *Dialect) QuoteIdentifier(name string) string {
	// Escape any existing quote end characters in the name (e.g., ] -> ]])
	escaped := strings.ReplaceAll(name, d.Identifiers.QuoteEnd, d.Identifiers.Escape)
	return d.Identifiers.Quote + escaped + d.Identifiers.QuoteEnd
}

// QuoteQualified quotes every dot-separated part of a qualified name,
// so "blog.heading" becomes "blog"."heading".
func (d *Dialect) QuoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// SupportsReturning reports whether generated keys come back via RETURNING.
func (d *Dialect) SupportsReturning() bool {
	return d.InsertID == InsertIDReturning
}

// Built-in dialects.
var (
	SQLite = &Dialect{
		Name:          "sqlite",
		Identifiers:   IdentifierConfig{Quote: `"`, QuoteEnd: `"`, Escape: `""`},
		DefaultSchema: "main",
		Placeholder:   PlaceholderQuestion,
		InsertID:      InsertIDReturning,
	}

	Postgres = &Dialect{
		Name:          "postgres",
		Identifiers:   IdentifierConfig{Quote: `"`, QuoteEnd: `"`, Escape: `""`},
		DefaultSchema: "public",
		Placeholder:   PlaceholderDollar,
		InsertID:      InsertIDReturning,
	}

	MySQL = &Dialect{
		Name:             "mysql",
		Identifiers:      IdentifierConfig{Quote: "`", QuoteEnd: "`", Escape: "``"},
		Placeholder:      PlaceholderQuestion,
		InsertID:         InsertIDResult,
		BackslashEscapes: true,
	}

	DuckDB = &Dialect{
		Name:          "duckdb",
		Identifiers:   IdentifierConfig{Quote: `"`, QuoteEnd: `"`, Escape: `""`},
		DefaultSchema: "main",
		Placeholder:   PlaceholderQuestion,
		InsertID:      InsertIDReturning,
	}

	// ANSI is used when no adapter-specific dialect is available.
	ANSI = &Dialect{
		Name:        "ansi",
		Identifiers: IdentifierConfig{Quote: `"`, QuoteEnd: `"`, Escape: `""`},
		Placeholder: PlaceholderQuestion,
		InsertID:    InsertIDReturning,
	}
)
