// Package sqlite provides a SQLite database adapter for LeapRow.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/leapstack-labs/leaprow/pkg/adapter"
	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/leapstack-labs/leaprow/pkg/dialect"

	_ "modernc.org/sqlite" // sqlite driver
)

// driverName is the database/sql name registered by modernc.org/sqlite.
const driverName = "sqlite"

// memoryPath selects a private in-memory database.
const memoryPath = ":memory:"

// Params holds SQLite-specific configuration.
// Parsed from core.Config.Params using mapstructure.
type Params struct {
	// Pragmas applied to every new connection (e.g., journal_mode: WAL)
	Pragmas map[string]string `mapstructure:"pragmas"`
}

// Adapter implements the adapter.Adapter interface for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{BaseSQLAdapter: adapter.NewBase(logger)}
}

// Dialect returns the SQL dialect for this adapter.
func (a *Adapter) Dialect() *dialect.Dialect {
	return dialect.SQLite
}

// Connect establishes a connection to SQLite.
// Use ":memory:" (or an empty path) for an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg core.Config) error {
	var params Params
	if err := core.DecodeParams(cfg.Params, &params); err != nil {
		return err
	}

	dsn := buildDSN(cfg.Path, params)
	a.Logger.Debug("connecting to sqlite", slog.String("path", cfg.Path))

	if err := a.Open(ctx, driverName, dsn, cfg); err != nil {
		return err
	}

	// Every pooled connection to :memory: is a separate database.
	if isMemory(cfg.Path) {
		a.SQL.SetMaxOpenConns(1)
	}
	return nil
}

func isMemory(path string) bool {
	return path == "" || path == memoryPath
}

// buildDSN appends pragmas as _pragma query parameters understood by the driver.
// Foreign keys are enabled unless a pragma overrides it.
func buildDSN(path string, params Params) string {
	if isMemory(path) {
		path = memoryPath
	}

	pragmas := map[string]string{"foreign_keys": "1"}
	for k, v := range params.Pragmas {
		pragmas[strings.ToLower(k)] = v
	}

	keys := make([]string, 0, len(pragmas))
	for k := range pragmas {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := url.Values{}
	for _, k := range keys {
		q.Add("_pragma", fmt.Sprintf("%s(%s)", k, pragmas[k]))
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
