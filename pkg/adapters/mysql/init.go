// Package mysql provides a MySQL database adapter for LeapRow.
//
// This file registers the MySQL adapter with the adapter registry.
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/leaprow/pkg/adapters/mysql"
package mysql

import (
	"log/slog"

	"github.com/leapstack-labs/leaprow/pkg/adapter"
	"github.com/leapstack-labs/leaprow/pkg/dialect"
)

func init() {
	dialect.Register(dialect.MySQL)
	adapter.Register("mysql", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
	adapter.Register("mariadb", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
