// Package adapter provides the database backend contract for LeapRow.
//
// This package contains the public contract that all driver backends must implement,
// plus a registry that maps a config bundle's kind discriminator to a backend factory.
// Concrete adapter implementations are in pkg/adapters/ subdirectories and register
// themselves from init().
package adapter

import (
	"context"
	"database/sql"

	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/leapstack-labs/leaprow/pkg/dialect"
)

// Adapter defines the interface that all database adapters must implement.
// It opens one database handle from a config bundle and describes the SQL
// dialect spoken through it.
type Adapter interface {
	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg core.Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// DB returns the underlying handle, or nil before Connect.
	DB() *sql.DB

	// Dialect returns the identifier-quoting and placeholder rules for this backend.
	Dialect() *dialect.Dialect
}

// SessionOpener is implemented by adapters that hand out pinned sessions
// themselves. BaseSQLAdapter implements it.
type SessionOpener interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

// Pinger is implemented by adapters that can check their handle is reachable.
// BaseSQLAdapter implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}
