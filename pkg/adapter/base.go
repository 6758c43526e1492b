package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leaprow/pkg/core"
)

// ErrNotConnected is returned when an operation needs a handle before Connect.
var ErrNotConnected = fmt.Errorf("database connection not established")

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, DB, Conn and Ping implementations.
type BaseSQLAdapter struct {
	SQL    *sql.DB
	Cfg    core.Config
	Logger *slog.Logger
}

// NewBase returns a BaseSQLAdapter with a non-nil logger.
func NewBase(logger *slog.Logger) BaseSQLAdapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return BaseSQLAdapter{Logger: logger}
}

// DB returns the underlying handle.
func (b *BaseSQLAdapter) DB() *sql.DB {
	return b.SQL
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.SQL != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection", slog.String("kind", b.Cfg.Kind))
		}
		err := b.SQL.Close()
		b.SQL = nil
		return err
	}
	return nil
}

// Conn pins a single session from the pool.
func (b *BaseSQLAdapter) Conn(ctx context.Context) (*sql.Conn, error) {
	if b.SQL == nil {
		return nil, ErrNotConnected
	}
	c, err := b.SQL.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return c, nil
}

// Ping verifies the handle is reachable.
func (b *BaseSQLAdapter) Ping(ctx context.Context) error {
	if b.SQL == nil {
		return ErrNotConnected
	}
	if err := b.SQL.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.SQL != nil
}

// Open opens and pings a handle for driverName, storing it on success.
// The handle is closed again if the ping fails.
func (b *BaseSQLAdapter) Open(ctx context.Context, driverName, dsn string, cfg core.Config) error {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("failed to open %s connection: %w", driverName, err)
	}
	return b.Attach(ctx, db, cfg)
}

// Attach pings an already opened handle and stores it on success.
// Used by adapters that open through a driver.Connector.
func (b *BaseSQLAdapter) Attach(ctx context.Context, db *sql.DB, cfg core.Config) error {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping %s: %w", cfg.NormalizedKind(), err)
	}

	b.SQL = db
	b.Cfg = cfg
	return nil
}
