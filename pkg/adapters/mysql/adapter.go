// Package mysql provides a MySQL database adapter for LeapRow.
package mysql

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/leapstack-labs/leaprow/pkg/adapter"
	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/leapstack-labs/leaprow/pkg/dialect"
)

// driverName is the database/sql name registered by go-sql-driver/mysql.
const driverName = "mysql"

const defaultCharset = "utf8mb4"

// Adapter implements the adapter.Adapter interface for MySQL and MariaDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new MySQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{BaseSQLAdapter: adapter.NewBase(logger)}
}

// Dialect returns the SQL dialect for this adapter.
func (a *Adapter) Dialect() *dialect.Dialect {
	return dialect.MySQL
}

// Connect establishes a connection to MySQL.
func (a *Adapter) Connect(ctx context.Context, cfg core.Config) error {
	dsn := buildMySQLConfig(cfg).FormatDSN()

	a.Logger.Debug("connecting to mysql", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	return a.Open(ctx, driverName, dsn, cfg)
}

// buildMySQLConfig maps a connection bundle onto the driver's config.
// Options become connection parameters; "timeout" is parsed as a duration.
func buildMySQLConfig(cfg core.Config) *mysql.Config {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.ParseTime = true
	// Report matched rather than changed rows, so an UPDATE that rewrites
	// identical values still counts the row.
	mc.ClientFoundRows = true

	charset := cfg.Charset
	if charset == "" {
		charset = defaultCharset
	}
	mc.Params = map[string]string{"charset": charset}

	for k, v := range cfg.Options {
		if k == "timeout" {
			if d, err := time.ParseDuration(v); err == nil {
				mc.Timeout = d
				continue
			}
		}
		mc.Params[k] = v
	}

	return mc
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
