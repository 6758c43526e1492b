package core

import (
	"errors"
	"fmt"
)

// Configuration problems. These are programming or deployment errors and are
// never retried.
var (
	ErrNoTableInfo      = errors.New("no table descriptor")
	ErrNoPrimaryKey     = errors.New("no primary key or auto-increment field")
	ErrNoWriteFields    = errors.New("no writable fields")
	ErrEmptyConstraints = errors.New("empty constraint set")
	ErrImmutableTable   = errors.New("table is immutable")
	ErrUnsupportedField = errors.New("unsupported field declaration")
	ErrUnknownRouting   = errors.New("unknown connection routing")
	ErrNotEntity        = errors.New("type is not an entity")
)

// Connection problems.
var (
	ErrConnectionNotFound      = errors.New("connection not found")
	ErrConnectionMisconfigured = errors.New("connection config has no kind")
)

// Query problems that are detected before reaching the driver.
var (
	ErrUnknownField = errors.New("unknown field")
	ErrBind         = errors.New("parameter binding failed")
)

// ConfigError reports invalid table or field metadata, or an operation that
// the metadata does not allow (e.g. deleting from an immutable table).
type ConfigError struct {
	Entity string // entity type or table name
	Op     string // operation that detected the problem
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("config error: %s: %v", e.Entity, e.Err)
	}
	return fmt.Sprintf("config error: %s: %s: %v", e.Entity, e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError builds a ConfigError whose cause wraps sentinel with a detail message.
func NewConfigError(entity, op string, sentinel error, format string, args ...any) *ConfigError {
	err := sentinel
	if format != "" {
		err = fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
	}
	return &ConfigError{Entity: entity, Op: op, Err: err}
}

// ConnectionError reports a registry lookup failure or a failure to open a
// database handle.
type ConnectionError struct {
	Name string // registry name, or the driver kind for anonymous connections
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %q: %v", e.Name, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError wraps a failure while preparing, executing or fetching a statement.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	if e.SQL == "" {
		return fmt.Sprintf("query failed: %v", e.Err)
	}
	return fmt.Sprintf("query failed: %v [sql: %s]", e.Err, e.SQL)
}

func (e *QueryError) Unwrap() error { return e.Err }

// NewQueryError wraps err as a QueryError for sql.
func NewQueryError(sql string, err error) *QueryError {
	return &QueryError{SQL: sql, Err: err}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// IsConnectionError reports whether err is (or wraps) a ConnectionError.
func IsConnectionError(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

// IsQueryError reports whether err is (or wraps) a QueryError.
func IsQueryError(err error) bool {
	var target *QueryError
	return errors.As(err, &target)
}
