// Package conn executes parameterized SQL against a single database session
// and keeps the process-wide registry of named connections.
package conn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leaprow/pkg/adapter"
	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/leapstack-labs/leaprow/pkg/dialect"
)

// Transaction state errors.
var (
	ErrTxInProgress  = errors.New("transaction already in progress")
	ErrNoTransaction = errors.New("no transaction in progress")
	ErrClosed        = errors.New("connection is closed")
)

// executor is satisfied by *sql.Conn and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Connection wraps one database session of an adapter. Statements run on a
// single pinned *sql.Conn, or on the open transaction when there is one.
//
// A Connection is not meant for concurrent use: it runs one statement at a
// time and supports one open cursor per driver semantics.
type Connection struct {
	name    string
	id      string
	cfg     core.Config
	adapter adapter.Adapter
	dialect *dialect.Dialect
	logger  *slog.Logger

	mu      sync.Mutex
	session *sql.Conn
	tx      *sql.Tx
	cursors map[int]func() error
	nextCur int
	closed  bool
}

// Create opens a connection for cfg, choosing the adapter by cfg.Kind.
// The connection is named after its kind.
func Create(ctx context.Context, cfg core.Config, logger *slog.Logger) (*Connection, error) {
	return create(ctx, cfg.NormalizedKind(), cfg, logger)
}

func create(ctx context.Context, name string, cfg core.Config, logger *slog.Logger) (*Connection, error) {
	if !cfg.HasKind() {
		return nil, &core.ConnectionError{Name: name, Err: core.ErrConnectionMisconfigured}
	}

	a, err := adapter.NewAdapter(cfg, logger)
	if err != nil {
		return nil, &core.ConnectionError{Name: name, Err: err}
	}
	if a == nil {
		return nil, &core.ConnectionError{Name: name, Err: fmt.Errorf("adapter %q did not produce a connection", cfg.Kind)}
	}
	if err := a.Connect(ctx, cfg); err != nil {
		return nil, &core.ConnectionError{Name: name, Err: err}
	}

	c := New(name, a, logger)
	c.cfg = cfg
	c.logger.Debug("connection created",
		slog.String("conn", name),
		slog.String("conn_id", c.id),
		slog.String("kind", cfg.NormalizedKind()))
	return c, nil
}

// New wraps an adapter that is already connected.
func New(name string, a adapter.Adapter, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := a.Dialect()
	if d == nil {
		d = dialect.ANSI
	}
	return &Connection{
		name:    name,
		id:      uuid.NewString(),
		adapter: a,
		dialect: d,
		logger:  logger,
		cursors: make(map[int]func() error),
	}
}

// Name returns the registry name of the connection.
func (c *Connection) Name() string { return c.name }

// ID returns a unique identifier used to correlate log records.
func (c *Connection) ID() string { return c.id }

// Config returns the bundle the connection was created from. It is the zero
// Config for connections built with New.
func (c *Connection) Config() core.Config { return c.cfg }

// Dialect returns the SQL dialect of the underlying adapter.
func (c *Connection) Dialect() *dialect.Dialect { return c.dialect }

// Adapter returns the underlying adapter.
func (c *Connection) Adapter() adapter.Adapter { return c.adapter }

// Quote quotes a single identifier.
func (c *Connection) Quote(ident string) string { return c.dialect.QuoteIdentifier(ident) }

// QuoteQualified quotes each part of a dotted identifier.
func (c *Connection) QuoteQualified(ident string) string { return c.dialect.QuoteQualified(ident) }

// sessionLocked returns the pinned session, acquiring it on first use.
func (c *Connection) sessionLocked(ctx context.Context) (*sql.Conn, error) {
	if c.closed {
		return nil, &core.ConnectionError{Name: c.name, Err: ErrClosed}
	}
	if c.session != nil {
		return c.session, nil
	}
	s, err := c.openSession(ctx)
	if err != nil {
		return nil, &core.ConnectionError{Name: c.name, Err: err}
	}
	c.session = s
	return s, nil
}

// openSession pins a session through the adapter when it opens sessions
// itself, and straight from its handle otherwise.
func (c *Connection) openSession(ctx context.Context) (*sql.Conn, error) {
	if so, ok := c.adapter.(adapter.SessionOpener); ok {
		return so.Conn(ctx)
	}
	db := c.adapter.DB()
	if db == nil {
		return nil, adapter.ErrNotConnected
	}
	return db.Conn(ctx)
}

func (c *Connection) executor(ctx context.Context) (executor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil {
		return c.tx, nil
	}
	return c.sessionLocked(ctx)
}

// Ping checks that the adapter's handle and the session are alive.
func (c *Connection) Ping(ctx context.Context) error {
	if p, ok := c.adapter.(adapter.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return &core.ConnectionError{Name: c.name, Err: err}
		}
	}
	c.mu.Lock()
	s, err := c.sessionLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.PingContext(ctx); err != nil {
		return &core.ConnectionError{Name: c.name, Err: err}
	}
	return nil
}

// prepare binds args to query for the given mode.
func (c *Connection) prepare(query string, mode BindMode, args []any) (string, []any, error) {
	bound, bargs, err := bind(c.dialect, query, mode, args)
	if err != nil {
		return "", nil, core.NewQueryError(query, err)
	}
	return bound, bargs, nil
}

// StmtExecute binds args to query and executes it. A single Named (or
// string-keyed map) argument selects named binding.
func (c *Connection) StmtExecute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.StmtExecuteMode(ctx, BindAuto, query, args...)
}

// StmtExecuteMode is StmtExecute with an explicit binding mode.
func (c *Connection) StmtExecuteMode(ctx context.Context, mode BindMode, query string, args ...any) (sql.Result, error) {
	bound, bargs, err := c.prepare(query, mode, args)
	if err != nil {
		return nil, err
	}
	ex, err := c.executor(ctx)
	if err != nil {
		return nil, err
	}

	c.logStatement("exec", bound, bargs)
	res, err := ex.ExecContext(ctx, bound, bargs...)
	if err != nil {
		return nil, core.NewQueryError(bound, err)
	}
	return res, nil
}

// StmtQuery binds args to query and runs it, returning the raw rows.
func (c *Connection) StmtQuery(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.StmtQueryMode(ctx, BindAuto, query, args...)
}

// StmtQueryMode is StmtQuery with an explicit binding mode.
func (c *Connection) StmtQueryMode(ctx context.Context, mode BindMode, query string, args ...any) (*sql.Rows, error) {
	bound, bargs, err := c.prepare(query, mode, args)
	if err != nil {
		return nil, err
	}
	return c.query(ctx, bound, bargs)
}

func (c *Connection) query(ctx context.Context, bound string, bargs []any) (*sql.Rows, error) {
	ex, err := c.executor(ctx)
	if err != nil {
		return nil, err
	}
	c.logStatement("query", bound, bargs)
	rows, err := ex.QueryContext(ctx, bound, bargs...)
	if err != nil {
		return nil, core.NewQueryError(bound, err)
	}
	return rows, nil
}

// Execute runs a mutating statement and returns the number of affected rows.
func (c *Connection) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.StmtExecute(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, core.NewQueryError(query, err)
	}
	return n, nil
}

// SelectSingleValue returns the first column of the first row, or nil when
// the query matches no rows. []byte values are returned as string.
func (c *Connection) SelectSingleValue(ctx context.Context, query string, args ...any) (any, error) {
	rows, err := c.StmtQuery(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, core.NewQueryError(query, err)
		}
		return nil, nil
	}

	cols, err := rows.Columns()
	if err != nil {
		return nil, core.NewQueryError(query, err)
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, core.NewQueryError(query, err)
	}
	if b, ok := values[0].([]byte); ok {
		return string(b), nil
	}
	return values[0], nil
}

// ExecInsert runs an INSERT and returns the value generated for idColumn.
// Dialects that support RETURNING read it from the statement itself; others
// use the driver's LastInsertId.
func (c *Connection) ExecInsert(ctx context.Context, query, idColumn string, args ...any) (any, error) {
	if c.dialect.SupportsReturning() {
		return c.SelectSingleValue(ctx, query+" RETURNING "+c.Quote(idColumn), args...)
	}
	res, err := c.StmtExecute(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, core.NewQueryError(query, err)
	}
	return id, nil
}

// Select runs query and returns untyped rows.
func (c *Connection) Select(ctx context.Context, query string, p Paginator, args ...any) (*ResultSet[Row], error) {
	return selectRows(ctx, c, query, BindAuto, p, args, rowHydrator)
}

// SelectOptions configures SelectObjects.
type SelectOptions[T any] struct {
	Paginator Paginator
	Mode      BindMode
	// OnFetch runs on each hydrated row, marking it as loaded from a query.
	OnFetch func(ctx context.Context, row *T) error
}

// SelectObjects runs query and hydrates each row into a new *T. Columns are
// matched to fields by db tag or lower-cased field name; unmatched columns
// are ignored.
func SelectObjects[T any](ctx context.Context, c *Connection, query string, opts SelectOptions[T], args ...any) (*ResultSet[*T], error) {
	var onFetch func(*T) error
	if opts.OnFetch != nil {
		onFetch = func(row *T) error { return opts.OnFetch(ctx, row) }
	}
	hydrate, err := structHydrator(onFetch)
	if err != nil {
		return nil, core.NewQueryError(query, err)
	}
	return selectRows(ctx, c, query, opts.Mode, opts.Paginator, args, hydrate)
}

func selectRows[E any](ctx context.Context, c *Connection, query string, mode BindMode, p Paginator, args []any, hydrate func([]string, []any) (E, error)) (*ResultSet[E], error) {
	paged, mode, args, err := paginate(c.dialect, query, mode, args, p)
	if err != nil {
		return nil, core.NewQueryError(query, err)
	}
	bound, bargs, err := c.prepare(paged, mode, args)
	if err != nil {
		return nil, err
	}
	rows, err := c.query(ctx, bound, bargs)
	if err != nil {
		return nil, err
	}

	id := c.track(rows.Close)
	return newResultSet(rows, bound, hydrate, func() { c.untrack(id) })
}

func (c *Connection) track(closeFn func() error) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextCur++
	c.cursors[c.nextCur] = closeFn
	return c.nextCur
}

func (c *Connection) untrack(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cursors, id)
}

// Begin starts a transaction. Transactions are flat: Begin fails while one
// is already open.
func (c *Connection) Begin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil {
		return core.NewQueryError("BEGIN", ErrTxInProgress)
	}
	s, err := c.sessionLocked(ctx)
	if err != nil {
		return err
	}
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return core.NewQueryError("BEGIN", err)
	}
	c.tx = tx
	c.logger.Debug("transaction begin", slog.String("conn", c.name), slog.String("conn_id", c.id))
	return nil
}

// Commit commits the open transaction.
func (c *Connection) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return core.NewQueryError("COMMIT", ErrNoTransaction)
	}
	err := c.tx.Commit()
	c.tx = nil
	if err != nil {
		return core.NewQueryError("COMMIT", err)
	}
	c.logger.Debug("transaction commit", slog.String("conn", c.name), slog.String("conn_id", c.id))
	return nil
}

// Rollback aborts the open transaction.
func (c *Connection) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return core.NewQueryError("ROLLBACK", ErrNoTransaction)
	}
	err := c.tx.Rollback()
	c.tx = nil
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return core.NewQueryError("ROLLBACK", err)
	}
	c.logger.Debug("transaction rollback", slog.String("conn", c.name), slog.String("conn_id", c.id))
	return nil
}

// InTransaction reports whether a transaction is open.
func (c *Connection) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx != nil
}

// Close closes open cursors, rolls back an open transaction and releases
// the session and the adapter's handle.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cursors := c.cursors
	c.cursors = make(map[int]func() error)
	tx, session := c.tx, c.session
	c.tx, c.session = nil, nil
	c.mu.Unlock()

	var errs []error
	for _, closeFn := range cursors {
		errs = append(errs, closeFn())
	}
	if tx != nil {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, err)
		}
	}
	if session != nil {
		errs = append(errs, session.Close())
	}
	errs = append(errs, c.adapter.Close())

	c.logger.Debug("connection closed", slog.String("conn", c.name), slog.String("conn_id", c.id))
	return errors.Join(errs...)
}

func (c *Connection) logStatement(kind, query string, args []any) {
	c.logger.Debug("statement",
		slog.String("kind", kind),
		slog.String("conn", c.name),
		slog.String("conn_id", c.id),
		slog.String("sql", query),
		slog.Int("args", len(args)))
}
