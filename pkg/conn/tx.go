package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leaprow/pkg/core"
)

// ErrRolledBack matches the error DoTransaction returns after rolling back
// because of a query error.
var ErrRolledBack = errors.New("transaction rolled back")

// RollbackError is the failure value of DoTransaction when the callback
// fails with a *core.QueryError. The transaction has been rolled back and the
// query error is kept in Cause; it is not propagated through Unwrap.
type RollbackError struct {
	Cause error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%v: %v", ErrRolledBack, e.Cause)
}

// Is matches ErrRolledBack.
func (e *RollbackError) Is(target error) bool { return target == ErrRolledBack }

// DoTransaction runs fn inside a transaction on c and commits when fn returns
// normally. When fn fails with a query error the transaction is rolled back
// and a *RollbackError is returned instead. Any other error is returned as is
// after rolling back. A panic in fn rolls back and is re-raised.
//
// Transactions are flat: if c is already in a transaction, fn joins it and
// DoTransaction neither commits nor rolls back.
func DoTransaction[R any](ctx context.Context, c *Connection, fn func(ctx context.Context) (R, error)) (result R, err error) {
	if c.InTransaction() {
		return fn(ctx)
	}

	var zero R
	if err := c.Begin(ctx); err != nil {
		return zero, err
	}

	settled := false
	defer func() {
		if settled {
			return
		}
		if p := recover(); p != nil {
			_ = c.Rollback()
			panic(p)
		}
	}()

	result, err = fn(ctx)
	if err != nil {
		if rbErr := c.Rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		settled = true
		if core.IsQueryError(err) {
			c.logger.Warn("transaction rolled back",
				slog.String("conn", c.name),
				slog.String("conn_id", c.id),
				slog.String("error", err.Error()))
			return zero, &RollbackError{Cause: err}
		}
		return zero, err
	}

	if err := c.Commit(); err != nil {
		settled = true
		return zero, err
	}
	settled = true
	return result, nil
}
