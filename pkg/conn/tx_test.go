package conn

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/leapstack-labs/leaprow/pkg/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commits and returns the result", func(t *testing.T) {
		c, mock := newMockConn(t, dialect.SQLite)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE blog SET heading = ?").WithArgs("x").WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectCommit()

		n, err := DoTransaction(ctx, c, func(ctx context.Context) (int64, error) {
			return c.Execute(ctx, "UPDATE blog SET heading = ?", "x")
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		assert.False(t, c.InTransaction())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error rolls back into a RollbackError", func(t *testing.T) {
		c, mock := newMockConn(t, dialect.SQLite)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO blog (id) VALUES (?)").WithArgs(1).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO blog (id) VALUES (?)").WithArgs(1).WillReturnError(errors.New("UNIQUE constraint failed: blog.id"))
		mock.ExpectRollback()

		_, err := DoTransaction(ctx, c, func(ctx context.Context) (struct{}, error) {
			if _, err := c.Execute(ctx, "INSERT INTO blog (id) VALUES (?)", 1); err != nil {
				return struct{}{}, err
			}
			_, err := c.Execute(ctx, "INSERT INTO blog (id) VALUES (?)", 1)
			return struct{}{}, err
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRolledBack)
		assert.False(t, core.IsQueryError(err), "the query error is not propagated")

		var rb *RollbackError
		require.ErrorAs(t, err, &rb)
		assert.True(t, core.IsQueryError(rb.Cause))
		assert.False(t, c.InTransaction())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other errors propagate after rollback", func(t *testing.T) {
		c, mock := newMockConn(t, dialect.SQLite)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		_, err := DoTransaction(ctx, c, func(context.Context) (int, error) { return 0, boom })
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrRolledBack)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("panic rolls back and is re-raised", func(t *testing.T) {
		c, mock := newMockConn(t, dialect.SQLite)
		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.PanicsWithValue(t, "kaboom", func() {
			_, _ = DoTransaction(ctx, c, func(context.Context) (int, error) { panic("kaboom") })
		})
		assert.False(t, c.InTransaction())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nested calls join the outer transaction", func(t *testing.T) {
		c, mock := newMockConn(t, dialect.SQLite)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM blog").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		_, err := DoTransaction(ctx, c, func(ctx context.Context) (int64, error) {
			return DoTransaction(ctx, c, func(ctx context.Context) (int64, error) {
				assert.True(t, c.InTransaction())
				return c.Execute(ctx, "DELETE FROM blog")
			})
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit failure is returned", func(t *testing.T) {
		c, mock := newMockConn(t, dialect.SQLite)
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

		_, err := DoTransaction(ctx, c, func(context.Context) (int, error) { return 1, nil })
		require.Error(t, err)
		assert.True(t, core.IsQueryError(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
