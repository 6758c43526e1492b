package conn_test

import (
	"context"
	"testing"

	"github.com/leapstack-labs/leaprow/internal/testutil"
	"github.com/leapstack-labs/leaprow/pkg/conn"
	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/leaprow/pkg/adapters/sqlite"
)

// openSQLite opens an in-memory database holding three blog rows.
func openSQLite(t *testing.T) *conn.Connection {
	t.Helper()
	ctx := context.Background()

	c, err := conn.Create(ctx, core.Config{Kind: "sqlite"}, testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Execute(ctx, `CREATE TABLE blog (id INTEGER PRIMARY KEY, heading TEXT NOT NULL, views INTEGER)`)
	require.NoError(t, err)
	for i, h := range []string{"one", "two", "three"} {
		_, err := c.Execute(ctx, "INSERT INTO blog (id, heading, views) VALUES (?, ?, ?)", i+1, h, (i+1)*10)
		require.NoError(t, err)
	}
	return c
}

func TestResultSet_FirstRowDoesNotConsume(t *testing.T) {
	c := openSQLite(t)
	rs, err := c.Select(context.Background(), "SELECT id, heading FROM blog ORDER BY id", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "heading"}, rs.Columns())
	assert.True(t, rs.HasRows())
	first, ok := rs.FirstRow()
	require.True(t, ok)
	assert.Equal(t, conn.Row{"id": int64(1), "heading": "one"}, first)
	assert.Equal(t, -1, rs.Offset())

	rows, err := rs.GetArray()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, first, rows[0])
}

func TestResultSet_SinglePass(t *testing.T) {
	c := openSQLite(t)
	rs, err := c.Select(context.Background(), "SELECT id FROM blog ORDER BY id", nil)
	require.NoError(t, err)

	require.True(t, rs.Next())
	assert.Equal(t, 0, rs.Offset())
	assert.Equal(t, int64(1), rs.Row()["id"])

	rest, err := rs.GetArray()
	require.NoError(t, err)
	assert.Equal(t, []conn.Row{{"id": int64(2)}, {"id": int64(3)}}, rest)

	again, err := rs.GetArray()
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.NotNil(t, again)
}

func TestResultSet_Empty(t *testing.T) {
	c := openSQLite(t)
	rs, err := c.Select(context.Background(), "SELECT id FROM blog WHERE id > ?", nil, 100)
	require.NoError(t, err)

	assert.False(t, rs.HasRows())
	_, ok := rs.FirstRow()
	assert.False(t, ok)
	assert.False(t, rs.Next())
	require.NoError(t, rs.Err())
	require.NoError(t, rs.Close())
}

func TestResultSet_GetMap(t *testing.T) {
	ctx := context.Background()
	c := openSQLite(t)

	t.Run("offset keys and whole rows", func(t *testing.T) {
		rs, err := c.Select(ctx, "SELECT id FROM blog ORDER BY id", nil)
		require.NoError(t, err)
		m, err := rs.GetMap(nil, nil)
		require.NoError(t, err)
		assert.Equal(t, map[any]any{
			0: conn.Row{"id": int64(1)},
			1: conn.Row{"id": int64(2)},
			2: conn.Row{"id": int64(3)},
		}, m)
	})

	t.Run("column key and value", func(t *testing.T) {
		rs, err := c.Select(ctx, "SELECT id, heading FROM blog ORDER BY id", nil)
		require.NoError(t, err)
		m, err := rs.GetMap(rs.Field("heading"), rs.FieldValue("id"))
		require.NoError(t, err)
		assert.Equal(t, map[any]any{"one": int64(1), "two": int64(2), "three": int64(3)}, m)
	})

	t.Run("typed collect", func(t *testing.T) {
		rs, err := c.Select(ctx, "SELECT id, views FROM blog ORDER BY id", nil)
		require.NoError(t, err)
		m, err := conn.Collect(rs,
			func(r conn.Row, _ int) int64 { return r["id"].(int64) },
			func(r conn.Row, _ int) int64 { return r["views"].(int64) })
		require.NoError(t, err)
		assert.Equal(t, map[int64]int64{1: 10, 2: 20, 3: 30}, m)
	})
}

func TestResultSet_GetColumn(t *testing.T) {
	c := openSQLite(t)
	rs, err := c.Select(context.Background(), "SELECT id, heading FROM blog ORDER BY id DESC", nil)
	require.NoError(t, err)

	headings, err := rs.GetColumn("heading")
	require.NoError(t, err)
	assert.Equal(t, []any{"three", "two", "one"}, headings)
}

func TestResultSet_AllStopsEarly(t *testing.T) {
	ctx := context.Background()
	c := openSQLite(t)
	rs, err := c.Select(ctx, "SELECT id FROM blog ORDER BY id", nil)
	require.NoError(t, err)

	var seen []int
	for off, row := range rs.All() {
		seen = append(seen, off)
		if row["id"] == int64(2) {
			break
		}
	}
	assert.Equal(t, []int{0, 1}, seen)
	assert.False(t, rs.Next(), "cursor is closed after an early break")

	// the session is free for the next statement
	n, err := c.SelectSingleValue(ctx, "SELECT count(*) FROM blog")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

type blogTitle struct {
	ID      int64
	Heading string `db:"heading"`
}

func TestSelectObjects_Paginated(t *testing.T) {
	ctx := context.Background()
	c := openSQLite(t)

	page := &conn.Page{Size: 2, Number: 2}
	rs, err := conn.SelectObjects(ctx, c, "SELECT id, heading FROM blog ORDER BY id", conn.SelectOptions[blogTitle]{Paginator: page})
	require.NoError(t, err)

	rows, err := rs.GetArray()
	require.NoError(t, err)
	assert.Equal(t, []*blogTitle{{ID: 3, Heading: "three"}}, rows)
	assert.Equal(t, "three", conn.FieldOf(rows[0], "heading"))
	assert.Nil(t, conn.FieldOf(rows[0], "missing"))
}

func TestConnection_TransactionRollbackOnSQLite(t *testing.T) {
	ctx := context.Background()
	c := openSQLite(t)

	_, err := conn.DoTransaction(ctx, c, func(ctx context.Context) (int64, error) {
		if _, err := c.Execute(ctx, "DELETE FROM blog WHERE id = ?", 1); err != nil {
			return 0, err
		}
		return c.Execute(ctx, "INSERT INTO blog (id, heading) VALUES (?, ?)", 2, "duplicate")
	})
	require.ErrorIs(t, err, conn.ErrRolledBack)

	n, err := c.SelectSingleValue(ctx, "SELECT count(*) FROM blog")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "the delete was rolled back")
}
