package record_test

import (
	"context"
	"database/sql"
	"math"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/leaprow/internal/testutil"
	"github.com/leapstack-labs/leaprow/pkg/conn"
	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/leapstack-labs/leaprow/pkg/dialect"
	"github.com/leapstack-labs/leaprow/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAdapter struct {
	db *sql.DB
	d  *dialect.Dialect
}

func (m *mockAdapter) Connect(context.Context, core.Config) error { return nil }
func (m *mockAdapter) Close() error                               { return nil }
func (m *mockAdapter) DB() *sql.DB                                { return m.db }
func (m *mockAdapter) Dialect() *dialect.Dialect                  { return m.d }

// mockTable serves Blog from a sqlmock handle registered as "blogdb".
func mockTable(t *testing.T, d *dialect.Dialect) (*record.Table[Blog], sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reg := conn.NewRegistry(testutil.NewTestLogger(t))
	require.True(t, reg.RegisterConnection("blogdb", conn.New("blogdb", &mockAdapter{db: db, d: d}, nil)))
	return tableOf[Blog](t, reg), mock
}

var blogColumns = []string{"id", "heading", "body", "tag", "author_id", "views", "rating", "published", "hits"}

const selectBlog = `SELECT "id", "heading", "body", "tag", "author_id", "views", "rating", "published", "hits" FROM "blog"`

func TestStatements_SelectBy(t *testing.T) {
	blogs, mock := mockTable(t, dialect.Postgres)
	mock.ExpectQuery(selectBlog+` WHERE "author_id" IS NULL AND "tag" = $1 AND "views" IN ($2, $3)`).
		WithArgs("go", 1, 2).
		WillReturnRows(sqlmock.NewRows(blogColumns))

	rs, err := blogs.SelectBy(context.Background(), record.Where{
		"views":     []int{1, 2},
		"author_id": nil,
		"tag":       "go",
	})
	require.NoError(t, err)
	assert.False(t, rs.HasRows())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatements_UnchangedUpdateIssuesNothing(t *testing.T) {
	ctx := context.Background()
	blogs, mock := mockTable(t, dialect.Postgres)
	mock.ExpectQuery(selectBlog + ` WHERE "id" = $1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(blogColumns).
			AddRow(int64(1), "good", nil, "", nil, int64(3), 0.0, int64(0), int64(0)))

	b, err := blogs.SelectByPK(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, b)

	status, err := blogs.Update(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, record.UpdateUnchanged, status)
	require.NoError(t, mock.ExpectationsWereMet())

	b.Heading = "better"
	mock.ExpectExec(`UPDATE "blog" SET "heading" = $1 WHERE "id" = $2`).
		WithArgs("better", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	status, err = blogs.Update(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, record.UpdateApplied, status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatements_NaNRatingIsUnchanged(t *testing.T) {
	ctx := context.Background()
	blogs, mock := mockTable(t, dialect.Postgres)
	mock.ExpectQuery(selectBlog + ` WHERE "id" = $1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(blogColumns).
			AddRow(int64(1), "good", nil, "", nil, int64(3), math.NaN(), int64(0), int64(0)))

	b, err := blogs.SelectByPK(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, b)
	require.True(t, math.IsNaN(b.Rating))

	changed, err := blogs.Changed(b)
	require.NoError(t, err)
	assert.Empty(t, changed)

	status, err := blogs.Update(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, record.UpdateUnchanged, status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatements_InsertLastInsertID(t *testing.T) {
	blogs, mock := mockTable(t, dialect.MySQL)
	mock.ExpectExec("INSERT INTO `blog` (`heading`, `body`, `tag`, `author_id`, `views`, `rating`, `published`) VALUES (?, ?, ?, ?, ?, ?, ?)").
		WithArgs("hello", nil, "draft", nil, 0, 0.0, false).
		WillReturnResult(sqlmock.NewResult(42, 1))

	b := blogs.New()
	b.Heading = "hello"
	require.NoError(t, blogs.Insert(context.Background(), b))
	assert.Equal(t, int64(42), b.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatements_PagedSelectAll(t *testing.T) {
	blogs, mock := mockTable(t, dialect.SQLite)
	mock.ExpectQuery(`SELECT COUNT(*) FROM "blog"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))
	mock.ExpectQuery(selectBlog+` ORDER BY "views" DESC LIMIT ? OFFSET ?`).
		WithArgs(2, 2).
		WillReturnRows(sqlmock.NewRows(blogColumns))

	page := &conn.Page{Size: 2, Number: 2}
	_, err := blogs.SelectAll(context.Background(), record.WithPage(page), record.WithOrder(record.Desc("views")))
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatements_DeleteUsesSnapshotKey(t *testing.T) {
	ctx := context.Background()
	blogs, mock := mockTable(t, dialect.SQLite)
	mock.ExpectQuery(selectBlog + ` WHERE "id" = ?`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(blogColumns).
			AddRow(int64(7), "x", "body", "", nil, int64(0), 0.0, int64(1), int64(0)))
	mock.ExpectExec(`DELETE FROM "blog" WHERE "id" = ?`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	b, err := blogs.SelectByPK(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, b.Published)
	b.ID = 99

	n, err := blogs.Delete(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
