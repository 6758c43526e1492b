package record_test

import (
	"context"
	"errors"
	"testing"

	"github.com/leapstack-labs/leaprow/internal/testutil"
	"github.com/leapstack-labs/leaprow/pkg/conn"
	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/leapstack-labs/leaprow/pkg/record"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/leaprow/pkg/adapters/sqlite"
)

var errNoHeading = errors.New("heading is required")

type Author struct {
	record.Model `table:"author" conn:"blogdb"`
	ID           int64  `db:"id,pk,autoincr"`
	Name         string `db:"name,unique"`
}

type Blog struct {
	record.Model `table:"blog" conn:"blogdb"`
	ID           int64   `db:"id,pk,autoincr"`
	Heading      string  `db:"heading,unique"`
	Body         *string `db:"body"`
	Tag          string  `db:"tag,index"`
	AuthorID     *int64  `db:"author_id,fk=author"`
	Views        int     `db:"views"`
	Rating       float64 `db:"rating"`
	Published    bool    `db:"published"`
	Hits         int64   `db:"hits,readonly"`

	reads  int
	writes int
}

func (b *Blog) Defaults() { b.Tag = "draft" }

func (b *Blog) AfterRead(context.Context) error {
	b.reads++
	return nil
}

func (b *Blog) BeforeWrite(context.Context) error {
	if b.Heading == "" {
		return errNoHeading
	}
	b.writes++
	return nil
}

// RecentBlog reads the blog table newest first.
type RecentBlog struct {
	Blog `order:"id DESC"`
}

// ReplicaBlog reads from the replica and writes to the primary.
type ReplicaBlog struct {
	Blog `conn:"read=replica,write=blogdb"`
}

type TagLink struct {
	record.Model `table:"tag_link" conn:"blogdb"`
	BlogID       int64  `db:"blog_id,pk"`
	Tag          string `db:"tag,pk"`
	Weight       int    `db:"weight"`
}

type AuditLog struct {
	record.Model `table:"audit_log" conn:"blogdb" immutable:"true"`
	ID           int64  `db:"id,pk,autoincr"`
	Msg          string `db:"msg"`
}

// AuditEntry reads audit_log through its auto-increment field alone.
type AuditEntry struct {
	record.Model `table:"audit_log" conn:"blogdb"`
	ID           int64  `db:"id,autoincr"`
	Msg          string `db:"msg"`
}

func ptr[V any](v V) *V { return &v }

// newRegistry registers "blogdb" and "replica", both pointing at one
// migrated SQLite file.
func newRegistry(t *testing.T) *conn.Registry {
	t.Helper()
	path := testutil.SQLiteFixture(t)
	params := map[string]any{"pragmas": map[string]any{"busy_timeout": "5000"}}

	reg := conn.NewRegistry(testutil.NewTestLogger(t))
	reg.Register("blogdb", core.Config{Kind: "sqlite", Path: path, Params: params})
	reg.Register("replica", core.Config{Kind: "sqlite", Path: path, Params: params})
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func tableOf[T any](t *testing.T, reg *conn.Registry) *record.Table[T] {
	t.Helper()
	tbl, err := record.Of[T](reg)
	require.NoError(t, err)
	return tbl
}

// seedBlogs inserts one blog per heading, with views counting up from 1.
func seedBlogs(t *testing.T, blogs *record.Table[Blog], headings ...string) []*Blog {
	t.Helper()
	out := make([]*Blog, len(headings))
	for i, h := range headings {
		b := blogs.New()
		b.Heading = h
		b.Views = i + 1
		require.NoError(t, blogs.Insert(context.Background(), b))
		out[i] = b
	}
	return out
}

// drain returns a function taking a select's results directly, so calls read
// drain[Blog](t)(blogs.SelectAll(ctx)).
func drain[T any](t *testing.T) func(*conn.ResultSet[*T], error) []*T {
	return func(rs *conn.ResultSet[*T], err error) []*T {
		t.Helper()
		require.NoError(t, err)
		rows, err := rs.GetArray()
		require.NoError(t, err)
		return rows
	}
}
