package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/graphcache/internal/schema"
	"github.com/roach88/graphcache/internal/testutil"
)

func createTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New(
		schema.NewModel("user",
			schema.Attr("name", schema.String, schema.AttrOptional()),
			schema.Attr("age", schema.Number, schema.AttrDefault(int64(0))),
			schema.HasManyField("posts", "post", "author", schema.RelOptional()),
			schema.HasOneField("profile", "profile", "user", schema.RelOptional()),
		),
		schema.NewModel("post",
			schema.Attr("title", schema.String),
			schema.Attr("draft", schema.Boolean, schema.AttrOptional()),
			schema.HasOneField("author", "user", "posts", schema.RelOptional()),
			schema.HasManyField("tags", "tag", "", schema.RelOptional()),
		),
		schema.NewModel("profile",
			schema.Attr("bio", schema.String, schema.AttrOptional()),
			schema.HasOneField("user", "user", "profile", schema.RelOptional()),
		),
		schema.NewModel("tag",
			schema.Attr("label", schema.String, schema.AttrOptional()),
		),
	)
	require.NoError(t, err)
	return s
}

func newTestAdapter(t *testing.T) (*Adapter, *DB) {
	t.Helper()
	db := createTestDB(t)
	a := NewAdapter(db, testSchema(t),
		WithIDGenerator(testutil.NewSequenceGenerator("srv")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return a, db
}
