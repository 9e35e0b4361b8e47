package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphcache/internal/engine"
	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/testutil"
)

func newEngine(t *testing.T, a *Adapter) *engine.Store {
	t.Helper()
	return engine.New(a.schema, a,
		engine.WithIDGenerator(testutil.NewSequenceGenerator("tmp")),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestEngineOverSQLite(t *testing.T) {
	a, db := newTestAdapter(t)
	seed(t, db, `{
		"user":[{"id":"1","name":"Ann","posts":["10"]}],
		"post":[{"id":"10","title":"First","author":"1","tags":[]}]
	}`)
	ctx := context.Background()
	s := newEngine(t, a)

	user, err := s.FindOne(ctx, "user", "1")
	require.NoError(t, err)
	posts, err := user.FetchMany(ctx, "posts")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	first := posts[0]

	draft, err := s.CreateRecord("post", ir.RecordJSON{"title": "Second", "author": "1"})
	require.NoError(t, err)
	require.NoError(t, draft.Save(ctx))
	assert.Equal(t, "srv-1", draft.ID())
	assert.False(t, user.IsDirty())
	assert.Equal(t, []ir.RecordRef{ir.Ref("post", "10"), ir.Ref("post", "srv-1")}, user.GetMany("posts"))

	require.NoError(t, first.Destroy(ctx))
	assert.Equal(t, []ir.RecordRef{ir.Ref("post", "srv-1")}, user.GetMany("posts"))
	assert.Equal(t, []any{"srv-1"}, stored(t, db, "user", "1")["posts"])

	// a fresh session sees what the first one saved
	fresh := newEngine(t, a)
	matched, err := fresh.FindQuery(ctx, "post", ir.Query{"author": "1"})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "Second", matched[0].Get("title"))
	author, ok := matched[0].GetOne("author")
	require.True(t, ok)
	assert.Equal(t, ir.Ref("user", "1"), author)
}

func TestEngineOverSQLite_UpdateRoundTrip(t *testing.T) {
	a, db := newTestAdapter(t)
	seed(t, db, `{"user":[{"id":"1","name":"Ann","age":30}],"profile":[{"id":"p1","user":null}]}`)
	ctx := context.Background()
	s := newEngine(t, a)

	user, err := s.FindOne(ctx, "user", "1")
	require.NoError(t, err)
	profile, err := s.FindOne(ctx, "profile", "p1")
	require.NoError(t, err)

	require.NoError(t, user.Set("age", 31))
	require.NoError(t, user.SetOne("profile", ir.Ref("profile", "p1")))
	require.NoError(t, user.Save(ctx))

	assert.False(t, user.IsDirty())
	assert.Equal(t, int64(31), stored(t, db, "user", "1")["age"])
	assert.Equal(t, "1", stored(t, db, "profile", "p1")["user"])
	assert.False(t, profile.IsDirty(), "both sides share the edge the save confirmed")

	require.NoError(t, profile.Reload(ctx))
	owner, ok := profile.GetOne("user")
	require.True(t, ok)
	assert.Equal(t, ir.Ref("user", "1"), owner)
}
