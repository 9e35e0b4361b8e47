package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/schema"
)

func TestPush_FirstLoadDefaults(t *testing.T) {
	s := newTestStore(t, nil)
	push(t, s, `{"user":[{"id":"1"}]}`)
	u := mustGet(t, s, "user", "1")

	assert.Equal(t, int64(0), u.Get("age"))
	assert.Nil(t, u.Get("name"))
	assert.Empty(t, u.GetMany("posts"))
	assert.False(t, u.IsDirty())
	assert.False(t, u.IsNew())
}

func TestPush_SaveUpgradesClientEdge(t *testing.T) {
	adapter := &fakeAdapter{}
	s := newTestStore(t, adapter)
	push(t, s, `{"user":[{"id":"1","name":"Ann"}],"post":[{"id":"10","title":"Hi"}]}`)
	u := mustGet(t, s, "user", "1")
	p := mustGet(t, s, "post", "10")

	require.NoError(t, u.AddToMany("posts", ref("post", "10")))
	require.Equal(t, 1, s.RelationshipCount())

	adapter.update = func(typeKey string, rec ir.RecordJSON) (ir.Payload, error) {
		assert.Equal(t, "user", typeKey)
		assert.Equal(t, []any{"10"}, rec["posts"])
		return payload(t, `{"user":[{"id":"1","posts":["10"]}],"post":[{"id":"10","author":"1"}]}`), nil
	}
	require.NoError(t, u.Save(context.Background()))

	assert.False(t, u.IsDirty())
	assert.False(t, p.IsDirty())
	assert.False(t, u.IsSaving())
	assert.Equal(t, 1, s.RelationshipCount(), "the client edge is upgraded, not duplicated")
	assert.Equal(t, refs("post", "10"), u.GetMany("posts"))
}

func TestPush_DedupOnMerge(t *testing.T) {
	s := newTestStore(t, nil)
	push(t, s, `{"user":[{"id":"1"}],"post":[{"id":"10"}]}`)
	u := mustGet(t, s, "user", "1")
	p := mustGet(t, s, "post", "10")
	require.NoError(t, p.SetOne("author", ref("user", "1")))

	push(t, s, `{"user":[{"id":"1","posts":["10"]}]}`)

	assert.Equal(t, 1, s.RelationshipCount())
	assert.False(t, u.IsDirty())
	assert.False(t, p.IsDirty())
}

func TestPush_DirtyRecordRefused(t *testing.T) {
	s := newTestStore(t, nil, WithReloadDirty(false))
	push(t, s, `{"user":[{"id":"1","name":"Ann"}]}`)
	u := mustGet(t, s, "user", "1")
	require.NoError(t, u.Set("name", "Local"))

	err := s.PushPayload(payload(t, `{"user":[{"id":"1","name":"Server","age":3}],"post":[{"id":"10"}]}`))

	require.Error(t, err)
	assert.True(t, IsDirtyError(err))
	assert.Equal(t, "Local", u.Get("name"))
	assert.Equal(t, map[string]Change{"name": {Server: "Ann", Client: "Local"}}, u.ChangedAttributes())
	assert.Equal(t, int64(0), u.Get("age"))
	assert.False(t, s.HasRecord("post", "10"), "nothing in the payload is applied")
}

func TestPush_SchemaViolationIsAtomic(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{name: "numeric id", json: `{"user":[{"id":"1"}],"post":[{"id":10}]}`},
		{name: "unknown type", json: `{"user":[{"id":"1"}],"widget":[{"id":"1"}]}`},
		{name: "malformed hasMany", json: `{"user":[{"id":"1","posts":"10"}]}`},
		{name: "numeric relationship id", json: `{"user":[{"id":"1"}],"post":[{"id":"10","author":1}]}`},
		{name: "unknown deleted type", json: `{"user":[{"id":"1"}],"meta":{"deletedRecords":[{"type":"widget","id":"1"}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, nil)
			err := s.PushPayload(payload(t, tt.json))
			require.Error(t, err)
			assert.True(t, IsSchemaError(err))

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.NotEmpty(t, e.Violations)
			assert.False(t, s.HasRecord("user", "1"))
		})
	}
}

func TestPush_AbsentKeyOnReload(t *testing.T) {
	s := newTestStore(t, nil)
	push(t, s, `{"user":[{"id":"1","name":"Ann","age":4,"posts":["10"]},{"id":"2"}],"post":[{"id":"10","author":"1"},{"id":"11"}]}`)
	u1 := mustGet(t, s, "user", "1")
	p10 := mustGet(t, s, "post", "10")
	p11 := mustGet(t, s, "post", "11")
	require.NoError(t, p11.SetOne("author", ref("user", "2")))

	push(t, s, `{"post":[{"id":"10","title":"x"},{"id":"11","title":"y"}]}`)

	_, ok := p10.GetOne("author")
	assert.False(t, ok, "an absent hasOne key disconnects the server edge")
	assert.Empty(t, u1.GetMany("posts"))
	assert.Equal(t, "x", p10.Get("title"))
	assert.False(t, p10.IsDirty())

	author, ok := p11.GetOne("author")
	require.True(t, ok, "client edges survive an absent key")
	assert.Equal(t, ref("user", "2"), author)
	assert.True(t, p11.IsDirty())
	assert.Equal(t, 1, s.RelationshipCount())

	push(t, s, `{"user":[{"id":"1","name":"Bob"}]}`)

	assert.Equal(t, "Bob", u1.Get("name"))
	assert.Equal(t, int64(0), u1.Get("age"), "an absent attribute key means its default")
	assertHasOneInvariant(t, s)
}

func TestPush_RequiredFieldMissingOnReload(t *testing.T) {
	sch, err := schema.New(
		schema.NewModel("user",
			schema.Attr("name", schema.String),
			schema.HasManyField("posts", "post", "author", schema.RelOptional()),
		),
		schema.NewModel("post",
			schema.Attr("title", schema.String, schema.AttrOptional()),
			schema.HasOneField("author", "user", "posts"),
		),
	)
	require.NoError(t, err)

	tests := []struct {
		name  string
		json  string
		field string
	}{
		{name: "attribute", json: `{"user":[{"id":"1","posts":["10"]}]}`, field: "user:1.name"},
		{name: "relationship", json: `{"post":[{"id":"10","title":"x"}]}`, field: "post:10.author"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(sch, &fakeAdapter{}, WithLogger(discardLogger()))
			push(t, s, `{"user":[{"id":"1","name":"Ann","posts":["10"]}],"post":[{"id":"10","author":"1"}]}`)
			u := mustGet(t, s, "user", "1")
			p := mustGet(t, s, "post", "10")

			err := s.PushPayload(payload(t, tt.json))

			require.Error(t, err)
			assert.True(t, IsSchemaError(err))
			var e *Error
			require.ErrorAs(t, err, &e)
			require.Len(t, e.Violations, 1)
			assert.Equal(t, schema.ErrMissingField, e.Violations[0].Code)
			assert.Equal(t, tt.field, e.Violations[0].Field)

			assert.Equal(t, "Ann", u.Get("name"))
			assert.Nil(t, p.Get("title"))
			author, ok := p.GetOne("author")
			require.True(t, ok)
			assert.Equal(t, ref("user", "1"), author)
		})
	}
}

func TestPush_OverwriteClientAttributes(t *testing.T) {
	tests := []struct {
		name       string
		overwrite  bool
		wantValue  any
		wantDirty  bool
		serverName string
	}{
		{name: "client override kept", overwrite: false, wantValue: "Local", wantDirty: true, serverName: "Server"},
		{name: "client override dropped", overwrite: true, wantValue: "Server", wantDirty: false, serverName: "Server"},
		{name: "override equal to new server value", overwrite: false, wantValue: "Local", wantDirty: false, serverName: "Local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, nil, WithOverwriteClientAttributes(tt.overwrite))
			push(t, s, `{"user":[{"id":"1","name":"Ann"}]}`)
			u := mustGet(t, s, "user", "1")
			require.NoError(t, u.Set("name", "Local"))

			push(t, s, `{"user":[{"id":"1","name":"`+tt.serverName+`"}]}`)

			assert.Equal(t, tt.wantValue, u.Get("name"))
			assert.Equal(t, tt.wantDirty, u.IsDirty())
		})
	}
}

func TestPush_ServerMovesHasOneTarget(t *testing.T) {
	s := newTestStore(t, nil)
	push(t, s, `{"user":[{"id":"1","posts":["10"]},{"id":"2"}],"post":[{"id":"10","author":"1"}]}`)
	u1 := mustGet(t, s, "user", "1")
	u2 := mustGet(t, s, "user", "2")
	p := mustGet(t, s, "post", "10")

	push(t, s, `{"user":[{"id":"2","posts":["10"]}]}`)

	author, ok := p.GetOne("author")
	require.True(t, ok)
	assert.Equal(t, ref("user", "2"), author)
	assert.Empty(t, u1.GetMany("posts"))
	assert.False(t, u1.IsDirty(), "a stale server edge is dropped, not marked deleted")
	assert.False(t, u2.IsDirty())
	assert.Equal(t, 1, s.RelationshipCount())
	assertHasOneInvariant(t, s)
}

func TestPush_ServerOmitsEdge(t *testing.T) {
	s := newTestStore(t, nil)
	push(t, s, `{"user":[{"id":"1","posts":["10","11"]}],"post":[{"id":"10","author":"1"},{"id":"11","author":"1"}]}`)
	u := mustGet(t, s, "user", "1")
	p11 := mustGet(t, s, "post", "11")

	push(t, s, `{"user":[{"id":"1","posts":["10"]}]}`)

	assert.Equal(t, refs("post", "10"), u.GetMany("posts"))
	_, ok := p11.GetOne("author")
	assert.False(t, ok)
	assert.False(t, p11.IsDirty())
}

func TestPush_ClientEdgeSurvivesServerOmission(t *testing.T) {
	s := newTestStore(t, nil)
	push(t, s, `{"user":[{"id":"1","posts":["10"]}],"post":[{"id":"10","author":"1"},{"id":"11"}]}`)
	u := mustGet(t, s, "user", "1")
	require.NoError(t, u.AddToMany("posts", ref("post", "11")))

	push(t, s, `{"user":[{"id":"1","posts":["10"]}]}`)

	assert.Equal(t, refs("post", "10", "11"), u.GetMany("posts"))
	assert.True(t, u.IsDirty())
}

func TestPush_SideWithClientOnConflict(t *testing.T) {
	tests := []struct {
		name       string
		sideClient bool
		wantPosts  []ir.RecordRef
		wantDirty  bool
	}{
		{name: "client removal wins", sideClient: true, wantPosts: []ir.RecordRef{}, wantDirty: true},
		{name: "server wins", sideClient: false, wantPosts: refs("post", "10"), wantDirty: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, nil, WithSideWithClientOnConflict(tt.sideClient))
			push(t, s, `{"user":[{"id":"1","posts":["10"]}],"post":[{"id":"10","author":"1"}]}`)
			u := mustGet(t, s, "user", "1")
			require.NoError(t, u.RemoveFromMany("posts", ref("post", "10")))

			push(t, s, `{"user":[{"id":"1","posts":["10"]}]}`)

			assert.Equal(t, tt.wantPosts, u.GetMany("posts"))
			assert.Equal(t, tt.wantDirty, u.IsDirty())
			assert.Equal(t, 1, s.RelationshipCount())
		})
	}
}

func TestPush_LocalAssignmentWinsUntilRollback(t *testing.T) {
	s := newTestStore(t, nil)
	push(t, s, `{"user":[{"id":"1","posts":["10"]},{"id":"2"},{"id":"3"}],"post":[{"id":"10","author":"1"}]}`)
	p := mustGet(t, s, "post", "10")
	require.NoError(t, p.SetOne("author", ref("user", "2")))

	push(t, s, `{"post":[{"id":"10","author":"3"}]}`)

	author, ok := p.GetOne("author")
	require.True(t, ok)
	assert.Equal(t, ref("user", "2"), author)
	assertHasOneInvariant(t, s)

	require.NoError(t, p.Rollback())

	author, ok = p.GetOne("author")
	require.True(t, ok)
	assert.Equal(t, ref("user", "3"), author)
	assert.False(t, p.IsDirty())
	assertHasOneInvariant(t, s)
}

func TestPush_NullHasOne(t *testing.T) {
	s := newTestStore(t, nil)
	push(t, s, `{"user":[{"id":"1","posts":["10"]}],"post":[{"id":"10","author":"1"}]}`)
	u := mustGet(t, s, "user", "1")
	p := mustGet(t, s, "post", "10")

	push(t, s, `{"post":[{"id":"10","author":null}]}`)

	_, ok := p.GetOne("author")
	assert.False(t, ok)
	assert.Empty(t, u.GetMany("posts"))
	assert.Equal(t, 0, s.RelationshipCount())
}

func TestPush_SideLoadedReferenceQueues(t *testing.T) {
	s := newTestStore(t, nil)

	push(t, s, `{"post":[{"id":"10","author":"1"}]}`)
	assert.Equal(t, 1, s.QueuedCount())

	push(t, s, `{"user":[{"id":"1","posts":["10"]}]}`)

	assert.Equal(t, 0, s.QueuedCount())
	assert.Equal(t, 1, s.RelationshipCount())
	u := mustGet(t, s, "user", "1")
	assert.Equal(t, refs("post", "10"), u.GetMany("posts"))
	assert.False(t, u.IsDirty())
}

func TestPush_FirstLoadDefaultReplacesQueuedEdge(t *testing.T) {
	s := newTestStore(t, nil)
	push(t, s, `{"post":[{"id":"10","author":"1"}]}`)

	push(t, s, `{"user":[{"id":"1"}]}`)

	u := mustGet(t, s, "user", "1")
	p := mustGet(t, s, "post", "10")
	assert.Empty(t, u.GetMany("posts"), "a missing key on first load means the default")
	_, ok := p.GetOne("author")
	assert.False(t, ok)
	assert.Equal(t, 0, s.QueuedCount())
	assert.Equal(t, 0, s.RelationshipCount())
}

func TestPush_DeletedRecordsMeta(t *testing.T) {
	s := newTestStore(t, nil)
	push(t, s, `{"post":[{"id":"10","author":"1"}]}`)
	require.Equal(t, 1, s.QueuedCount())

	push(t, s, `{"meta":{"deletedRecords":[{"type":"user","id":"1"}]}}`)

	assert.Equal(t, 0, s.QueuedCount(), "queued edges of a deleted record are erased")
	assert.Equal(t, 0, s.RelationshipCount())
}

func TestPush_EmptyPayload(t *testing.T) {
	s := newTestStore(t, nil)
	require.NoError(t, s.PushPayload(ir.Payload{}))
	require.NoError(t, s.PushPayload(ir.NewPayload()))
}
