package relationship

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/graphcache/internal/ir"
)

func ids(rels []*Relationship) []string {
	out := make([]string, len(rels))
	for i, r := range rels {
		out[i] = r.ID()
	}
	return out
}

func TestMapAddIsIdempotent(t *testing.T) {
	m := NewMap()
	r := mustNew(t, "r1", "user", "1", "posts", "post", "2", "author", ir.StateServer)

	m.Add("posts", r)
	m.Add("posts", r)
	assert.Equal(t, 1, m.Len())

	m.Add("pinned", r)
	assert.Equal(t, 2, m.Len())
	assert.Len(t, m.GetAll(), 1, "GetAll dedupes across names")
}

func TestMapRemoveAndClear(t *testing.T) {
	m := NewMap()
	r1 := mustNew(t, "r1", "user", "1", "posts", "post", "2", "author", ir.StateServer)
	r2 := mustNew(t, "r2", "user", "1", "posts", "post", "3", "author", ir.StateServer)
	m.Add("posts", r2)
	m.Add("posts", r1)

	assert.Equal(t, []string{"r1", "r2"}, ids(m.Get("posts")))

	assert.True(t, m.Remove("r1"))
	assert.False(t, m.Remove("r1"))
	assert.Equal(t, 1, m.Len())

	m.Clear("posts")
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Get("posts"))
}

func TestStoreViews(t *testing.T) {
	s := NewStore()
	server := mustNew(t, "r1", "user", "1", "posts", "post", "1", "author", ir.StateServer)
	client := mustNew(t, "r2", "user", "1", "posts", "post", "2", "author", ir.StateClient)
	deleted := mustNew(t, "r3", "user", "1", "posts", "post", "3", "author", ir.StateDeleted)

	for _, r := range []*Relationship{server, client, deleted} {
		s.AddRelationship("posts", r)
	}

	assert.Equal(t, []string{"r1", "r3"}, ids(s.ServerRelationships("posts")))
	assert.Equal(t, []string{"r1", "r2"}, ids(s.CurrentRelationships("posts")))
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids(s.ByName("posts")))
	assert.Equal(t, []string{"r2"}, ids(s.ByState(ir.StateClient)))
	assert.True(t, s.HasChanges())

	s.RemoveRelationship("r2")
	s.RemoveRelationship("r3")
	assert.False(t, s.HasChanges())
	assert.Equal(t, 1, s.Len(ir.StateServer))
	assert.Equal(t, []string{"r1"}, ids(s.All()))
}

func TestStoreIgnoresUnnamedSide(t *testing.T) {
	s := NewStore()
	r := mustNew(t, "r1", "user", "1", "tags", "tag", "5", "", ir.StateServer)
	s.AddRelationship("", r)
	assert.Empty(t, s.All())
}
