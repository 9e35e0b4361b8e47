package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphcache/internal/ir"
)

func seed(t *testing.T, db *DB, payload string) {
	t.Helper()
	var p ir.Payload
	require.NoError(t, p.UnmarshalJSON([]byte(payload)))
	require.NoError(t, db.ImportPayload(context.Background(), p))
}

func stored(t *testing.T, db *DB, typeKey, id string) ir.RecordJSON {
	t.Helper()
	rec, ok, err := db.Get(context.Background(), typeKey, id)
	require.NoError(t, err)
	require.True(t, ok, "%s:%s is stored", typeKey, id)
	return rec
}

func TestAdapter_CreateAssignsIDAndAttachesInverse(t *testing.T) {
	a, db := newTestAdapter(t)
	seed(t, db, `{"user":[{"id":"1","posts":[]}]}`)

	p, err := a.CreateRecord(context.Background(), "post", ir.RecordJSON{"id": "TEMP_ID_x", "title": "Hello", "author": "1", "tags": []any{}})

	require.NoError(t, err)
	require.NotNil(t, p.Meta.CreatedRecord)
	assert.Equal(t, "srv-1", p.Meta.CreatedRecord.ID)
	require.Len(t, p.Records["post"], 1)
	assert.Equal(t, "srv-1", p.Records["post"][0]["id"])
	assert.Equal(t, []any{"srv-1"}, stored(t, db, "user", "1")["posts"])
}

func TestAdapter_CreateRejectsInvalidRecord(t *testing.T) {
	a, db := newTestAdapter(t)

	_, err := a.CreateRecord(context.Background(), "post", ir.RecordJSON{"author": "1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "post:srv-1.title")
	n, err := db.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAdapter_CreateDropsUndeclaredFields(t *testing.T) {
	a, db := newTestAdapter(t)

	_, err := a.CreateRecord(context.Background(), "tag", ir.RecordJSON{"label": "go", "color": "blue"})

	require.NoError(t, err)
	assert.Equal(t, ir.RecordJSON{"id": "srv-1", "label": "go"}, stored(t, db, "tag", "srv-1"))
}

func TestAdapter_UpdateMovesInverse(t *testing.T) {
	a, db := newTestAdapter(t)
	seed(t, db, `{
		"user":[{"id":"1","posts":["10"]},{"id":"2","posts":[]}],
		"post":[{"id":"10","title":"Hello","author":"1","tags":[]}]
	}`)

	p, err := a.UpdateRecord(context.Background(), "post", ir.RecordJSON{"id": "10", "author": "2"})

	require.NoError(t, err)
	assert.Equal(t, "Hello", p.Records["post"][0]["title"], "omitted fields keep their stored value")
	assert.Equal(t, []any{}, stored(t, db, "user", "1")["posts"])
	assert.Equal(t, []any{"10"}, stored(t, db, "user", "2")["posts"])
}

func TestAdapter_UpdateHasManySide(t *testing.T) {
	a, db := newTestAdapter(t)
	seed(t, db, `{
		"user":[{"id":"1","posts":["10"]},{"id":"2","posts":["11"]}],
		"post":[{"id":"10","title":"a","author":"1"},{"id":"11","title":"b","author":"2"}]
	}`)

	_, err := a.UpdateRecord(context.Background(), "user", ir.RecordJSON{"id": "1", "posts": []any{"10", "11"}})

	require.NoError(t, err)
	assert.Equal(t, "1", stored(t, db, "post", "11")["author"])
	assert.Equal(t, []any{}, stored(t, db, "user", "2")["posts"], "the post's previous author lets go of it")
}

func TestAdapter_HasOneStealReleasesPreviousHolder(t *testing.T) {
	a, db := newTestAdapter(t)
	seed(t, db, `{
		"user":[{"id":"1","profile":"p1"}],
		"profile":[{"id":"p1","user":"1"},{"id":"p2","user":null}]
	}`)

	_, err := a.UpdateRecord(context.Background(), "profile", ir.RecordJSON{"id": "p2", "user": "1"})

	require.NoError(t, err)
	assert.Equal(t, "p2", stored(t, db, "user", "1")["profile"])
	assert.Nil(t, stored(t, db, "profile", "p1")["user"])
}

func TestAdapter_UpdateMissing(t *testing.T) {
	a, _ := newTestAdapter(t)

	_, err := a.UpdateRecord(context.Background(), "user", ir.RecordJSON{"id": "9"})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdapter_DeleteDetachesInverses(t *testing.T) {
	a, db := newTestAdapter(t)
	seed(t, db, `{
		"user":[{"id":"1","posts":["10","11"]}],
		"post":[{"id":"10","title":"a","author":"1"},{"id":"11","title":"b","author":"1"}]
	}`)

	p, err := a.DeleteRecord(context.Background(), "post", "10")

	require.NoError(t, err)
	assert.Equal(t, []ir.RecordRef{ir.Ref("post", "10")}, p.Meta.DeletedRecords)
	assert.Equal(t, []any{"11"}, stored(t, db, "user", "1")["posts"])
	_, ok, err := db.Get(context.Background(), "post", "10")
	require.NoError(t, err)
	assert.False(t, ok)

	p, err = a.DeleteRecord(context.Background(), "post", "10")
	require.NoError(t, err, "deleting twice is not an error")
	assert.Len(t, p.Meta.DeletedRecords, 1)
}

func TestAdapter_Finds(t *testing.T) {
	a, db := newTestAdapter(t)
	seed(t, db, `{"tag":[{"id":"1","label":"a"},{"id":"2","label":"b"},{"id":"3","label":"c"}]}`)
	ctx := context.Background()

	p, err := a.FindRecord(ctx, "tag", "2")
	require.NoError(t, err)
	assert.Equal(t, []ir.RecordJSON{{"id": "2", "label": "b"}}, p.Records["tag"])

	p, err = a.FindRecord(ctx, "tag", "9")
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())

	p, err = a.FindMany(ctx, "tag", []string{"3", "1"})
	require.NoError(t, err)
	assert.Len(t, p.Records["tag"], 2)

	p, err = a.FindAll(ctx, "tag")
	require.NoError(t, err)
	assert.Len(t, p.Records["tag"], 3)
}

func TestAdapter_FindQuery(t *testing.T) {
	a, db := newTestAdapter(t)
	seed(t, db, `{
		"post":[
			{"id":"10","title":"a","author":"1","draft":true,"tags":["7"]},
			{"id":"11","title":"b","author":"1","draft":false,"tags":["7","8"]},
			{"id":"12","title":"c","author":null,"draft":false,"tags":[]}
		]
	}`)

	tests := []struct {
		name  string
		query ir.Query
		want  []string
	}{
		{name: "hasOne", query: ir.Query{"author": "1"}, want: []string{"10", "11"}},
		{name: "boolean", query: ir.Query{"draft": false}, want: []string{"11", "12"}},
		{name: "conjunction", query: ir.Query{"author": "1", "draft": false}, want: []string{"11"}},
		{name: "membership", query: ir.Query{"tags": "8"}, want: []string{"11"}},
		{name: "null hasOne", query: ir.Query{"author": nil}, want: []string{"12"}},
		{name: "no match", query: ir.Query{"title": "zzz"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := a.FindQuery(context.Background(), "post", tt.query)
			require.NoError(t, err)

			ids := []string{}
			for _, ref := range p.Meta.MatchedRecords {
				ids = append(ids, ref.ID)
			}
			assert.Equal(t, tt.want, ids)
			assert.Len(t, p.Records["post"], len(tt.want))
		})
	}
}

func TestAdapter_FindQueryErrors(t *testing.T) {
	a, _ := newTestAdapter(t)

	_, err := a.FindQuery(context.Background(), "widget", ir.Query{})
	assert.Error(t, err)

	_, err = a.FindQuery(context.Background(), "post", ir.Query{"nope": "x"})
	assert.Error(t, err)
}
