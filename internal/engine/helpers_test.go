package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/schema"
	"github.com/roach88/graphcache/internal/testutil"
)

// fakeAdapter answers with canned functions and records every call. An
// unset function answers with an empty payload.
type fakeAdapter struct {
	mu    sync.Mutex
	calls []string

	create   func(typeKey string, rec ir.RecordJSON) (ir.Payload, error)
	find     func(typeKey, id string) (ir.Payload, error)
	findMany func(typeKey string, ids []string) (ir.Payload, error)
	findAll  func(typeKey string) (ir.Payload, error)
	query    func(typeKey string, q ir.Query) (ir.Payload, error)
	update   func(typeKey string, rec ir.RecordJSON) (ir.Payload, error)
	del      func(typeKey, id string) (ir.Payload, error)
}

func (a *fakeAdapter) record(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, fmt.Sprintf(format, args...))
}

func (a *fakeAdapter) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *fakeAdapter) CreateRecord(_ context.Context, typeKey string, rec ir.RecordJSON) (ir.Payload, error) {
	a.record("create %s", typeKey)
	if a.create == nil {
		return ir.Payload{}, nil
	}
	return a.create(typeKey, rec)
}

func (a *fakeAdapter) FindRecord(_ context.Context, typeKey, id string) (ir.Payload, error) {
	a.record("find %s %s", typeKey, id)
	if a.find == nil {
		return ir.Payload{}, nil
	}
	return a.find(typeKey, id)
}

func (a *fakeAdapter) FindMany(_ context.Context, typeKey string, ids []string) (ir.Payload, error) {
	a.record("find_many %s %s", typeKey, strings.Join(ids, ","))
	if a.findMany == nil {
		return ir.Payload{}, nil
	}
	return a.findMany(typeKey, ids)
}

func (a *fakeAdapter) FindAll(_ context.Context, typeKey string) (ir.Payload, error) {
	a.record("find_all %s", typeKey)
	if a.findAll == nil {
		return ir.Payload{}, nil
	}
	return a.findAll(typeKey)
}

func (a *fakeAdapter) FindQuery(_ context.Context, typeKey string, q ir.Query) (ir.Payload, error) {
	a.record("query %s", typeKey)
	if a.query == nil {
		return ir.Payload{}, nil
	}
	return a.query(typeKey, q)
}

func (a *fakeAdapter) UpdateRecord(_ context.Context, typeKey string, rec ir.RecordJSON) (ir.Payload, error) {
	a.record("update %s", typeKey)
	if a.update == nil {
		return ir.Payload{}, nil
	}
	return a.update(typeKey, rec)
}

func (a *fakeAdapter) DeleteRecord(_ context.Context, typeKey, id string) (ir.Payload, error) {
	a.record("delete %s %s", typeKey, id)
	if a.del == nil {
		return ir.Payload{}, nil
	}
	return a.del(typeKey, id)
}

func blogSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New(
		schema.NewModel("user",
			schema.Attr("name", schema.String, schema.AttrOptional()),
			schema.Attr("age", schema.Number, schema.AttrDefault(int64(0))),
			schema.Attr("role", schema.String, schema.AttrOptional(), schema.AttrReadOnly()),
			schema.HasManyField("posts", "post", "author", schema.RelOptional()),
			schema.HasOneField("profile", "profile", "user", schema.RelOptional()),
		),
		schema.NewModel("post",
			schema.Attr("title", schema.String, schema.AttrOptional()),
			schema.HasOneField("author", "user", "posts", schema.RelOptional()),
			schema.HasManyField("tags", "tag", "", schema.RelOptional()),
			schema.HasManyField("locked", "tag", "", schema.RelOptional(), schema.RelReadOnly()),
		),
		schema.NewModel("profile",
			schema.Attr("bio", schema.String, schema.AttrOptional()),
			schema.HasOneField("user", "user", "profile", schema.RelOptional()),
		),
		schema.NewModel("tag",
			schema.Attr("label", schema.String, schema.AttrOptional()),
		),
		schema.NewModel("comment",
			schema.Attr("body", schema.String, schema.AttrOptional()),
			schema.HasOneField("subject", "post", "", schema.RelOptional(), schema.RelPolymorphic()),
		),
	)
	require.NoError(t, err)
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, adapter Adapter, opts ...Option) *Store {
	t.Helper()
	if adapter == nil {
		adapter = &fakeAdapter{}
	}
	base := []Option{
		WithIDGenerator(testutil.NewSequenceGenerator("gen")),
		WithLogger(discardLogger()),
	}
	return New(blogSchema(t), adapter, append(base, opts...)...)
}

func payload(t *testing.T, s string) ir.Payload {
	t.Helper()
	p, err := ir.DecodePayload(strings.NewReader(s))
	require.NoError(t, err)
	return p
}

func push(t *testing.T, s *Store, js string) {
	t.Helper()
	require.NoError(t, s.PushPayload(payload(t, js)))
}

func mustGet(t *testing.T, s *Store, typeKey, id string) *Record {
	t.Helper()
	rec, ok := s.GetRecord(typeKey, id)
	require.True(t, ok, "record %s:%s not cached", typeKey, id)
	return rec
}

func ref(typeKey, id string) ir.RecordRef { return ir.Ref(typeKey, id) }

func refs(typeKey string, ids ...string) []ir.RecordRef {
	out := make([]ir.RecordRef, len(ids))
	for i, id := range ids {
		out[i] = ir.Ref(typeKey, id)
	}
	return out
}

// assertHasOneInvariant checks every resident record's hasOne fields.
func assertHasOneInvariant(t *testing.T, s *Store) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, typeKey := range s.schema.Types() {
		for _, rec := range s.records.AllOfType(typeKey).Records() {
			for _, name := range rec.model.RelationshipNames() {
				if rec.model.Relationships[name].Kind != schema.HasOne {
					continue
				}
				n := len(rec.rels.CurrentRelationships(name))
				require.LessOrEqual(t, n, 1, "%s.%s has %d current edges", rec.Ref(), name, n)
			}
		}
	}
}
