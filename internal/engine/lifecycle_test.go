package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphcache/internal/ir"
)

func TestCreateRecord_SaveAssignsPermanentID(t *testing.T) {
	adapter := &fakeAdapter{}
	s := newTestStore(t, adapter)
	push(t, s, `{"post":[{"id":"10"}]}`)
	p := mustGet(t, s, "post", "10")

	u, err := s.CreateRecord("user", ir.RecordJSON{"name": "Ann", "posts": []any{"10"}})
	require.NoError(t, err)

	tempID := u.ID()
	assert.Equal(t, "TEMP_ID_gen-1", tempID)
	assert.True(t, u.IsNew())
	assert.True(t, u.IsDirty())
	author, ok := p.GetOne("author")
	require.True(t, ok)
	assert.Equal(t, ref("user", tempID), author)

	adapter.create = func(typeKey string, rec ir.RecordJSON) (ir.Payload, error) {
		assert.Equal(t, "Ann", rec["name"])
		assert.Equal(t, []any{"10"}, rec["posts"])
		return payload(t, `{"user":[{"id":"100","name":"Ann","posts":["10"]}],"meta":{"createdRecord":{"id":"100"}}}`), nil
	}
	require.NoError(t, u.Save(context.Background()))

	assert.Equal(t, "100", u.ID())
	assert.False(t, u.IsNew())
	assert.False(t, u.IsCreating())
	assert.False(t, u.IsDirty())
	assert.False(t, p.IsDirty())
	assert.False(t, s.HasRecord("user", tempID))
	assert.Same(t, u, mustGet(t, s, "user", "100"))

	author, ok = p.GetOne("author")
	require.True(t, ok)
	assert.Equal(t, ref("user", "100"), author)
	assert.Equal(t, 1, s.RelationshipCount())
}

func TestCreateRecord_IDFromSingleRecord(t *testing.T) {
	adapter := &fakeAdapter{
		create: func(string, ir.RecordJSON) (ir.Payload, error) {
			p := ir.NewPayload()
			p.Add("user", ir.RecordJSON{"id": "7", "name": "Ann"})
			return p, nil
		},
	}
	s := newTestStore(t, adapter)
	u, err := s.CreateRecord("user", ir.RecordJSON{"name": "Ann"})
	require.NoError(t, err)

	require.NoError(t, s.SaveRecord(context.Background(), u))

	assert.Equal(t, "7", u.ID())
	assert.False(t, u.IsDirty())
}

func TestCreateRecord_MissingCreatedID(t *testing.T) {
	adapter := &fakeAdapter{
		create: func(string, ir.RecordJSON) (ir.Payload, error) {
			p := ir.NewPayload()
			p.Add("user", ir.RecordJSON{"id": "7"}, ir.RecordJSON{"id": "8"})
			return p, nil
		},
	}
	s := newTestStore(t, adapter)
	u, err := s.CreateRecord("user", nil)
	require.NoError(t, err)

	err = s.SaveRecord(context.Background(), u)

	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeMissingCreatedID, code)
	assert.True(t, u.IsNew())
	assert.False(t, s.HasRecord("user", "7"))
}

func TestCreateRecord_RejectedResponseKeepsTemporaryID(t *testing.T) {
	tests := []struct {
		name     string
		response string
		opts     []Option
		wantCode ErrorCode
	}{
		{
			name:     "schema violation",
			response: `{"user":[{"id":"5","posts":7}],"meta":{"createdRecord":{"id":"5"}}}`,
			wantCode: ErrCodeSchemaViolation,
		},
		{
			name:     "dirty side-loaded record",
			response: `{"user":[{"id":"5","posts":["10"]}],"post":[{"id":"10","author":"5"},{"id":"11","title":"Server"}],"meta":{"createdRecord":{"id":"5"}}}`,
			opts:     []Option{WithReloadDirty(false)},
			wantCode: ErrCodeDirtyReload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := &fakeAdapter{
				create: func(string, ir.RecordJSON) (ir.Payload, error) { return payload(t, tt.response), nil },
			}
			s := newTestStore(t, adapter, tt.opts...)
			push(t, s, `{"post":[{"id":"10"},{"id":"11","title":"Hi"}]}`)
			p10 := mustGet(t, s, "post", "10")
			p11 := mustGet(t, s, "post", "11")
			require.NoError(t, p11.Set("title", "Local"))

			u, err := s.CreateRecord("user", ir.RecordJSON{"name": "Ann", "posts": []any{"10"}})
			require.NoError(t, err)
			tempID := u.ID()

			err = u.Save(context.Background())

			code, ok := CodeOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tempID, u.ID())
			assert.True(t, u.IsNew())
			assert.True(t, u.IsDirty())
			assert.False(t, u.IsCreating())
			assert.Same(t, u, mustGet(t, s, "user", tempID))
			assert.False(t, s.HasRecord("user", "5"))

			author, ok := p10.GetOne("author")
			require.True(t, ok)
			assert.Equal(t, ref("user", tempID), author)
			assert.Equal(t, "Local", p11.Get("title"))
		})
	}
}

func TestCreateRecord_Errors(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.CreateRecord("widget", nil)
	assert.True(t, IsSchemaError(err))

	_, err = s.CreateRecord("user", ir.RecordJSON{"posts": "10"})
	assert.True(t, IsSchemaError(err))
	assert.Empty(t, s.CachedRecords("user"))
}

func TestCreateRecord_ReadOnlyInitializer(t *testing.T) {
	s := newTestStore(t, nil)

	u, err := s.CreateRecord("user", ir.RecordJSON{"role": "admin"})
	require.NoError(t, err)

	assert.Equal(t, "admin", u.Get("role"))
	assert.True(t, IsReadOnlyError(u.Set("role", "guest")))
}

func TestSave_AdapterErrorAppliesNothing(t *testing.T) {
	boom := errors.New("boom")
	adapter := &fakeAdapter{
		update: func(string, ir.RecordJSON) (ir.Payload, error) { return ir.Payload{}, boom },
	}
	s := newTestStore(t, adapter)
	push(t, s, `{"user":[{"id":"1","name":"Ann"}]}`)
	u := mustGet(t, s, "user", "1")
	require.NoError(t, u.Set("name", "Bob"))

	err := u.Save(context.Background())

	require.ErrorIs(t, err, boom)
	_, isStoreErr := CodeOf(err)
	assert.False(t, isStoreErr, "adapter errors are not converted")
	assert.True(t, u.IsDirty())
	assert.False(t, u.IsSaving())
	assert.False(t, u.IsInTransit())
}

func TestSave_EmptyResponseSynthesizesPayload(t *testing.T) {
	adapter := &fakeAdapter{}
	s := newTestStore(t, adapter, WithReloadDirty(false))
	push(t, s, `{"user":[{"id":"1","name":"Ann"}]}`)
	u := mustGet(t, s, "user", "1")
	require.NoError(t, u.Set("name", "Bob"))

	require.NoError(t, u.Save(context.Background()))

	assert.False(t, u.IsDirty())
	assert.Equal(t, "Bob", u.Get("name"))
	assert.Empty(t, u.ChangedAttributes())
	assert.Equal(t, []string{"update user"}, adapter.Calls())
}

func TestSave_EdgeToSavedRecordDoesNotBlock(t *testing.T) {
	tests := []struct {
		name       string
		localTitle bool
		wantCode   ErrorCode
	}{
		{name: "dirty only through the saved edge"},
		{name: "own attribute change", localTitle: true, wantCode: ErrCodeDirtyReload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := &fakeAdapter{
				update: func(string, ir.RecordJSON) (ir.Payload, error) {
					return payload(t, `{"user":[{"id":"1","name":"Ann","posts":["10"]}],"post":[{"id":"10","title":"Hi","author":"1"}]}`), nil
				},
			}
			s := newTestStore(t, adapter, WithReloadDirty(false))
			push(t, s, `{"user":[{"id":"1","name":"Ann"}],"post":[{"id":"10","title":"Hi"}]}`)
			u := mustGet(t, s, "user", "1")
			p := mustGet(t, s, "post", "10")
			require.NoError(t, u.AddToMany("posts", ref("post", "10")))
			if tt.localTitle {
				require.NoError(t, p.Set("title", "Local"))
			}

			err := u.Save(context.Background())

			assert.Equal(t, []string{"update user"}, adapter.Calls())
			if tt.wantCode != "" {
				code, _ := CodeOf(err)
				assert.Equal(t, tt.wantCode, code)
				assert.True(t, p.IsDirty())
				return
			}
			require.NoError(t, err)
			assert.False(t, u.IsDirty())
			assert.False(t, p.IsDirty())
			assert.Equal(t, 1, s.RelationshipCount())
		})
	}
}

func TestDelete_NewRecordIsLocal(t *testing.T) {
	adapter := &fakeAdapter{}
	s := newTestStore(t, adapter)
	push(t, s, `{"post":[{"id":"10"}]}`)
	p := mustGet(t, s, "post", "10")
	u, err := s.CreateRecord("user", ir.RecordJSON{"posts": []any{"10"}})
	require.NoError(t, err)

	require.NoError(t, u.Destroy(context.Background()))

	assert.Empty(t, adapter.Calls())
	assert.True(t, u.IsDeleted())
	assert.False(t, s.HasRecord("user", u.ID()))
	_, ok := p.GetOne("author")
	assert.False(t, ok)
	assert.False(t, p.IsDirty())
	assert.Equal(t, 0, s.RelationshipCount())
}

func TestDelete_WhileCreating(t *testing.T) {
	s := newTestStore(t, nil)
	u, err := s.CreateRecord("user", nil)
	require.NoError(t, err)

	s.mu.Lock()
	u.creating = true
	s.mu.Unlock()

	err = s.DeleteRecord(context.Background(), u)
	code, _ := CodeOf(err)
	assert.Equal(t, ErrCodeRecordCreating, code)
	assert.False(t, u.IsDeleted())
}

func TestDelete_ServerRecord(t *testing.T) {
	adapter := &fakeAdapter{
		del: func(typeKey, id string) (ir.Payload, error) {
			p := ir.NewPayload()
			p.Meta.DeletedRecords = []ir.RecordRef{ir.Ref(typeKey, id)}
			return p, nil
		},
	}
	s := newTestStore(t, adapter)
	push(t, s, `{"user":[{"id":"1","posts":["10"]}],"post":[{"id":"10","author":"1"}]}`)
	u := mustGet(t, s, "user", "1")
	p := mustGet(t, s, "post", "10")

	require.NoError(t, u.Destroy(context.Background()))

	assert.Equal(t, []string{"delete user 1"}, adapter.Calls())
	assert.True(t, u.IsDeleted())
	assert.False(t, u.IsDeleting())
	_, ok := p.GetOne("author")
	assert.False(t, ok)
	assert.Equal(t, 0, s.RelationshipCount())
	assert.True(t, IsDeletedError(u.Destroy(context.Background())))
}

func TestReload(t *testing.T) {
	t.Run("fresh data", func(t *testing.T) {
		adapter := &fakeAdapter{
			find: func(string, string) (ir.Payload, error) {
				p := ir.NewPayload()
				p.Add("user", ir.RecordJSON{"id": "1", "name": "Fresh"})
				return p, nil
			},
		}
		s := newTestStore(t, adapter)
		push(t, s, `{"user":[{"id":"1","name":"Ann"}]}`)
		u := mustGet(t, s, "user", "1")

		require.NoError(t, u.Reload(context.Background()))

		assert.Equal(t, "Fresh", u.Get("name"))
		assert.False(t, u.IsReloading())
	})

	t.Run("dirty with reloadDirty off", func(t *testing.T) {
		adapter := &fakeAdapter{}
		s := newTestStore(t, adapter, WithReloadDirty(false))
		push(t, s, `{"user":[{"id":"1","name":"Ann"}]}`)
		u := mustGet(t, s, "user", "1")
		require.NoError(t, u.Set("name", "Bob"))

		err := u.Reload(context.Background())

		assert.True(t, IsDirtyError(err))
		assert.Empty(t, adapter.Calls())
	})

	t.Run("new record", func(t *testing.T) {
		s := newTestStore(t, nil)
		u, err := s.CreateRecord("user", nil)
		require.NoError(t, err)

		code, _ := CodeOf(u.Reload(context.Background()))
		assert.Equal(t, ErrCodeRecordIsNew, code)
	})
}

func TestUnload(t *testing.T) {
	s := newTestStore(t, nil)
	push(t, s, `{"user":[{"id":"1","name":"Ann","posts":["10"]}],"post":[{"id":"10","author":"1"}]}`)
	u := mustGet(t, s, "user", "1")
	p := mustGet(t, s, "post", "10")
	require.NoError(t, u.Set("name", "Bob"))

	err := s.UnloadRecord(u, false)
	code, _ := CodeOf(err)
	require.Equal(t, ErrCodeDirtyUnload, code)
	assert.True(t, s.HasRecord("user", "1"))

	require.NoError(t, s.UnloadRecord(u, true))

	assert.False(t, s.HasRecord("user", "1"))
	assert.Equal(t, 1, s.QueuedCount())
	author, ok := p.GetOne("author")
	require.True(t, ok, "the other side keeps the edge while it waits in the queue")
	assert.Equal(t, ref("user", "1"), author)

	code, _ = CodeOf(u.Set("name", "Carl"))
	assert.Equal(t, ErrCodeRecordNotLoaded, code)

	push(t, s, `{"user":[{"id":"1","name":"Ann","posts":["10"]}]}`)

	reloaded := mustGet(t, s, "user", "1")
	assert.NotSame(t, u, reloaded)
	assert.Equal(t, 0, s.QueuedCount())
	assert.Equal(t, 1, s.RelationshipCount())
	assert.Equal(t, refs("post", "10"), reloaded.GetMany("posts"))
	assert.Equal(t, "Ann", reloaded.Get("name"))
}
