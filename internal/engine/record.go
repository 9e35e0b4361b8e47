package engine

import (
	"context"
	"sync"

	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/relationship"
	"github.com/roach88/graphcache/internal/schema"
)

// Record is one cached entity. The store's identity map is its sole owner;
// every method runs under the store lock.
//
// Lifecycle flags:
//   - new: the id is temporary; cleared once, when a create succeeds
//   - dirty: derived, see IsDirty
//   - in transit: a save, create, delete or reload is in flight
//   - deleted: terminal; every mutator fails
type Record struct {
	store   *Store
	model   *schema.Model
	typeKey string

	idMu sync.RWMutex // guards id; cache lookups read it under their own lock
	id   string

	server map[string]any
	client map[string]any
	rels   *relationship.Store

	saving    bool
	creating  bool
	deleting  bool
	reloading bool
	deleted   bool
	unloaded  bool
}

func newRecord(s *Store, m *schema.Model, id string) *Record {
	return &Record{
		store:   s,
		model:   m,
		typeKey: m.TypeKey,
		id:      id,
		server:  make(map[string]any),
		client:  make(map[string]any),
		rels:    relationship.NewStore(),
	}
}

// TypeKey returns the record type.
func (r *Record) TypeKey() string { return r.typeKey }

// ID returns the current id, temporary or permanent.
func (r *Record) ID() string { return r.currentID() }

func (r *Record) currentID() string {
	r.idMu.RLock()
	defer r.idMu.RUnlock()
	return r.id
}

func (r *Record) setID(id string) {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	r.id = id
}

// Ref returns the record's reference.
func (r *Record) Ref() ir.RecordRef {
	return ir.Ref(r.typeKey, r.currentID())
}

// Model returns the record's schema model.
func (r *Record) Model() *schema.Model { return r.model }

// IsNew reports whether the record still has a temporary id.
func (r *Record) IsNew() bool {
	return IsTemporaryID(r.currentID())
}

// IsDirty reports whether any attribute has a client override or any
// relationship is in client or deleted state.
func (r *Record) IsDirty() bool {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.isDirty()
}

func (r *Record) isDirty() bool {
	return len(r.client) > 0 || r.rels.HasChanges()
}

// changedOnlyWith reports whether every change on r is an edge to other.
func (r *Record) changedOnlyWith(other *Record) bool {
	if len(r.client) > 0 {
		return false
	}
	target := other.Ref()
	for _, state := range []ir.State{ir.StateClient, ir.StateDeleted} {
		for _, e := range r.rels.ByState(state) {
			if !e.IsConnectedTo(target) {
				return false
			}
		}
	}
	return true
}

// IsInTransit reports whether a save, create, delete or reload is in flight.
func (r *Record) IsInTransit() bool {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.saving || r.creating || r.deleting || r.reloading
}

// IsSaving reports an update in flight.
func (r *Record) IsSaving() bool {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.saving
}

// IsCreating reports a create in flight.
func (r *Record) IsCreating() bool {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.creating
}

// IsDeleting reports a delete in flight.
func (r *Record) IsDeleting() bool {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.deleting
}

// IsReloading reports a reload in flight.
func (r *Record) IsReloading() bool {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.reloading
}

// IsDeleted reports whether the record was deleted.
func (r *Record) IsDeleted() bool {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.deleted
}

// checkMutable must be called with the store lock held.
func (r *Record) checkMutable(field string) error {
	if r.deleted {
		return recordError(ErrCodeRecordDeleted, r, field, "record is deleted")
	}
	if r.unloaded {
		return recordError(ErrCodeRecordNotLoaded, r, field, "record is not loaded in the store")
	}
	return nil
}

// Rollback discards every client change to attributes and relationships.
func (r *Record) Rollback() error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.checkMutable(""); err != nil {
		return err
	}
	r.rollbackAttributes()
	r.store.rollbackRelationships(r)
	return nil
}

// Save creates or updates the record through the store, flagging it as
// creating or saving while the call is in flight.
func (r *Record) Save(ctx context.Context) error {
	flag := r.setTransit(func(r *Record) *bool {
		if r.IsNew() {
			return &r.creating
		}
		return &r.saving
	})
	defer r.clearTransit(flag)
	return r.store.SaveRecord(ctx, r)
}

// Reload refreshes the record from the adapter.
func (r *Record) Reload(ctx context.Context) error {
	flag := r.setTransit(func(r *Record) *bool { return &r.reloading })
	defer r.clearTransit(flag)
	return r.store.ReloadRecord(ctx, r)
}

// Destroy deletes the record through the store.
func (r *Record) Destroy(ctx context.Context) error {
	flag := r.setTransit(func(r *Record) *bool { return &r.deleting })
	defer r.clearTransit(flag)
	return r.store.DeleteRecord(ctx, r)
}

func (r *Record) setTransit(pick func(*Record) *bool) *bool {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	flag := pick(r)
	*flag = true
	return flag
}

func (r *Record) clearTransit(flag *bool) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	*flag = false
}
