package engine

import (
	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/relationship"
	"github.com/roach88/graphcache/internal/schema"
)

// AddToMany connects target to a hasMany field. It is a no-op when the
// target is already in the field's current view.
func (r *Record) AddToMany(name string, target ir.RecordRef) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	field, ref, err := r.writableField(name, schema.HasMany, target)
	if err != nil {
		return err
	}
	r.store.connectTarget(r, field, ref, false)
	return nil
}

// RemoveFromMany disconnects target from a hasMany field. A client edge is
// deleted; a server edge is marked deleted until the next save or rollback.
func (r *Record) RemoveFromMany(name string, target ir.RecordRef) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	field, ref, err := r.writableField(name, schema.HasMany, target)
	if err != nil {
		return err
	}
	sl := r.slot(field.Name)
	for _, e := range r.rels.CurrentRelationships(field.Name) {
		if sl.other(e).Ref() == ref {
			r.store.evict(e)
		}
	}
	return nil
}

// SetOne points a hasOne field at target, evicting whatever the field held.
func (r *Record) SetOne(name string, target ir.RecordRef) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	field, ref, err := r.writableField(name, schema.HasOne, target)
	if err != nil {
		return err
	}
	r.store.connectTarget(r, field, ref, true)
	return nil
}

// ClearOne empties a hasOne field.
func (r *Record) ClearOne(name string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	field, err := r.relationshipField(name, schema.HasOne)
	if err != nil {
		return err
	}
	for _, e := range r.rels.CurrentRelationships(field.Name) {
		r.store.evict(e)
	}
	return nil
}

// relationshipField looks up a writable relationship field of the given
// kind.
func (r *Record) relationshipField(name string, kind schema.Kind) (*schema.Relationship, error) {
	if err := r.checkMutable(name); err != nil {
		return nil, err
	}
	field, ok := r.model.Relationship(name)
	if !ok {
		return nil, recordError(ErrCodeSchemaViolation, r, name, "unknown relationship")
	}
	if field.Kind != kind {
		return nil, recordError(ErrCodeSchemaViolation, r, name, "relationship is %s, not %s", field.Kind, kind)
	}
	if field.ReadOnly {
		return nil, recordError(ErrCodeReadOnly, r, name, "relationship is read-only")
	}
	return field, nil
}

func (r *Record) writableField(name string, kind schema.Kind, target ir.RecordRef) (*schema.Relationship, ir.RecordRef, error) {
	field, err := r.relationshipField(name, kind)
	if err != nil {
		return nil, ir.RecordRef{}, err
	}
	ref, err := field.ResolveRef(target)
	if err != nil {
		return nil, ir.RecordRef{}, recordError(ErrCodeSchemaViolation, r, name, "%v", err)
	}
	return field, ref, nil
}

// connectTarget adds a client-side edge from rec's field to target.
//
// Order matters for the hasOne invariant:
//  1. nothing to do if the target is already current
//  2. replaceOwn evicts the field's own current edge (setOne)
//  3. a hasOne inverse slot on the target is evicted
//  4. a deleted edge to the target is resurrected to server state
//  5. otherwise a new client edge is created
func (s *Store) connectTarget(rec *Record, field *schema.Relationship, target ir.RecordRef, replaceOwn bool) {
	sl := rec.slot(field.Name)
	current := rec.rels.CurrentRelationships(field.Name)
	for _, e := range current {
		if sl.other(e).Ref() == target {
			return
		}
	}

	if replaceOwn {
		for _, e := range current {
			s.evict(e)
		}
	}

	inverse := s.schema.Inverse(field, target.Type)
	far := slot{Type: target.Type, ID: target.ID}
	if inverse != nil {
		far.Name = inverse.Name
		if inverse.Kind == schema.HasOne {
			for _, e := range s.currentSlotEdges(far) {
				s.evict(e)
			}
		}
	}

	for _, e := range rec.rels.ByName(field.Name) {
		if e.State() == ir.StateDeleted && sl.other(e).Ref() == target {
			s.changeState(e, ir.StateServer)
			return
		}
	}

	s.createRelationship(sl, far, ir.StateClient)
}

// slotEdges returns every edge at a slot, whatever its state. A slot of a
// non-resident record is answered from the queue.
func (s *Store) slotEdges(sl slot) []*relationship.Relationship {
	if rec, ok := s.resident(sl.ref()); ok {
		return rec.rels.ByName(sl.Name)
	}
	var out []*relationship.Relationship
	for _, e := range sortedRels(s.queued) {
		if e.MatchesSide(sl.Type, sl.ID, sl.Name) {
			out = append(out, e)
		}
	}
	return out
}

// currentSlotEdges is slotEdges without deleted edges.
func (s *Store) currentSlotEdges(sl slot) []*relationship.Relationship {
	var out []*relationship.Relationship
	for _, e := range s.slotEdges(sl) {
		if e.State() != ir.StateDeleted {
			out = append(out, e)
		}
	}
	return out
}
