package engine

import (
	"context"

	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/relationship"
	"github.com/roach88/graphcache/internal/schema"
)

// GetOne returns the target of a hasOne field's current view.
func (r *Record) GetOne(name string) (ir.RecordRef, bool) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.getOne(name)
}

func (r *Record) getOne(name string) (ir.RecordRef, bool) {
	refs := r.targets(name, r.rels.CurrentRelationships(name))
	switch len(refs) {
	case 0:
		return ir.RecordRef{}, false
	case 1:
		return refs[0], true
	}
	invariant("hasOne %s.%s holds %d current edges", r.Ref(), name, len(refs))
	return ir.RecordRef{}, false
}

// GetMany returns the targets of a hasMany field's current view, sorted.
func (r *Record) GetMany(name string) []ir.RecordRef {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.targets(name, r.rels.CurrentRelationships(name))
}

// targets maps edges at one of r's fields to their far endpoints.
func (r *Record) targets(name string, edges []*relationship.Relationship) []ir.RecordRef {
	sl := r.slot(name)
	refs := make([]ir.RecordRef, 0, len(edges))
	for _, e := range edges {
		refs = append(refs, sl.other(e).Ref())
	}
	ir.SortRefs(refs)
	return refs
}

// ChangedRelationships returns each relationship field whose current view
// differs from the server view. hasOne values are an ir.RecordRef or nil;
// hasMany values are sorted []ir.RecordRef.
func (r *Record) ChangedRelationships() map[string]Change {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	diff := make(map[string]Change)
	for _, name := range r.model.RelationshipNames() {
		server := r.targets(name, r.rels.ServerRelationships(name))
		current := r.targets(name, r.rels.CurrentRelationships(name))
		if equalRefs(server, current) {
			continue
		}
		if r.model.Relationships[name].Kind == schema.HasOne {
			diff[name] = Change{Server: firstRef(server), Client: firstRef(current)}
			continue
		}
		diff[name] = Change{Server: server, Client: current}
	}
	return diff
}

func firstRef(refs []ir.RecordRef) any {
	if len(refs) == 0 {
		return nil
	}
	return refs[0]
}

func equalRefs(a, b []ir.RecordRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RollbackRelationships discards every local relationship change.
func (r *Record) RollbackRelationships() error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.checkMutable(""); err != nil {
		return err
	}
	r.store.rollbackRelationships(r)
	return nil
}

// Serialize renders the record's current state as payload JSON.
func (r *Record) Serialize() ir.RecordJSON {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.serialize()
}

func (r *Record) serialize() ir.RecordJSON {
	out := ir.RecordJSON{"id": r.currentID()}
	for _, name := range r.model.AttributeNames() {
		a := r.model.Attributes[name]
		v, err := a.Type.Serialize(r.get(name))
		if err != nil {
			v = nil
		}
		out[name] = v
	}
	for _, name := range r.model.RelationshipNames() {
		field := r.model.Relationships[name]
		current := r.targets(name, r.rels.CurrentRelationships(name))
		if field.Kind == schema.HasOne {
			out[name] = field.FormatHasOne(firstOrZero(current))
			continue
		}
		out[name] = field.FormatHasMany(current)
	}
	return out
}

func firstOrZero(refs []ir.RecordRef) (ir.RecordRef, bool) {
	if len(refs) == 0 {
		return ir.RecordRef{}, false
	}
	return refs[0], true
}

// FetchOne resolves a hasOne field to its record, loading it through Find
// when it is not cached. An empty field yields nil.
func (r *Record) FetchOne(ctx context.Context, name string) (*Record, error) {
	ref, ok := r.GetOne(name)
	if !ok {
		return nil, nil
	}
	return r.store.FindOne(ctx, ref.Type, ref.ID)
}

// FetchMany resolves a hasMany field to its records. Polymorphic targets
// are fetched one request per type; the result follows GetMany order.
func (r *Record) FetchMany(ctx context.Context, name string) ([]*Record, error) {
	refs := r.GetMany(name)

	byType := make(map[string][]string)
	var order []string
	for _, ref := range refs {
		if _, ok := byType[ref.Type]; !ok {
			order = append(order, ref.Type)
		}
		byType[ref.Type] = append(byType[ref.Type], ref.ID)
	}

	found := make(map[ir.RecordRef]*Record, len(refs))
	for _, typeKey := range order {
		recs, err := r.store.FindMany(ctx, typeKey, byType[typeKey])
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			found[rec.Ref()] = rec
		}
	}

	out := make([]*Record, 0, len(refs))
	for _, ref := range refs {
		out = append(out, found[ref])
	}
	return out, nil
}
