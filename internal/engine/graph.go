package engine

import (
	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/relationship"
	"github.com/roach88/graphcache/internal/schema"
)

// slot is one end of an edge: a record's relationship field.
type slot struct {
	Type string
	ID   string
	Name string
}

func (r *Record) slot(name string) slot {
	return slot{Type: r.typeKey, ID: r.currentID(), Name: name}
}

func (sl slot) ref() ir.RecordRef { return ir.Ref(sl.Type, sl.ID) }

// other returns the endpoint of e opposite sl.
func (sl slot) other(e *relationship.Relationship) relationship.Side {
	return e.OtherFor(sl.Type, sl.ID, sl.Name)
}

// createRelationship registers a new edge and connects it into every
// resident endpoint. An edge with a non-resident endpoint is queued.
// All graph functions must be called with s.mu held.
func (s *Store) createRelationship(a slot, b slot, state ir.State) *relationship.Relationship {
	e, err := relationship.New(s.ids.Generate(), a.Type, a.ID, a.Name, b.Type, b.ID, b.Name, state)
	if err != nil {
		invariant("create relationship: %v", err)
	}

	s.rels[e.ID()] = e
	s.pairs[e.PairKey()] = e
	s.connect(e)
	s.metrics.relationshipCreated(state)

	s.log.Debug("relationship created",
		"id", e.ID(),
		"from", a.ref().String(),
		"name", a.Name,
		"to", b.ref().String(),
		"state", state,
	)
	return e
}

// connect indexes e in each resident endpoint and queues it if an endpoint
// is missing.
func (s *Store) connect(e *relationship.Relationship) {
	missing := false
	for _, side := range []relationship.Side{e.Side1(), e.Side2()} {
		rec, ok := s.resident(side.Ref())
		if !ok {
			missing = true
			continue
		}
		rec.rels.AddRelationship(side.Name, e)
	}

	if missing {
		s.queued[e.ID()] = e
	} else {
		delete(s.queued, e.ID())
	}
	s.metrics.setQueued(len(s.queued))
}

// disconnect removes e from the index of each resident endpoint.
func (s *Store) disconnect(e *relationship.Relationship) {
	for _, side := range []relationship.Side{e.Side1(), e.Side2()} {
		if rec, ok := s.resident(side.Ref()); ok {
			rec.rels.RemoveRelationship(e.ID())
		}
	}
}

// changeState moves e between state buckets. The edge is disconnected
// from both endpoints before the state changes and reconnected after.
func (s *Store) changeState(e *relationship.Relationship, state ir.State) {
	from := e.State()
	if from == state {
		return
	}

	s.disconnect(e)
	if err := e.SetState(state); err != nil {
		invariant("change relationship state: %v", err)
	}
	s.connect(e)
	s.metrics.transition(from, state)

	s.log.Debug("relationship state changed", "id", e.ID(), "from", from, "to", state)
}

// deleteRelationship erases e and drops it from every index.
func (s *Store) deleteRelationship(e *relationship.Relationship) {
	s.disconnect(e)
	delete(s.rels, e.ID())
	delete(s.queued, e.ID())
	if s.pairs[e.PairKey()] == e {
		delete(s.pairs, e.PairKey())
	}
	s.log.Debug("relationship deleted", "id", e.ID(), "state", e.State())
	e.Erase()
	s.metrics.relationshipDeleted()
	s.metrics.setQueued(len(s.queued))
}

// connectQueuedRelationships connects every queued edge touching a record
// that has just become resident. It runs before the record's own data is
// loaded so dirty checks see the complete graph.
func (s *Store) connectQueuedRelationships(rec *Record) {
	ref := rec.Ref()
	for _, e := range sortedRels(s.queued) {
		if !e.IsConnectedTo(ref) {
			continue
		}
		s.connect(e)
	}
}

// queueConnectedRelationships detaches a record that is leaving the
// identity map. Its edges stay registered and connected on the other side,
// and wait in the queue until the record is loaded again.
func (s *Store) queueConnectedRelationships(rec *Record) {
	for _, e := range rec.rels.All() {
		rec.rels.RemoveRelationship(e.ID())
		s.queued[e.ID()] = e
	}
	s.metrics.setQueued(len(s.queued))
}

// deleteRelationshipsForRecord erases every edge touching ref, resident or
// queued.
func (s *Store) deleteRelationshipsForRecord(ref ir.RecordRef) {
	for _, e := range sortedRels(s.rels) {
		if e.IsConnectedTo(ref) {
			s.deleteRelationship(e)
		}
	}
}

// updateRelationshipsWithNewID rewrites every endpoint that references a
// temporary id. This is the only place an edge's endpoints change.
func (s *Store) updateRelationshipsWithNewID(typeKey, oldID, newID string) {
	old := ir.Ref(typeKey, oldID)
	for _, e := range sortedRels(s.rels) {
		if !e.IsConnectedTo(old) {
			continue
		}
		if s.pairs[e.PairKey()] == e {
			delete(s.pairs, e.PairKey())
		}
		e.ReplaceID(typeKey, oldID, newID)
		s.pairs[e.PairKey()] = e
	}
}

// rollbackRelationships hard-deletes the record's client edges and
// restores its deleted edges to server state. A restored edge takes back
// its hasOne slots on the other record, evicting a local assignment made
// there in the meantime.
func (s *Store) rollbackRelationships(rec *Record) {
	for _, e := range rec.rels.ByState(ir.StateClient) {
		s.deleteRelationship(e)
	}
	for _, e := range rec.rels.ByState(ir.StateDeleted) {
		s.changeState(e, ir.StateServer)
		s.evictHasOneRivals(e)
	}
}

// evictHasOneRivals evicts every other current edge in the hasOne slots
// that e occupies.
func (s *Store) evictHasOneRivals(e *relationship.Relationship) {
	for _, side := range []relationship.Side{e.Side1(), e.Side2()} {
		if side.Name == "" {
			continue
		}
		rec, ok := s.resident(side.Ref())
		if !ok {
			continue
		}
		field, ok := rec.model.Relationship(side.Name)
		if !ok || field.Kind != schema.HasOne {
			continue
		}
		for _, rival := range rec.rels.CurrentRelationships(side.Name) {
			if rival != e {
				s.evict(rival)
			}
		}
	}
}

// evict clears an edge out of the current view: client edges are
// deleted, server edges are marked deleted.
func (s *Store) evict(e *relationship.Relationship) {
	if e.State() == ir.StateClient {
		s.deleteRelationship(e)
		return
	}
	s.changeState(e, ir.StateDeleted)
}
