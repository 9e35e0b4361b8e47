package engine

import (
	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/relationship"
	"github.com/roach88/graphcache/internal/schema"
)

// mergeRelationships reconciles every relationship field of rec with the
// incoming server JSON. A key missing from json means the field's default,
// so server edges the record no longer reports are disconnected.
func (s *Store) mergeRelationships(rec *Record, json ir.RecordJSON) {
	for _, name := range rec.model.RelationshipNames() {
		field := rec.model.Relationships[name]

		var targets []ir.RecordRef
		raw, present := json[name]
		switch {
		case !present:
			targets = field.DefaultRefs()
		default:
			refs, err := parseField(field, raw)
			if err != nil {
				invariant("merge %s: %v", rec.Ref(), err)
			}
			targets = refs
		}

		s.mergeField(rec, field, targets)
	}
}

// mergeField applies the server's target set for one field:
//   - an edge whose target the server reports is upgraded to server state,
//     except that a deleted edge stays deleted while sideWithClient is set
//   - a server or deleted edge whose target the server does not report is
//     dropped from the graph
//   - client edges the server does not report are kept
//   - reported targets without an edge get a new server edge
//
// hasOne slots touched by the result are then settled so each holds at
// most one current edge.
func (s *Store) mergeField(rec *Record, field *schema.Relationship, targets []ir.RecordRef) {
	sl := rec.slot(field.Name)

	want := make(map[ir.RecordRef]bool, len(targets))
	for _, t := range targets {
		want[t] = true
	}

	matched := make(map[ir.RecordRef]*relationship.Relationship, len(targets))
	for _, e := range rec.rels.ByName(field.Name) {
		other := sl.other(e).Ref()
		if !want[other] {
			if e.State() != ir.StateClient {
				s.log.Debug("merge drops edge", "record", rec.Ref().String(), "field", field.Name, "target", other.String(), "state", e.State())
				s.deleteRelationship(e)
			}
			continue
		}
		if _, dup := matched[other]; dup {
			continue
		}
		matched[other] = e
		s.upgrade(e)
	}

	for _, t := range targets {
		if _, ok := matched[t]; ok {
			continue
		}
		far := slot{Type: t.Type, ID: t.ID}
		if inverse := s.schema.Inverse(field, t.Type); inverse != nil {
			far.Name = inverse.Name
		}

		if e, ok := s.pairs[relationship.PairKey(sideOf(sl), sideOf(far))]; ok && !e.IsErased() {
			s.connect(e)
			s.upgrade(e)
			matched[t] = e
			continue
		}
		matched[t] = s.createRelationship(sl, far, ir.StateServer)
	}

	if field.Kind == schema.HasOne {
		for _, t := range targets {
			s.settleHasOneSlot(sl, matched[t])
		}
	}
	for _, t := range targets {
		inverse := s.schema.Inverse(field, t.Type)
		if inverse == nil || inverse.Kind != schema.HasOne {
			continue
		}
		e := matched[t]
		if e.IsErased() {
			continue
		}
		s.settleHasOneSlot(slot{Type: t.Type, ID: t.ID, Name: inverse.Name}, e)
	}
}

// upgrade promotes an edge the server just reported.
func (s *Store) upgrade(e *relationship.Relationship) {
	switch e.State() {
	case ir.StateClient:
		s.changeState(e, ir.StateServer)
	case ir.StateDeleted:
		if !s.sideWithClient {
			s.changeState(e, ir.StateServer)
		}
	}
}

// settleHasOneSlot makes auth the slot's only server-side edge. Other
// server and deleted edges are stale and dropped. A local client
// assignment wins until rollback: when one is present a server auth edge
// is demoted to deleted.
func (s *Store) settleHasOneSlot(sl slot, auth *relationship.Relationship) {
	if auth == nil || auth.IsErased() {
		return
	}
	hasClient := false
	for _, e := range s.slotEdges(sl) {
		if e == auth {
			continue
		}
		if e.State() == ir.StateClient {
			hasClient = true
			continue
		}
		s.log.Debug("hasOne slot drops stale edge", "record", sl.ref().String(), "field", sl.Name, "id", e.ID())
		s.deleteRelationship(e)
	}
	if hasClient && auth.State() == ir.StateServer {
		s.changeState(auth, ir.StateDeleted)
	}
}

func sideOf(sl slot) relationship.Side {
	return relationship.Side{Type: sl.Type, ID: sl.ID, Name: sl.Name}
}
