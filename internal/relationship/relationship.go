// Package relationship holds the edge type of the record graph and the
// per-record indexes that partition edges by state and name.
//
// A Relationship is one undirected edge between two (type, id, name) slots.
// Its endpoints never change except for the one sanctioned rewrite from a
// temporary id to a permanent id. Its state changes only through the owning
// store's transition, which disconnects the edge from both endpoint indexes
// before the change and reconnects it after.
package relationship

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/graphcache/internal/ir"
)

// Side is one endpoint of a relationship. Name is empty when that side has
// no inverse field.
type Side struct {
	Type string
	ID   string
	Name string
}

// Ref returns the side's record reference.
func (s Side) Ref() ir.RecordRef {
	return ir.RecordRef{Type: s.Type, ID: s.ID}
}

func (s Side) spec() string {
	return s.Type + ":" + s.ID + ":" + s.Name
}

// Relationship is one edge of the record graph.
type Relationship struct {
	id     string
	side1  Side
	side2  Side
	state  ir.State
	erased bool
}

// InvalidError reports a relationship constructed with missing or invalid fields.
type InvalidError struct {
	Field   string
	Message string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid relationship: %s: %s", e.Field, e.Message)
}

// New creates a relationship. Type and id are required on both sides and the
// name is required on side 1; name2 may be empty for a one-directional edge.
func New(id, type1, id1, name1, type2, id2, name2 string, state ir.State) (*Relationship, error) {
	switch {
	case id == "":
		return nil, &InvalidError{Field: "id", Message: "is required"}
	case type1 == "":
		return nil, &InvalidError{Field: "type1", Message: "is required"}
	case id1 == "":
		return nil, &InvalidError{Field: "id1", Message: "is required"}
	case name1 == "":
		return nil, &InvalidError{Field: "name1", Message: "is required"}
	case type2 == "":
		return nil, &InvalidError{Field: "type2", Message: "is required"}
	case id2 == "":
		return nil, &InvalidError{Field: "id2", Message: "is required"}
	case !state.Valid():
		return nil, &InvalidError{Field: "state", Message: fmt.Sprintf("%q is not a relationship state", state)}
	}

	return &Relationship{
		id:    id,
		side1: Side{Type: type1, ID: id1, Name: name1},
		side2: Side{Type: type2, ID: id2, Name: name2},
		state: state,
	}, nil
}

// ID returns the generated relationship id.
func (r *Relationship) ID() string { return r.id }

// Side1 returns the first endpoint.
func (r *Relationship) Side1() Side { return r.side1 }

// Side2 returns the second endpoint.
func (r *Relationship) Side2() Side { return r.side2 }

// State returns the current lifecycle state.
func (r *Relationship) State() ir.State { return r.state }

// SetState changes the state in place. Only the engine's state transition
// may call this, and only while the edge is disconnected from every index.
func (r *Relationship) SetState(s ir.State) error {
	if !s.Valid() {
		return &InvalidError{Field: "state", Message: fmt.Sprintf("%q is not a relationship state", s)}
	}
	r.state = s
	return nil
}

// IsConnectedTo reports whether either side belongs to the record.
func (r *Relationship) IsConnectedTo(ref ir.RecordRef) bool {
	return r.side1.Ref() == ref || r.side2.Ref() == ref
}

// MatchesSide reports whether either side is exactly (type, id, name).
func (r *Relationship) MatchesSide(typeKey, id, name string) bool {
	s := Side{Type: typeKey, ID: id, Name: name}
	return r.side1 == s || r.side2 == s
}

// sides resolves (this, other) relative to ref. When both sides belong to
// the same record, side 1 is always "this".
func (r *Relationship) sides(ref ir.RecordRef) (this, other Side, ok bool) {
	if r.side1.Ref() == ref {
		return r.side1, r.side2, true
	}
	if r.side2.Ref() == ref {
		return r.side2, r.side1, true
	}
	return Side{}, Side{}, false
}

// ThisName returns the relationship name on ref's side.
func (r *Relationship) ThisName(ref ir.RecordRef) string {
	this, _, _ := r.sides(ref)
	return this.Name
}

// Other returns the record reference on the side opposite ref.
func (r *Relationship) Other(ref ir.RecordRef) ir.RecordRef {
	_, other, _ := r.sides(ref)
	return other.Ref()
}

// OtherType returns the type on the side opposite ref.
func (r *Relationship) OtherType(ref ir.RecordRef) string {
	_, other, _ := r.sides(ref)
	return other.Type
}

// OtherID returns the id on the side opposite ref.
func (r *Relationship) OtherID(ref ir.RecordRef) string {
	_, other, _ := r.sides(ref)
	return other.ID
}

// OtherName returns the relationship name on the side opposite ref.
func (r *Relationship) OtherName(ref ir.RecordRef) string {
	_, other, _ := r.sides(ref)
	return other.Name
}

// OtherFor returns the endpoint opposite the slot (type, id, name). For an
// edge joining two slots of the same record this picks the correct side
// where ref alone would be ambiguous.
func (r *Relationship) OtherFor(typeKey, id, name string) Side {
	s := Side{Type: typeKey, ID: id, Name: name}
	if r.side1 == s {
		return r.side2
	}
	return r.side1
}

// ReplaceID rewrites every endpoint (typeKey, oldID) to newID. It is used
// once per record, when a temporary id becomes permanent.
func (r *Relationship) ReplaceID(typeKey, oldID, newID string) bool {
	changed := false
	if r.side1.Type == typeKey && r.side1.ID == oldID {
		r.side1.ID = newID
		changed = true
	}
	if r.side2.Type == typeKey && r.side2.ID == oldID {
		r.side2.ID = newID
		changed = true
	}
	return changed
}

// PairKey is the canonical key of the undirected edge: the two endpoint
// specs sorted and joined. The same edge described from either side's
// payload yields the same key.
func (r *Relationship) PairKey() string {
	return PairKey(r.side1, r.side2)
}

// PairKey computes the canonical key for an edge between a and b.
func PairKey(a, b Side) string {
	specs := []string{a.spec(), b.spec()}
	sort.Strings(specs)
	return strings.Join(specs, "|")
}

// Erase nulls every field. An erased relationship is no longer part of
// the graph and must not be reconnected.
func (r *Relationship) Erase() {
	r.id = ""
	r.side1 = Side{}
	r.side2 = Side{}
	r.state = ""
	r.erased = true
}

// IsErased reports whether Erase has been called.
func (r *Relationship) IsErased() bool { return r.erased }

// String renders the edge for logs.
func (r *Relationship) String() string {
	return fmt.Sprintf("%s(%s <-> %s, %s)", r.id, r.side1.spec(), r.side2.spec(), r.state)
}

// sortByID orders relationships by id for deterministic output.
func sortByID(rels []*Relationship) {
	sort.Slice(rels, func(i, j int) bool { return rels[i].id < rels[j].id })
}
