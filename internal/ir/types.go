package ir

import (
	"fmt"
	"sort"
)

// State is the lifecycle state of a relationship edge.
type State string

const (
	// StateClient marks an edge created locally and not yet confirmed by the server.
	StateClient State = "client"

	// StateServer marks an edge the server is known to hold.
	StateServer State = "server"

	// StateDeleted marks a server edge removed locally but not yet confirmed.
	StateDeleted State = "deleted"
)

// States lists every valid state in bucket order.
var States = []State{StateServer, StateClient, StateDeleted}

// Valid reports whether s is one of the three relationship states.
func (s State) Valid() bool {
	switch s {
	case StateClient, StateServer, StateDeleted:
		return true
	}
	return false
}

// ParseState converts a state token to a State.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return "", fmt.Errorf("invalid relationship state %q", s)
	}
	return st, nil
}

// RecordRef identifies a record by type key and id.
type RecordRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Ref is shorthand for constructing a RecordRef.
func Ref(typeKey, id string) RecordRef {
	return RecordRef{Type: typeKey, ID: id}
}

// String returns the "type:id" form used as a map key.
func (r RecordRef) String() string {
	return r.Type + ":" + r.ID
}

// IsZero reports whether the reference is unset.
func (r RecordRef) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// SortRefs orders references by type, then id.
func SortRefs(refs []RecordRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Type != refs[j].Type {
			return refs[i].Type < refs[j].Type
		}
		return refs[i].ID < refs[j].ID
	})
}

// RecordJSON is one record in normalized form: "id", attribute values and
// relationship values (bare ids, id arrays, {type,id} objects or null).
type RecordJSON map[string]any

// ID returns the record's id. Ids must be non-empty strings.
func (j RecordJSON) ID() (string, error) {
	raw, ok := j["id"]
	if !ok {
		return "", fmt.Errorf("record is missing an id")
	}
	id, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("record id must be a string, got %T", raw)
	}
	if id == "" {
		return "", fmt.Errorf("record id must not be empty")
	}
	return id, nil
}

// Has reports whether the key is present, including explicit nulls.
func (j RecordJSON) Has(key string) bool {
	_, ok := j[key]
	return ok
}

// Clone returns a shallow copy.
func (j RecordJSON) Clone() RecordJSON {
	out := make(RecordJSON, len(j))
	for k, v := range j {
		out[k] = v
	}
	return out
}

// CreatedRecord carries the permanent id assigned by a create.
type CreatedRecord struct {
	ID string `json:"id"`
}

// Meta is the "meta" section of a normalized payload.
type Meta struct {
	DeletedRecords []RecordRef    `json:"deletedRecords,omitempty"`
	CreatedRecord  *CreatedRecord `json:"createdRecord,omitempty"`
	MatchedRecords []RecordRef    `json:"matchedRecords,omitempty"`
}

// IsEmpty reports whether no meta field is set.
func (m Meta) IsEmpty() bool {
	return len(m.DeletedRecords) == 0 && m.CreatedRecord == nil && len(m.MatchedRecords) == 0
}

// MetaKey is the reserved payload key holding Meta.
const MetaKey = "meta"

// Payload is the normalized, type-keyed shape used for all adapter traffic.
// The zero value is an empty payload.
type Payload struct {
	Records map[string][]RecordJSON
	Meta    Meta
}

// NewPayload returns an empty payload ready for Add.
func NewPayload() Payload {
	return Payload{Records: make(map[string][]RecordJSON)}
}

// Add appends records under a type key.
func (p *Payload) Add(typeKey string, recs ...RecordJSON) {
	if p.Records == nil {
		p.Records = make(map[string][]RecordJSON)
	}
	p.Records[typeKey] = append(p.Records[typeKey], recs...)
}

// Types returns the payload's type keys in sorted order.
func (p Payload) Types() []string {
	keys := make([]string, 0, len(p.Records))
	for k := range p.Records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the total number of records.
func (p Payload) Len() int {
	n := 0
	for _, recs := range p.Records {
		n += len(recs)
	}
	return n
}

// IsEmpty reports whether the payload carries no records and no meta.
func (p Payload) IsEmpty() bool {
	return p.Len() == 0 && p.Meta.IsEmpty()
}

// Query is the argument of a find-by-query: field name to expected value.
type Query map[string]any
