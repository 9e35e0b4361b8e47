package relationship

import "github.com/roach88/graphcache/internal/ir"

// Store is the per-record relationship index: one Map per state.
//
// Views:
//   - server  = server ∪ deleted (what the server currently believes)
//   - current = server ∪ client  (the client's effective view)
type Store struct {
	server  *Map
	client  *Map
	deleted *Map
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		server:  NewMap(),
		client:  NewMap(),
		deleted: NewMap(),
	}
}

func (s *Store) bucket(state ir.State) *Map {
	switch state {
	case ir.StateServer:
		return s.server
	case ir.StateClient:
		return s.client
	case ir.StateDeleted:
		return s.deleted
	}
	return nil
}

// AddRelationship indexes r under name in the bucket for its current state.
// An empty name is a no-op: the unnamed side of a one-directional edge does
// not index it.
func (s *Store) AddRelationship(name string, r *Relationship) {
	if name == "" {
		return
	}
	if b := s.bucket(r.State()); b != nil {
		b.Add(name, r)
	}
}

// RemoveRelationship purges the id from all three buckets.
func (s *Store) RemoveRelationship(id string) {
	s.server.Remove(id)
	s.client.Remove(id)
	s.deleted.Remove(id)
}

// ServerRelationships returns server ∪ deleted edges for name.
func (s *Store) ServerRelationships(name string) []*Relationship {
	return merge(s.server.Get(name), s.deleted.Get(name))
}

// CurrentRelationships returns server ∪ client edges for name.
func (s *Store) CurrentRelationships(name string) []*Relationship {
	return merge(s.server.Get(name), s.client.Get(name))
}

// ByState returns every edge in one state, across names.
func (s *Store) ByState(state ir.State) []*Relationship {
	if b := s.bucket(state); b != nil {
		return b.GetAll()
	}
	return nil
}

// ByName returns the union of all three buckets for name.
func (s *Store) ByName(name string) []*Relationship {
	return merge(s.server.Get(name), s.client.Get(name), s.deleted.Get(name))
}

// All returns every indexed edge once.
func (s *Store) All() []*Relationship {
	return merge(s.server.GetAll(), s.client.GetAll(), s.deleted.GetAll())
}

// Len returns the entry count of one state bucket.
func (s *Store) Len(state ir.State) int {
	if b := s.bucket(state); b != nil {
		return b.Len()
	}
	return 0
}

// HasChanges reports whether any client or deleted edge is indexed.
func (s *Store) HasChanges() bool {
	return s.client.Len() > 0 || s.deleted.Len() > 0
}

func merge(lists ...[]*Relationship) []*Relationship {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	seen := make(map[string]bool, n)
	out := make([]*Relationship, 0, n)
	for _, l := range lists {
		for _, r := range l {
			if seen[r.ID()] {
				continue
			}
			seen[r.ID()] = true
			out = append(out, r)
		}
	}
	sortByID(out)
	return out
}
