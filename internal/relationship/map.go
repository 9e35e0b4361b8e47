package relationship

// Map indexes the relationships of one state for one record: name, then
// relationship id. Adding the same id under the same name twice is a no-op.
type Map struct {
	byName map[string]map[string]*Relationship
	length int
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{byName: make(map[string]map[string]*Relationship)}
}

// Add indexes r under name.
func (m *Map) Add(name string, r *Relationship) {
	bucket, ok := m.byName[name]
	if !ok {
		bucket = make(map[string]*Relationship)
		m.byName[name] = bucket
	}
	if _, exists := bucket[r.ID()]; exists {
		return
	}
	bucket[r.ID()] = r
	m.length++
}

// Remove deletes the relationship id from every name bucket holding it and
// reports whether anything was removed.
func (m *Map) Remove(id string) bool {
	removed := false
	for name, bucket := range m.byName {
		if _, ok := bucket[id]; !ok {
			continue
		}
		delete(bucket, id)
		m.length--
		removed = true
		if len(bucket) == 0 {
			delete(m.byName, name)
		}
	}
	return removed
}

// Get returns the relationships indexed under name, ordered by id.
func (m *Map) Get(name string) []*Relationship {
	bucket := m.byName[name]
	out := make([]*Relationship, 0, len(bucket))
	for _, r := range bucket {
		out = append(out, r)
	}
	sortByID(out)
	return out
}

// GetAll returns every relationship in the map once, ordered by id.
func (m *Map) GetAll() []*Relationship {
	seen := make(map[string]bool, m.length)
	out := make([]*Relationship, 0, m.length)
	for _, bucket := range m.byName {
		for id, r := range bucket {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, r)
		}
	}
	sortByID(out)
	return out
}

// Clear drops every relationship indexed under name.
func (m *Map) Clear(name string) {
	m.length -= len(m.byName[name])
	delete(m.byName, name)
}

// Len is the number of (name, relationship) entries.
func (m *Map) Len() int {
	return m.length
}
