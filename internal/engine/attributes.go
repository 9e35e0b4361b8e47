package engine

import (
	"github.com/roach88/graphcache/internal/ir"
)

// Change is a [server, client] pair reported by ChangedAttributes and
// ChangedRelationships.
type Change struct {
	Server any `json:"server"`
	Client any `json:"client"`
}

// Get returns an attribute value: the client override, else the server
// value, else the field default. Unknown names yield nil.
func (r *Record) Get(name string) any {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.get(name)
}

func (r *Record) get(name string) any {
	if v, ok := r.client[name]; ok {
		return v
	}
	if v, ok := r.server[name]; ok {
		return v
	}
	if a, ok := r.model.Attribute(name); ok {
		return a.DefaultValue()
	}
	return nil
}

// Set writes an attribute. A value equal to the server value removes the
// client override instead of storing it.
func (r *Record) Set(name string, value any) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.checkMutable(name); err != nil {
		return err
	}
	a, ok := r.model.Attribute(name)
	if !ok {
		return recordError(ErrCodeSchemaViolation, r, name, "unknown attribute")
	}
	if a.ReadOnly {
		return recordError(ErrCodeReadOnly, r, name, "attribute is read-only")
	}
	return r.set(name, value)
}

// set stores a coerced value without the read-only check.
func (r *Record) set(name string, value any) error {
	a, _ := r.model.Attribute(name)
	v, err := a.Type.Deserialize(ir.NormalizeValue(value))
	if err != nil {
		return recordError(ErrCodeSchemaViolation, r, name, "%v", err)
	}
	if a.Type.Equal(v, r.server[name]) {
		delete(r.client, name)
		return nil
	}
	r.client[name] = v
	return nil
}

// ChangedAttributes returns every attribute whose client value differs
// from the server value.
func (r *Record) ChangedAttributes() map[string]Change {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	diff := make(map[string]Change)
	for name, client := range r.client {
		a, ok := r.model.Attribute(name)
		if !ok {
			continue
		}
		server := r.server[name]
		if a.Type.Equal(server, client) {
			continue
		}
		diff[name] = Change{Server: server, Client: client}
	}
	return diff
}

// RollbackAttributes drops every client override.
func (r *Record) RollbackAttributes() error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.checkMutable(""); err != nil {
		return err
	}
	r.rollbackAttributes()
	return nil
}

func (r *Record) rollbackAttributes() {
	r.client = make(map[string]any)
}

// loadAttributes writes incoming server values. A key missing from json
// means the attribute's default. The payload was validated before this
// runs.
func (s *Store) loadAttributes(r *Record, json ir.RecordJSON) {
	for _, name := range r.model.AttributeNames() {
		a := r.model.Attributes[name]
		raw, present := json[name]
		if !present {
			raw = a.DefaultValue()
		}

		v, err := a.Type.Deserialize(raw)
		if err != nil {
			v = a.DefaultValue()
		}
		r.server[name] = v

		client, overridden := r.client[name]
		if !overridden {
			continue
		}
		if s.overwriteClientAttrs || a.Type.Equal(v, client) {
			delete(r.client, name)
		}
	}
}
