package engine

import (
	"fmt"

	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/schema"
)

// CreateRecord adds a new record under a temporary id. Values in json are
// client changes: attributes become overrides and relationships become
// client edges, exactly as if set through the mutators. Read-only fields
// may be initialized here.
func (s *Store) CreateRecord(typeKey string, json ir.RecordJSON) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.schema.Model(typeKey)
	if !ok {
		return nil, schemaError([]schema.ValidationError{{
			Field:   typeKey,
			Message: "type is not declared",
			Code:    schema.ErrUnknownType,
		}})
	}

	id := TempIDPrefix + s.ids.Generate()
	data := json.Clone()
	if data == nil {
		data = ir.RecordJSON{}
	}
	data["id"] = id
	if violations := s.schema.ValidateRecord(typeKey, data, false); len(violations) > 0 {
		return nil, schemaError(violations)
	}

	rec := newRecord(s, m, id)
	s.records.Put(rec)
	s.loadAttributes(rec, ir.RecordJSON{})

	for _, name := range m.AttributeNames() {
		if v, ok := data[name]; ok {
			if err := rec.set(name, v); err != nil {
				invariant("create %s: %v", rec.Ref(), err)
			}
		}
	}
	for _, name := range m.RelationshipNames() {
		field := m.Relationships[name]
		raw, ok := data[name]
		if !ok {
			continue
		}
		targets, err := parseField(field, raw)
		if err != nil {
			invariant("create %s: %v", rec.Ref(), err)
		}
		for _, t := range targets {
			s.connectTarget(rec, field, t, field.Kind == schema.HasOne)
		}
	}

	s.log.Info("record created", "record", rec.Ref().String())
	return rec, nil
}

// parseField reads a relationship value of either kind as a target list.
func parseField(field *schema.Relationship, raw any) ([]ir.RecordRef, error) {
	if field.Kind == schema.HasMany {
		return field.ParseHasMany(raw)
	}
	ref, ok, err := field.ParseHasOne(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field.Name, err)
	}
	if !ok {
		return nil, nil
	}
	return []ir.RecordRef{ref}, nil
}
