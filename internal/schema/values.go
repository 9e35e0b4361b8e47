package schema

import (
	"fmt"

	"github.com/roach88/graphcache/internal/ir"
)

// ParseHasOne reads a hasOne payload value. A nil value yields ok=false.
func (r *Relationship) ParseHasOne(v any) (ref ir.RecordRef, ok bool, err error) {
	if v == nil {
		return ir.RecordRef{}, false, nil
	}
	ref, err = r.parseTarget(v)
	if err != nil {
		return ir.RecordRef{}, false, err
	}
	return ref, true, nil
}

// ParseHasMany reads a hasMany payload value. Duplicate targets collapse.
func (r *Relationship) ParseHasMany(v any) ([]ir.RecordRef, error) {
	var items []any
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []any:
		items = list
	case []string:
		items = make([]any, len(list))
		for i, s := range list {
			items[i] = s
		}
	case []ir.RecordRef:
		items = make([]any, len(list))
		for i, ref := range list {
			items[i] = ref
		}
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}

	seen := make(map[ir.RecordRef]bool, len(items))
	refs := make([]ir.RecordRef, 0, len(items))
	for i, item := range items {
		ref, err := r.parseTarget(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs, nil
}

// parseTargets reads either shape according to the field kind.
func (r *Relationship) parseTargets(v any) ([]ir.RecordRef, error) {
	if r.Kind == HasMany {
		return r.ParseHasMany(v)
	}
	ref, ok, err := r.ParseHasOne(v)
	if err != nil || !ok {
		return nil, err
	}
	return []ir.RecordRef{ref}, nil
}

// parseTarget reads one bare id or {type,id} object. Bare ids take the
// field's related type. Ids must be strings.
func (r *Relationship) parseTarget(v any) (ir.RecordRef, error) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return ir.RecordRef{}, fmt.Errorf("empty id")
		}
		return ir.Ref(r.RelatedType, t), nil
	case ir.RecordRef:
		return r.ResolveRef(t)
	case map[string]any:
		id, ok := t["id"].(string)
		if !ok || id == "" {
			return ir.RecordRef{}, fmt.Errorf("reference id must be a non-empty string")
		}
		typeKey, _ := t["type"].(string)
		return r.ResolveRef(ir.Ref(typeKey, id))
	}
	return ir.RecordRef{}, fmt.Errorf("expected a string id or {type,id}, got %T", v)
}

// ResolveRef fills an empty type with the related type. A non-polymorphic
// field rejects references to any other type.
func (r *Relationship) ResolveRef(ref ir.RecordRef) (ir.RecordRef, error) {
	if ref.ID == "" {
		return ir.RecordRef{}, fmt.Errorf("empty id")
	}
	if ref.Type == "" {
		ref.Type = r.RelatedType
	}
	if !r.Polymorphic && ref.Type != r.RelatedType {
		return ir.RecordRef{}, fmt.Errorf("type %q is not %q", ref.Type, r.RelatedType)
	}
	return ref, nil
}

// FormatHasOne renders a hasOne value for a payload: a bare id, a {type,id}
// object for polymorphic fields, or nil.
func (r *Relationship) FormatHasOne(ref ir.RecordRef, ok bool) any {
	if !ok {
		return nil
	}
	return r.formatTarget(ref)
}

// FormatHasMany renders a hasMany value for a payload.
func (r *Relationship) FormatHasMany(refs []ir.RecordRef) []any {
	out := make([]any, len(refs))
	for i, ref := range refs {
		out[i] = r.formatTarget(ref)
	}
	return out
}

func (r *Relationship) formatTarget(ref ir.RecordRef) any {
	if r.Polymorphic {
		return map[string]any{"type": ref.Type, "id": ref.ID}
	}
	return ref.ID
}

// ValidateRecord checks one record against its model before any state is
// touched. complete enables required-field checks: every server payload is
// a complete record, while a create's initial data may be partial.
func (s *Schema) ValidateRecord(typeKey string, rec ir.RecordJSON, complete bool) []ValidationError {
	m, ok := s.models[typeKey]
	if !ok {
		return []ValidationError{{Field: typeKey, Message: "type is not declared", Code: ErrUnknownType}}
	}

	var errs []ValidationError
	id, err := rec.ID()
	if err != nil {
		errs = append(errs, ValidationError{Field: typeKey + ".id", Message: err.Error(), Code: ErrInvalidID})
		id = "?"
	}
	at := func(name string) string { return fmt.Sprintf("%s:%s.%s", typeKey, id, name) }

	for _, name := range m.AttributeNames() {
		a := m.Attributes[name]
		v, present := rec[name]
		if !present {
			if complete && a.Required {
				errs = append(errs, ValidationError{Field: at(name), Message: "required attribute is missing", Code: ErrMissingField})
			}
			continue
		}
		if _, err := a.Type.Deserialize(v); err != nil {
			errs = append(errs, ValidationError{Field: at(name), Message: err.Error(), Code: ErrInvalidAttribute})
		}
	}

	for _, name := range m.RelationshipNames() {
		r := m.Relationships[name]
		v, present := rec[name]
		if !present {
			if complete && r.Required {
				errs = append(errs, ValidationError{Field: at(name), Message: "required relationship is missing", Code: ErrMissingField})
			}
			continue
		}
		if r.Kind == HasOne {
			if _, _, err := r.ParseHasOne(v); err != nil {
				errs = append(errs, ValidationError{Field: at(name), Message: err.Error(), Code: ErrInvalidHasOne})
			}
			continue
		}
		if _, err := r.ParseHasMany(v); err != nil {
			errs = append(errs, ValidationError{Field: at(name), Message: err.Error(), Code: ErrInvalidHasMany})
		}
	}
	return errs
}
