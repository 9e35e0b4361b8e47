// Package schema is the static field table consulted by the engine: for every
// record type, which fields are attributes and which are relationships,
// their types, defaults, and how relationships pair with inverses.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Validation error codes (E120-E139)
const (
	// Model errors (E120-E129)
	ErrEmptyTypeKey       = "E120" // model type key is required
	ErrDuplicateType      = "E121" // type key declared twice
	ErrReservedField      = "E122" // "id" cannot be declared as a field
	ErrFieldCollision     = "E123" // attribute and relationship share a name
	ErrMissingAttrType    = "E124" // attribute has no type
	ErrInvalidKind        = "E125" // relationship kind is not hasOne/hasMany
	ErrUnknownRelatedType = "E126" // related type is not a declared model
	ErrMissingInverse     = "E127" // inverse field not found on related type
	ErrInverseMismatch    = "E128" // inverse does not point back
	ErrInvalidRelDefault  = "E129" // relationship default has the wrong shape

	// Record errors (E130-E139)
	ErrUnknownType      = "E130" // payload names an undeclared type
	ErrInvalidID        = "E131" // id missing, empty or not a string
	ErrMissingField     = "E132" // required field absent
	ErrInvalidHasOne    = "E133" // hasOne value is not an id, ref or null
	ErrInvalidHasMany   = "E134" // hasMany value is not a list of ids or refs
	ErrInvalidAttribute = "E135" // attribute value cannot be deserialized
)

// ValidationError describes one schema problem.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors aggregates every problem found in one pass.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Schema is the registry of models by type key.
type Schema struct {
	models map[string]*Model
}

// New builds a schema and validates it. All problems are reported together.
func New(models ...*Model) (*Schema, error) {
	s := &Schema{models: make(map[string]*Model, len(models))}
	var errs ValidationErrors

	for _, m := range models {
		if m.TypeKey == "" {
			errs = append(errs, ValidationError{Field: "type", Message: "model type key is required", Code: ErrEmptyTypeKey})
			continue
		}
		if _, dup := s.models[m.TypeKey]; dup {
			errs = append(errs, ValidationError{Field: m.TypeKey, Message: "type declared more than once", Code: ErrDuplicateType})
			continue
		}
		s.models[m.TypeKey] = m
	}

	for _, typeKey := range s.Types() {
		errs = append(errs, s.validateModel(s.models[typeKey])...)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return s, nil
}

// MustNew is New for static schemas; it panics on a validation error.
func MustNew(models ...*Model) *Schema {
	s, err := New(models...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) validateModel(m *Model) []ValidationError {
	var errs []ValidationError
	at := func(name string) string { return m.TypeKey + "." + name }

	for _, name := range m.AttributeNames() {
		a := m.Attributes[name]
		if name == "id" {
			errs = append(errs, ValidationError{Field: at(name), Message: `"id" is reserved`, Code: ErrReservedField})
		}
		if a.Type == nil {
			errs = append(errs, ValidationError{Field: at(name), Message: "attribute type is required", Code: ErrMissingAttrType})
		}
		if _, clash := m.Relationships[name]; clash {
			errs = append(errs, ValidationError{Field: at(name), Message: "declared as both attribute and relationship", Code: ErrFieldCollision})
		}
	}

	for _, name := range m.RelationshipNames() {
		r := m.Relationships[name]
		if name == "id" {
			errs = append(errs, ValidationError{Field: at(name), Message: `"id" is reserved`, Code: ErrReservedField})
		}
		if !r.Kind.Valid() {
			errs = append(errs, ValidationError{Field: at(name), Message: fmt.Sprintf("invalid kind %q", r.Kind), Code: ErrInvalidKind})
			continue
		}
		if r.HasDefault {
			if _, err := r.parseTargets(r.Default); err != nil {
				errs = append(errs, ValidationError{Field: at(name), Message: err.Error(), Code: ErrInvalidRelDefault})
			}
		}

		related, ok := s.models[r.RelatedType]
		if !ok && r.Polymorphic && r.Inverse == "" {
			// an abstract related type is fine for a one-directional
			// polymorphic field
			continue
		}
		if !ok {
			errs = append(errs, ValidationError{Field: at(name), Message: fmt.Sprintf("related type %q is not declared", r.RelatedType), Code: ErrUnknownRelatedType})
			continue
		}
		if r.Inverse == "" {
			continue
		}
		inv, ok := related.Relationships[r.Inverse]
		if !ok {
			errs = append(errs, ValidationError{Field: at(name), Message: fmt.Sprintf("inverse %q not found on %q", r.Inverse, r.RelatedType), Code: ErrMissingInverse})
			continue
		}
		if inv.Inverse != name {
			errs = append(errs, ValidationError{Field: at(name), Message: fmt.Sprintf("inverse %s.%s points to %q", r.RelatedType, r.Inverse, inv.Inverse), Code: ErrInverseMismatch})
		}
	}
	return errs
}

// Model returns the model for a type key.
func (s *Schema) Model(typeKey string) (*Model, bool) {
	m, ok := s.models[typeKey]
	return m, ok
}

// Types returns the declared type keys in sorted order.
func (s *Schema) Types() []string {
	keys := make([]string, 0, len(s.models))
	for k := range s.models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Inverse returns the inverse field of rel on targetType, or nil when the
// field is one-directional or the target type does not declare it.
// targetType matters only for polymorphic fields.
func (s *Schema) Inverse(rel *Relationship, targetType string) *Relationship {
	if rel.Inverse == "" {
		return nil
	}
	if targetType == "" {
		targetType = rel.RelatedType
	}
	m, ok := s.models[targetType]
	if !ok {
		return nil
	}
	return m.Relationships[rel.Inverse]
}

// InverseKind is the kind of rel's inverse, or "" when it has none.
func (s *Schema) InverseKind(rel *Relationship, targetType string) Kind {
	if inv := s.Inverse(rel, targetType); inv != nil {
		return inv.Kind
	}
	return ""
}
