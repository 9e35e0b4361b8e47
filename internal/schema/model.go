package schema

import (
	"sort"

	"github.com/roach88/graphcache/internal/ir"
)

// Kind is the cardinality of a relationship field.
type Kind string

const (
	HasOne  Kind = "hasOne"
	HasMany Kind = "hasMany"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == HasOne || k == HasMany
}

// Attribute is one attribute field of a model.
type Attribute struct {
	Name     string
	Type     AttributeType
	Required bool
	ReadOnly bool
	// Default is used when a server record omits the field. When unset the
	// type's default applies.
	Default    any
	HasDefault bool
}

// DefaultValue returns the field default, falling back to the type's.
func (a *Attribute) DefaultValue() any {
	if a.HasDefault {
		return a.Default
	}
	return a.Type.Default()
}

// Relationship is one relationship field of a model.
type Relationship struct {
	Name        string
	Kind        Kind
	RelatedType string
	// Inverse names the field on the related type that holds the same
	// edge. Empty means the edge is one-directional.
	Inverse     string
	Polymorphic bool
	Required    bool
	ReadOnly    bool
	// Default holds a target id (hasOne) or id list (hasMany).
	Default    any
	HasDefault bool
}

// DefaultRefs resolves the field default into references.
func (r *Relationship) DefaultRefs() []ir.RecordRef {
	if !r.HasDefault {
		return nil
	}
	refs, _ := r.parseTargets(r.Default)
	return refs
}

// Model is the field table of one record type.
type Model struct {
	TypeKey       string
	Attributes    map[string]*Attribute
	Relationships map[string]*Relationship
}

// Field configures a model under construction.
type Field func(*Model)

// NewModel assembles a model from field constructors.
func NewModel(typeKey string, fields ...Field) *Model {
	m := &Model{
		TypeKey:       typeKey,
		Attributes:    make(map[string]*Attribute),
		Relationships: make(map[string]*Relationship),
	}
	for _, f := range fields {
		f(m)
	}
	return m
}

// Attr declares an attribute. It is required unless a default is given.
func Attr(name string, t AttributeType, opts ...AttrOption) Field {
	return func(m *Model) {
		a := &Attribute{Name: name, Type: t, Required: true}
		for _, opt := range opts {
			opt(a)
		}
		m.Attributes[name] = a
	}
}

// AttrOption configures an attribute.
type AttrOption func(*Attribute)

// AttrDefault sets the attribute default and makes the attribute optional.
func AttrDefault(v any) AttrOption {
	return func(a *Attribute) {
		a.Default = v
		a.HasDefault = true
		a.Required = false
	}
}

// AttrReadOnly rejects client writes to the attribute.
func AttrReadOnly() AttrOption {
	return func(a *Attribute) { a.ReadOnly = true }
}

// AttrOptional makes the attribute optional with the type's default.
func AttrOptional() AttrOption {
	return func(a *Attribute) { a.Required = false }
}

// RelOption configures a relationship.
type RelOption func(*Relationship)

// HasOneField declares a hasOne relationship.
func HasOneField(name, relatedType, inverse string, opts ...RelOption) Field {
	return relField(HasOne, name, relatedType, inverse, opts)
}

// HasManyField declares a hasMany relationship.
func HasManyField(name, relatedType, inverse string, opts ...RelOption) Field {
	return relField(HasMany, name, relatedType, inverse, opts)
}

func relField(kind Kind, name, relatedType, inverse string, opts []RelOption) Field {
	return func(m *Model) {
		r := &Relationship{
			Name:        name,
			Kind:        kind,
			RelatedType: relatedType,
			Inverse:     inverse,
			Required:    true,
		}
		for _, opt := range opts {
			opt(r)
		}
		m.Relationships[name] = r
	}
}

// RelDefault sets the default and makes the field optional.
func RelDefault(v any) RelOption {
	return func(r *Relationship) {
		r.Default = v
		r.HasDefault = true
		r.Required = false
	}
}

// RelOptional makes the field optional with an empty default.
func RelOptional() RelOption {
	return func(r *Relationship) { r.Required = false }
}

// RelReadOnly rejects client mutation of the field.
func RelReadOnly() RelOption {
	return func(r *Relationship) { r.ReadOnly = true }
}

// RelPolymorphic lets the field target records of any type; values are
// {type,id} objects.
func RelPolymorphic() RelOption {
	return func(r *Relationship) { r.Polymorphic = true }
}

// AttributeNames returns attribute names in sorted order.
func (m *Model) AttributeNames() []string {
	names := make([]string, 0, len(m.Attributes))
	for n := range m.Attributes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RelationshipNames returns relationship names in sorted order.
func (m *Model) RelationshipNames() []string {
	names := make([]string, 0, len(m.Relationships))
	for n := range m.Relationships {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Attribute looks up an attribute field.
func (m *Model) Attribute(name string) (*Attribute, bool) {
	a, ok := m.Attributes[name]
	return a, ok
}

// Relationship looks up a relationship field.
func (m *Model) Relationship(name string) (*Relationship, bool) {
	r, ok := m.Relationships[name]
	return r, ok
}
