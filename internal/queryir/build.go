package queryir

import (
	"fmt"

	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/schema"
)

// Build resolves a flat query against a model. Keys are processed in
// canonical order so equal queries build equal trees.
//
// Attribute values are coerced through the attribute's type, so a query
// for {"age": "30"} on a number attribute matches 30.
func Build(model *schema.Model, q ir.Query) (Select, error) {
	if q == nil {
		return Select{}, fmt.Errorf("nil query")
	}

	var preds []Predicate
	for _, field := range ir.SortedKeys(q) {
		pred, err := buildPredicate(model, field, q[field])
		if err != nil {
			return Select{}, fmt.Errorf("query %s.%s: %w", model.TypeKey, field, err)
		}
		preds = append(preds, pred)
	}

	sel := Select{Type: model.TypeKey}
	switch len(preds) {
	case 0:
	case 1:
		sel.Filter = preds[0]
	default:
		sel.Filter = And{Predicates: preds}
	}

	if problems := Validate(sel); len(problems) > 0 {
		return Select{}, fmt.Errorf("query %s: %s", model.TypeKey, problems[0])
	}
	return sel, nil
}

func buildPredicate(model *schema.Model, field string, v any) (Predicate, error) {
	if field == IDField {
		id, ok := v.(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("id must be a non-empty string")
		}
		return Equals{Field: IDField, Value: id}, nil
	}

	if attr, ok := model.Attribute(field); ok {
		if v == nil {
			return IsNull{Field: field}, nil
		}
		val, err := attr.Type.Serialize(v)
		if err != nil {
			return nil, err
		}
		if val == nil {
			return IsNull{Field: field}, nil
		}
		return Equals{Field: field, Value: val}, nil
	}

	rel, ok := model.Relationship(field)
	if !ok {
		return nil, fmt.Errorf("unknown field")
	}
	if rel.Polymorphic {
		return nil, fmt.Errorf("polymorphic fields cannot be queried")
	}
	if v == nil {
		if rel.Kind == schema.HasMany {
			return nil, fmt.Errorf("hasMany fields cannot be null")
		}
		return IsNull{Field: field}, nil
	}

	ref, _, err := rel.ParseHasOne(v)
	if err != nil {
		return nil, err
	}
	if rel.Kind == schema.HasMany {
		return Contains{Field: field, ID: ref.ID}, nil
	}
	return Equals{Field: field, Value: ref.ID}, nil
}
