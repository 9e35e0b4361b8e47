package queryir

import "fmt"

// Validate checks a query tree for shapes no backend can compile: an
// empty type, empty field names, and literals outside the supported
// scalar set. It returns every problem found.
func Validate(q Query) []string {
	v := &validator{}
	v.validateQuery(q)
	return v.problems
}

type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Select:
		if query.Type == "" {
			v.addProblem("select without a type")
		}
		v.validatePredicate(query.Filter)
	default:
		v.addProblem("unknown query type %T", q)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.checkField(pred.Field)
		switch pred.Value.(type) {
		case string, int64, float64, bool:
		default:
			v.addProblem("field %q compared to unsupported value %T", pred.Field, pred.Value)
		}
	case IsNull:
		v.checkField(pred.Field)
	case Contains:
		v.checkField(pred.Field)
		if pred.ID == "" {
			v.addProblem("field %q: membership test needs an id", pred.Field)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addProblem("unknown predicate type %T", p)
	}
}

func (v *validator) checkField(name string) {
	if name == "" {
		v.addProblem("empty field name")
	}
}
