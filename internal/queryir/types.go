package queryir

// Query is a query node. Sealed to this package.
type Query interface {
	queryNode()
}

// Predicate is a filter condition. Sealed to this package.
type Predicate interface {
	predicateNode()
}

// Select returns the records of one type that satisfy Filter.
//
//	Select{Type: "post", Filter: And{Predicates: []Predicate{
//	  Equals{Field: "title", Value: "Hello"},
//	  Contains{Field: "tags", ID: "7"},
//	}}}
//
// A nil Filter selects every record of the type. Results are always in
// a stable order chosen by the backend.
type Select struct {
	Type   string
	Filter Predicate
}

func (Select) queryNode() {}

// IDField names the record id in Equals.
const IDField = "id"

// Equals matches a field against a literal.
type Equals struct {
	Field string
	Value any // string, int64, float64 or bool
}

func (Equals) predicateNode() {}

// IsNull matches a field that is null or absent.
type IsNull struct {
	Field string
}

func (IsNull) predicateNode() {}

// Contains matches a hasMany field that lists ID.
type Contains struct {
	Field string
	ID    string
}

func (Contains) predicateNode() {}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
