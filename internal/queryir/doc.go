// Package queryir is the abstract form of a find-by-query.
//
// A store query arrives as a flat ir.Query (field name to expected value).
// Build resolves it against a model into a typed tree that a backend can
// compile without knowing the schema:
//
//	[ir.Query] + [schema.Model] → [queryir.Select] → [querysql] → SQL
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed with marker methods so backends can
// switch over them exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	case IsNull:
//	case Contains:
//	case And:
//	}
//
// SUPPORTED FRAGMENT:
//   - equality on the record id, attributes and non-polymorphic hasOne ids
//   - null tests (an explicit nil value)
//   - membership of an id in a non-polymorphic hasMany field
//   - conjunction of the above
//
// Disjunction, ranges and polymorphic matches are not expressible.
// Literal values are restricted to string, int64, float64 and bool.
package queryir
