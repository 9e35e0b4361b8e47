// Package querysql compiles queryir trees to parameterised SQLite over the
// records table, where each row keeps its record as a JSON document.
package querysql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/graphcache/internal/queryir"
)

// OrderBy is appended to every compiled query: write order, then id.
const OrderBy = " ORDER BY seq ASC, id ASC COLLATE BINARY"

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLCompiler compiles queries against one table.
//
// CRITICAL: every query carries OrderBy so results are deterministic.
// CRITICAL: literals and JSON paths are always bound, never interpolated.
type SQLCompiler struct {
	Table string
}

// NewSQLCompiler creates a compiler for the records table.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Table: "records"}
}

// Compile converts a query to (sql, params). The statement selects
// (id, data) rows.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if problems := queryir.Validate(q); len(problems) > 0 {
		return "", nil, fmt.Errorf("invalid query: %s", strings.Join(problems, "; "))
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	where := "type = ?"
	params := []any{q.Type}

	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where += " AND " + filterSQL
		params = append(params, filterParams...)
	}

	sql := fmt.Sprintf("SELECT id, data FROM %s WHERE %s%s", c.Table, where, OrderBy)
	return sql, params, nil
}

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return compileEquals(pred)
	case queryir.IsNull:
		path, err := jsonPath(pred.Field)
		if err != nil {
			return "", nil, err
		}
		return "json_extract(data, ?) IS NULL", []any{path}, nil
	case queryir.Contains:
		path, err := jsonPath(pred.Field)
		if err != nil {
			return "", nil, err
		}
		return "EXISTS (SELECT 1 FROM json_each(data, ?) WHERE json_each.value = ?)", []any{path, pred.ID}, nil
	case queryir.And:
		return c.compileAnd(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileEquals(eq queryir.Equals) (string, []any, error) {
	param := toParam(eq.Value)
	if eq.Field == queryir.IDField {
		return "id = ?", []any{param}, nil
	}
	path, err := jsonPath(eq.Field)
	if err != nil {
		return "", nil, err
	}
	return "json_extract(data, ?) = ?", []any{path, param}, nil
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, predParams, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		if _, nested := pred.(queryir.And); nested {
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
		params = append(params, predParams...)
	}
	return strings.Join(parts, " AND "), params, nil
}

// jsonPath quotes a field name as a JSON path. Names are restricted to
// identifiers so the quoted form needs no escaping.
func jsonPath(field string) (string, error) {
	if !fieldName.MatchString(field) {
		return "", fmt.Errorf("field %q is not a plain identifier", field)
	}
	return `$."` + field + `"`, nil
}

// toParam maps a literal to the value json_extract yields for it. JSON
// booleans come back from SQLite as 1 and 0.
func toParam(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}
