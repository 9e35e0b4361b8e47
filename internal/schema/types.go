package schema

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/graphcache/internal/ir"
)

// AttributeType converts attribute values between their payload form and
// their in-memory form and decides when two values are the same.
//
// Deserialize is lenient: it coerces rather than rejects, the way payload
// data from loosely typed servers needs. Serialize produces the JSON form
// sent back through an adapter.
type AttributeType interface {
	Name() string
	Default() any
	Serialize(v any) (any, error)
	Deserialize(v any) (any, error)
	Equal(a, b any) bool
}

// Built-in attribute types.
var (
	String  AttributeType = stringType{}
	Number  AttributeType = numberType{}
	Boolean AttributeType = booleanType{}
	Date    AttributeType = dateType{}
	Object  AttributeType = objectType{}
	Array   AttributeType = arrayType{}
)

// LookupType returns a built-in attribute type by name.
func LookupType(name string) (AttributeType, bool) {
	switch name {
	case "string":
		return String, true
	case "number":
		return Number, true
	case "boolean":
		return Boolean, true
	case "date":
		return Date, true
	case "object":
		return Object, true
	case "array":
		return Array, true
	}
	return nil, false
}

type stringType struct{}

func (stringType) Name() string { return "string" }
func (stringType) Default() any { return nil }

func (t stringType) Serialize(v any) (any, error) { return t.Deserialize(v) }

func (stringType) Deserialize(v any) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		return s, nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(s), nil
	}
	return fmt.Sprint(v), nil
}

func (stringType) Equal(a, b any) bool { return a == b }

type numberType struct{}

func (numberType) Name() string { return "number" }
func (numberType) Default() any { return int64(0) }

func (t numberType) Serialize(v any) (any, error) { return t.Deserialize(v) }

// Deserialize keeps integral values as int64 and everything else as
// float64. Unparseable input becomes 0.
func (numberType) Deserialize(v any) (any, error) {
	v = ir.NormalizeValue(v)
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return int64(0), nil
		}
		return n, nil
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, nil
		}
	}
	if f, ok := ir.ToFloat(v); ok {
		return f, nil
	}
	return int64(0), nil
}

func (numberType) Equal(a, b any) bool {
	fa, okA := ir.ToFloat(a)
	fb, okB := ir.ToFloat(b)
	if !okA || !okB {
		return a == nil && b == nil
	}
	return fa == fb
}

type booleanType struct{}

func (booleanType) Name() string { return "boolean" }
func (booleanType) Default() any { return false }

func (t booleanType) Serialize(v any) (any, error) { return t.Deserialize(v) }

// Deserialize accepts true and "true"; everything else is false.
func (booleanType) Deserialize(v any) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return b == "true", nil
	}
	return false, nil
}

func (booleanType) Equal(a, b any) bool { return a == b }

type dateType struct{}

func (dateType) Name() string { return "date" }
func (dateType) Default() any { return nil }

// Serialize writes a millisecond Unix timestamp.
func (t dateType) Serialize(v any) (any, error) {
	d, err := t.Deserialize(v)
	if err != nil || d == nil {
		return nil, err
	}
	return d.(time.Time).UnixMilli(), nil
}

// Deserialize reads a millisecond timestamp or an RFC 3339 string.
func (dateType) Deserialize(v any) (any, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return d.UTC(), nil
	case int64:
		return time.UnixMilli(d).UTC(), nil
	case int:
		return time.UnixMilli(int64(d)).UTC(), nil
	case float64:
		return time.UnixMilli(int64(d)).UTC(), nil
	case string:
		if ms, err := strconv.ParseInt(d, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, d)
		if err != nil {
			return nil, fmt.Errorf("date %q: %w", d, err)
		}
		return parsed.UTC(), nil
	}
	return nil, fmt.Errorf("date: unsupported value of type %T", v)
}

func (t dateType) Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	da, errA := t.Deserialize(a)
	db, errB := t.Deserialize(b)
	if errA != nil || errB != nil || da == nil || db == nil {
		return false
	}
	return da.(time.Time).UnixMilli() == db.(time.Time).UnixMilli()
}

type objectType struct{}

func (objectType) Name() string { return "object" }
func (objectType) Default() any { return nil }

func (t objectType) Serialize(v any) (any, error) { return t.Deserialize(v) }

func (objectType) Deserialize(v any) (any, error) {
	switch o := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return ir.NormalizeValue(o), nil
	case ir.RecordJSON:
		return ir.NormalizeValue(map[string]any(o)), nil
	}
	return nil, fmt.Errorf("object: unsupported value of type %T", v)
}

// Equal compares canonical encodings, so key order and int/float spelling
// of the same number do not matter.
func (objectType) Equal(a, b any) bool { return canonicalEqual(a, b) }

type arrayType struct{}

func (arrayType) Name() string { return "array" }
func (arrayType) Default() any { return nil }

func (t arrayType) Serialize(v any) (any, error) { return t.Deserialize(v) }

func (arrayType) Deserialize(v any) (any, error) {
	switch a := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return ir.NormalizeValue(a), nil
	case []string:
		out := make([]any, len(a))
		for i, s := range a {
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("array: unsupported value of type %T", v)
}

// Equal is false unless both sides are arrays with equal contents.
func (arrayType) Equal(a, b any) bool {
	if _, ok := a.([]any); !ok {
		return false
	}
	if _, ok := b.([]any); !ok {
		return false
	}
	return canonicalEqual(a, b)
}

func canonicalEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ca, errA := ir.MarshalCanonical(a)
	cb, errB := ir.MarshalCanonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// EnumType is a string attribute restricted to a fixed set of values,
// compared case-insensitively. Values outside the set deserialize to the
// default.
type EnumType struct {
	Values       []string
	DefaultValue string
}

// NewEnum builds an enum type. The default must be one of the values.
func NewEnum(defaultValue string, values ...string) (*EnumType, error) {
	e := &EnumType{Values: values, DefaultValue: defaultValue}
	if !e.IsValid(defaultValue) {
		return nil, fmt.Errorf("enum default %q is not one of %v", defaultValue, values)
	}
	return e, nil
}

func (e *EnumType) Name() string { return "enum" }
func (e *EnumType) Default() any { return e.DefaultValue }

// IsValid reports whether option is one of the values, ignoring case.
func (e *EnumType) IsValid(option string) bool {
	for _, v := range e.Values {
		if strings.EqualFold(v, option) {
			return true
		}
	}
	return false
}

func (e *EnumType) Serialize(v any) (any, error) { return e.Deserialize(v) }

func (e *EnumType) Deserialize(v any) (any, error) {
	s, err := String.Deserialize(v)
	if err != nil {
		return nil, err
	}
	if str, ok := s.(string); ok && e.IsValid(str) {
		return str, nil
	}
	return e.DefaultValue, nil
}

func (e *EnumType) Equal(a, b any) bool {
	sa, okA := a.(string)
	sb, okB := b.(string)
	return okA && okB && strings.EqualFold(sa, sb)
}
