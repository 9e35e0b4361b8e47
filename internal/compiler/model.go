package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/schema"
)

var (
	attributeKeys    = []string{"type", "values", "default", "optional", "readOnly"}
	relationshipKeys = []string{"hasOne", "hasMany", "inverse", "polymorphic", "default", "optional", "readOnly"}
)

// CompileModel parses one model struct into a schema.Model. The type key is
// the struct's label:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`model: user: { attributes: { name: "string" } }`)
//	m, err := CompileModel(v.LookupPath(cue.ParsePath("model.user")))
func CompileModel(v cue.Value) (*schema.Model, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Field: "model", Message: "model must be a struct", Code: ErrInvalidModel, Pos: v.Pos()}
	}

	typeKey := lastLabel(v)
	var fields []schema.Field

	attrs := v.LookupPath(cue.ParsePath("attributes"))
	if attrs.Exists() {
		iter, err := attrs.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			f, err := parseAttribute(typeKey+"."+iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
	}

	rels := v.LookupPath(cue.ParsePath("relationships"))
	if rels.Exists() {
		iter, err := rels.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			f, err := parseRelationship(typeKey+"."+iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
	}

	if err := checkKeys(typeKey, v, []string{"attributes", "relationships"}); err != nil {
		return nil, err
	}

	return schema.NewModel(typeKey, fields...), nil
}

// parseAttribute accepts a bare type name or a struct:
//
//	name: "string"
//	status: {type: "enum", values: ["open", "closed"], default: "open"}
func parseAttribute(path string, v cue.Value) (schema.Field, error) {
	name := lastLabel(v)

	if s, err := v.String(); err == nil {
		t, ok := schema.LookupType(s)
		if !ok {
			return nil, &CompileError{Field: path, Message: fmt.Sprintf("unknown attribute type %q", s), Code: ErrUnknownAttrType, Pos: v.Pos()}
		}
		return schema.Attr(name, t), nil
	}

	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Field: path, Message: "attribute must be a type name or a struct", Code: ErrInvalidField, Pos: v.Pos()}
	}
	if err := checkKeys(path, v, attributeKeys); err != nil {
		return nil, err
	}

	typeName, err := requiredString(path, v, "type")
	if err != nil {
		return nil, err
	}

	var t schema.AttributeType
	if typeName == "enum" {
		t, err = parseEnum(path, v)
		if err != nil {
			return nil, err
		}
	} else {
		var ok bool
		t, ok = schema.LookupType(typeName)
		if !ok {
			return nil, &CompileError{Field: path, Message: fmt.Sprintf("unknown attribute type %q", typeName), Code: ErrUnknownAttrType, Pos: v.Pos()}
		}
	}

	var opts []schema.AttrOption
	if optional, err := optionalBool(path, v, "optional"); err != nil {
		return nil, err
	} else if optional {
		opts = append(opts, schema.AttrOptional())
	}
	if readOnly, err := optionalBool(path, v, "readOnly"); err != nil {
		return nil, err
	} else if readOnly {
		opts = append(opts, schema.AttrReadOnly())
	}

	if dv := v.LookupPath(cue.ParsePath("default")); dv.Exists() {
		raw, err := decodeValue(dv)
		if err != nil {
			return nil, err
		}
		val, err := t.Deserialize(raw)
		if err != nil {
			return nil, &CompileError{Field: path, Message: fmt.Sprintf("default: %v", err), Code: ErrInvalidDefault, Pos: dv.Pos()}
		}
		opts = append(opts, schema.AttrDefault(val))
	}

	return schema.Attr(name, t, opts...), nil
}

func parseEnum(path string, v cue.Value) (*schema.EnumType, error) {
	vv := v.LookupPath(cue.ParsePath("values"))
	if !vv.Exists() {
		return nil, &CompileError{Field: path, Message: "enum needs values", Code: ErrInvalidEnum, Pos: v.Pos()}
	}
	var values []string
	if err := vv.Decode(&values); err != nil {
		return nil, &CompileError{Field: path, Message: "enum values must be a list of strings", Code: ErrInvalidEnum, Pos: vv.Pos()}
	}
	if len(values) == 0 {
		return nil, &CompileError{Field: path, Message: "enum needs values", Code: ErrInvalidEnum, Pos: vv.Pos()}
	}

	def := values[0]
	if dv := v.LookupPath(cue.ParsePath("default")); dv.Exists() {
		s, err := dv.String()
		if err != nil {
			return nil, &CompileError{Field: path, Message: "enum default must be a string", Code: ErrInvalidDefault, Pos: dv.Pos()}
		}
		def = s
	}

	e, err := schema.NewEnum(def, values...)
	if err != nil {
		return nil, &CompileError{Field: path, Message: err.Error(), Code: ErrInvalidEnum, Pos: v.Pos()}
	}
	return e, nil
}

// parseRelationship reads a relationship struct. Exactly one of hasOne and
// hasMany names the related type:
//
//	posts: {hasMany: "post", inverse: "author"}
func parseRelationship(path string, v cue.Value) (schema.Field, error) {
	name := lastLabel(v)

	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Field: path, Message: "relationship must be a struct", Code: ErrInvalidField, Pos: v.Pos()}
	}
	if err := checkKeys(path, v, relationshipKeys); err != nil {
		return nil, err
	}

	hasOne := v.LookupPath(cue.ParsePath("hasOne"))
	hasMany := v.LookupPath(cue.ParsePath("hasMany"))
	var kindKey string
	switch {
	case hasOne.Exists() && hasMany.Exists():
		return nil, &CompileError{Field: path, Message: "declare either hasOne or hasMany, not both", Code: ErrRelationshipKind, Pos: v.Pos()}
	case hasOne.Exists():
		kindKey = "hasOne"
	case hasMany.Exists():
		kindKey = "hasMany"
	default:
		return nil, &CompileError{Field: path, Message: "hasOne or hasMany is required", Code: ErrRelationshipKind, Pos: v.Pos()}
	}

	related, err := requiredString(path, v, kindKey)
	if err != nil {
		return nil, err
	}
	inverse, err := optionalString(path, v, "inverse")
	if err != nil {
		return nil, err
	}

	var opts []schema.RelOption
	for _, flag := range []struct {
		key string
		opt schema.RelOption
	}{
		{"polymorphic", schema.RelPolymorphic()},
		{"optional", schema.RelOptional()},
		{"readOnly", schema.RelReadOnly()},
	} {
		set, err := optionalBool(path, v, flag.key)
		if err != nil {
			return nil, err
		}
		if set {
			opts = append(opts, flag.opt)
		}
	}

	if dv := v.LookupPath(cue.ParsePath("default")); dv.Exists() {
		val, err := decodeValue(dv)
		if err != nil {
			return nil, err
		}
		opts = append(opts, schema.RelDefault(val))
	}

	if kindKey == "hasOne" {
		return schema.HasOneField(name, related, inverse, opts...), nil
	}
	return schema.HasManyField(name, related, inverse, opts...), nil
}

func checkKeys(path string, v cue.Value, allowed []string) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		known := false
		for _, k := range allowed {
			if k == label {
				known = true
				break
			}
		}
		if !known {
			return &CompileError{Field: path, Message: fmt.Sprintf("unknown key %q", label), Code: ErrInvalidField, Pos: iter.Value().Pos()}
		}
	}
	return nil
}

func requiredString(path string, v cue.Value, key string) (string, error) {
	f := v.LookupPath(cue.ParsePath(key))
	if !f.Exists() {
		return "", &CompileError{Field: path, Message: key + " is required", Code: ErrInvalidField, Pos: v.Pos()}
	}
	s, err := f.String()
	if err != nil || s == "" {
		return "", &CompileError{Field: path, Message: key + " must be a non-empty string", Code: ErrInvalidField, Pos: f.Pos()}
	}
	return s, nil
}

func optionalString(path string, v cue.Value, key string) (string, error) {
	f := v.LookupPath(cue.ParsePath(key))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", &CompileError{Field: path, Message: key + " must be a string", Code: ErrInvalidField, Pos: f.Pos()}
	}
	return s, nil
}

func optionalBool(path string, v cue.Value, key string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(key))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, &CompileError{Field: path, Message: key + " must be a boolean", Code: ErrInvalidField, Pos: f.Pos()}
	}
	return b, nil
}

// decodeValue converts a concrete CUE value into the same Go shapes a JSON
// payload decodes to, so defaults compare equal to pushed values.
func decodeValue(v cue.Value) (any, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return ir.NormalizeValue(out), nil
}

func lastLabel(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	return sels[len(sels)-1].Unquoted()
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Code    string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError converts the error into the schema's reporting shape.
func (e *CompileError) ValidationError() schema.ValidationError {
	ve := schema.ValidationError{Field: e.Field, Message: e.Message, Code: e.Code}
	if e.Pos.IsValid() {
		ve.Line = e.Pos.Line()
	}
	return ve
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	var pos token.Pos
	if len(positions) > 0 {
		pos = positions[0]
	}
	return &CompileError{
		Field:   "cue",
		Message: first.Error(),
		Code:    ErrCUE,
		Pos:     pos,
	}
}
