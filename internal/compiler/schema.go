package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/graphcache/internal/schema"
)

// Compile error codes (E100-E119). Cross-model checks use the schema
// package's E120+ codes.
const (
	ErrCUE              = "E100" // CUE evaluation error
	ErrNoModels         = "E101" // no models declared
	ErrInvalidModel     = "E102" // model is not a struct
	ErrUnknownAttrType  = "E103" // attribute type is not a built-in
	ErrInvalidField     = "E104" // field declaration has the wrong shape
	ErrRelationshipKind = "E105" // neither or both of hasOne/hasMany
	ErrInvalidDefault   = "E106" // default does not fit the field type
	ErrInvalidEnum      = "E107" // enum values missing or default outside them
)

// CompileSchema compiles every struct under the top-level "model" field and
// builds the schema from them. Problems from every model are collected and
// returned together as schema.ValidationErrors.
func CompileSchema(v cue.Value) (*schema.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, schema.ValidationErrors{toValidationError(formatCUEError(err))}
	}

	modelsVal := v.LookupPath(cue.ParsePath("model"))
	if !modelsVal.Exists() {
		return nil, schema.ValidationErrors{{Field: "model", Message: "no models declared", Code: ErrNoModels}}
	}
	iter, err := modelsVal.Fields()
	if err != nil {
		return nil, schema.ValidationErrors{toValidationError(formatCUEError(err))}
	}

	var (
		models []*schema.Model
		errs   schema.ValidationErrors
	)
	for iter.Next() {
		m, err := CompileModel(iter.Value())
		if err != nil {
			errs = append(errs, toValidationError(err))
			continue
		}
		models = append(models, m)
	}
	if len(models) == 0 && len(errs) == 0 {
		errs = append(errs, schema.ValidationError{Field: "model", Message: "no models declared", Code: ErrNoModels})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	return schema.New(models...)
}

// LoadDir loads the CUE package in dir. It returns the built value and the
// number of .cue files found.
func LoadDir(dir string) (cue.Value, int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return cue.Value{}, 0, fmt.Errorf("models directory: %w", err)
	}
	if !info.IsDir() {
		return cue.Value{}, 0, fmt.Errorf("not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return cue.Value{}, 0, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(files) == 0 {
		return cue.Value{}, 0, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, 0, errors.New("no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, 0, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, 0, formatCUEError(err)
	}
	return value, len(files), nil
}

// LoadSchema loads dir and compiles its models.
func LoadSchema(dir string) (*schema.Schema, error) {
	v, _, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return CompileSchema(v)
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func toValidationError(err error) schema.ValidationError {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.ValidationError()
	}
	return schema.ValidationError{Field: "cue", Message: err.Error(), Code: ErrCUE}
}
