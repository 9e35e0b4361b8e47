package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/graphcache/internal/compiler"
	"github.com/roach88/graphcache/internal/schema"
)

// LoadResult contains the compiled models from a directory.
type LoadResult struct {
	Schema    *schema.Schema
	FileCount int // number of CUE files found
}

// LoadError represents a failure to read the models directory, as opposed
// to a problem with the models themselves.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadModels loads and compiles the CUE models in dir.
//
// A directory that cannot be read or built yields a *LoadError. Models
// that build but do not compile yield schema.ValidationErrors listing
// every problem.
func LoadModels(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("models directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing models directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := compiler.FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	value, count, err := compiler.LoadDir(dir)
	if err != nil {
		var ce *compiler.CompileError
		if errors.As(err, &ce) {
			return nil, &LoadError{Code: ErrCodeBuildFailed, Message: ce.Message, Pos: ce.Pos}
		}
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}

	sch, err := compiler.CompileSchema(value)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Schema: sch, FileCount: count}, nil
}

// Error code constants shared by all CLI commands. Model compile errors
// carry the compiler's E1xx codes instead.
const (
	ErrCodeGeneric     = "E001" // generic/unknown error
	ErrCodeScanError   = "E002" // directory scan error
	ErrCodeNoFiles     = "E003" // no CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // database write error
	ErrCodePayload     = "E008" // payload unreadable or rejected by the models
	ErrCodeFind        = "E009" // find failed
)

// codeOf returns the CLI code for a load failure.
func codeOf(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	var ve schema.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return ve[0].Code
	}
	return ErrCodeGeneric
}
