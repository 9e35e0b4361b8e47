package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/graphcache/internal/engine"
	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/schema"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // success
	ExitFailure      = 1 // scenarios failed or models invalid
	ExitCommandError = 2 // bad paths, rejected payloads, failed finds
)

// ExitError carries the process exit code out of a command.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Message string
	Err     error // optional cause
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError creates an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code an error carries, ExitFailure when it
// carries none.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope every --format json command writes.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failed command. Record, Field and Violations come
// from store and model errors, so a rejected payload lists every problem.
type CLIError struct {
	Code       string                   `json:"code"`
	Message    string                   `json:"message"`
	Record     string                   `json:"record,omitempty"`
	Field      string                   `json:"field,omitempty"`
	Violations []schema.ValidationError `json:"violations,omitempty"`
}

// describeError builds the error body for err, which may be nil.
func describeError(code, message string, err error) *CLIError {
	body := &CLIError{Code: code, Message: message}

	var se *engine.Error
	if errors.As(err, &se) {
		switch {
		case se.ID != "":
			body.Record = ir.Ref(se.Type, se.ID).String()
		case se.Type != "":
			body.Record = se.Type
		}
		body.Field = se.Field
		body.Violations = se.Violations
	}
	var ve schema.ValidationErrors
	if errors.As(err, &ve) {
		body.Violations = ve
	}
	return body
}

// textRenderer is implemented by command results with a text form.
type textRenderer interface {
	renderText(w io.Writer) error
}

// OutputFormatter writes command results as JSON envelopes or text.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

func (f *OutputFormatter) isJSON() bool { return f.Format == "json" }

// Success writes a command result. In text mode a result renders itself
// when it can and is printed with fmt otherwise.
func (f *OutputFormatter) Success(result any) error {
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: result})
	}
	if r, ok := result.(textRenderer); ok {
		return r.renderText(f.Writer)
	}
	_, err := fmt.Fprintln(f.Writer, result)
	return err
}

// Fail writes a failure. The record, field and schema violations of a
// store or model error in err are reported alongside the message.
func (f *OutputFormatter) Fail(code, message string, err error) error {
	body := describeError(code, message, err)
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "error", Error: body})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", body.Code, body.Message)
	switch {
	case body.Record != "" && body.Field != "":
		fmt.Fprintf(f.Writer, "  record: %s.%s\n", body.Record, body.Field)
	case body.Record != "":
		fmt.Fprintf(f.Writer, "  record: %s\n", body.Record)
	}
	for _, v := range body.Violations {
		fmt.Fprintf(f.Writer, "  %s %s: %s\n", v.Code, v.Field, v.Message)
	}
	return nil
}

// VerboseLog writes to the diagnostics writer when verbose is set, so JSON
// on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.Diagnostics(), format+"\n", args...)
}

// Diagnostics returns the writer for logs and metrics.
func (f *OutputFormatter) Diagnostics() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
