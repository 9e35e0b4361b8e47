package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/graphcache/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                     `json:"valid"`
	Models []string                 `json:"models,omitempty"`
	Errors []schema.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <models-dir>",
		Short: "Validate CUE models",
		Long: `Compile the CUE models in a directory and check them.

Reports every problem at once: unknown attribute types, malformed
relationships, defaults that do not fit their field, and inverses that
are missing or do not point back.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, modelsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // keep JSON on stdout clean
		Verbose:   opts.Verbose,
	}

	loaded, err := LoadModels(modelsDir)
	if err != nil {
		var ve schema.ValidationErrors
		if errors.As(err, &ve) {
			return outputValidationErrors(formatter, ve)
		}
		return outputValidateError(formatter, codeOf(err), loadMessage(err), err)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, modelsDir)
	for _, typeKey := range loaded.Schema.Types() {
		formatter.VerboseLog("Validated model: %s", typeKey)
	}

	return outputValidateSuccess(formatter, loaded.Schema.Types())
}

func loadMessage(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Message
	}
	return err.Error()
}

func outputValidateSuccess(formatter *OutputFormatter, models []string) error {
	return formatter.Success(ValidationResult{Valid: true, Models: models})
}

// outputValidateError reports a directory that could not be loaded.
func outputValidateError(formatter *OutputFormatter, code, message string, err error) error {
	_ = formatter.Fail(code, message, err)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors reports models that loaded but did not compile.
func outputValidationErrors(formatter *OutputFormatter, errs schema.ValidationErrors) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	result := ValidationResult{Valid: false, Errors: errs}

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error:  describeError(errs[0].Code, errs[0].Message, nil),
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return failure
	}

	if err := result.renderText(formatter.Writer); err != nil {
		return err
	}
	return failure
}

func (r ValidationResult) renderText(w io.Writer) error {
	if r.Valid {
		_, err := fmt.Fprintf(w, "✓ %d model(s) valid\n", len(r.Models))
		return err
	}

	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, err := range r.Errors {
		if err.Line > 0 {
			fmt.Fprintf(w, "line %d\n", err.Line)
		}
		fmt.Fprintf(w, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return nil
}
