package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/graphcache/internal/engine"
	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/store"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	DB     string
	Models string
}

// LoadSummary reports how many records of each type were written.
type LoadSummary struct {
	DB      string         `json:"db"`
	Records map[string]int `json:"records"`
	Total   int            `json:"total"`
}

func (s LoadSummary) renderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "✓ Loaded %d record(s) into %s\n", s.Total, s.DB)
	return err
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <payload.json>",
		Short: "Seed a database with a normalized payload",
		Long: `Read a normalized payload, check it against the models, and write its
records into a SQLite database that find and the store adapter serve from.

The payload maps type keys to record lists:

  {"user": [{"id": "1", "name": "Ann", "posts": ["10"]}],
   "post": [{"id": "10", "title": "Hello", "author": "1"}]}

Records are pushed through a store first, so a payload that names an
undeclared type or field, or a value of the wrong type, is rejected
before anything is written.

Examples:
  graphcache load seed.json --db ./cache.db --models ./models`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "SQLite database path (required)")
	cmd.Flags().StringVar(&opts.Models, "models", "", "CUE models directory (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("models")

	return cmd
}

func runLoad(ctx context.Context, opts *LoadOptions, payloadPath string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	loaded, err := LoadModels(opts.Models)
	if err != nil {
		return commandError(formatter, codeOf(err), "failed to load models", err)
	}

	f, err := os.Open(payloadPath)
	if err != nil {
		return commandError(formatter, ErrCodeNotFound, "failed to open payload", err)
	}
	defer f.Close()
	p, err := ir.DecodePayload(f)
	if err != nil {
		return commandError(formatter, ErrCodePayload, "failed to parse payload", err)
	}

	db, err := store.Open(opts.DB)
	if err != nil {
		return commandError(formatter, ErrCodeWriteFailed, "failed to open database", err)
	}
	defer db.Close()

	logger := opts.logger(formatter.Diagnostics())
	storeOpts, err := opts.storeOptions()
	if err != nil {
		return commandError(formatter, ErrCodeGeneric, "failed to load config", err)
	}
	storeOpts = append(storeOpts, engine.WithLogger(logger))

	// A scratch store validates every record the way a server response
	// would be validated.
	s := engine.New(loaded.Schema, store.NewAdapter(db, loaded.Schema, store.WithLogger(logger)), storeOpts...)
	if err := s.PushPayload(p); err != nil {
		return commandError(formatter, ErrCodePayload, "payload rejected", err)
	}

	if err := db.ImportPayload(ctx, p); err != nil {
		return commandError(formatter, ErrCodeWriteFailed, "failed to write payload", err)
	}

	summary := LoadSummary{DB: opts.DB, Records: make(map[string]int)}
	for _, typeKey := range p.Types() {
		n := len(p.Records[typeKey])
		summary.Records[typeKey] = n
		summary.Total += n
		formatter.VerboseLog("Loaded %d %s record(s)", n, typeKey)
	}

	return formatter.Success(summary)
}

// commandError reports a failure that stops a command (exit code 2).
func commandError(formatter *OutputFormatter, code, message string, err error) error {
	_ = formatter.Fail(code, fmt.Sprintf("%s: %v", message, err), err)
	return WrapExitError(ExitCommandError, message, err)
}
