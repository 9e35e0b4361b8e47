package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/graphcache/internal/engine"
	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/store"
)

// FindOptions holds flags for the find command.
type FindOptions struct {
	*RootOptions
	DB      string
	Models  string
	Query   map[string]string
	Metrics bool
}

// FoundRecord is one record in find output.
type FoundRecord struct {
	Type   string        `json:"type"`
	Record ir.RecordJSON `json:"record"`
	Dirty  bool          `json:"dirty"`
	New    bool          `json:"new"`
}

// FindResult holds the records a find resolved.
type FindResult struct {
	Records []FoundRecord `json:"records"`
	Count   int           `json:"count"`
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find <type> [id...]",
		Short: "Find records through a store backed by a database",
		Long: `Resolve records through a store whose adapter serves a SQLite database
seeded with load.

With one id this is a single-record find, with several a batch find, with
--query a query find, and with neither a find of every record of the type.

Examples:
  graphcache find user 1 --db ./cache.db --models ./models
  graphcache find post --query author=1 --db ./cache.db --models ./models
  graphcache find post --db ./cache.db --models ./models --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(cmd.Context(), opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "SQLite database path (required)")
	cmd.Flags().StringVar(&opts.Models, "models", "", "CUE models directory (required)")
	cmd.Flags().StringToStringVar(&opts.Query, "query", nil, "query field=value (repeatable)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print store metrics after the find")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("models")

	return cmd
}

func runFind(ctx context.Context, opts *FindOptions, typeKey string, ids []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	find, err := findOptions(ids, opts.Query)
	if err != nil {
		return commandError(formatter, ErrCodeFind, "invalid find", err)
	}

	loaded, err := LoadModels(opts.Models)
	if err != nil {
		return commandError(formatter, codeOf(err), "failed to load models", err)
	}

	db, err := store.Open(opts.DB)
	if err != nil {
		return commandError(formatter, ErrCodeNotFound, "failed to open database", err)
	}
	defer db.Close()

	logger := opts.logger(formatter.Diagnostics())
	storeOpts, err := opts.storeOptions()
	if err != nil {
		return commandError(formatter, ErrCodeGeneric, "failed to load config", err)
	}
	reg := prometheus.NewRegistry()
	storeOpts = append(storeOpts,
		engine.WithLogger(logger),
		engine.WithMetrics(engine.NewMetrics(reg)),
	)

	s := engine.New(loaded.Schema, store.NewAdapter(db, loaded.Schema, store.WithLogger(logger)), storeOpts...)
	recs, err := s.Find(ctx, typeKey, find)
	if err != nil {
		code := ErrCodeFind
		if c, ok := engine.CodeOf(err); ok {
			code = string(c)
		}
		return commandError(formatter, code, "find failed", err)
	}

	result := FindResult{Records: make([]FoundRecord, 0, len(recs)), Count: len(recs)}
	for _, rec := range recs {
		result.Records = append(result.Records, FoundRecord{
			Type:   rec.Ref().Type,
			Record: rec.Serialize(),
			Dirty:  rec.IsDirty(),
			New:    rec.IsNew(),
		})
	}
	formatter.VerboseLog("Resolved %d %s record(s), %d relationship(s) queued", len(recs), typeKey, s.QueuedCount())

	if err := formatter.Success(result); err != nil {
		return err
	}

	if opts.Metrics {
		return writeMetrics(formatter.Diagnostics(), reg)
	}
	return nil
}

// findOptions picks the find kind from the arguments.
func findOptions(ids []string, query map[string]string) (engine.FindOptions, error) {
	switch {
	case len(query) > 0 && len(ids) > 0:
		return engine.FindOptions{}, fmt.Errorf("ids and --query are exclusive")
	case len(query) > 0:
		q := make(ir.Query, len(query))
		for k, v := range query {
			q[k] = v
		}
		return engine.FindOptions{Kind: engine.FindKindQuery, Query: q}, nil
	case len(ids) == 1:
		return engine.FindOptions{Kind: engine.FindKindOne, ID: ids[0]}, nil
	case len(ids) > 1:
		return engine.FindOptions{Kind: engine.FindKindMany, IDs: ids}, nil
	}
	return engine.FindOptions{Kind: engine.FindKindAll}, nil
}

// renderText prints one canonical JSON line per record.
func (result FindResult) renderText(w io.Writer) error {
	for _, r := range result.Records {
		data, err := ir.MarshalCanonical(r.Record)
		if err != nil {
			return err
		}
		id, _ := r.Record.ID()
		fmt.Fprintf(w, "%s:%s %s\n", r.Type, id, data)
	}
	fmt.Fprintf(w, "%d record(s)\n", result.Count)
	return nil
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
