package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/graphcache/internal/compiler"
	"github.com/roach88/graphcache/internal/engine"
	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/schema"
	"github.com/roach88/graphcache/internal/store"
	"github.com/roach88/graphcache/internal/testutil"
)

// ErrCodeAdapter stands in for failures that carry no store error code,
// such as the server refusing a write.
const ErrCodeAdapter = "ADAPTER_ERROR"

// Harness runs one scenario against a fresh store.
type Harness struct {
	schema  *schema.Schema
	store   *engine.Store
	aliases map[string]*engine.Record
	logger  *slog.Logger

	mu     sync.Mutex
	result *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database seeded with the
// scenario's server payload. Temporary and server ids come from sequence
// generators, so two runs of the same scenario produce the same trace.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller supplied context for adapter calls.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	sch, err := compiler.LoadSchema(scenario.Models)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}

	db, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer db.Close()

	if len(scenario.Server) > 0 {
		p, err := toPayload(scenario.Server)
		if err != nil {
			return nil, fmt.Errorf("server payload: %w", err)
		}
		if err := db.ImportPayload(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to seed server: %w", err)
		}
	}

	h := &Harness{
		schema:  sch,
		aliases: make(map[string]*engine.Record),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		result:  NewResult(),
	}

	adapter := &recordingAdapter{
		next: store.NewAdapter(db, sch,
			store.WithIDGenerator(testutil.NewSequenceGenerator("srv")),
			store.WithLogger(h.logger),
		),
		record: h.recordRequest,
	}
	opts := append(scenario.Config.Options(),
		engine.WithIDGenerator(testutil.NewSequenceGenerator("gen")),
		engine.WithLogger(h.logger),
	)
	h.store = engine.New(sch, adapter, opts...)

	for i, step := range scenario.Steps {
		h.executeStep(ctx, i, step)
	}

	for _, msg := range h.evaluateAssertions(scenario.Assertions) {
		h.result.AddError(msg)
	}
	h.result.Graph = h.snapshot()

	return h.result, nil
}

func (h *Harness) recordRequest(request string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.addEvent(TraceEvent{Op: "adapter", Request: request})
}

// executeStep runs one step and checks its outcome against expect_error.
// Adapter requests the step triggers are traced after the step itself.
func (h *Harness) executeStep(ctx context.Context, i int, step Step) {
	h.mu.Lock()
	idx := len(h.result.Trace)
	h.result.addEvent(TraceEvent{Op: step.Op, Record: step.Record, Field: step.Field})
	h.mu.Unlock()

	label, err := h.apply(ctx, step)

	h.mu.Lock()
	defer h.mu.Unlock()
	if label != "" {
		h.result.Trace[idx].Record = label
	}

	var se *scenarioError
	if errors.As(err, &se) {
		h.result.AddError(fmt.Sprintf("steps[%d] (%s): %v", i, step.Op, se.err))
		return
	}

	code := errorCode(err)
	h.result.Trace[idx].Error = code

	switch {
	case err == nil && step.ExpectError != "":
		h.result.AddError(fmt.Sprintf("steps[%d] (%s): expected error %s, got success", i, step.Op, step.ExpectError))
	case err != nil && step.ExpectError == "":
		h.result.AddError(fmt.Sprintf("steps[%d] (%s): unexpected error: %v", i, step.Op, err))
	case err != nil && code != step.ExpectError:
		h.result.AddError(fmt.Sprintf("steps[%d] (%s): expected error %s, got %s: %v", i, step.Op, step.ExpectError, code, err))
	}

	h.logger.Debug("step executed", "step", i, "op", step.Op, "error", code)
}

// apply performs the step against the store. It returns the label the
// trace should show for the subject record, if it differs from the step's.
func (h *Harness) apply(ctx context.Context, step Step) (string, error) {
	switch step.Op {
	case OpPush:
		p, err := toPayload(step.Payload)
		if err != nil {
			return "", &scenarioError{err}
		}
		return "", h.store.PushPayload(p)

	case OpCreate:
		data, err := normalize(step.Data)
		if err != nil {
			return "", &scenarioError{err}
		}
		var initial ir.RecordJSON
		if data != nil {
			initial = ir.RecordJSON(data.(map[string]any))
		}
		rec, err := h.store.CreateRecord(step.Type, initial)
		if err != nil {
			return step.Type, err
		}
		if step.As != "" {
			h.aliases[step.As] = rec
			return "@" + step.As, nil
		}
		return rec.Ref().String(), nil

	case OpFind:
		opts, err := findOptions(step)
		if err != nil {
			return "", &scenarioError{err}
		}
		label := step.Type
		if step.ID != "" {
			label = ir.Ref(step.Type, step.ID).String()
		}
		recs, err := h.store.Find(ctx, step.Type, opts)
		if err != nil {
			return label, err
		}
		if step.As != "" {
			if len(recs) == 0 {
				return label, &scenarioError{fmt.Errorf("find matched nothing to name %q", step.As)}
			}
			h.aliases[step.As] = recs[0]
		}
		return label, nil
	}

	rec, err := h.record(step.Record)
	if err != nil {
		return "", err
	}

	switch step.Op {
	case OpSet:
		value, err := normalize(step.Value)
		if err != nil {
			return "", &scenarioError{err}
		}
		return "", rec.Set(step.Field, value)
	case OpAddToMany:
		target, err := h.ref(step.Target)
		if err != nil {
			return "", err
		}
		return "", rec.AddToMany(step.Field, target)
	case OpRemoveFromMany:
		target, err := h.ref(step.Target)
		if err != nil {
			return "", err
		}
		return "", rec.RemoveFromMany(step.Field, target)
	case OpSetOne:
		target, err := h.ref(step.Target)
		if err != nil {
			return "", err
		}
		return "", rec.SetOne(step.Field, target)
	case OpClearOne:
		return "", rec.ClearOne(step.Field)
	case OpSave:
		return "", rec.Save(ctx)
	case OpDelete:
		return "", rec.Destroy(ctx)
	case OpReload:
		return "", rec.Reload(ctx)
	case OpUnload:
		return "", h.store.UnloadRecord(rec, step.Force)
	case OpRollback:
		return "", rec.Rollback()
	}
	return "", &scenarioError{fmt.Errorf("unknown op %q", step.Op)}
}

// record resolves "@alias" to the record a step named, or "type:id" to the
// resident record.
func (h *Harness) record(name string) (*engine.Record, error) {
	if alias, ok := strings.CutPrefix(name, "@"); ok {
		rec, found := h.aliases[alias]
		if !found {
			return nil, &scenarioError{fmt.Errorf("unknown alias %q", name)}
		}
		return rec, nil
	}
	ref, err := parseRef(name)
	if err != nil {
		return nil, &scenarioError{err}
	}
	rec, ok := h.store.GetRecord(ref.Type, ref.ID)
	if !ok {
		return nil, &scenarioError{fmt.Errorf("record %s is not resident", name)}
	}
	return rec, nil
}

// ref resolves a relationship target. Aliases follow the record's current
// id, so a target named before a save points at the permanent id after it.
func (h *Harness) ref(name string) (ir.RecordRef, error) {
	if alias, ok := strings.CutPrefix(name, "@"); ok {
		rec, found := h.aliases[alias]
		if !found {
			return ir.RecordRef{}, &scenarioError{fmt.Errorf("unknown alias %q", name)}
		}
		return rec.Ref(), nil
	}
	ref, err := parseRef(name)
	if err != nil {
		return ir.RecordRef{}, &scenarioError{err}
	}
	return ref, nil
}

func (h *Harness) snapshot() GraphSnapshot {
	g := GraphSnapshot{
		Records:       make(map[string][]RecordSnapshot),
		Queued:        h.store.QueuedCount(),
		Relationships: h.store.RelationshipCount(),
	}
	for _, typeKey := range h.schema.Types() {
		recs := h.store.CachedRecords(typeKey)
		if len(recs) == 0 {
			continue
		}
		snaps := make([]RecordSnapshot, len(recs))
		for i, rec := range recs {
			snaps[i] = RecordSnapshot{Record: rec.Serialize(), Dirty: rec.IsDirty(), New: rec.IsNew()}
		}
		g.Records[typeKey] = snaps
	}
	return g
}

// scenarioError marks a mistake in the scenario itself, as opposed to an
// error the store returned.
type scenarioError struct{ err error }

func (e *scenarioError) Error() string { return e.err.Error() }
func (e *scenarioError) Unwrap() error { return e.err }

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if code, ok := engine.CodeOf(err); ok {
		return string(code)
	}
	return ErrCodeAdapter
}

func findOptions(step Step) (engine.FindOptions, error) {
	switch {
	case step.ID != "":
		return engine.FindOptions{Kind: engine.FindKindOne, ID: step.ID}, nil
	case len(step.IDs) > 0:
		return engine.FindOptions{Kind: engine.FindKindMany, IDs: step.IDs}, nil
	case step.Query != nil:
		q, err := normalize(step.Query)
		if err != nil {
			return engine.FindOptions{}, err
		}
		return engine.FindOptions{Kind: engine.FindKindQuery, Query: ir.Query(q.(map[string]any))}, nil
	}
	return engine.FindOptions{Kind: engine.FindKindAll}, nil
}

func parseRef(s string) (ir.RecordRef, error) {
	typeKey, id, ok := strings.Cut(s, ":")
	if !ok || typeKey == "" || id == "" {
		return ir.RecordRef{}, fmt.Errorf("record reference %q must be \"type:id\" or \"@alias\"", s)
	}
	return ir.Ref(typeKey, id), nil
}

// normalize converts YAML-decoded values into the shapes a JSON payload
// decodes to: integral numbers as int64, nested maps as map[string]any.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-compatible: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return ir.NormalizeValue(out), nil
}

func toPayload(raw map[string]any) (ir.Payload, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return ir.Payload{}, fmt.Errorf("payload is not JSON-compatible: %w", err)
	}
	return ir.DecodePayload(bytes.NewReader(data))
}
