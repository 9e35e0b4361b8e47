package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/graphcache/internal/engine"
	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/queryir"
	"github.com/roach88/graphcache/internal/querysql"
	"github.com/roach88/graphcache/internal/schema"
)

// ErrNotFound is returned by UpdateRecord for a record the database does
// not hold.
var ErrNotFound = errors.New("record not found")

// Adapter serves a record database to an engine.Store.
//
// Thread-safety: every call runs in its own transaction; the database has
// a single connection, so calls are serialized.
type Adapter struct {
	db       *DB
	schema   *schema.Schema
	ids      engine.IDGenerator
	log      *slog.Logger
	compiler *querysql.SQLCompiler
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithIDGenerator sets the generator for permanent ids.
//
// Default: engine.UUIDv7Generator
func WithIDGenerator(g engine.IDGenerator) AdapterOption {
	return func(a *Adapter) { a.ids = g }
}

// WithLogger sets the logger.
//
// Default: slog.Default()
func WithLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) { a.log = l }
}

// NewAdapter creates an adapter over db for the models in s.
func NewAdapter(db *DB, s *schema.Schema, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		db:       db,
		schema:   s,
		ids:      engine.UUIDv7Generator{},
		log:      slog.Default(),
		compiler: querysql.NewSQLCompiler(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ engine.Adapter = (*Adapter)(nil)

// CreateRecord stores a new record under a fresh permanent id and answers
// with the stored record and meta.createdRecord.
func (a *Adapter) CreateRecord(ctx context.Context, typeKey string, rec ir.RecordJSON) (ir.Payload, error) {
	data := rec.Clone()
	id := a.ids.Generate()
	data["id"] = id

	stored, err := a.write(ctx, typeKey, id, func(before ir.RecordJSON) (ir.RecordJSON, error) {
		if before != nil {
			return nil, fmt.Errorf("create %s:%s: id already taken", typeKey, id)
		}
		return data, nil
	})
	if err != nil {
		return ir.Payload{}, err
	}

	a.log.Debug("record created", "type", typeKey, "id", id)
	p := ir.NewPayload()
	p.Add(typeKey, stored)
	p.Meta.CreatedRecord = &ir.CreatedRecord{ID: id}
	return p, nil
}

// UpdateRecord merges the given fields into the stored record. Fields the
// record omits keep their stored values.
func (a *Adapter) UpdateRecord(ctx context.Context, typeKey string, rec ir.RecordJSON) (ir.Payload, error) {
	id, err := rec.ID()
	if err != nil {
		return ir.Payload{}, fmt.Errorf("update %s: %w", typeKey, err)
	}

	stored, err := a.write(ctx, typeKey, id, func(before ir.RecordJSON) (ir.RecordJSON, error) {
		if before == nil {
			return nil, fmt.Errorf("update %s:%s: %w", typeKey, id, ErrNotFound)
		}
		merged := before.Clone()
		for k, v := range rec {
			merged[k] = v
		}
		return merged, nil
	})
	if err != nil {
		return ir.Payload{}, err
	}

	a.log.Debug("record updated", "type", typeKey, "id", id)
	p := ir.NewPayload()
	p.Add(typeKey, stored)
	return p, nil
}

// DeleteRecord removes a record and detaches it from every inverse. The
// answer names it in meta.deletedRecords even when it was already gone.
func (a *Adapter) DeleteRecord(ctx context.Context, typeKey, id string) (ir.Payload, error) {
	if _, err := a.write(ctx, typeKey, id, func(ir.RecordJSON) (ir.RecordJSON, error) { return nil, nil }); err != nil {
		return ir.Payload{}, err
	}

	a.log.Debug("record deleted", "type", typeKey, "id", id)
	p := ir.NewPayload()
	p.Meta.DeletedRecords = []ir.RecordRef{ir.Ref(typeKey, id)}
	return p, nil
}

// FindRecord answers with the record, or an empty payload when it does
// not exist.
func (a *Adapter) FindRecord(ctx context.Context, typeKey, id string) (ir.Payload, error) {
	rec, ok, err := a.db.Get(ctx, typeKey, id)
	if err != nil {
		return ir.Payload{}, err
	}
	p := ir.NewPayload()
	if ok {
		p.Add(typeKey, rec)
	}
	return p, nil
}

// FindMany answers with the existing records among ids.
func (a *Adapter) FindMany(ctx context.Context, typeKey string, ids []string) (ir.Payload, error) {
	recs, err := a.db.GetMany(ctx, typeKey, ids)
	if err != nil {
		return ir.Payload{}, err
	}
	p := ir.NewPayload()
	p.Add(typeKey, recs...)
	return p, nil
}

// FindAll answers with every record of a type.
func (a *Adapter) FindAll(ctx context.Context, typeKey string) (ir.Payload, error) {
	recs, err := a.db.All(ctx, typeKey)
	if err != nil {
		return ir.Payload{}, err
	}
	p := ir.NewPayload()
	p.Add(typeKey, recs...)
	return p, nil
}

// FindQuery answers with the matching records, named in order by
// meta.matchedRecords.
func (a *Adapter) FindQuery(ctx context.Context, typeKey string, query ir.Query) (ir.Payload, error) {
	model, ok := a.schema.Model(typeKey)
	if !ok {
		return ir.Payload{}, fmt.Errorf("query %s: type is not declared", typeKey)
	}
	sel, err := queryir.Build(model, query)
	if err != nil {
		return ir.Payload{}, err
	}
	sqlText, params, err := a.compiler.Compile(sel)
	if err != nil {
		return ir.Payload{}, fmt.Errorf("query %s: %w", typeKey, err)
	}

	recs, err := readRecords(ctx, a.db.db, sqlText, params...)
	if err != nil {
		return ir.Payload{}, fmt.Errorf("query %s: %w", typeKey, err)
	}

	p := ir.NewPayload()
	p.Add(typeKey, recs...)
	p.Meta.MatchedRecords = make([]ir.RecordRef, 0, len(recs))
	for _, rec := range recs {
		id, _ := rec.ID()
		p.Meta.MatchedRecords = append(p.Meta.MatchedRecords, ir.Ref(typeKey, id))
	}
	a.log.Debug("query matched", "type", typeKey, "count", len(recs))
	return p, nil
}

// write runs one change in a transaction. change receives the stored
// record (nil when absent) and returns the new one (nil to delete). The
// result is validated, stored and its inverses rewritten before commit.
func (a *Adapter) write(ctx context.Context, typeKey, id string, change func(before ir.RecordJSON) (ir.RecordJSON, error)) (ir.RecordJSON, error) {
	if _, ok := a.schema.Model(typeKey); !ok {
		return nil, fmt.Errorf("write %s: type is not declared", typeKey)
	}

	tx, err := a.db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("write %s:%s: begin tx: %w", typeKey, id, err)
	}
	defer tx.Rollback()

	before, _, err := getRecord(ctx, tx, typeKey, id)
	if err != nil {
		return nil, err
	}
	after, err := change(before)
	if err != nil {
		return nil, err
	}

	if after != nil {
		if errs := a.schema.ValidateRecord(typeKey, after, true); len(errs) > 0 {
			return nil, fmt.Errorf("write %s:%s: %w", typeKey, id, schema.ValidationErrors(errs))
		}
		after, err = a.canonicalize(typeKey, after)
		if err != nil {
			return nil, err
		}
		if _, err := putRecord(ctx, tx, typeKey, after); err != nil {
			return nil, err
		}
	} else if err := deleteRecord(ctx, tx, typeKey, id); err != nil {
		return nil, err
	}

	w := &inverseWriter{ctx: ctx, tx: tx, schema: a.schema}
	if err := w.sync(ir.Ref(typeKey, id), before, after); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("write %s:%s: commit: %w", typeKey, id, err)
	}

	if after == nil {
		return nil, nil
	}
	// Inverse rewrites may have touched the record itself (self references).
	stored, _, err := a.db.Get(ctx, typeKey, id)
	return stored, err
}

// canonicalize keeps declared fields only and writes relationship values
// in their canonical shape.
func (a *Adapter) canonicalize(typeKey string, rec ir.RecordJSON) (ir.RecordJSON, error) {
	model, _ := a.schema.Model(typeKey)
	out := ir.RecordJSON{"id": rec["id"]}
	for _, name := range model.AttributeNames() {
		if v, ok := rec[name]; ok {
			out[name] = v
		}
	}
	for _, name := range model.RelationshipNames() {
		rel := model.Relationships[name]
		refs, err := targetsOf(rel, rec)
		if err != nil {
			return nil, fmt.Errorf("write %s.%s: %w", typeKey, name, err)
		}
		out[name] = format(rel, refs)
	}
	return out, nil
}

func targetsOf(rel *schema.Relationship, rec ir.RecordJSON) ([]ir.RecordRef, error) {
	if rec == nil {
		return nil, nil
	}
	v := rec[rel.Name]
	if rel.Kind == schema.HasMany {
		return rel.ParseHasMany(v)
	}
	ref, ok, err := rel.ParseHasOne(v)
	if err != nil || !ok {
		return nil, err
	}
	return []ir.RecordRef{ref}, nil
}

func format(rel *schema.Relationship, refs []ir.RecordRef) any {
	if rel.Kind == schema.HasMany {
		return rel.FormatHasMany(refs)
	}
	if len(refs) == 0 {
		return nil
	}
	return rel.FormatHasOne(refs[0], true)
}

// inverseWriter rewrites the far side of relationships inside one
// transaction.
type inverseWriter struct {
	ctx    context.Context
	tx     querier
	schema *schema.Schema
}

// sync brings every inverse in line with a record that changed from
// before to after. A nil after means the record was deleted.
func (w *inverseWriter) sync(self ir.RecordRef, before, after ir.RecordJSON) error {
	model, _ := w.schema.Model(self.Type)
	for _, name := range model.RelationshipNames() {
		rel := model.Relationships[name]
		if rel.Inverse == "" {
			continue
		}
		oldRefs, err := targetsOf(rel, before)
		if err != nil {
			return err
		}
		newRefs, err := targetsOf(rel, after)
		if err != nil {
			return err
		}

		for _, far := range oldRefs {
			if slices.Contains(newRefs, far) {
				continue
			}
			if err := w.detach(far, rel.Inverse, self); err != nil {
				return err
			}
		}
		for _, far := range newRefs {
			if slices.Contains(oldRefs, far) {
				continue
			}
			if err := w.attach(far, rel.Inverse, self); err != nil {
				return err
			}
		}
	}
	return nil
}

// detach removes target from holder's field. Missing rows and undeclared
// fields are skipped.
func (w *inverseWriter) detach(holder ir.RecordRef, field string, target ir.RecordRef) error {
	rec, rel, ok, err := w.load(holder, field)
	if err != nil || !ok {
		return err
	}
	refs, err := targetsOf(rel, rec)
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(slices.Clone(refs), func(r ir.RecordRef) bool { return r == target })
	if len(kept) == len(refs) {
		return nil
	}
	rec[field] = format(rel, kept)
	_, err = putRecord(w.ctx, w.tx, holder.Type, rec)
	return err
}

// attach adds target to holder's field. A hasOne field that held another
// record first releases it, so that record's side is detached too.
func (w *inverseWriter) attach(holder ir.RecordRef, field string, target ir.RecordRef) error {
	rec, rel, ok, err := w.load(holder, field)
	if err != nil || !ok {
		return err
	}
	refs, err := targetsOf(rel, rec)
	if err != nil {
		return err
	}
	if slices.Contains(refs, target) {
		return nil
	}

	if rel.Kind == schema.HasOne {
		for _, prev := range refs {
			if rel.Inverse == "" {
				continue
			}
			if err := w.detach(prev, rel.Inverse, holder); err != nil {
				return err
			}
		}
		// the detach above may have rewritten holder when prev == holder
		if rec, _, _, err = w.load(holder, field); err != nil {
			return err
		}
		refs = nil
	}

	rec[field] = format(rel, append(refs, target))
	_, err = putRecord(w.ctx, w.tx, holder.Type, rec)
	return err
}

func (w *inverseWriter) load(ref ir.RecordRef, field string) (ir.RecordJSON, *schema.Relationship, bool, error) {
	model, ok := w.schema.Model(ref.Type)
	if !ok {
		return nil, nil, false, nil
	}
	rel, ok := model.Relationship(field)
	if !ok {
		return nil, nil, false, nil
	}
	rec, ok, err := getRecord(w.ctx, w.tx, ref.Type, ref.ID)
	if err != nil || !ok {
		return nil, nil, false, err
	}
	return rec, rel, true, nil
}
