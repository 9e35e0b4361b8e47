package engine

import (
	"context"
	"fmt"

	"github.com/roach88/graphcache/internal/ir"
)

// FindKind selects the adapter call behind Find.
type FindKind string

const (
	FindKindOne   FindKind = ir.RequestFindOne
	FindKindMany  FindKind = ir.RequestFindMany
	FindKindAll   FindKind = ir.RequestFindAll
	FindKindQuery FindKind = ir.RequestFindQuery
)

// FindOptions describes one find. Exactly the field matching Kind is read.
type FindOptions struct {
	Kind  FindKind
	ID    string
	IDs   []string
	Query ir.Query
}

// Find resolves records of typeKey, answering from the identity map where
// it can and from the adapter otherwise. Identical finds in flight share
// one adapter call.
func (s *Store) Find(ctx context.Context, typeKey string, opts FindOptions) ([]*Record, error) {
	if err := s.validateFind(typeKey, opts); err != nil {
		return nil, err
	}

	switch opts.Kind {
	case FindKindOne:
		rec, err := s.FindOne(ctx, typeKey, opts.ID)
		if err != nil {
			return nil, err
		}
		return []*Record{rec}, nil
	case FindKindMany:
		return s.FindMany(ctx, typeKey, opts.IDs)
	case FindKindAll:
		return s.FindAll(ctx, typeKey)
	default:
		return s.FindQuery(ctx, typeKey, opts.Query)
	}
}

func (s *Store) validateFind(typeKey string, opts FindOptions) error {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalidFind, Message: fmt.Sprintf(format, args...), Type: typeKey}
	}

	if typeKey == "" {
		return invalid("type is required")
	}
	if _, ok := s.schema.Model(typeKey); !ok {
		return invalid("type %q is not declared", typeKey)
	}
	switch opts.Kind {
	case FindKindOne:
		if opts.ID == "" {
			return invalid("id is required")
		}
	case FindKindMany:
		if len(opts.IDs) == 0 {
			return invalid("ids are required")
		}
		for i, id := range opts.IDs {
			if id == "" {
				return invalid("id %d is empty", i)
			}
		}
	case FindKindAll:
	case FindKindQuery:
		if opts.Query == nil {
			return invalid("query is required")
		}
	default:
		return invalid("unknown find kind %q", opts.Kind)
	}
	return nil
}

// FindOne returns a cached record or loads it with FindRecord.
func (s *Store) FindOne(ctx context.Context, typeKey, id string) (*Record, error) {
	if err := s.validateFind(typeKey, FindOptions{Kind: FindKindOne, ID: id}); err != nil {
		return nil, err
	}
	if rec, ok := s.records.Get(typeKey, id); ok {
		return rec, nil
	}

	_, err := s.fetch(ctx, FindKindOne, typeKey, id, func(ctx context.Context) (ir.Payload, error) {
		return s.adapter.FindRecord(ctx, typeKey, id)
	})
	if err != nil {
		return nil, err
	}

	recs, err := s.resolve(typeKey, []string{id})
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

// FindMany returns records in argument order. Only ids missing from the
// identity map are requested from the adapter.
func (s *Store) FindMany(ctx context.Context, typeKey string, ids []string) ([]*Record, error) {
	if err := s.validateFind(typeKey, FindOptions{Kind: FindKindMany, IDs: ids}); err != nil {
		return nil, err
	}

	var missing []string
	for _, id := range ids {
		if _, ok := s.records.Get(typeKey, id); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		_, err := s.fetch(ctx, FindKindMany, typeKey, missing, func(ctx context.Context) (ir.Payload, error) {
			return s.adapter.FindMany(ctx, typeKey, missing)
		})
		if err != nil {
			return nil, err
		}
	}
	return s.resolve(typeKey, ids)
}

// FindAll loads every record of a type and returns the live array's
// snapshot, which includes records created locally.
func (s *Store) FindAll(ctx context.Context, typeKey string) ([]*Record, error) {
	if err := s.validateFind(typeKey, FindOptions{Kind: FindKindAll}); err != nil {
		return nil, err
	}
	_, err := s.fetch(ctx, FindKindAll, typeKey, nil, func(ctx context.Context) (ir.Payload, error) {
		return s.adapter.FindAll(ctx, typeKey)
	})
	if err != nil {
		return nil, err
	}
	return s.records.AllOfType(typeKey).Records(), nil
}

// FindQuery runs a query through the adapter. The answer is the records
// named by meta.matchedRecords, or the payload's records of typeKey when
// the adapter sends no match list.
func (s *Store) FindQuery(ctx context.Context, typeKey string, query ir.Query) ([]*Record, error) {
	if err := s.validateFind(typeKey, FindOptions{Kind: FindKindQuery, Query: query}); err != nil {
		return nil, err
	}
	p, err := s.fetch(ctx, FindKindQuery, typeKey, map[string]any(query), func(ctx context.Context) (ir.Payload, error) {
		return s.adapter.FindQuery(ctx, typeKey, query)
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	refs := p.Meta.MatchedRecords
	if len(refs) == 0 {
		for _, json := range p.Records[typeKey] {
			id, _ := json.ID()
			refs = append(refs, ir.Ref(typeKey, id))
		}
	}
	out := make([]*Record, 0, len(refs))
	for _, ref := range refs {
		rec, ok := s.resident(ref)
		if !ok {
			return nil, &Error{Code: ErrCodeNotFound, Message: "query match was not loaded", Type: ref.Type, ID: ref.ID}
		}
		out = append(out, rec)
	}
	return out, nil
}

// fetch runs an adapter call, sharing it with identical calls in flight,
// and pushes its payload. The call runs detached from ctx so one caller
// giving up does not fail the others; ctx only bounds this caller's wait.
func (s *Store) fetch(ctx context.Context, kind FindKind, typeKey string, args any, call func(context.Context) (ir.Payload, error)) (ir.Payload, error) {
	key, err := ir.RequestKey(string(kind), typeKey, args)
	if err != nil {
		return ir.Payload{}, fmt.Errorf("find %s: %w", typeKey, err)
	}

	detached := context.WithoutCancel(ctx)
	ch := s.requests.DoChan(key, func() (any, error) {
		s.metrics.adapterRequest(string(kind))
		p, err := call(detached)
		if err != nil {
			s.metrics.adapterFailure(string(kind))
			s.log.Warn("adapter find failed", "kind", kind, "type", typeKey, "error", err)
			return nil, fmt.Errorf("%s %s: %w", kind, typeKey, err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.pushLocked(p, nil); err != nil {
			return nil, err
		}
		return p, nil
	})

	select {
	case <-ctx.Done():
		return ir.Payload{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.metrics.coalesced(string(kind))
		}
		if res.Err != nil {
			return ir.Payload{}, res.Err
		}
		return res.Val.(ir.Payload), nil
	}
}

// resolve maps ids to resident records after a fetch.
func (s *Store) resolve(typeKey string, ids []string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, ok := s.resident(ir.Ref(typeKey, id))
		if !ok {
			return nil, &Error{Code: ErrCodeNotFound, Message: "adapter did not return the record", Type: typeKey, ID: id}
		}
		out = append(out, rec)
	}
	return out, nil
}
