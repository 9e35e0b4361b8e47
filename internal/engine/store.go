package engine

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/graphcache/internal/cache"
	"github.com/roach88/graphcache/internal/ir"
	"github.com/roach88/graphcache/internal/relationship"
	"github.com/roach88/graphcache/internal/schema"
)

// Store owns the identity map and the relationship graph for one session.
//
// Thread-safety model:
//   - every batch (payload ingestion, one mutator call, one read) runs
//     under a single mutex, so no caller observes a partial state
//   - adapter calls run outside the lock; their payload is applied under
//     the lock only after the call succeeded
//   - identical in-flight finds are coalesced
//
// INVARIANTS:
//   - every registered relationship is indexed in the relationship store
//     of each endpoint record that is resident
//   - a relationship with a non-resident endpoint is also in the queue
//   - a hasOne field's current view holds at most one edge
type Store struct {
	mu sync.Mutex

	schema  *schema.Schema
	adapter Adapter
	records *cache.RecordCache[*Record]

	rels   map[string]*relationship.Relationship // all live edges by id
	queued map[string]*relationship.Relationship // edges with a non-resident endpoint
	pairs  map[string]*relationship.Relationship // PairKey -> edge

	requests singleflight.Group

	ids     IDGenerator
	log     *slog.Logger
	metrics *Metrics

	reloadDirty          bool
	sideWithClient       bool
	overwriteClientAttrs bool
	cacheTimeout         time.Duration
}

// New creates a Store over a schema and an adapter.
func New(s *schema.Schema, adapter Adapter, opts ...Option) *Store {
	st := &Store{
		schema:         s,
		adapter:        adapter,
		rels:           make(map[string]*relationship.Relationship),
		queued:         make(map[string]*relationship.Relationship),
		pairs:          make(map[string]*relationship.Relationship),
		ids:            UUIDv7Generator{},
		log:            slog.Default(),
		reloadDirty:    true,
		sideWithClient: true,
	}

	for _, opt := range opts {
		opt(st)
	}

	st.records = cache.New[*Record](st.cacheTimeout)
	return st
}

// Schema returns the store's schema.
func (s *Store) Schema() *schema.Schema { return s.schema }

// GetRecord returns a cached record. Expired entries are reported absent.
func (s *Store) GetRecord(typeKey, id string) (*Record, bool) {
	return s.records.Get(typeKey, id)
}

// HasRecord reports whether GetRecord would find the record.
func (s *Store) HasRecord(typeKey, id string) bool {
	_, ok := s.records.Get(typeKey, id)
	return ok
}

// CachedRecords returns a snapshot of every resident record of a type.
func (s *Store) CachedRecords(typeKey string) []*Record {
	return s.records.AllOfType(typeKey).Records()
}

// AllOfType returns the live array of a type.
func (s *Store) AllOfType(typeKey string) *cache.LiveArray[*Record] {
	return s.records.AllOfType(typeKey)
}

// QueuedCount returns the number of relationships waiting for an endpoint.
func (s *Store) QueuedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queued)
}

// RelationshipCount returns the number of live relationships.
func (s *Store) RelationshipCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rels)
}

// resident must be called with s.mu held. It ignores expiry.
func (s *Store) resident(ref ir.RecordRef) (*Record, bool) {
	return s.records.Resident(ref.Type, ref.ID)
}

// sortedRels returns the values of m ordered by id.
func sortedRels(m map[string]*relationship.Relationship) []*relationship.Relationship {
	out := make([]*relationship.Relationship, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
