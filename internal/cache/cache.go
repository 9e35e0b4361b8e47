// Package cache is the identity map: the single in-memory instance for
// every (type, id), with soft expiry for point lookups and one live array
// per type.
//
// Expiry is soft. An expired entry is absent to Get but stays resident and
// stays in its live array, because relationships may still reference it.
// Callers that wire the relationship graph use Resident, which ignores
// expiry, so an expired record is never duplicated.
package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// NoExpiration disables expiry.
const NoExpiration = gocache.NoExpiration

// Entry is anything the cache can hold.
type Entry interface {
	TypeKey() string
	ID() string
}

// RecordCache maps (type, id) to one record instance.
type RecordCache[R Entry] struct {
	mu       sync.Mutex
	fresh    *gocache.Cache
	resident map[string]R
	live     map[string]*LiveArray[R]
	clock    *Clock
	timeout  time.Duration
}

// New creates a cache. A timeout of zero or NoExpiration never expires.
func New[R Entry](timeout time.Duration) *RecordCache[R] {
	if timeout <= 0 {
		timeout = NoExpiration
	}
	cleanup := time.Duration(0)
	if timeout > 0 {
		cleanup = 2 * timeout
	}
	return &RecordCache[R]{
		fresh:    gocache.New(timeout, cleanup),
		resident: make(map[string]R),
		live:     make(map[string]*LiveArray[R]),
		clock:    NewClock(),
		timeout:  timeout,
	}
}

func key(typeKey, id string) string {
	return typeKey + ":" + id
}

// Timeout returns the configured expiry, or NoExpiration.
func (c *RecordCache[R]) Timeout() time.Duration { return c.timeout }

// Get returns the record if it is resident and not expired.
func (c *RecordCache[R]) Get(typeKey, id string) (R, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero R
	k := key(typeKey, id)
	if _, ok := c.fresh.Get(k); !ok {
		return zero, false
	}
	rec, ok := c.resident[k]
	return rec, ok
}

// Resident returns the record regardless of expiry.
func (c *RecordCache[R]) Resident(typeKey, id string) (R, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.resident[key(typeKey, id)]
	return rec, ok
}

// Put stores the record and restarts its expiry timer.
func (c *RecordCache[R]) Put(rec R) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(rec.TypeKey(), rec.ID())
	c.resident[k] = rec
	c.fresh.Set(k, struct{}{}, gocache.DefaultExpiration)
	c.liveArray(rec.TypeKey()).put(c.clock.Next(), rec)
}

// Delete removes the record from the cache and its live array.
func (c *RecordCache[R]) Delete(typeKey, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(typeKey, id)
	delete(c.resident, k)
	c.fresh.Delete(k)
	if a, ok := c.live[typeKey]; ok {
		a.remove(id)
	}
}

// Rekey moves a record stored under oldID to its current id. The record
// keeps its live array position.
func (c *RecordCache[R]) Rekey(rec R, oldID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	oldKey := key(rec.TypeKey(), oldID)
	delete(c.resident, oldKey)
	c.fresh.Delete(oldKey)

	k := key(rec.TypeKey(), rec.ID())
	c.resident[k] = rec
	c.fresh.Set(k, struct{}{}, gocache.DefaultExpiration)
	c.liveArray(rec.TypeKey()).rekey(oldID, rec)
}

// AllOfType returns the live array for the type. The same pointer is
// returned for the lifetime of the cache.
func (c *RecordCache[R]) AllOfType(typeKey string) *LiveArray[R] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveArray(typeKey)
}

// Len returns the number of resident records.
func (c *RecordCache[R]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resident)
}

// liveArray must be called with c.mu held.
func (c *RecordCache[R]) liveArray(typeKey string) *LiveArray[R] {
	a, ok := c.live[typeKey]
	if !ok {
		a = newLiveArray[R](typeKey)
		c.live[typeKey] = a
	}
	return a
}
