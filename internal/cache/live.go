package cache

import (
	"context"
	"sync"

	"github.com/tidwall/btree"
)

type liveItem[R Entry] struct {
	seq int64
	rec R
}

func liveItemLess[R Entry](a, b liveItem[R]) bool {
	return a.seq < b.seq
}

// LiveArray is the collection of all cached records of one type. The cache
// keeps exactly one per type and updates it in place, so a reference taken
// once keeps reflecting additions and removals. Records are ordered by when
// they first entered the cache.
type LiveArray[R Entry] struct {
	typeKey string

	mu   sync.RWMutex
	tree *btree.BTreeG[liveItem[R]]
	seqs map[string]int64 // id -> insertion seq
	subs map[*Subscription[R]]struct{}
}

func newLiveArray[R Entry](typeKey string) *LiveArray[R] {
	return &LiveArray[R]{
		typeKey: typeKey,
		tree:    btree.NewBTreeG[liveItem[R]](liveItemLess[R]),
		seqs:    make(map[string]int64),
		subs:    make(map[*Subscription[R]]struct{}),
	}
}

// TypeKey returns the record type held by the array.
func (a *LiveArray[R]) TypeKey() string { return a.typeKey }

// Len returns the number of records.
func (a *LiveArray[R]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tree.Len()
}

// Contains reports whether a record with the id is present.
func (a *LiveArray[R]) Contains(id string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.seqs[id]
	return ok
}

// Records returns a snapshot in insertion order.
func (a *LiveArray[R]) Records() []R {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]R, 0, a.tree.Len())
	a.tree.Scan(func(item liveItem[R]) bool {
		out = append(out, item.rec)
		return true
	})
	return out
}

// Subscribe starts receiving changes made after this call.
func (a *LiveArray[R]) Subscribe() *Subscription[R] {
	a.mu.Lock()
	defer a.mu.Unlock()

	sub := &Subscription[R]{array: a, queue: newChangeQueue[R]()}
	a.subs[sub] = struct{}{}
	return sub
}

// put adds the record or replaces the instance stored under its id. Only a
// new id publishes ChangeAdded.
func (a *LiveArray[R]) put(seq int64, rec R) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.seqs[rec.ID()]; ok {
		a.tree.Set(liveItem[R]{seq: existing, rec: rec})
		return
	}
	a.seqs[rec.ID()] = seq
	a.tree.Set(liveItem[R]{seq: seq, rec: rec})
	a.publish(Change[R]{Kind: ChangeAdded, Record: rec})
}

func (a *LiveArray[R]) remove(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	seq, ok := a.seqs[id]
	if !ok {
		return
	}
	delete(a.seqs, id)
	item, _ := a.tree.Delete(liveItem[R]{seq: seq})
	a.publish(Change[R]{Kind: ChangeRemoved, Record: item.rec})
}

// rekey moves a record to its new id, keeping its position.
func (a *LiveArray[R]) rekey(oldID string, rec R) {
	a.mu.Lock()
	defer a.mu.Unlock()

	seq, ok := a.seqs[oldID]
	if !ok {
		return
	}
	delete(a.seqs, oldID)
	a.seqs[rec.ID()] = seq
	a.tree.Set(liveItem[R]{seq: seq, rec: rec})
	a.publish(Change[R]{Kind: ChangeRekeyed, Record: rec, OldID: oldID})
}

// publish must be called with a.mu held.
func (a *LiveArray[R]) publish(c Change[R]) {
	for sub := range a.subs {
		sub.queue.Enqueue(c)
	}
}

func (a *LiveArray[R]) unsubscribe(sub *Subscription[R]) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.subs, sub)
}

// Subscription receives the changes of one live array in order.
type Subscription[R Entry] struct {
	array *LiveArray[R]
	queue *changeQueue[R]
}

// Next blocks until a change is available, the subscription is closed, or
// ctx is done. ok is false when no change was returned.
func (s *Subscription[R]) Next(ctx context.Context) (Change[R], bool, error) {
	for {
		if c, ok := s.queue.TryDequeue(); ok {
			return c, true, nil
		}
		if s.queue.isClosed() {
			return Change[R]{}, false, nil
		}

		select {
		case <-ctx.Done():
			return Change[R]{}, false, ctx.Err()
		case <-s.queue.Wait():
		}
	}
}

// TryNext returns a pending change without blocking.
func (s *Subscription[R]) TryNext() (Change[R], bool) {
	return s.queue.TryDequeue()
}

// Pending returns the number of undelivered changes.
func (s *Subscription[R]) Pending() int {
	return s.queue.Len()
}

// Close detaches the subscription. Pending changes can still be drained.
func (s *Subscription[R]) Close() {
	s.array.unsubscribe(s)
	s.queue.Close()
}
