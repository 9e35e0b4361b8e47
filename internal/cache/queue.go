package cache

import "sync"

// ChangeKind distinguishes live array notifications.
type ChangeKind int

const (
	// ChangeAdded reports a record that joined the array.
	ChangeAdded ChangeKind = iota + 1
	// ChangeRemoved reports a record that left the array.
	ChangeRemoved
	// ChangeRekeyed reports a record whose temporary id became permanent.
	ChangeRekeyed
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeRekeyed:
		return "rekeyed"
	}
	return "unknown"
}

// Change is one live array notification. OldID is set for ChangeRekeyed.
type Change[R Entry] struct {
	Kind   ChangeKind
	Record R
	OldID  string
}

// changeQueue is an unbounded FIFO of changes for one subscriber.
//
// Publishing happens under the cache lock and must never block, so the
// queue grows instead of applying backpressure. A buffered signal channel
// of size 1 lets consumers wait with a context.
type changeQueue[R Entry] struct {
	mu      sync.Mutex
	changes []Change[R]
	closed  bool
	signal  chan struct{}
}

func newChangeQueue[R Entry]() *changeQueue[R] {
	return &changeQueue[R]{
		changes: make([]Change[R], 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue appends a change. Returns false once the queue is closed.
func (q *changeQueue[R]) Enqueue(c Change[R]) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.changes = append(q.changes, c)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue pops the front change without blocking.
func (q *changeQueue[R]) TryDequeue() (Change[R], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.changes) == 0 {
		return Change[R]{}, false
	}

	c := q.changes[0]
	// Clear the slot so the record can be collected.
	q.changes[0] = Change[R]{}

	if len(q.changes) == 1 {
		q.changes = q.changes[:0]
	} else {
		q.changes = q.changes[1:]
	}

	return c, true
}

// Wait returns a channel that signals when changes may be available.
func (q *changeQueue[R]) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending changes.
func (q *changeQueue[R]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.changes)
}

// Close stops further enqueues and wakes any waiter.
func (q *changeQueue[R]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

func (q *changeQueue[R]) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
