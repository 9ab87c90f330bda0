package dnswire

import (
	"math/rand"
	"sync"
	"time"
)

// PendingTimeout is how long an outgoing query waits before it is
// garbage-collected (§4.B).
const PendingTimeout = 30 * time.Second

// QueryTracker assigns and tracks transaction ids for outgoing queries,
// garbage-collecting entries that time out without a matching response.
type QueryTracker struct {
	mu      sync.Mutex
	counter uint32
	pending map[uint16]time.Time
}

// NewQueryTracker seeds the internal counter with a random value so
// transaction ids do not collide across process restarts.
func NewQueryTracker() *QueryTracker {
	return &QueryTracker{
		counter: rand.Uint32(),
		pending: make(map[uint16]time.Time),
	}
}

// NextID allocates the next transaction id and marks it pending.
func (t *QueryTracker) NextID(now time.Time) uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counter++
	id := uint16(t.counter)
	t.pending[id] = now
	return id
}

// Resolve marks id as answered, removing it from the pending set.
// Returns true if id was still pending (and not already timed out).
func (t *QueryTracker) Resolve(id uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[id]; !ok {
		return false
	}
	delete(t.pending, id)
	return true
}

// GC removes pending entries older than PendingTimeout as of now.
func (t *QueryTracker) GC(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, sentAt := range t.pending {
		if now.Sub(sentAt) > PendingTimeout {
			delete(t.pending, id)
		}
	}
}

// PendingCount reports the number of unresolved queries, for tests.
func (t *QueryTracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
