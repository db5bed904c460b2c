// Package queue implements the per-plugin event queue: a FIFO of pending
// wire.Event values per plugin, read by guests through a partial-read
// cursor that pops the head only once it has been fully drained.
//
// Queues are bounded: a plugin that never calls event_read (a stalled or
// misbehaving guest) would otherwise grow its queue without limit, which
// in a long-running desktop process is a memory-exhaustion vector. This
// queue drops the oldest undelivered event once a plugin's queue reaches
// capacity, so a slow plugin sees the most recent window/key state rather
// than a backlog of stale events.
package queue

import (
	"errors"
	"sync"

	"github.com/tessera-wm/tessera/internal/metrics"
	"github.com/tessera-wm/tessera/internal/wire"
)

// DefaultCapacity is the default per-plugin queue bound.
const DefaultCapacity = 256

// ErrOffsetOutOfRange is returned by Read when offset exceeds the encoded
// size of the head event, corresponding to guest error code -3 (bad argument).
var ErrOffsetOutOfRange = errors.New("queue: read offset exceeds encoded event size")

type pluginQueue struct {
	mu     sync.Mutex
	events []wire.Event
	cursor []byte // lazily encoded head event, reset whenever the head changes
}

// Queues holds one FIFO per plugin, created lazily on first enqueue.
type Queues struct {
	capacity int

	mu   sync.RWMutex
	byID map[string]*pluginQueue
}

// New creates a Queues with the given per-plugin capacity. A capacity <= 0
// uses DefaultCapacity.
func New(capacity int) *Queues {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queues{
		capacity: capacity,
		byID:     make(map[string]*pluginQueue),
	}
}

func (q *Queues) queueFor(plugin string) *pluginQueue {
	q.mu.RLock()
	pq, ok := q.byID[plugin]
	q.mu.RUnlock()
	if ok {
		return pq
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if pq, ok := q.byID[plugin]; ok {
		return pq
	}
	pq = &pluginQueue{}
	q.byID[plugin] = pq
	return pq
}

// Enqueue appends event to plugin's FIFO, dropping the oldest queued event
// first if the queue is already at capacity.
func (q *Queues) Enqueue(plugin string, event wire.Event) {
	pq := q.queueFor(plugin)

	pq.mu.Lock()
	defer pq.mu.Unlock()

	if len(pq.events) >= q.capacity {
		pq.events = pq.events[1:]
		if pq.cursor != nil {
			// the dropped event was the head being mid-read; its cursor is void.
			pq.cursor = nil
		}
		metrics.QueueDroppedTotal.WithLabelValues(plugin).Inc()
	}
	pq.events = append(pq.events, event)
	metrics.QueueDepth.WithLabelValues(plugin).Set(float64(len(pq.events)))
}

// PeekLen returns the encoded size of plugin's head event, or 0 if the
// plugin has no queue or its queue is empty.
func (q *Queues) PeekLen(plugin string) int {
	q.mu.RLock()
	pq, ok := q.byID[plugin]
	q.mu.RUnlock()
	if !ok {
		return 0
	}

	pq.mu.Lock()
	defer pq.mu.Unlock()
	if len(pq.events) == 0 {
		return 0
	}
	return pq.events[0].EncodedSize()
}

// Read copies bytes [offset, offset+len(out)) of plugin's encoded head
// event into out and returns the number of bytes copied. The head's
// encoding is cached across calls so a multi-call partial read observes a
// consistent buffer even though wire.Event carries no explicit identity.
// If offset+n reaches the end of the encoded event, the head is popped.
// Returns ErrOffsetOutOfRange if offset exceeds the encoded size.
func (q *Queues) Read(plugin string, offset int, out []byte) (int, error) {
	q.mu.RLock()
	pq, ok := q.byID[plugin]
	q.mu.RUnlock()
	if !ok {
		return 0, nil
	}

	pq.mu.Lock()
	defer pq.mu.Unlock()

	if len(pq.events) == 0 {
		return 0, nil
	}

	if pq.cursor == nil {
		pq.cursor = pq.events[0].EncodeToSlice()
	}
	encoded := pq.cursor

	if offset > len(encoded) {
		return 0, ErrOffsetOutOfRange
	}

	n := copy(out, encoded[offset:])

	if offset+n == len(encoded) {
		pq.events = pq.events[1:]
		pq.cursor = nil
		metrics.QueueDepth.WithLabelValues(plugin).Set(float64(len(pq.events)))
	}

	return n, nil
}
