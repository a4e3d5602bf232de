package eventbus

import (
	"container/list"
	"sync"

	"github.com/streamkeep/streamkeep/internal/events"
)

// unboundedQueue is the bus's single ingress queue (§4.3): Push never
// blocks the caller, and Pop blocks until an item is available or the queue
// is closed.
type unboundedQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *list.List
	closed bool
}

func newUnboundedQueue() *unboundedQueue {
	q := &unboundedQueue{items: list.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues an event. It never blocks.
func (q *unboundedQueue) Push(e events.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items.PushBack(e)
	q.cond.Signal()
}

// Pop blocks until an event is available, returning ok=false once the queue
// is closed and drained.
func (q *unboundedQueue) Pop() (events.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.items.Len() == 0 {
		return events.Event{}, false
	}
	front := q.items.Front()
	q.items.Remove(front)
	return front.Value.(events.Event), true
}

// Close marks the queue closed; any blocked or future Pop returns ok=false
// once drained.
func (q *unboundedQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
