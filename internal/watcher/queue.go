package watcher

import "sync"

// Queue is a bounded FIFO between the watcher's event loop and the worker
// that processes events. When full, Push discards the oldest queued event so
// the event loop never blocks on a slow consumer.
type Queue struct {
	mu      sync.Mutex
	items   []Event
	size    int
	dropped uint64
	closed  bool
	notify  chan struct{}
}

// NewQueue creates a queue holding at most size events.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{size: size, notify: make(chan struct{}, 1)}
}

// Push enqueues e. It returns the event discarded to make room, if any.
// Pushing to a closed queue is a no-op.
func (q *Queue) Push(e Event) (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Event{}, false
	}

	var (
		evicted Event
		dropped bool
	)
	if len(q.items) >= q.size {
		evicted, dropped = q.items[0], true
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, e)

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return evicted, dropped
}

// Pop blocks until an event is available. It returns false once the queue is
// closed and empty, so events queued before Close still drain.
func (q *Queue) Pop() (Event, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			e := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return e, true
		}
		if q.closed {
			q.mu.Unlock()
			return Event{}, false
		}
		q.mu.Unlock()
		<-q.notify
	}
}

// Close stops accepting events. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many events have been discarded.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
