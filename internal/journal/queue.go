package journal

import "sync"

// item is one unit of work for the writer: a run or an entry.
type item struct {
	run   *Run
	entry *Entry
}

// queue is an unbounded FIFO between runner listeners and the writer.
//
// Unbounded so a listener, which runs under the runner's lock, never
// blocks on disk. signal has a buffer of one and coalesces wakeups.
type queue struct {
	mu     sync.Mutex
	items  []item
	closed bool
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{
		items:  make([]item, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// enqueue appends it. Returns false once the queue is closed.
func (q *queue) enqueue(it item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, it)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// tryDequeue removes the front item without blocking.
func (q *queue) tryDequeue() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item{}, false
	}
	it := q.items[0]
	q.items[0] = item{} // release pointers
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return it, true
}

// wait returns a channel that fires when items may be available, and stays
// readable after close.
func (q *queue) wait() <-chan struct{} {
	return q.signal
}

// drained reports whether the queue is closed and empty.
func (q *queue) drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close stops further enqueues and wakes the writer.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
