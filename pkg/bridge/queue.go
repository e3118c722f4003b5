package bridge

import (
	"sync"
	"time"
)

// lossyQueue is a bounded FIFO that evicts the oldest unread entry on
// overflow so the producer never blocks. Written by the receiver worker,
// drained by the dispatcher worker.
type lossyQueue struct {
	ch chan []byte
}

func newLossyQueue(capacity int) *lossyQueue {
	return &lossyQueue{ch: make(chan []byte, capacity)}
}

// Push enqueues line, dropping the oldest unread line if the queue is full.
func (q *lossyQueue) Push(line []byte) {
	for {
		select {
		case q.ch <- line:
			return
		default:
		}
		// Full: evict the oldest entry, then retry.
		select {
		case <-q.ch:
		default:
		}
	}
}

// Pop dequeues one line, waiting up to timeout.
func (q *lossyQueue) Pop(timeout time.Duration) ([]byte, bool) {
	select {
	case line := <-q.ch:
		return line, true
	case <-time.After(timeout):
		return nil, false
	}
}

func (q *lossyQueue) Len() int {
	return len(q.ch)
}

// Drain discards all queued entries.
func (q *lossyQueue) Drain() {
	for {
		select {
		case <-q.ch:
		default:
			return
		}
	}
}

// unboundedQueue is a FIFO without a capacity bound; Push never blocks or
// drops. Enqueued commands are delivered asynchronously by the sender worker.
type unboundedQueue struct {
	mu     sync.Mutex
	items  [][]byte
	signal chan struct{}
}

func newUnboundedQueue() *unboundedQueue {
	return &unboundedQueue{signal: make(chan struct{}, 1)}
}

func (q *unboundedQueue) Push(data []byte) {
	q.mu.Lock()
	q.items = append(q.items, data)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop dequeues the oldest entry, waiting up to timeout for one to arrive.
func (q *unboundedQueue) Pop(timeout time.Duration) ([]byte, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			data := q.items[0]
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				// Re-arm the signal so a waiting consumer sees the rest.
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			return data, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-deadline.C:
			return nil, false
		}
	}
}

func (q *unboundedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *unboundedQueue) Drain() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}
