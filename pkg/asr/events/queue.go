package events

import (
	"fmt"
	"io"
	"sync"
)

// ErrIteratorDone signals that a queue is closed for writing and fully
// drained: the streaming-iterator equivalent of io.EOF.
var ErrIteratorDone = fmt.Errorf("events: iterator done")

// eventQueue is a thread-safe, fixed-capacity circular buffer of Event,
// adapted from the teacher's generic pkg/buffer.BlockBuffer down to this
// package's single use: a bounded single-producer event queue. Add blocks
// when full so a slow consumer applies backpressure to the producer rather
// than events being buffered unboundedly or dropped (spec section 5).
type eventQueue struct {
	cond *sync.Cond

	mu         sync.Mutex
	buf        []Event
	head, tail int64
	closeWrite bool
}

// newEventQueue creates a queue with room for size buffered events.
func newEventQueue(size int) *eventQueue {
	q := &eventQueue{buf: make([]Event, size)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add appends e to the queue, blocking if the queue is full until a reader
// makes room. Returns io.ErrClosedPipe if the queue has been closed for
// writing.
func (q *eventQueue) Add(e Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeWrite {
		return fmt.Errorf("events: write to closed queue: %w", io.ErrClosedPipe)
	}
	bufsz := int64(len(q.buf))
	for q.tail-q.head == bufsz {
		q.cond.Wait()
		if q.closeWrite {
			return fmt.Errorf("events: write to closed queue: %w", io.ErrClosedPipe)
		}
	}
	q.buf[q.tail%bufsz] = e
	q.tail++
	q.cond.Signal()
	return nil
}

// CloseWrite closes the queue for writing. Buffered events already in the
// queue remain readable via Next until drained.
func (q *eventQueue) CloseWrite() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeWrite {
		return nil
	}
	q.closeWrite = true
	q.cond.Broadcast()
	return nil
}

// Next blocks until an event is available, returning ErrIteratorDone once
// the queue is closed for writing and empty.
func (q *eventQueue) Next() (Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.head == q.tail {
		if q.closeWrite {
			return nil, ErrIteratorDone
		}
		q.cond.Wait()
	}
	e := q.buf[q.head%int64(len(q.buf))]
	q.head++
	q.cond.Signal()
	return e, nil
}
