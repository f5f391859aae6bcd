package goble

import (
	"sync"

	"github.com/srg/imuble/internal/radio"
)

type eventKind int

const (
	eventConnect eventKind = iota
	eventDisconnect
)

type lifecycleEvent struct {
	kind   eventKind
	handle radio.ConnHandle
}

// eventQueue is an unbounded FIFO of lifecycle events. push never blocks, so
// the HCI event goroutine can hand off events while the pump is busy issuing
// HCI commands that wait on that same goroutine. Every event is delivered:
// a lost disconnect would leave its handle registered forever.
type eventQueue struct {
	mu     sync.Mutex
	events []lifecycleEvent
	closed bool
	ready  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

// push appends e. It reports false once the queue is closed.
func (q *eventQueue) push(e lifecycleEvent) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.events = append(q.events, e)
	q.mu.Unlock()

	q.signal()
	return true
}

// next blocks until events are pending and returns all of them in arrival
// order. After close it returns what is still pending, then false.
func (q *eventQueue) next() ([]lifecycleEvent, bool) {
	for {
		q.mu.Lock()
		batch, closed := q.events, q.closed
		q.events = nil
		q.mu.Unlock()

		if len(batch) > 0 {
			return batch, true
		}
		if closed {
			return nil, false
		}
		<-q.ready
	}
}

// pending returns the number of undelivered events.
func (q *eventQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *eventQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
