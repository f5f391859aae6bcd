// Package ringchan provides a bounded, overwrite-oldest channel used to hand
// values from producers that must never block (script print hooks, simulated
// central inboxes) to a dedicated consumer goroutine.
package ringchan

import "sync/atomic"

// RingChannel wraps a buffered channel. Producers never block: when the buffer
// is full the oldest element is discarded to make room.
//
//	rc := ringchan.New[int](3)
//	for i := 0; i < 10; i++ {
//	    rc.Send(i)
//	}
//	for v := range rc.C() {
//	    fmt.Println(v) // 7, 8, 9
//	}
type RingChannel[T any] struct {
	ch      chan T
	closed  atomic.Bool
	metrics Metrics
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
// It reports whether an element was dropped. Sending on a closed channel is
// a no-op that reports false.
func (rc *RingChannel[T]) Send(v T) (dropped bool) {
	if rc.closed.Load() {
		return false
	}

	for {
		select {
		case rc.ch <- v:
			rc.metrics.add(&rc.metrics.Written)
			return dropped
		default:
		}

		// A concurrent consumer may have drained the slot already, so the drop
		// itself must not block.
		select {
		case <-rc.ch:
			rc.metrics.add(&rc.metrics.Overwritten)
			dropped = true
		default:
		}
	}
}

// Close closes the underlying channel. It is safe to call more than once, but
// must not race with Send.
func (rc *RingChannel[T]) Close() {
	if rc.closed.CompareAndSwap(false, true) {
		close(rc.ch)
	}
}

// Metrics returns a snapshot of the counters.
func (rc *RingChannel[T]) Metrics() Metrics {
	return Metrics{
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
	}
}

// Metrics counts traffic through a RingChannel.
type Metrics struct {
	Written     int64
	Overwritten int64
}

func (m *Metrics) add(field *int64) {
	atomic.AddInt64(field, 1)
}
