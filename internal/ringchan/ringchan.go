// Package ringchan provides a bounded channel with overwrite-oldest semantics.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers never block: if the buffer is full, the oldest element is
// discarded. Readers use C() like a normal channel and can range over it until
// Close is called.
//
//	rc := ringchan.New[platform.ScanResult](3)
//	for _, r := range results {
//	    rc.Send(r) // never blocks
//	}
//	for r := range rc.C() {
//	    fmt.Println(r.Address)
//	}
//
// Unlike a bare channel, Send after Close is a no-op rather than a panic, so
// late producers (stale scan callbacks) are harmless.
type RingChannel[T any] struct {
	mu      sync.Mutex
	ch      chan T
	closed  bool
	metrics Metrics
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
// It reports whether an element was dropped. Send on a closed channel
// drops v and returns false.
func (rc *RingChannel[T]) Send(v T) (dropped bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		atomic.AddInt64(&rc.metrics.Rejected, 1)
		return false
	}

	for {
		select {
		case rc.ch <- v:
			atomic.AddInt64(&rc.metrics.Written, 1)
			return dropped
		default:
		}
		// A concurrent reader may drain the buffer between the two selects,
		// hence the loop instead of an unconditional receive.
		select {
		case <-rc.ch:
			atomic.AddInt64(&rc.metrics.Overwritten, 1)
			dropped = true
		default:
		}
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the underlying channel. It is safe to call more than once.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return
	}
	rc.closed = true
	close(rc.ch)
}

// GetMetrics returns a snapshot of the counters.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
		Rejected:    atomic.LoadInt64(&rc.metrics.Rejected),
	}
}

// Metrics are lock-free counters for a RingChannel.
type Metrics struct {
	Written     int64 // elements accepted
	Overwritten int64 // elements discarded to make room
	Rejected    int64 // sends after Close
}
