package router

import (
	"sync"
)

// GrowableBuffer is the demux queue between the router and its consumers
// (writers, book tracker). It is an unbounded ring: feed bursts must never
// block the route loop, so the ring doubles once it passes 70% occupancy
// instead of applying backpressure.
type GrowableBuffer[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	ring   []T
	head   int // next read slot
	tail   int // next write slot
	count  int
	closed bool

	// Lifetime counters for Stats.
	enqueued int64
	dequeued int64
	resizes  int
}

// BufferStats is a point-in-time view of a buffer's state.
type BufferStats struct {
	Count         int
	Capacity      int
	TotalReceived int64 // messages enqueued since creation
	TotalSent     int64 // messages dequeued since creation
	ResizeCount   int
}

// NewGrowableBuffer creates a buffer with the given initial capacity.
func NewGrowableBuffer[T any](initialCapacity int) *GrowableBuffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &GrowableBuffer[T]{
		ring: make([]T, initialCapacity),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send enqueues a message, growing the ring first when it would cross the
// 70% occupancy threshold. Returns false once the buffer is closed.
func (b *GrowableBuffer[T]) Send(msg T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (len(b.ring) * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.ring[b.tail] = msg
	b.tail = (b.tail + 1) % len(b.ring)
	b.count++
	b.enqueued++

	b.cond.Signal()
	return true
}

// Receive dequeues a message, blocking until one is available or the
// buffer is closed. The second return is false when closed and drained.
func (b *GrowableBuffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}

	if b.count == 0 {
		var zero T
		return zero, false
	}

	return b.popLocked(), true
}

// TryReceive dequeues a message without blocking. The second return is
// false when the buffer is empty.
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}

	return b.popLocked(), true
}

// DrainTo dequeues up to max messages at once, or everything buffered
// when max is zero.
func (b *GrowableBuffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = b.popLocked()
	}
	return out
}

// Close marks the buffer closed. Pending messages remain receivable;
// blocked receivers wake and drain, then observe the close.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of buffered messages.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current ring capacity.
func (b *GrowableBuffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ring)
}

// Stats returns lifetime counters alongside the current occupancy.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:         b.count,
		Capacity:      len(b.ring),
		TotalReceived: b.enqueued,
		TotalSent:     b.dequeued,
		ResizeCount:   b.resizes,
	}
}

// popLocked removes and returns the head message. Caller holds mu and has
// verified count > 0. The slot is zeroed so the value can be collected.
func (b *GrowableBuffer[T]) popLocked() T {
	msg := b.ring[b.head]
	var zero T
	b.ring[b.head] = zero
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	b.dequeued++
	return msg
}

// grow doubles the ring, unwrapping the contents so head lands at zero.
// Caller holds mu.
func (b *GrowableBuffer[T]) grow() {
	next := make([]T, len(b.ring)*2)

	if b.count > 0 {
		if b.head < b.tail {
			copy(next, b.ring[b.head:b.tail])
		} else {
			n := copy(next, b.ring[b.head:])
			copy(next[n:], b.ring[:b.tail])
		}
	}

	b.ring = next
	b.head = 0
	b.tail = b.count
	b.resizes++
}
