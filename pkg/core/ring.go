package core

import "sync/atomic"

// RingStats is a point-in-time counter snapshot.
type RingStats struct {
	Pushes     uint64
	Pops       uint64
	Overwrites uint64
}

// RingBuffer is a single-producer single-consumer queue over a
// pre-allocated slice. Size rounds up to a power of two and one slot
// stays open to tell full from empty, so usable capacity is size-1.
// Pushing into a full ring overwrites the oldest entry rather than
// blocking the producer.
type RingBuffer[T any] struct {
	buf  []T
	mask uint64

	head atomic.Uint64 // next slot to pop
	tail atomic.Uint64 // next slot to fill

	pushes     atomic.Uint64
	pops       atomic.Uint64
	overwrites atomic.Uint64
}

func NewRingBuffer[T any](size int) *RingBuffer[T] {
	n := 2
	for n < size {
		n <<= 1
	}
	return &RingBuffer[T]{buf: make([]T, n), mask: uint64(n - 1)}
}

// Push copies *v into the ring. Returns true when the oldest entry was
// overwritten to make room. Producer side only.
func (r *RingBuffer[T]) Push(v *T) bool {
	tail := r.tail.Load()
	head := r.head.Load()
	overwrote := false
	if tail-head == uint64(len(r.buf))-1 {
		// Full: step over the oldest entry. The consumer may race this
		// forward too; losing that race just means it popped the entry
		// before we dropped it.
		r.head.CompareAndSwap(head, head+1)
		r.overwrites.Add(1)
		overwrote = true
	}
	r.buf[tail&r.mask] = *v
	r.tail.Store(tail + 1)
	r.pushes.Add(1)
	return overwrote
}

// Pop copies the oldest entry into *out. Consumer side only.
func (r *RingBuffer[T]) Pop(out *T) bool {
	for {
		head := r.head.Load()
		if head == r.tail.Load() {
			return false
		}
		*out = r.buf[head&r.mask]
		if r.head.CompareAndSwap(head, head+1) {
			r.pops.Add(1)
			return true
		}
		// Producer overwrote the slot under us; retry with the new head.
	}
}

func (r *RingBuffer[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap is the usable capacity (one slot below the allocated size).
func (r *RingBuffer[T]) Cap() int { return len(r.buf) - 1 }

func (r *RingBuffer[T]) Stats() RingStats {
	return RingStats{
		Pushes:     r.pushes.Load(),
		Pops:       r.pops.Load(),
		Overwrites: r.overwrites.Load(),
	}
}
