package core

import "sync"

// poolChunkSize is how many records each slab allocation adds.
const poolChunkSize = 64

// ObjectPool hands out pointers into pre-allocated slabs so the parse
// hot path never allocates. Acquire returns nil once the chunk ceiling
// is hit and everything is in use; Release only accepts pointers the
// pool owns, and resets the record before recycling it.
type ObjectPool[T any] struct {
	mu     sync.Mutex
	free   []*T
	chunks [][]T
	// inUse doubles as the ownership set: present means the pool owns
	// the pointer, true means it is currently acquired.
	inUse     map[*T]bool
	maxChunks int
	reset     func(*T)
}

// NewObjectPool builds a pool capped at maxChunks slabs of 64 records.
// reset is applied on every Release; nil means zero the record.
func NewObjectPool[T any](maxChunks int, reset func(*T)) *ObjectPool[T] {
	if maxChunks < 1 {
		maxChunks = 1
	}
	if reset == nil {
		reset = func(p *T) {
			var zero T
			*p = zero
		}
	}
	p := &ObjectPool[T]{
		inUse:     make(map[*T]bool, maxChunks*poolChunkSize),
		maxChunks: maxChunks,
		reset:     reset,
	}
	p.grow()
	return p
}

// grow adds one slab. Caller holds mu (or is the constructor).
func (p *ObjectPool[T]) grow() bool {
	if len(p.chunks) >= p.maxChunks {
		return false
	}
	chunk := make([]T, poolChunkSize)
	p.chunks = append(p.chunks, chunk)
	for i := range chunk {
		ptr := &chunk[i]
		p.free = append(p.free, ptr)
		p.inUse[ptr] = false
	}
	return true
}

// Acquire returns a record or nil when the pool is exhausted.
func (p *ObjectPool[T]) Acquire() *T {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 && !p.grow() {
		return nil
	}
	n := len(p.free) - 1
	ptr := p.free[n]
	p.free = p.free[:n]
	p.inUse[ptr] = true
	return ptr
}

// Release returns a record to the pool. Pointers the pool does not own
// and double releases are rejected.
func (p *ObjectPool[T]) Release(ptr *T) bool {
	if ptr == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acquired, owned := p.inUse[ptr]
	if !owned || !acquired {
		return false
	}
	p.reset(ptr)
	p.inUse[ptr] = false
	p.free = append(p.free, ptr)
	return true
}

// Allocated is the total record count across slabs.
func (p *ObjectPool[T]) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chunks) * poolChunkSize
}

// InUse is how many records are currently acquired.
func (p *ObjectPool[T]) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chunks)*poolChunkSize - len(p.free)
}
