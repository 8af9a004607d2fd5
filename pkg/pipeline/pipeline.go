package pipeline

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/uhyunpark/feedcore/pkg/core"
)

// Ring sizes per kind, tuned to each stream's frame rate.
const (
	DepthRingSize      = 4096
	TradeRingSize      = 2048
	TickerRingSize     = 1024
	MiniTickerRingSize = 1024
	KlineRingSize      = 2048
	UserRingSize       = 512
)

// Stats is a point-in-time pipeline counter snapshot.
type Stats struct {
	Kind        string `json:"kind"`
	Received    uint64 `json:"received"`
	Parsed      uint64 `json:"parsed"`
	ParseErrors uint64 `json:"parse_errors"`
	PoolStarved uint64 `json:"pool_starved"`
	Dropped     uint64 `json:"dropped"`
	Processed   uint64 `json:"processed"`
}

// Pipeline owns the pool, ring and worker goroutine for one message
// kind. Push runs on the router's stage goroutine: acquire a pool slot,
// parse into it, copy into the ring, release the slot. The worker pops
// records and hands them to the handler.
type Pipeline[T any] struct {
	kind   core.Kind
	ring   *core.RingBuffer[T]
	pool   *core.ObjectPool[T]
	parse  func([]byte, *T) bool
	handle func(*T)
	log    *zap.SugaredLogger

	notify chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup

	running     atomic.Bool
	received    atomic.Uint64
	parsed      atomic.Uint64
	parseErrors atomic.Uint64
	poolStarved atomic.Uint64
	processed   atomic.Uint64
}

func New[T any](kind core.Kind, ringSize, poolChunks int, parse func([]byte, *T) bool, handle func(*T), log *zap.SugaredLogger) *Pipeline[T] {
	return &Pipeline[T]{
		kind:   kind,
		ring:   core.NewRingBuffer[T](ringSize),
		pool:   core.NewObjectPool[T](poolChunks, nil),
		parse:  parse,
		handle: handle,
		log:    log,
		notify: make(chan struct{}, 1),
	}
}

// Push parses raw into a pooled slot and copies the record into the
// ring. Returns false when the frame was dropped (bad parse or pool
// starvation).
func (p *Pipeline[T]) Push(raw []byte) bool {
	p.received.Add(1)
	slot := p.pool.Acquire()
	if slot == nil {
		p.poolStarved.Add(1)
		return false
	}
	if !p.parse(raw, slot) {
		p.pool.Release(slot)
		p.parseErrors.Add(1)
		return false
	}
	p.parsed.Add(1)
	p.ring.Push(slot)
	p.pool.Release(slot)
	select {
	case p.notify <- struct{}{}:
	default:
	}
	return true
}

// Start spins up the worker. Idempotent.
func (p *Pipeline[T]) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	p.stop = make(chan struct{})
	p.wg.Add(1)
	go p.run()
}

// Stop halts the worker after it drains the ring. Idempotent.
func (p *Pipeline[T]) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stop)
	p.wg.Wait()
}

func (p *Pipeline[T]) run() {
	defer p.wg.Done()
	var rec T
	for {
		for p.ring.Pop(&rec) {
			p.handle(&rec)
			p.processed.Add(1)
		}
		select {
		case <-p.stop:
			// Drain what arrived between the last pop and the stop.
			for p.ring.Pop(&rec) {
				p.handle(&rec)
				p.processed.Add(1)
			}
			return
		case <-p.notify:
		}
	}
}

// Backlog is how many records sit in the ring awaiting the worker.
func (p *Pipeline[T]) Backlog() int { return p.ring.Len() }

func (p *Pipeline[T]) Stats() Stats {
	rs := p.ring.Stats()
	return Stats{
		Kind:        p.kind.String(),
		Received:    p.received.Load(),
		Parsed:      p.parsed.Load(),
		ParseErrors: p.parseErrors.Load(),
		PoolStarved: p.poolStarved.Load(),
		Dropped:     rs.Overwrites,
		Processed:   p.processed.Load(),
	}
}
