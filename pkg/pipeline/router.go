package pipeline

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/uhyunpark/feedcore/pkg/core"
	"github.com/uhyunpark/feedcore/pkg/wire"
)

// stageCap bounds each staging queue; a full stage drops its oldest frame.
const stageCap = 20

// stage is a bounded FIFO of raw frames between the socket reader and a
// drain goroutine.
type stage struct {
	mu      sync.Mutex
	q       [][]byte
	notify  chan struct{}
	dropped atomic.Uint64
}

func newStage() *stage {
	return &stage{notify: make(chan struct{}, 1)}
}

func (s *stage) push(raw []byte) {
	// Own the bytes: the reader reuses its buffer.
	frame := make([]byte, len(raw))
	copy(frame, raw)

	s.mu.Lock()
	if len(s.q) >= stageCap {
		s.q = s.q[1:]
		s.dropped.Add(1)
	}
	s.q = append(s.q, frame)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *stage) pop() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.q) == 0 {
		return nil, false
	}
	frame := s.q[0]
	s.q = s.q[1:]
	return frame, true
}

// RouterStats aggregates routing counters.
type RouterStats struct {
	BookDropped  uint64 `json:"book_dropped"`
	LightDropped uint64 `json:"light_dropped"`
	Unroutable   uint64 `json:"unroutable"`
}

// Router splits the raw feed into two staging queues: depth frames go
// to the book stage, everything else to the lightweight stage. Each
// stage has its own drain goroutine so heavy book frames never starve
// tickers. Classification is a substring sniff first; the drain side
// re-resolves the kind with a full parse before dispatch.
type Router struct {
	book  *stage
	light *stage

	detector wire.Parser
	mu       sync.Mutex // both drain goroutines share the detector

	submit [len(core.Kinds)]func([]byte) bool

	unroutable atomic.Uint64
	running    atomic.Bool
	stop       chan struct{}
	wg         sync.WaitGroup
	log        *zap.SugaredLogger
}

func NewRouter(log *zap.SugaredLogger) *Router {
	return &Router{
		book:  newStage(),
		light: newStage(),
		log:   log,
	}
}

// Register binds the push function for one kind. Must happen before Start.
func (r *Router) Register(k core.Kind, fn func([]byte) bool) {
	r.submit[int(k)] = fn
}

// Submit stages a raw frame. Safe to call from the socket reader; the
// frame bytes are copied.
func (r *Router) Submit(raw []byte) {
	if wire.SniffKind(raw) == core.KindDepth {
		r.book.push(raw)
		return
	}
	r.light.push(raw)
}

func (r *Router) Start() {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	r.stop = make(chan struct{})
	r.wg.Add(2)
	go r.drain(r.book, true)
	go r.drain(r.light, false)
}

func (r *Router) Stop() {
	if !r.running.CompareAndSwap(true, false) {
		return
	}
	close(r.stop)
	r.wg.Wait()
}

func (r *Router) drain(s *stage, isBook bool) {
	defer r.wg.Done()
	for {
		for {
			frame, ok := s.pop()
			if !ok {
				break
			}
			r.dispatch(frame, isBook)
		}
		select {
		case <-r.stop:
			for {
				frame, ok := s.pop()
				if !ok {
					return
				}
				r.dispatch(frame, isBook)
			}
		case <-s.notify:
		}
	}
}

func (r *Router) dispatch(frame []byte, fromBook bool) {
	r.mu.Lock()
	kind := r.detector.DetectKind(frame)
	r.mu.Unlock()
	if kind == core.KindUnknown {
		r.unroutable.Add(1)
		if r.log != nil {
			r.log.Debugw("frame_unroutable", "len", len(frame))
		}
		return
	}
	if !fromBook && kind == core.KindDepth {
		// The sniff missed this depth frame and it landed on the light
		// stage. Re-stage it so the book drain stays the depth
		// pipeline's only producer; the ring is single-producer.
		r.book.push(frame)
		return
	}
	fn := r.submit[int(kind)]
	if fn == nil {
		r.unroutable.Add(1)
		return
	}
	fn(frame)
}

// Backlog is how many frames sit in the staging queues.
func (r *Router) Backlog() int {
	r.book.mu.Lock()
	n := len(r.book.q)
	r.book.mu.Unlock()
	r.light.mu.Lock()
	n += len(r.light.q)
	r.light.mu.Unlock()
	return n
}

func (r *Router) Stats() RouterStats {
	return RouterStats{
		BookDropped:  r.book.dropped.Load(),
		LightDropped: r.light.dropped.Load(),
		Unroutable:   r.unroutable.Load(),
	}
}
