// Package delivery hands formatted payloads to registered callbacks
// through a bounded queue. Order book payloads are large, so when the
// queue backs up they shed harder than tickers.
package delivery

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/uhyunpark/feedcore/pkg/core"
)

const (
	// MaxQueue is the enqueue-time bound.
	MaxQueue = 10
	// DropThreshold is the drain-time backlog bound; anything above it
	// is shed before the next batch runs.
	DropThreshold = 15
	// DrainBatch is how many tasks one drain pass executes.
	DrainBatch = 5
)

// dropRatioFor sets how much of a full queue is shed per kind:
// MaxQueue/ratio oldest entries go. Book payloads shed half, tickers a
// quarter, trades clear the queue outright (the rolling window
// resynthesizes them for free).
func dropRatioFor(k core.Kind) int {
	switch k {
	case core.KindDepth:
		return 2
	case core.KindTrade:
		return 1
	default:
		return 4
	}
}

// Task is one pending callback invocation.
type Task struct {
	Kind core.Kind
	Run  func()
}

// Stats is a point-in-time queue counter snapshot.
type Stats struct {
	Enqueued       uint64 `json:"enqueued"`
	DroppedFull    uint64 `json:"dropped_full"`
	DroppedBacklog uint64 `json:"dropped_backlog"`
	Executed       uint64 `json:"executed"`
	Panics         uint64 `json:"panics"`
}

// Queue is the bounded callback queue. A panicking callback is
// recovered and counted; later tasks still run.
type Queue struct {
	mu     sync.Mutex
	tasks  []Task
	notify chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
	log    *zap.SugaredLogger

	running        atomic.Bool
	enqueued       atomic.Uint64
	droppedFull    atomic.Uint64
	droppedBacklog atomic.Uint64
	executed       atomic.Uint64
	panics         atomic.Uint64
}

func NewQueue(log *zap.SugaredLogger) *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
		log:    log,
	}
}

// Enqueue adds a task, shedding oldest entries first when the queue is
// full. The shed size depends on the incoming task's kind.
func (q *Queue) Enqueue(t Task) {
	q.mu.Lock()
	if len(q.tasks) >= MaxQueue {
		n := MaxQueue / dropRatioFor(t.Kind)
		if n > len(q.tasks) {
			n = len(q.tasks)
		}
		q.tasks = q.tasks[n:]
		q.droppedFull.Add(uint64(n))
	}
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
	q.enqueued.Add(1)

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) Start() {
	if !q.running.CompareAndSwap(false, true) {
		return
	}
	q.stop = make(chan struct{})
	q.wg.Add(1)
	go q.loop()
}

func (q *Queue) Stop() {
	if !q.running.CompareAndSwap(true, false) {
		return
	}
	close(q.stop)
	q.wg.Wait()
}

func (q *Queue) loop() {
	defer q.wg.Done()
	for {
		for q.DrainOnce() > 0 {
		}
		select {
		case <-q.stop:
			for q.DrainOnce() > 0 {
			}
			return
		case <-q.notify:
		}
	}
}

// DrainOnce sheds backlog past DropThreshold, then runs up to
// DrainBatch tasks. Returns the number executed. Exported so replay and
// tests can pump the queue synchronously.
func (q *Queue) DrainOnce() int {
	q.mu.Lock()
	if over := len(q.tasks) - DropThreshold; over > 0 {
		q.tasks = q.tasks[over:]
		q.droppedBacklog.Add(uint64(over))
	}
	n := len(q.tasks)
	if n > DrainBatch {
		n = DrainBatch
	}
	batch := make([]Task, n)
	copy(batch, q.tasks[:n])
	q.tasks = q.tasks[n:]
	q.mu.Unlock()

	for _, t := range batch {
		q.runOne(t)
	}
	return n
}

func (q *Queue) runOne(t Task) {
	defer func() {
		if r := recover(); r != nil {
			q.panics.Add(1)
			if q.log != nil {
				q.log.Errorw("callback_panic", "kind", t.Kind.String(), "panic", r)
			}
		}
	}()
	t.Run()
	q.executed.Add(1)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:       q.enqueued.Load(),
		DroppedFull:    q.droppedFull.Load(),
		DroppedBacklog: q.droppedBacklog.Load(),
		Executed:       q.executed.Load(),
		Panics:         q.panics.Load(),
	}
}
