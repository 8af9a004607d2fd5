package delivery

import (
	"sync"
	"testing"

	"github.com/uhyunpark/feedcore/pkg/core"
)

func fill(q *Queue, kind core.Kind, n int, mark func(int)) {
	for i := 0; i < n; i++ {
		i := i
		q.Enqueue(Task{Kind: kind, Run: func() {
			if mark != nil {
				mark(i)
			}
		}})
	}
}

func drainAll(q *Queue) {
	for q.DrainOnce() > 0 {
	}
}

func TestEnqueueShedsByKindRatio(t *testing.T) {
	tests := []struct {
		name     string
		kind     core.Kind
		wantShed uint64
	}{
		{"book sheds half", core.KindDepth, 5},
		{"ticker sheds quarter", core.KindTicker, 2},
		{"kline sheds quarter", core.KindKline, 2},
		{"trade clears queue", core.KindTrade, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue(nil)
			fill(q, core.KindTicker, MaxQueue, nil) // fill to the bound
			q.Enqueue(Task{Kind: tt.kind, Run: func() {}})
			if got := q.Stats().DroppedFull; got != tt.wantShed {
				t.Errorf("DroppedFull = %d, want %d", got, tt.wantShed)
			}
			if got, want := q.Len(), MaxQueue-int(tt.wantShed)+1; got != want {
				t.Errorf("Len = %d, want %d", got, want)
			}
		})
	}
}

func TestShedDropsOldestFirst(t *testing.T) {
	q := NewQueue(nil)
	var mu sync.Mutex
	var ran []int
	fill(q, core.KindTicker, MaxQueue, func(i int) {
		mu.Lock()
		ran = append(ran, i)
		mu.Unlock()
	})
	// Depth enqueue sheds the 5 oldest tickers (0..4).
	q.Enqueue(Task{Kind: core.KindDepth, Run: func() {}})
	drainAll(q)

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 5 {
		t.Fatalf("ran %d tasks, want 5: %v", len(ran), ran)
	}
	for i, id := range ran {
		if id != i+5 {
			t.Errorf("position %d ran task %d, want %d", i, id, i+5)
		}
	}
}

func TestPanicIsolation(t *testing.T) {
	q := NewQueue(nil)
	ran := false
	q.Enqueue(Task{Kind: core.KindTicker, Run: func() { panic("boom") }})
	q.Enqueue(Task{Kind: core.KindTicker, Run: func() { ran = true }})
	drainAll(q)

	if !ran {
		t.Error("task after panicking callback did not run")
	}
	stats := q.Stats()
	if stats.Panics != 1 {
		t.Errorf("Panics = %d, want 1", stats.Panics)
	}
	if stats.Executed != 1 {
		t.Errorf("Executed = %d, want 1", stats.Executed)
	}
}

func TestDrainBatchSize(t *testing.T) {
	q := NewQueue(nil)
	fill(q, core.KindTicker, DrainBatch+2, nil)
	if got := q.DrainOnce(); got != DrainBatch {
		t.Errorf("first drain executed %d, want %d", got, DrainBatch)
	}
	if got := q.DrainOnce(); got != 2 {
		t.Errorf("second drain executed %d, want 2", got)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	q := NewQueue(nil)
	q.Start()
	q.Start()
	q.Enqueue(Task{Kind: core.KindTicker, Run: func() {}})
	q.Stop()
	q.Stop()
	if got := q.Stats().Executed; got != 1 {
		t.Errorf("Executed = %d, want 1", got)
	}
}
