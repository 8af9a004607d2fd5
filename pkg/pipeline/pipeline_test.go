package pipeline

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/uhyunpark/feedcore/pkg/core"
	"github.com/uhyunpark/feedcore/pkg/wire"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPipelineProcessesInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []int64

	parse := func(raw []byte, rec *core.TradeRecord) bool {
		id, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return false
		}
		rec.TradeID = id
		return true
	}
	p := New(core.KindTrade, TradeRingSize, 4, parse, func(rec *core.TradeRecord) {
		mu.Lock()
		got = append(got, rec.TradeID)
		mu.Unlock()
	}, nil)

	p.Start()
	defer p.Stop()

	for i := int64(1); i <= 100; i++ {
		if !p.Push([]byte(strconv.FormatInt(i, 10))) {
			t.Fatalf("push %d dropped", i)
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 100
	})

	mu.Lock()
	defer mu.Unlock()
	for i, id := range got {
		if id != int64(i+1) {
			t.Fatalf("element %d: got id %d, want %d", i, id, i+1)
		}
	}
}

func TestPipelineDropsBadFrames(t *testing.T) {
	parse := func(raw []byte, rec *core.TradeRecord) bool { return string(raw) == "ok" }
	p := New(core.KindTrade, TradeRingSize, 4, parse, func(*core.TradeRecord) {}, nil)

	if p.Push([]byte("bad")) {
		t.Error("Push accepted unparsable frame")
	}
	if !p.Push([]byte("ok")) {
		t.Error("Push dropped valid frame")
	}

	stats := p.Stats()
	if stats.ParseErrors != 1 {
		t.Errorf("ParseErrors = %d, want 1", stats.ParseErrors)
	}
	if stats.Parsed != 1 {
		t.Errorf("Parsed = %d, want 1", stats.Parsed)
	}
	if stats.Received != 2 {
		t.Errorf("Received = %d, want 2", stats.Received)
	}
}

func TestPipelineStartStopIdempotent(t *testing.T) {
	p := New(core.KindTrade, TradeRingSize, 4,
		func([]byte, *core.TradeRecord) bool { return true },
		func(*core.TradeRecord) {}, nil)

	p.Start()
	p.Start() // no second worker
	p.Stop()
	p.Stop() // no panic on double stop

	// Restartable after a stop.
	p.Start()
	p.Push([]byte("x"))
	waitFor(t, func() bool { return p.Stats().Processed == 1 })
	p.Stop()
}

func TestRouterSplitsDepthFromLightweight(t *testing.T) {
	r := NewRouter(nil)

	var mu sync.Mutex
	counts := map[core.Kind]int{}
	record := func(k core.Kind) func([]byte) bool {
		return func([]byte) bool {
			mu.Lock()
			counts[k]++
			mu.Unlock()
			return true
		}
	}
	for _, k := range core.Kinds {
		r.Register(k, record(k))
	}

	r.Start()
	defer r.Stop()

	r.Submit([]byte(`{"stream":"btc_usdt@depth","data":{"s":"BTC_USDT","b":[],"a":[]}}`))
	r.Submit([]byte(`{"stream":"btc_usdt@trade","data":{"s":"BTC_USDT","p":"1","q":"1"}}`))
	r.Submit([]byte(`{"e":"24hrTicker","s":"BTC_USDT","c":"1"}`))
	r.Submit([]byte(`{"nothing":"routable"}`))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts[core.KindDepth] == 1 && counts[core.KindTrade] == 1 && counts[core.KindTicker] == 1
	})

	waitFor(t, func() bool { return r.Stats().Unroutable == 1 })
}

func TestStageDropsOldestWhenFull(t *testing.T) {
	s := newStage()
	for i := 0; i < stageCap+3; i++ {
		s.push([]byte{byte(i)})
	}
	if got := s.dropped.Load(); got != 3 {
		t.Fatalf("dropped = %d, want 3", got)
	}
	frame, ok := s.pop()
	if !ok {
		t.Fatal("pop failed")
	}
	// Oldest three were shed, so the head is frame 3.
	if frame[0] != 3 {
		t.Errorf("head frame = %d, want 3", frame[0])
	}
}

func TestSpacedDepthFrameReachesDepthPipeline(t *testing.T) {
	// Valid JSON the markers miss: a space after "e": defeats the
	// substring sniff, so the frame stages on the light queue. The
	// light drain must hand it back to the book stage instead of
	// pushing the depth ring itself; the ring is single-producer.
	spaced := []byte(`{"s":"BTC_USDT", "e": "depthUpdate", "u":2, "b":[["100.0","1"]], "a":[]}`)
	if wire.SniffKind(spaced) != core.KindUnknown {
		t.Fatal("frame matched a substring marker; pick a frame the sniff misses")
	}

	r := NewRouter(nil)
	var mu sync.Mutex
	counts := map[core.Kind]int{}
	for _, k := range core.Kinds {
		k := k
		r.Register(k, func([]byte) bool {
			mu.Lock()
			counts[k]++
			mu.Unlock()
			return true
		})
	}

	r.Submit(spaced)
	if len(r.book.q) != 0 || len(r.light.q) != 1 {
		t.Fatalf("staging = (book %d, light %d), want (0, 1)", len(r.book.q), len(r.light.q))
	}

	r.Start()
	defer r.Stop()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts[core.KindDepth] == 1
	})
	if got := r.Stats().Unroutable; got != 0 {
		t.Errorf("Unroutable = %d, want 0", got)
	}
}

func TestRouterUsesSniffForStaging(t *testing.T) {
	// A depth frame classified by marker goes to the book stage even
	// when the payload body is not yet parsed.
	if wire.SniffKind([]byte(`{"stream":"x@depth"}`)) != core.KindDepth {
		t.Fatal("sniff misclassified depth marker")
	}
}
