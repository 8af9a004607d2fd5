package feed

import (
	"sync"
	"testing"
	"time"

	"github.com/uhyunpark/feedcore/pkg/book"
	"github.com/uhyunpark/feedcore/pkg/core"
	"github.com/uhyunpark/feedcore/pkg/util"
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

type capture struct {
	mu     sync.Mutex
	events []Event
}

func (c *capture) handler(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *capture) last() Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func TestEndToEndDepthSnapshot(t *testing.T) {
	f := New(Config{MaxRows: 5, Aggregation: "0.5"})
	var books capture
	f.On(core.KindDepth, books.handler)

	f.Start()
	defer f.Stop()

	if !f.SubmitRaw([]byte(`{"stream":"BTC_USDT@depth","data":{"s":"BTC_USDT","lastUpdateId":9,"bids":[["100.0","1"]],"asks":[["100.2","2"]]}}`)) {
		t.Fatal("SubmitRaw rejected frame while running")
	}

	waitFor(t, func() bool { return books.count() >= 1 })

	e := books.last()
	v, ok := e.Payload.(book.View)
	if !ok {
		t.Fatalf("payload type = %T, want book.View", e.Payload)
	}
	if e.Symbol != "BTC_USDT" {
		t.Errorf("symbol = %q, want BTC_USDT", e.Symbol)
	}
	if len(v.Bids) != 5 || len(v.Asks) != 5 {
		t.Fatalf("rows = (%d, %d), want (5, 5)", len(v.Bids), len(v.Asks))
	}
	if v.Bids[0].Price != "100.0" || v.Asks[0].Price != "100.5" {
		t.Errorf("best rows = (%q, %q), want (100.0, 100.5)", v.Bids[0].Price, v.Asks[0].Price)
	}
	if !v.Bids[4].Empty || !v.Asks[4].Empty {
		t.Error("padding rows missing")
	}
	if v.UpdateID != 9 {
		t.Errorf("UpdateID = %d, want 9", v.UpdateID)
	}
}

func TestSubmitRejectedWhenStopped(t *testing.T) {
	f := New(Config{})
	if f.SubmitRaw([]byte(`{}`)) {
		t.Error("SubmitRaw accepted frame before Start")
	}
}

func TestAggregationChangeRedelivers(t *testing.T) {
	f := New(Config{MaxRows: 3, BookThrottle: time.Hour, Clock: util.NewFakeClock(time.Unix(0, 0))})
	var books capture
	f.On(core.KindDepth, books.handler)

	f.Start()
	defer f.Stop()

	f.SubmitRaw([]byte(`{"stream":"BTC_USDT@depth","data":{"s":"BTC_USDT","lastUpdateId":1,"bids":[["100.016","1"]],"asks":[["100.011","1"]]}}`))
	waitFor(t, func() bool { return books.count() == 1 })

	f.SetAggregation("BTC_USDT", "0.1")
	waitFor(t, func() bool { return books.count() == 2 })

	v := books.last().Payload.(book.View)
	if v.Aggregation != "0.1" {
		t.Errorf("aggregation = %q, want 0.1", v.Aggregation)
	}
	if v.Bids[0].Price != "100.0" || v.Asks[0].Price != "100.1" {
		t.Errorf("rows = (%q, %q), want (100.0, 100.1)", v.Bids[0].Price, v.Asks[0].Price)
	}
}

func TestBookThrottleSuppressesDiffDeliveries(t *testing.T) {
	clock := util.NewFakeClock(time.Unix(1000, 0))
	f := New(Config{BookThrottle: 100 * time.Millisecond, Clock: clock})
	var books capture
	f.On(core.KindDepth, books.handler)

	f.Start()
	defer f.Stop()

	diff := []byte(`{"s":"BTC_USDT","e":"depthUpdate","u":2,"b":[["100.0","1"]],"a":[]}`)
	f.SubmitRaw(diff)
	waitFor(t, func() bool { return f.Stats().Queue.Executed >= 1 })

	// Within the throttle window: applied but not delivered.
	f.SubmitRaw([]byte(`{"s":"BTC_USDT","e":"depthUpdate","u":3,"b":[["99.0","1"]],"a":[]}`))
	waitFor(t, func() bool {
		st, _ := f.BookView("BTC_USDT")
		return st.UpdateID == 3
	})
	if books.count() != 1 {
		t.Fatalf("deliveries = %d, want 1 (throttled)", books.count())
	}

	clock.Advance(200 * time.Millisecond)
	f.SubmitRaw([]byte(`{"s":"BTC_USDT","e":"depthUpdate","u":4,"b":[["98.0","1"]],"a":[]}`))
	waitFor(t, func() bool { return books.count() == 2 })
}

func TestTradeWindowNewestFirstAndCapped(t *testing.T) {
	f := New(Config{MaxRows: 3})
	var trades capture
	f.On(core.KindTrade, trades.handler)

	f.Start()
	defer f.Stop()

	frames := []string{
		`{"s":"BTC_USDT","e":"trade","p":"1","q":"1","t":1}`,
		`{"s":"BTC_USDT","e":"trade","p":"2","q":"1","t":2}`,
		`{"s":"BTC_USDT","e":"trade","p":"3","q":"1","t":3}`,
		`{"s":"BTC_USDT","e":"trade","p":"4","q":"1","t":4}`,
	}
	for _, fr := range frames {
		f.SubmitRaw([]byte(fr))
	}

	waitFor(t, func() bool {
		w := f.Trades("BTC_USDT")
		return len(w) == 3 && w[0].TradeID == 4
	})
	w := f.Trades("BTC_USDT")
	if w[0].Price != 4 || w[1].Price != 3 || w[2].Price != 2 {
		t.Errorf("window = %v, want prices 4,3,2 newest first", w)
	}
}

func TestMiniTickerArrayFanOut(t *testing.T) {
	f := New(Config{})
	f.Start()
	defer f.Stop()

	f.SubmitRaw([]byte(`[{"e":"miniTicker","s":"BTC_USDT","c":"100"},{"e":"miniTicker","s":"ETH_USDT","c":"2000"}]`))

	waitFor(t, func() bool { return len(f.AllMiniTickers()) == 2 })
	if _, ok := f.TickerFor("BTC_USDT"); ok {
		t.Error("mini ticker leaked into the 24h ticker map")
	}
}

func TestKlineStatePerInterval(t *testing.T) {
	f := New(Config{})
	f.Start()
	defer f.Stop()

	f.SubmitRaw([]byte(`{"s":"BTC_USDT","e":"kline","k":{"i":"1m","o":"1","h":"2","l":"0.5","c":"1.5","v":"10","t":1,"T":2,"x":false}}`))
	f.SubmitRaw([]byte(`{"s":"BTC_USDT","e":"kline","k":{"i":"1h","o":"1","h":"3","l":"0.4","c":"2.5","v":"99","t":1,"T":2,"x":true}}`))

	waitFor(t, func() bool {
		_, ok := f.KlineFor("BTC_USDT", "1h")
		return ok
	})
	m1, _ := f.KlineFor("BTC_USDT", "1m")
	h1, _ := f.KlineFor("BTC_USDT", "1h")
	if m1.Close != 1.5 || h1.Close != 2.5 {
		t.Errorf("closes = (%v, %v), want (1.5, 2.5)", m1.Close, h1.Close)
	}
	if m1.Closed || !h1.Closed {
		t.Errorf("closed flags = (%v, %v), want (false, true)", m1.Closed, h1.Closed)
	}
}

func TestResetBookKeepsConfig(t *testing.T) {
	f := New(Config{MaxRows: 4})
	f.Start()
	defer f.Stop()

	f.SubmitRaw([]byte(`{"s":"BTC_USDT","e":"depthUpdate","u":1,"b":[["100.0","1"]],"a":[]}`))
	waitFor(t, func() bool {
		v, ok := f.BookView("BTC_USDT")
		return ok && v.UpdateID == 1
	})

	f.ResetBook("BTC_USDT")
	v, ok := f.BookView("BTC_USDT")
	if !ok {
		t.Fatal("book vanished on reset")
	}
	if v.UpdateID != 0 {
		t.Errorf("UpdateID after reset = %d, want 0", v.UpdateID)
	}
	if len(v.Bids) != 4 {
		t.Errorf("maxRows lost on reset: %d rows", len(v.Bids))
	}
}

func TestLastHandlerWins(t *testing.T) {
	f := New(Config{})
	var first, second capture
	f.On(core.KindTicker, first.handler)
	f.On(core.KindTicker, second.handler)

	f.Start()
	defer f.Stop()

	f.SubmitRaw([]byte(`{"s":"BTC_USDT","e":"24hrTicker","c":"100","o":"90"}`))
	waitFor(t, func() bool { return second.count() == 1 })
	if first.count() != 0 {
		t.Errorf("replaced handler still received %d events", first.count())
	}
}
