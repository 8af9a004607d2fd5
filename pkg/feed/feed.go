// Package feed is the SDK facade: it owns the router, the six per-kind
// pipelines, per-symbol order books, the delivery queue and the derived
// market state, and exposes the submit/configure/subscribe surface the
// daemon and embedders use.
package feed

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/feedcore/pkg/book"
	"github.com/uhyunpark/feedcore/pkg/core"
	"github.com/uhyunpark/feedcore/pkg/delivery"
	"github.com/uhyunpark/feedcore/pkg/pipeline"
	"github.com/uhyunpark/feedcore/pkg/util"
	"github.com/uhyunpark/feedcore/pkg/wire"
)

// Event is what a registered handler receives. Payload is book.View,
// []Trade, Ticker, MiniTicker, Kline or []byte depending on Kind.
type Event struct {
	Kind    core.Kind
	Symbol  string
	Payload any
}

// Handler consumes delivered events. One handler per kind; the last
// registration wins.
type Handler func(Event)

type Config struct {
	Aggregation   string
	DepthLimit    int
	MaxRows       int
	BaseDecimals  int
	QuoteDecimals int
	// BookThrottle is the minimum interval between book deliveries per
	// symbol. Snapshots and config changes bypass it.
	BookThrottle time.Duration
	Clock        util.Clock
	Logger       *zap.SugaredLogger
}

func (c *Config) withDefaults() {
	if c.Aggregation == "" {
		c.Aggregation = book.DefaultAggregation
	}
	if c.DepthLimit <= 0 {
		c.DepthLimit = book.DefaultDepthLimit
	}
	if c.MaxRows <= 0 {
		c.MaxRows = book.DefaultMaxRows
	}
	if c.BaseDecimals <= 0 {
		c.BaseDecimals = book.DefaultBaseDecimals
	}
	if c.QuoteDecimals <= 0 {
		c.QuoteDecimals = book.DefaultPriceDisplayDecimals
	}
	if c.Clock == nil {
		c.Clock = util.RealClock{}
	}
}

// Stats aggregates counters across every component.
type Stats struct {
	Pipelines []pipeline.Stats     `json:"pipelines"`
	Router    pipeline.RouterStats `json:"router"`
	Queue     delivery.Stats       `json:"queue"`
	Books     []book.Stats         `json:"books"`
}

type Feed struct {
	cfg   Config
	log   *zap.SugaredLogger
	clock util.Clock

	router *pipeline.Router
	depth  *pipeline.Pipeline[core.DepthRecord]
	trade  *pipeline.Pipeline[core.TradeRecord]
	ticker *pipeline.Pipeline[core.TickerRecord]
	mini   *pipeline.Pipeline[core.MiniTickerRecord]
	kline  *pipeline.Pipeline[core.KlineRecord]
	user   *pipeline.Pipeline[core.UserRecord]

	queue *delivery.Queue

	mu         sync.Mutex
	books      map[string]*book.Book
	trades     map[string][]Trade
	tickers    map[string]Ticker
	minis      map[string]MiniTicker
	klines     map[string]map[string]Kline
	lastBookAt map[string]time.Time

	hmu      sync.RWMutex
	handlers map[core.Kind]Handler

	arrayMu     sync.Mutex
	arrayParser wire.Parser

	running atomic.Bool
}

func New(cfg Config) *Feed {
	cfg.withDefaults()
	f := &Feed{
		cfg:        cfg,
		log:        cfg.Logger,
		clock:      cfg.Clock,
		queue:      delivery.NewQueue(cfg.Logger),
		books:      make(map[string]*book.Book),
		trades:     make(map[string][]Trade),
		tickers:    make(map[string]Ticker),
		minis:      make(map[string]MiniTicker),
		klines:     make(map[string]map[string]Kline),
		lastBookAt: make(map[string]time.Time),
		handlers:   make(map[core.Kind]Handler),
	}
	f.router = pipeline.NewRouter(cfg.Logger)

	dp := &wire.Parser{}
	f.depth = pipeline.New(core.KindDepth, pipeline.DepthRingSize, 16,
		dp.ParseDepth, f.handleDepth, cfg.Logger)
	tp := &wire.Parser{}
	f.trade = pipeline.New(core.KindTrade, pipeline.TradeRingSize, 8,
		tp.ParseTrade, f.handleTrade, cfg.Logger)
	kp := &wire.Parser{}
	f.ticker = pipeline.New(core.KindTicker, pipeline.TickerRingSize, 4,
		kp.ParseTicker, f.handleTicker, cfg.Logger)
	mp := &wire.Parser{}
	f.mini = pipeline.New(core.KindMiniTicker, pipeline.MiniTickerRingSize, 4,
		mp.ParseMiniTicker, f.handleMini, cfg.Logger)
	lp := &wire.Parser{}
	f.kline = pipeline.New(core.KindKline, pipeline.KlineRingSize, 8,
		lp.ParseKline, f.handleKline, cfg.Logger)
	up := &wire.Parser{}
	f.user = pipeline.New(core.KindUserData, pipeline.UserRingSize, 2,
		up.ParseUser, f.handleUser, cfg.Logger)

	f.router.Register(core.KindDepth, f.depth.Push)
	f.router.Register(core.KindTrade, f.trade.Push)
	f.router.Register(core.KindTicker, f.ticker.Push)
	f.router.Register(core.KindMiniTicker, f.mini.Push)
	f.router.Register(core.KindKline, f.kline.Push)
	f.router.Register(core.KindUserData, f.user.Push)
	return f
}

// Start brings up the queue, workers and router. Idempotent.
func (f *Feed) Start() {
	if !f.running.CompareAndSwap(false, true) {
		return
	}
	f.queue.Start()
	f.depth.Start()
	f.trade.Start()
	f.ticker.Start()
	f.mini.Start()
	f.kline.Start()
	f.user.Start()
	f.router.Start()
	if f.log != nil {
		f.log.Infow("feed_started")
	}
}

// Stop tears down in reverse order so in-flight frames drain.
func (f *Feed) Stop() {
	if !f.running.CompareAndSwap(true, false) {
		return
	}
	f.router.Stop()
	f.depth.Stop()
	f.trade.Stop()
	f.ticker.Stop()
	f.mini.Stop()
	f.kline.Stop()
	f.user.Stop()
	f.queue.Stop()
	if f.log != nil {
		f.log.Infow("feed_stopped")
	}
}

// SubmitRaw feeds one raw frame into the router. Array frames (the
// all-mini-tickers broadcast) fan out element by element.
func (f *Feed) SubmitRaw(raw []byte) bool {
	if !f.running.Load() {
		return false
	}
	if wire.IsArrayFrame(raw) {
		f.arrayMu.Lock()
		var rec core.MiniTickerRecord
		f.arrayParser.ForEachMiniTicker(raw, &rec, f.handleMini)
		f.arrayMu.Unlock()
		return true
	}
	f.router.Submit(raw)
	return true
}

// ---- Handlers (run on pipeline workers) ----

func (f *Feed) handleDepth(rec *core.DepthRecord) {
	symbol := rec.Symbol.String()
	b := f.bookFor(symbol)
	snapshot := b.ApplyDepth(rec)
	if snapshot || f.bookDeliverable(symbol) {
		f.deliverBook(symbol, b)
	}
}

func (f *Feed) handleTrade(rec *core.TradeRecord) {
	t := tradeFromRecord(rec)
	f.mu.Lock()
	w := f.trades[t.Symbol]
	w = append(w, Trade{})
	copy(w[1:], w)
	w[0] = t
	if len(w) > f.cfg.MaxRows {
		w = w[:f.cfg.MaxRows]
	}
	f.trades[t.Symbol] = w
	window := make([]Trade, len(w))
	copy(window, w)
	f.mu.Unlock()

	f.deliver(core.KindTrade, t.Symbol, window)
}

func (f *Feed) handleTicker(rec *core.TickerRecord) {
	t := tickerFromRecord(rec)
	f.mu.Lock()
	f.tickers[t.Symbol] = t
	f.mu.Unlock()
	f.deliver(core.KindTicker, t.Symbol, t)
}

func (f *Feed) handleMini(rec *core.MiniTickerRecord) {
	m := miniFromRecord(rec)
	f.mu.Lock()
	f.minis[m.Symbol] = m
	f.mu.Unlock()
	f.deliver(core.KindMiniTicker, m.Symbol, m)
}

func (f *Feed) handleKline(rec *core.KlineRecord) {
	k := klineFromRecord(rec)
	f.mu.Lock()
	byInterval := f.klines[k.Symbol]
	if byInterval == nil {
		byInterval = make(map[string]Kline)
		f.klines[k.Symbol] = byInterval
	}
	byInterval[k.Interval] = k
	f.mu.Unlock()
	f.deliver(core.KindKline, k.Symbol, k)
}

func (f *Feed) handleUser(rec *core.UserRecord) {
	payload := make([]byte, rec.PayloadLen)
	copy(payload, rec.PayloadBytes())
	f.deliver(core.KindUserData, rec.Symbol.String(), payload)
}

// ---- Delivery ----

func (f *Feed) handler(k core.Kind) Handler {
	f.hmu.RLock()
	defer f.hmu.RUnlock()
	return f.handlers[k]
}

// On registers the handler for a kind, replacing any previous one.
func (f *Feed) On(k core.Kind, h Handler) {
	f.hmu.Lock()
	defer f.hmu.Unlock()
	if h == nil {
		delete(f.handlers, k)
		return
	}
	f.handlers[k] = h
}

func (f *Feed) deliver(kind core.Kind, symbol string, payload any) {
	h := f.handler(kind)
	if h == nil {
		return
	}
	f.queue.Enqueue(delivery.Task{Kind: kind, Run: func() {
		h(Event{Kind: kind, Symbol: symbol, Payload: payload})
	}})
}

// deliverBook renders lazily at drain time so a backlogged queue ships
// the freshest view, not a stale one.
func (f *Feed) deliverBook(symbol string, b *book.Book) {
	h := f.handler(core.KindDepth)
	if h == nil {
		return
	}
	f.queue.Enqueue(delivery.Task{Kind: core.KindDepth, Run: func() {
		h(Event{Kind: core.KindDepth, Symbol: symbol, Payload: b.View()})
	}})
}

func (f *Feed) bookDeliverable(symbol string) bool {
	if f.cfg.BookThrottle <= 0 {
		return true
	}
	now := f.clock.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	if last, ok := f.lastBookAt[symbol]; ok && now.Sub(last) < f.cfg.BookThrottle {
		return false
	}
	f.lastBookAt[symbol] = now
	return true
}

// ---- Books and config ----

func (f *Feed) bookFor(symbol string) *book.Book {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[symbol]
	if !ok {
		b = book.New(symbol)
		b.SetDepthLimit(f.cfg.DepthLimit)
		b.SetMaxRows(f.cfg.MaxRows)
		b.SetAggregation(f.cfg.Aggregation)
		b.SetDecimals(f.cfg.BaseDecimals, f.cfg.QuoteDecimals)
		f.books[symbol] = b
	}
	return b
}

// SetAggregation changes a symbol's bucket step and redelivers
// immediately when the book has content, bypassing the throttle.
func (f *Feed) SetAggregation(symbol, step string) {
	b := f.bookFor(symbol)
	if b.SetAggregation(step) {
		f.deliverBook(symbol, b)
	}
}

// SetDecimals adjusts display decimals, redelivering like SetAggregation.
func (f *Feed) SetDecimals(symbol string, base, quote int) {
	b := f.bookFor(symbol)
	if b.SetDecimals(base, quote) {
		f.deliverBook(symbol, b)
	}
}

func (f *Feed) SetMaxRows(symbol string, n int) {
	f.bookFor(symbol).SetMaxRows(n)
}

// ResetBook drops one symbol's levels; display config survives.
func (f *Feed) ResetBook(symbol string) {
	f.mu.Lock()
	b := f.books[symbol]
	delete(f.lastBookAt, symbol)
	f.mu.Unlock()
	if b != nil {
		b.Reset()
	}
}

// ResetAll clears every book and the derived market state.
func (f *Feed) ResetAll() {
	f.mu.Lock()
	books := make([]*book.Book, 0, len(f.books))
	for _, b := range f.books {
		books = append(books, b)
	}
	f.trades = make(map[string][]Trade)
	f.tickers = make(map[string]Ticker)
	f.minis = make(map[string]MiniTicker)
	f.klines = make(map[string]map[string]Kline)
	f.lastBookAt = make(map[string]time.Time)
	f.mu.Unlock()
	for _, b := range books {
		b.Reset()
	}
}

// ---- Queries ----

func (f *Feed) BookView(symbol string) (book.View, bool) {
	f.mu.Lock()
	b, ok := f.books[symbol]
	f.mu.Unlock()
	if !ok {
		return book.View{}, false
	}
	return b.View(), true
}

func (f *Feed) Trades(symbol string) []Trade {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.trades[symbol]
	out := make([]Trade, len(w))
	copy(out, w)
	return out
}

func (f *Feed) TickerFor(symbol string) (Ticker, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickers[symbol]
	return t, ok
}

func (f *Feed) AllMiniTickers() []MiniTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]MiniTicker, 0, len(f.minis))
	for _, m := range f.minis {
		out = append(out, m)
	}
	return out
}

func (f *Feed) KlineFor(symbol, interval string) (Kline, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.klines[symbol][interval]
	return k, ok
}

func (f *Feed) Stats() Stats {
	f.mu.Lock()
	books := make([]book.Stats, 0, len(f.books))
	for _, b := range f.books {
		books = append(books, b.Stats())
	}
	f.mu.Unlock()
	return Stats{
		Pipelines: []pipeline.Stats{
			f.depth.Stats(), f.trade.Stats(), f.ticker.Stats(),
			f.mini.Stats(), f.kline.Stats(), f.user.Stats(),
		},
		Router: f.router.Stats(),
		Queue:  f.queue.Stats(),
		Books:  books,
	}
}

// DrainDelivery pumps the callback queue synchronously; replay uses it
// to flush between frames.
func (f *Feed) DrainDelivery() {
	for f.queue.DrainOnce() > 0 {
	}
}

// Flush blocks until the router stages and pipeline rings are empty and
// every popped record has finished its handler, then drains the callback
// queue. Replay calls this periodically so the bounded staging queues
// never shed frames.
func (f *Feed) Flush() {
	for {
		time.Sleep(time.Millisecond)
		if f.backlog() == 0 && f.settled() {
			break
		}
	}
	f.DrainDelivery()
}

func (f *Feed) backlog() int {
	return f.router.Backlog() +
		f.depth.Backlog() + f.trade.Backlog() + f.ticker.Backlog() +
		f.mini.Backlog() + f.kline.Backlog() + f.user.Backlog()
}

func (f *Feed) settled() bool {
	for _, s := range []pipeline.Stats{
		f.depth.Stats(), f.trade.Stats(), f.ticker.Stats(),
		f.mini.Stats(), f.kline.Stats(), f.user.Stats(),
	} {
		if s.Parsed != s.Processed+s.Dropped {
			return false
		}
	}
	return true
}
