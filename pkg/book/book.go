package book

import (
	"math"
	"sort"
	"sync"

	"github.com/uhyunpark/feedcore/pkg/core"
)

const (
	DefaultMaxRows              = 50
	DefaultDepthLimit           = 1000
	DefaultBaseDecimals         = 5
	DefaultPriceDisplayDecimals = 2
	DefaultAggregation          = "0.01"

	maxDecimals = 18

	// priceEpsilonScale collapses map keys that differ below 1e-10 so
	// float noise from two frames never creates twin levels.
	priceEpsilonScale = 1e10
)

func normPrice(p float64) float64 {
	return math.Round(p*priceEpsilonScale) / priceEpsilonScale
}

func clampDecimals(n int) int {
	if n < 0 {
		return 0
	}
	if n > maxDecimals {
		return maxDecimals
	}
	return n
}

// Level is one live (price, qty) level.
type Level struct {
	Price float64
	Qty   float64
}

// Stats is a point-in-time book counter snapshot.
type Stats struct {
	Symbol       string `json:"symbol"`
	BidLevels    int    `json:"bid_levels"`
	AskLevels    int    `json:"ask_levels"`
	Updates      uint64 `json:"updates"`
	Snapshots    uint64 `json:"snapshots"`
	Trims        uint64 `json:"trims"`
	LastUpdateID int64  `json:"last_update_id"`
}

// Book holds one symbol's order book and its three-tier view cache:
// tier 1 sorted levels, tier 2 aggregated buckets, tier 3 the formatted
// view. Mutations dirty tiers 1-3; an aggregation change dirties 2-3;
// decimals or row-count changes dirty tier 3 only, so an unchanged book
// re-renders without touching the maps.
type Book struct {
	mu     sync.Mutex
	symbol string

	bids map[float64]float64
	asks map[float64]float64

	sortedBids []Level // price desc
	sortedAsks []Level // price asc
	bidsDirty  bool
	asksDirty  bool

	aggBids  []Level
	aggAsks  []Level
	aggKey   string
	aggValid bool

	view      View
	viewValid bool
	viewBase  int
	viewPrice int
	viewRows  int

	aggregation          string
	depthLimit           int
	maxRows              int
	baseDecimals         int
	priceDisplayDecimals int

	lastUpdateID int64
	updates      uint64
	snapshots    uint64
	trims        uint64
}

func New(symbol string) *Book {
	return &Book{
		symbol:               symbol,
		bids:                 make(map[float64]float64),
		asks:                 make(map[float64]float64),
		aggregation:          DefaultAggregation,
		depthLimit:           DefaultDepthLimit,
		maxRows:              DefaultMaxRows,
		baseDecimals:         DefaultBaseDecimals,
		priceDisplayDecimals: DefaultPriceDisplayDecimals,
	}
}

func (b *Book) Symbol() string { return b.symbol }

// markMutated dirties tiers 1-3. Caller holds mu.
func (b *Book) markMutated() {
	b.bidsDirty = true
	b.asksDirty = true
	b.aggValid = false
	b.viewValid = false
}

func (b *Book) applyLevels(side map[float64]float64, levels []core.PriceLevel) {
	for _, lv := range levels {
		if math.IsNaN(lv.Price) || math.IsInf(lv.Price, 0) {
			continue
		}
		key := normPrice(lv.Price)
		if lv.Qty <= 0 {
			delete(side, key)
			continue
		}
		side[key] = lv.Qty
	}
}

// ApplyDepth applies a diff or snapshot record. Returns true when the
// record was a snapshot, which callers deliver eagerly.
func (b *Book) ApplyDepth(rec *core.DepthRecord) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec.IsSnapshot {
		b.bids = make(map[float64]float64, int(rec.BidCount))
		b.asks = make(map[float64]float64, int(rec.AskCount))
		b.snapshots++
	}
	b.applyLevels(b.bids, rec.Bids[:rec.BidCount])
	b.applyLevels(b.asks, rec.Asks[:rec.AskCount])
	if rec.FinalUpdateID != 0 {
		b.lastUpdateID = rec.FinalUpdateID
	}
	b.updates++
	b.markMutated()
	b.trimLocked()
	return rec.IsSnapshot
}

// SetSnapshot replaces both sides wholesale.
func (b *Book) SetSnapshot(bids, asks []core.PriceLevel, updateID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = make(map[float64]float64, len(bids))
	b.asks = make(map[float64]float64, len(asks))
	b.applyLevels(b.bids, bids)
	b.applyLevels(b.asks, asks)
	b.lastUpdateID = updateID
	b.snapshots++
	b.updates++
	b.markMutated()
	b.trimLocked()
}

// trimLocked keeps the best depthLimit levels per side. Sorting happens
// here anyway, so the tier-1 cache comes out clean.
func (b *Book) trimLocked() {
	if b.depthLimit <= 0 {
		return
	}
	if len(b.bids) > b.depthLimit {
		b.ensureSortedLocked()
		b.sortedBids = b.sortedBids[:b.depthLimit]
		b.bids = make(map[float64]float64, b.depthLimit)
		for _, lv := range b.sortedBids {
			b.bids[lv.Price] = lv.Qty
		}
		b.trims++
		b.aggValid = false
		b.viewValid = false
	}
	if len(b.asks) > b.depthLimit {
		b.ensureSortedLocked()
		b.sortedAsks = b.sortedAsks[:b.depthLimit]
		b.asks = make(map[float64]float64, b.depthLimit)
		for _, lv := range b.sortedAsks {
			b.asks[lv.Price] = lv.Qty
		}
		b.trims++
		b.aggValid = false
		b.viewValid = false
	}
}

func sideToSorted(side map[float64]float64, desc bool) []Level {
	out := make([]Level, 0, len(side))
	for p, q := range side {
		out = append(out, Level{Price: p, Qty: q})
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}

func (b *Book) ensureSortedLocked() {
	if b.bidsDirty {
		b.sortedBids = sideToSorted(b.bids, true)
		b.bidsDirty = false
	}
	if b.asksDirty {
		b.sortedAsks = sideToSorted(b.asks, false)
		b.asksDirty = false
	}
}

// aggregateSide buckets already-sorted levels onto step multiples.
// Sorted input means equal buckets are adjacent, so a single merging
// pass preserves order with no re-sort.
func aggregateSide(levels []Level, step float64, decimals int, up bool) []Level {
	out := make([]Level, 0, len(levels))
	for _, lv := range levels {
		if lv.Price <= 0 || math.IsNaN(lv.Price) || math.IsInf(lv.Price, 0) {
			continue
		}
		bucket := roundToStep(lv.Price, step, decimals, up)
		if n := len(out); n > 0 && out[n-1].Price == bucket {
			out[n-1].Qty += lv.Qty
		} else {
			out = append(out, Level{Price: bucket, Qty: lv.Qty})
		}
	}
	return out
}

func (b *Book) ensureAggLocked(step float64, decimals int) {
	if b.aggValid && b.aggKey == b.aggregation {
		return
	}
	b.ensureSortedLocked()
	b.aggBids = aggregateSide(b.sortedBids, step, decimals, false)
	b.aggAsks = aggregateSide(b.sortedAsks, step, decimals, true)
	b.aggKey = b.aggregation
	b.aggValid = true
}

func (b *Book) formatSide(agg []Level) ([]Row, float64) {
	rows := make([]Row, 0, b.maxRows)
	cum := 0.0
	for i := 0; i < len(agg) && i < b.maxRows; i++ {
		lv := agg[i]
		cum += lv.Qty
		rows = append(rows, Row{
			Price:    formatNumber(lv.Price, b.priceDisplayDecimals),
			Qty:      formatNumber(lv.Qty, b.baseDecimals),
			Cum:      formatNumber(cum, b.baseDecimals),
			PriceRaw: lv.Price,
			QtyRaw:   lv.Qty,
			CumRaw:   cum,
		})
	}
	for len(rows) < b.maxRows {
		rows = append(rows, Row{Empty: true})
	}
	return rows, cum
}

// View renders the formatted book, rebuilding only the dirty tiers.
// Rendering an unchanged book returns an identical view.
func (b *Book) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()

	step := stepValue(b.aggregation)
	if step == 0 {
		return emptyView(b.symbol, b.aggregation)
	}

	if b.viewValid &&
		b.viewBase == b.baseDecimals &&
		b.viewPrice == b.priceDisplayDecimals &&
		b.viewRows == b.maxRows {
		return b.viewSnapshotLocked()
	}

	b.ensureAggLocked(step, decimalsOf(b.aggregation))

	bids, bidCum := b.formatSide(b.aggBids)
	asks, askCum := b.formatSide(b.aggAsks)
	maxCum := bidCum
	if askCum > maxCum {
		maxCum = askCum
	}

	b.view = View{
		Symbol:        b.symbol,
		Bids:          bids,
		Asks:          asks,
		Rows:          b.maxRows,
		Aggregation:   b.aggregation,
		MaxCumulative: maxCum,
		UpdateID:      b.lastUpdateID,
	}
	b.viewValid = true
	b.viewBase = b.baseDecimals
	b.viewPrice = b.priceDisplayDecimals
	b.viewRows = b.maxRows
	return b.viewSnapshotLocked()
}

// viewSnapshotLocked copies the row slices so a caller mutating its
// view cannot corrupt the cached render. Caller holds mu.
func (b *Book) viewSnapshotLocked() View {
	v := b.view
	v.Bids = append([]Row(nil), b.view.Bids...)
	v.Asks = append([]Row(nil), b.view.Asks...)
	return v
}

// SetAggregation switches the bucket step and rederives the display
// decimal count from the step string. Returns true when the step
// changed and the book has levels, meaning callers should redeliver.
func (b *Book) SetAggregation(step string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if step == "" || step == b.aggregation {
		return false
	}
	b.aggregation = step
	b.priceDisplayDecimals = clampDecimals(decimalsOf(step))
	b.aggValid = false
	b.viewValid = false
	return len(b.bids)+len(b.asks) > 0
}

// SetDecimals adjusts quantity decimals, and price display decimals
// only while the aggregation step is still the default. Returns true
// when a redeliver is warranted.
func (b *Book) SetDecimals(base, quote int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	changed := false
	base = clampDecimals(base)
	quote = clampDecimals(quote)
	if base != b.baseDecimals {
		b.baseDecimals = base
		changed = true
	}
	if b.aggregation == DefaultAggregation && quote != b.priceDisplayDecimals {
		b.priceDisplayDecimals = quote
		changed = true
	}
	if changed {
		b.viewValid = false
	}
	return changed && len(b.bids)+len(b.asks) > 0
}

func (b *Book) SetMaxRows(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n < 1 {
		n = 1
	}
	if n != b.maxRows {
		b.maxRows = n
		b.viewValid = false
	}
}

func (b *Book) SetDepthLimit(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n < 1 {
		return
	}
	b.depthLimit = n
	b.trimLocked()
}

func (b *Book) Aggregation() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.aggregation
}

func (b *Book) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bids) == 0 && len(b.asks) == 0
}

// Reset drops all levels and counters but keeps display config.
func (b *Book) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = make(map[float64]float64)
	b.asks = make(map[float64]float64)
	b.sortedBids = nil
	b.sortedAsks = nil
	b.aggBids = nil
	b.aggAsks = nil
	b.lastUpdateID = 0
	b.updates = 0
	b.snapshots = 0
	b.trims = 0
	b.markMutated()
}

func (b *Book) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Symbol:       b.symbol,
		BidLevels:    len(b.bids),
		AskLevels:    len(b.asks),
		Updates:      b.updates,
		Snapshots:    b.snapshots,
		Trims:        b.trims,
		LastUpdateID: b.lastUpdateID,
	}
}
