package wire

import (
	"bytes"
	"unsafe"

	"github.com/valyala/fastjson"
	"github.com/valyala/fastjson/fastfloat"

	"github.com/uhyunpark/feedcore/pkg/core"
)

// Parser turns raw feed frames into fixed records without allocating on
// the hot path. Not safe for concurrent use; each pipeline stage owns
// its own instance.
type Parser struct {
	p fastjson.Parser
}

func b2s(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// numOf coerces a JSON number or numeric string; anything unparsable
// comes back as zero.
func numOf(v *fastjson.Value) float64 {
	if v == nil {
		return 0
	}
	switch v.Type() {
	case fastjson.TypeNumber:
		return v.GetFloat64()
	case fastjson.TypeString:
		return fastfloat.ParseBestEffort(b2s(v.GetStringBytes()))
	default:
		return 0
	}
}

func numField(obj *fastjson.Value, key string) float64 {
	return numOf(obj.Get(key))
}

func intField(obj *fastjson.Value, key string) int64 {
	v := obj.Get(key)
	if v == nil {
		return 0
	}
	switch v.Type() {
	case fastjson.TypeNumber:
		return v.GetInt64()
	case fastjson.TypeString:
		return fastfloat.ParseInt64BestEffort(b2s(v.GetStringBytes()))
	default:
		return 0
	}
}

// unwrap follows the nested dialect's "data" envelope; flat frames come
// back unchanged.
func unwrap(root *fastjson.Value) *fastjson.Value {
	if d := root.Get("data"); d != nil {
		return d
	}
	return root
}

func symbolInto(root, payload *fastjson.Value, sym *core.Symbol) {
	if s := payload.GetStringBytes("s"); len(s) > 0 {
		sym.Set(s)
		return
	}
	if st := root.GetStringBytes("stream"); len(st) > 0 {
		if i := bytes.IndexByte(st, '@'); i > 0 {
			sym.Set(st[:i])
		} else {
			sym.Set(st)
		}
	}
}

// Stream-name markers, checked in sniff order. "@miniTicker" must come
// before "@ticker".
var (
	markDepth      = []byte("@depth")
	markTrade      = []byte("@trade")
	markMiniTicker = []byte("@miniTicker")
	markTicker     = []byte("@ticker")
	markKline      = []byte("@kline")

	evDepth      = []byte(`"e":"depthUpdate"`)
	evTrade      = []byte(`"e":"trade"`)
	evTicker     = []byte(`"e":"24hrTicker"`)
	evMiniTicker = []byte(`"e":"miniTicker"`)
	evKline      = []byte(`"e":"kline"`)
)

// SniffKind classifies a raw frame by substring scan alone. This is the
// router's cheap first pass and the fallback when JSON parsing fails.
func SniffKind(raw []byte) core.Kind {
	switch {
	case bytes.Contains(raw, markDepth), bytes.Contains(raw, evDepth):
		return core.KindDepth
	case bytes.Contains(raw, markTrade), bytes.Contains(raw, evTrade):
		return core.KindTrade
	case bytes.Contains(raw, markMiniTicker), bytes.Contains(raw, evMiniTicker):
		return core.KindMiniTicker
	case bytes.Contains(raw, markTicker), bytes.Contains(raw, evTicker):
		return core.KindTicker
	case bytes.Contains(raw, markKline), bytes.Contains(raw, evKline):
		return core.KindKline
	default:
		return core.KindUnknown
	}
}

// IsArrayFrame reports whether the frame is a JSON array (the
// all-mini-tickers broadcast).
func IsArrayFrame(raw []byte) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

// DetectKind resolves a frame's kind: stream-name markers first, then
// the parsed event field, then user-data shape. Unknown frames drop.
func (p *Parser) DetectKind(raw []byte) core.Kind {
	if k := SniffKind(raw); k != core.KindUnknown {
		return k
	}
	root, err := p.p.ParseBytes(raw)
	if err != nil {
		return core.KindUnknown
	}
	payload := unwrap(root)
	switch string(payload.GetStringBytes("e")) {
	case "depthUpdate":
		return core.KindDepth
	case "trade":
		return core.KindTrade
	case "24hrTicker":
		return core.KindTicker
	case "miniTicker":
		return core.KindMiniTicker
	case "kline":
		return core.KindKline
	case "executionReport", "outboundAccountPosition", "balanceUpdate":
		return core.KindUserData
	}
	if payload.Exists("orderId") || payload.Exists("balances") || payload.Exists("B") {
		return core.KindUserData
	}
	return core.KindUnknown
}

func levelsInto(arr []*fastjson.Value, out *[core.MaxDepthLevels]core.PriceLevel) uint8 {
	n := 0
	for _, lv := range arr {
		if n >= core.MaxDepthLevels {
			break
		}
		pair := lv.GetArray()
		if len(pair) < 2 {
			continue
		}
		out[n] = core.PriceLevel{Price: numOf(pair[0]), Qty: numOf(pair[1])}
		n++
	}
	return uint8(n)
}

// ParseDepth fills rec from a depth diff or snapshot frame. Valid only
// when a symbol and at least one side array are present. Zero-qty
// levels are kept for the book layer to apply as deletes.
func (p *Parser) ParseDepth(raw []byte, rec *core.DepthRecord) bool {
	root, err := p.p.ParseBytes(raw)
	if err != nil {
		return false
	}
	payload := unwrap(root)
	symbolInto(root, payload, &rec.Symbol)
	if rec.Symbol.Len() == 0 {
		return false
	}

	bids := payload.Get("b")
	asks := payload.Get("a")
	snapshot := false
	if bids == nil && asks == nil {
		bids = payload.Get("bids")
		asks = payload.Get("asks")
		snapshot = true
	}
	if bids == nil && asks == nil {
		return false
	}
	if payload.Exists("lastUpdateId") {
		snapshot = true
	}

	rec.BidCount = levelsInto(bids.GetArray(), &rec.Bids)
	rec.AskCount = levelsInto(asks.GetArray(), &rec.Asks)
	rec.FirstUpdateID = intField(payload, "U")
	rec.FinalUpdateID = intField(payload, "u")
	if rec.FinalUpdateID == 0 {
		rec.FinalUpdateID = intField(payload, "lastUpdateId")
	}
	rec.EventTime = intField(payload, "E")
	rec.IsSnapshot = snapshot
	return true
}

// ParseTrade requires symbol, price and qty.
func (p *Parser) ParseTrade(raw []byte, rec *core.TradeRecord) bool {
	root, err := p.p.ParseBytes(raw)
	if err != nil {
		return false
	}
	payload := unwrap(root)
	symbolInto(root, payload, &rec.Symbol)
	if rec.Symbol.Len() == 0 || !payload.Exists("p") || !payload.Exists("q") {
		return false
	}
	rec.Price = numField(payload, "p")
	rec.Qty = numField(payload, "q")
	rec.TradeID = intField(payload, "t")
	rec.EventTime = intField(payload, "E")
	rec.IsBuyerMaker = payload.GetBool("m")
	return true
}

// ParseTicker requires symbol and a last price.
func (p *Parser) ParseTicker(raw []byte, rec *core.TickerRecord) bool {
	root, err := p.p.ParseBytes(raw)
	if err != nil {
		return false
	}
	payload := unwrap(root)
	symbolInto(root, payload, &rec.Symbol)
	if rec.Symbol.Len() == 0 || !payload.Exists("c") {
		return false
	}
	rec.Last = numField(payload, "c")
	rec.Open = numField(payload, "o")
	rec.High = numField(payload, "h")
	rec.Low = numField(payload, "l")
	rec.Volume = numField(payload, "v")
	rec.QuoteVolume = numField(payload, "q")
	rec.PriceChange = numField(payload, "p")
	rec.PriceChangePercent = numField(payload, "P")
	rec.EventTime = intField(payload, "E")
	return true
}

func miniTickerInto(payload *fastjson.Value, rec *core.MiniTickerRecord) bool {
	if s := payload.GetStringBytes("s"); len(s) > 0 {
		rec.Symbol.Set(s)
	}
	if rec.Symbol.Len() == 0 || !payload.Exists("c") {
		return false
	}
	rec.Last = numField(payload, "c")
	rec.Open = numField(payload, "o")
	rec.High = numField(payload, "h")
	rec.Low = numField(payload, "l")
	rec.Volume = numField(payload, "v")
	rec.QuoteVolume = numField(payload, "q")
	rec.EventTime = intField(payload, "E")
	return true
}

func (p *Parser) ParseMiniTicker(raw []byte, rec *core.MiniTickerRecord) bool {
	root, err := p.p.ParseBytes(raw)
	if err != nil {
		return false
	}
	payload := unwrap(root)
	symbolInto(root, payload, &rec.Symbol)
	return miniTickerInto(payload, rec)
}

// ForEachMiniTicker walks an all-mini-tickers array frame, invoking fn
// once per valid element. Returns how many elements were accepted.
func (p *Parser) ForEachMiniTicker(raw []byte, rec *core.MiniTickerRecord, fn func(*core.MiniTickerRecord)) int {
	root, err := p.p.ParseBytes(raw)
	if err != nil {
		return 0
	}
	arr := unwrap(root).GetArray()
	n := 0
	for _, elem := range arr {
		rec.Reset()
		if miniTickerInto(elem, rec) {
			fn(rec)
			n++
		}
	}
	return n
}

// ParseKline requires symbol and the "k" candle object.
func (p *Parser) ParseKline(raw []byte, rec *core.KlineRecord) bool {
	root, err := p.p.ParseBytes(raw)
	if err != nil {
		return false
	}
	payload := unwrap(root)
	symbolInto(root, payload, &rec.Symbol)
	k := payload.Get("k")
	if rec.Symbol.Len() == 0 || k == nil {
		return false
	}
	rec.Interval.Set(k.GetStringBytes("i"))
	rec.Open = numField(k, "o")
	rec.High = numField(k, "h")
	rec.Low = numField(k, "l")
	rec.Close = numField(k, "c")
	rec.Volume = numField(k, "v")
	rec.OpenTime = intField(k, "t")
	rec.CloseTime = intField(k, "T")
	rec.Closed = k.GetBool("x")
	rec.EventTime = intField(payload, "E")
	return true
}

// ParseUser copies the frame opaquely. Oversized payloads are rejected
// rather than truncated.
func (p *Parser) ParseUser(raw []byte, rec *core.UserRecord) bool {
	root, err := p.p.ParseBytes(raw)
	if err != nil {
		return false
	}
	payload := unwrap(root)
	symbolInto(root, payload, &rec.Symbol)
	rec.EventTime = intField(payload, "E")
	return rec.SetPayload(raw)
}
