package core

// Kind identifies a feed message family. Values match the upstream
// protocol's routing table; UNKNOWN frames are dropped.
type Kind uint8

const (
	KindDepth      Kind = 0
	KindTrade      Kind = 1
	KindTicker     Kind = 2
	KindMiniTicker Kind = 3
	KindKline      Kind = 4
	KindUserData   Kind = 5
	KindUnknown    Kind = 255
)

// Kinds lists the routable kinds in pipeline order.
var Kinds = [...]Kind{KindDepth, KindTrade, KindTicker, KindMiniTicker, KindKline, KindUserData}

func (k Kind) String() string {
	switch k {
	case KindDepth:
		return "depth"
	case KindTrade:
		return "trade"
	case KindTicker:
		return "ticker"
	case KindMiniTicker:
		return "miniTicker"
	case KindKline:
		return "kline"
	case KindUserData:
		return "userData"
	default:
		return "unknown"
	}
}

const (
	// MaxDepthLevels caps parsed levels per side; deeper frames are truncated.
	MaxDepthLevels = 20

	symbolCap   = 16
	intervalCap = 8

	// UserPayloadCap bounds raw user-data payloads copied into a record.
	UserPayloadCap = 2048
)

// Symbol is an inline symbol buffer so records stay fixed-size and
// pooling never chases heap strings.
type Symbol struct {
	buf [symbolCap]byte
	n   uint8
}

func (s *Symbol) Set(b []byte) {
	s.n = uint8(copy(s.buf[:], b))
}

func (s *Symbol) SetString(str string) {
	s.n = uint8(copy(s.buf[:], str))
}

func (s *Symbol) Bytes() []byte  { return s.buf[:s.n] }
func (s *Symbol) String() string { return string(s.buf[:s.n]) }
func (s *Symbol) Len() int       { return int(s.n) }

// Interval is the kline interval token ("1m", "1h", ...), inline like Symbol.
type Interval struct {
	buf [intervalCap]byte
	n   uint8
}

func (i *Interval) Set(b []byte) {
	i.n = uint8(copy(i.buf[:], b))
}

func (i *Interval) String() string { return string(i.buf[:i.n]) }

// PriceLevel is one (price, qty) pair from a depth frame.
type PriceLevel struct {
	Price float64
	Qty   float64
}

// DepthRecord holds a depth diff or snapshot. Zero-qty levels are kept;
// the book layer treats them as deletes.
type DepthRecord struct {
	Symbol        Symbol
	Bids          [MaxDepthLevels]PriceLevel
	Asks          [MaxDepthLevels]PriceLevel
	BidCount      uint8
	AskCount      uint8
	FirstUpdateID int64
	FinalUpdateID int64
	EventTime     int64
	IsSnapshot    bool
}

func (r *DepthRecord) Reset() { *r = DepthRecord{} }

type TradeRecord struct {
	Symbol       Symbol
	Price        float64
	Qty          float64
	TradeID      int64
	EventTime    int64
	IsBuyerMaker bool
}

func (r *TradeRecord) Reset() { *r = TradeRecord{} }

type TickerRecord struct {
	Symbol             Symbol
	Last               float64
	Open               float64
	High               float64
	Low                float64
	Volume             float64
	QuoteVolume        float64
	PriceChange        float64
	PriceChangePercent float64
	EventTime          int64
}

func (r *TickerRecord) Reset() { *r = TickerRecord{} }

type MiniTickerRecord struct {
	Symbol      Symbol
	Last        float64
	Open        float64
	High        float64
	Low         float64
	Volume      float64
	QuoteVolume float64
	EventTime   int64
}

func (r *MiniTickerRecord) Reset() { *r = MiniTickerRecord{} }

type KlineRecord struct {
	Symbol    Symbol
	Interval  Interval
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	OpenTime  int64
	CloseTime int64
	Closed    bool
	EventTime int64
}

func (r *KlineRecord) Reset() { *r = KlineRecord{} }

// UserRecord carries a private-stream event opaquely; consumers get the
// raw JSON back.
type UserRecord struct {
	Symbol     Symbol
	Payload    [UserPayloadCap]byte
	PayloadLen uint16
	EventTime  int64
}

func (r *UserRecord) Reset() { *r = UserRecord{} }

func (r *UserRecord) SetPayload(b []byte) bool {
	if len(b) > UserPayloadCap {
		return false
	}
	r.PayloadLen = uint16(copy(r.Payload[:], b))
	return true
}

func (r *UserRecord) PayloadBytes() []byte { return r.Payload[:r.PayloadLen] }
