package feed

import "github.com/uhyunpark/feedcore/pkg/core"

// Trade is one entry of the rolling trade window, newest first.
type Trade struct {
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	Qty          float64 `json:"qty"`
	TradeID      int64   `json:"tradeId"`
	EventTime    int64   `json:"eventTime"`
	IsBuyerMaker bool    `json:"isBuyerMaker"`
}

// Ticker is the latest 24h ticker for a symbol.
type Ticker struct {
	Symbol             string  `json:"symbol"`
	Last               float64 `json:"last"`
	Open               float64 `json:"open"`
	High               float64 `json:"high"`
	Low                float64 `json:"low"`
	Volume             float64 `json:"volume"`
	QuoteVolume        float64 `json:"quoteVolume"`
	PriceChange        float64 `json:"priceChange"`
	PriceChangePercent float64 `json:"priceChangePercent"`
	EventTime          int64   `json:"eventTime"`
}

// MiniTicker is the lightweight per-symbol ticker kept for the
// all-markets overview.
type MiniTicker struct {
	Symbol      string  `json:"symbol"`
	Last        float64 `json:"last"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Volume      float64 `json:"volume"`
	QuoteVolume float64 `json:"quoteVolume"`
	EventTime   int64   `json:"eventTime"`
}

// Kline is the current candle for one (symbol, interval) pair.
type Kline struct {
	Symbol    string  `json:"symbol"`
	Interval  string  `json:"interval"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	OpenTime  int64   `json:"openTime"`
	CloseTime int64   `json:"closeTime"`
	Closed    bool    `json:"closed"`
}

func tradeFromRecord(rec *core.TradeRecord) Trade {
	return Trade{
		Symbol:       rec.Symbol.String(),
		Price:        rec.Price,
		Qty:          rec.Qty,
		TradeID:      rec.TradeID,
		EventTime:    rec.EventTime,
		IsBuyerMaker: rec.IsBuyerMaker,
	}
}

func tickerFromRecord(rec *core.TickerRecord) Ticker {
	return Ticker{
		Symbol:             rec.Symbol.String(),
		Last:               rec.Last,
		Open:               rec.Open,
		High:               rec.High,
		Low:                rec.Low,
		Volume:             rec.Volume,
		QuoteVolume:        rec.QuoteVolume,
		PriceChange:        rec.PriceChange,
		PriceChangePercent: rec.PriceChangePercent,
		EventTime:          rec.EventTime,
	}
}

func miniFromRecord(rec *core.MiniTickerRecord) MiniTicker {
	return MiniTicker{
		Symbol:      rec.Symbol.String(),
		Last:        rec.Last,
		Open:        rec.Open,
		High:        rec.High,
		Low:         rec.Low,
		Volume:      rec.Volume,
		QuoteVolume: rec.QuoteVolume,
		EventTime:   rec.EventTime,
	}
}

func klineFromRecord(rec *core.KlineRecord) Kline {
	return Kline{
		Symbol:    rec.Symbol.String(),
		Interval:  rec.Interval.String(),
		Open:      rec.Open,
		High:      rec.High,
		Low:       rec.Low,
		Close:     rec.Close,
		Volume:    rec.Volume,
		OpenTime:  rec.OpenTime,
		CloseTime: rec.CloseTime,
		Closed:    rec.Closed,
	}
}
