package book

// Row is one display row of a formatted view. Padding rows past the end
// of the book carry Empty=true and blank strings.
type Row struct {
	Price    string  `json:"price"`
	Qty      string  `json:"qty"`
	Cum      string  `json:"cum"`
	PriceRaw float64 `json:"priceRaw"`
	QtyRaw   float64 `json:"qtyRaw"`
	CumRaw   float64 `json:"cumRaw"`
	Empty    bool    `json:"empty,omitempty"`
}

// View is the formatted, display-ready order book. Bids and Asks are
// best-first and always exactly Rows long.
type View struct {
	Symbol        string  `json:"symbol"`
	Bids          []Row   `json:"bids"`
	Asks          []Row   `json:"asks"`
	Rows          int     `json:"rows"`
	Aggregation   string  `json:"aggregation"`
	MaxCumulative float64 `json:"maxCumulative"`
	UpdateID      int64   `json:"updateId"`
}

func emptyView(symbol, aggregation string) View {
	return View{
		Symbol:      symbol,
		Bids:        []Row{},
		Asks:        []Row{},
		Aggregation: aggregation,
	}
}
