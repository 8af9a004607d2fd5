package api

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// ErrorResponse is the standard error envelope
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// AggregationRequest changes a book's bucket step
type AggregationRequest struct {
	Step string `json:"step"` // e.g., "0.01", "0.5", "10"
}

// DecimalsRequest changes a book's display decimals
type DecimalsRequest struct {
	BaseDecimals  int `json:"baseDecimals"`
	QuoteDecimals int `json:"quoteDecimals"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is a client subscription message
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["book:BTC_USDT", "trades:BTC_USDT"]
}

// WSMessage wraps a broadcast payload with its channel
type WSMessage struct {
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}
