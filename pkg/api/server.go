package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/uhyunpark/feedcore/pkg/core"
	"github.com/uhyunpark/feedcore/pkg/feed"
)

// Server exposes the SDK over REST and WebSocket
type Server struct {
	feed   *feed.Feed
	router *mux.Router
	hub    *Hub // WebSocket hub
}

// NewServer creates a new API server over a running feed
func NewServer(f *feed.Feed) *Server {
	s := &Server{
		feed:   f,
		router: mux.NewRouter(),
		hub:    NewHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market data endpoints
	api.HandleFunc("/book/{symbol}", s.handleGetBook).Methods("GET")
	api.HandleFunc("/book/{symbol}/aggregation", s.handleSetAggregation).Methods("POST")
	api.HandleFunc("/book/{symbol}/decimals", s.handleSetDecimals).Methods("POST")
	api.HandleFunc("/trades/{symbol}", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/ticker/{symbol}", s.handleGetTicker).Methods("GET")
	api.HandleFunc("/tickers", s.handleGetMiniTickers).Methods("GET")
	api.HandleFunc("/stats", s.handleGetStats).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	// Start WebSocket hub
	go s.hub.Run()

	// CORS configuration
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	handler := c.Handler(s.router)

	log.Printf("[api] server starting on %s", addr)
	return http.ListenAndServe(addr, handler)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := vars["symbol"]

	view, ok := s.feed.BookView(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "book not found", "no data received for "+symbol)
		return
	}
	respondJSON(w, view)
}

func (s *Server) handleSetAggregation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := vars["symbol"]

	var req AggregationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if req.Step == "" {
		respondError(w, http.StatusBadRequest, "invalid request", "step is required")
		return
	}

	s.feed.SetAggregation(symbol, req.Step)
	respondJSON(w, map[string]string{"status": "ok", "step": req.Step})
}

func (s *Server) handleSetDecimals(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := vars["symbol"]

	var req DecimalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	s.feed.SetDecimals(symbol, req.BaseDecimals, req.QuoteDecimals)
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	respondJSON(w, s.feed.Trades(vars["symbol"]))
}

func (s *Server) handleGetTicker(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := vars["symbol"]

	ticker, ok := s.feed.TickerFor(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "ticker not found", "no data received for "+symbol)
		return
	}
	respondJSON(w, ticker)
}

func (s *Server) handleGetMiniTickers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.feed.AllMiniTickers())
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.feed.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called from delivery callbacks)
// ==============================

// BroadcastEvent fans a delivered event out to subscribed WebSocket clients
func (s *Server) BroadcastEvent(e feed.Event) {
	channel := channelFor(e.Kind, e.Symbol)
	s.hub.BroadcastToChannel(channel, WSMessage{Channel: channel, Data: e.Payload})
}

func channelFor(kind core.Kind, symbol string) string {
	switch kind {
	case core.KindDepth:
		return "book:" + symbol
	case core.KindTrade:
		return "trades:" + symbol
	case core.KindTicker:
		return "ticker:" + symbol
	case core.KindMiniTicker:
		return "miniTicker:" + symbol
	case core.KindKline:
		return "kline:" + symbol
	default:
		return "user:" + symbol
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
