// Package ingest maintains the upstream exchange WebSocket connection
// and feeds raw frames into the SDK.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/feedcore/pkg/wire"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second

	backoffStart = time.Second
	backoffMax   = 30 * time.Second
)

type Config struct {
	URL     string
	Symbols []string
	Dialect wire.Dialect
}

// Client dials the feed, subscribes, and pumps frames into submit.
// On any error it reconnects with capped exponential backoff and
// resubscribes.
type Client struct {
	cfg    Config
	submit func([]byte) bool
	log    *zap.SugaredLogger

	reconnects uint64
}

func NewClient(cfg Config, submit func([]byte) bool, log *zap.SugaredLogger) *Client {
	// No dialect configured: infer it from how the symbols are written.
	if cfg.Dialect == wire.DialectUnknown && len(cfg.Symbols) > 0 {
		cfg.Dialect = wire.DetectDialect(cfg.Symbols[0])
	}
	return &Client{cfg: cfg, submit: submit, log: log}
}

// streamNames builds the per-dialect subscription list.
func (c *Client) streamNames() []string {
	channels := []string{"depth", "trade", "ticker", "miniTicker", "kline_1m"}
	out := make([]string, 0, len(c.cfg.Symbols)*len(channels))
	for _, sym := range c.cfg.Symbols {
		if c.cfg.Dialect == wire.DialectFlat {
			sym = strings.ToLower(strings.ReplaceAll(sym, "_", ""))
		}
		for _, ch := range channels {
			out = append(out, sym+"@"+ch)
		}
	}
	return out
}

func (c *Client) subscribeFrame() ([]byte, error) {
	if c.cfg.Dialect == wire.DialectFlat {
		return json.Marshal(map[string]any{
			"method": "SUBSCRIBE",
			"params": c.streamNames(),
			"id":     1,
		})
	}
	return json.Marshal(map[string]any{
		"op":   "subscribe",
		"args": c.streamNames(),
	})
}

// Run blocks until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	backoff := backoffStart
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.reconnects++
		if c.log != nil {
			c.log.Warnw("feed_disconnected", "err", err, "backoff", backoff.String(), "reconnects", c.reconnects)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	defer conn.Close()

	sub, err := c.subscribeFrame()
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if c.log != nil {
		c.log.Infow("feed_connected", "url", c.cfg.URL, "streams", len(c.streamNames()))
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Ping loop; also closes the conn on ctx cancel to unblock the read.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.submit(message)
	}
}
