package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uhyunpark/feedcore/params"
	"github.com/uhyunpark/feedcore/pkg/api"
	"github.com/uhyunpark/feedcore/pkg/core"
	"github.com/uhyunpark/feedcore/pkg/feed"
	"github.com/uhyunpark/feedcore/pkg/ingest"
	"github.com/uhyunpark/feedcore/pkg/journal"
	"github.com/uhyunpark/feedcore/pkg/sink"
	"github.com/uhyunpark/feedcore/pkg/util"
	"github.com/uhyunpark/feedcore/pkg/wire"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/feedd.log"
	}

	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	// ---- SDK ----
	f := feed.New(feed.Config{
		Aggregation:   cfg.Book.Aggregation,
		DepthLimit:    cfg.Book.DepthLimit,
		MaxRows:       cfg.Book.MaxRows,
		BaseDecimals:  cfg.Book.BaseDecimals,
		QuoteDecimals: cfg.Book.QuoteDecimals,
		BookThrottle:  cfg.Feed.BookThrottle,
		Logger:        sugar,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Optional raw-frame journal ----
	var jnl *journal.Journal
	submit := f.SubmitRaw
	if cfg.Journal.Enabled {
		jnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			sugar.Fatalw("journal_open_failed", "path", cfg.Journal.Path, "err", err)
		}
		defer jnl.Close()
		sugar.Infow("journal_enabled", "path", cfg.Journal.Path)

		submit = func(raw []byte) bool {
			if err := jnl.Append(wire.SniffKind(raw), raw); err != nil {
				sugar.Warnw("journal_append_failed", "err", err)
			}
			return f.SubmitRaw(raw)
		}
	}

	// ---- Optional Kafka sink ----
	var kf *sink.Kafka
	if cfg.Kafka.Enabled {
		kf = sink.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, sugar)
		defer kf.Close()
		sugar.Infow("kafka_sink_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// ---- API server ----
	apiServer := api.NewServer(f)
	go func() {
		sugar.Infow("api_server_starting", "addr", cfg.API.Addr)
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	// Deliveries fan out to WebSocket clients and, when enabled, Kafka.
	forward := func(e feed.Event) {
		apiServer.BroadcastEvent(e)
		if kf != nil {
			payload, err := json.Marshal(e.Payload)
			if err != nil {
				return
			}
			// Publish failures are logged by the sink itself.
			_ = kf.Publish(ctx, e.Symbol, payload)
		}
	}
	for _, k := range core.Kinds {
		f.On(k, forward)
	}

	f.Start()
	defer f.Stop()

	// ---- Upstream connection ----
	client := ingest.NewClient(ingest.Config{
		URL:     cfg.Feed.URL,
		Symbols: cfg.Feed.Symbols,
		Dialect: wire.ParseDialect(cfg.Feed.Dialect),
	}, submit, sugar)

	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			sugar.Fatalw("ingest_failed", "err", err)
		}
	}()

	sugar.Infow("feedd_started",
		"url", cfg.Feed.URL,
		"symbols", cfg.Feed.Symbols,
		"dialect", cfg.Feed.Dialect)

	// Progress logging loop
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sugar.Infow("feedd_stopping")
			return
		case <-ticker.C:
			stats := f.Stats()
			var received, processed uint64
			for _, ps := range stats.Pipelines {
				received += ps.Received
				processed += ps.Processed
			}
			sugar.Infow("feed_progress",
				"received", received,
				"processed", processed,
				"unroutable", stats.Router.Unroutable,
				"queue_executed", stats.Queue.Executed,
				"books", len(stats.Books))
		}
	}
}
