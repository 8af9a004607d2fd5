package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Feed struct {
	URL     string
	Symbols []string
	// Dialect selects the upstream frame layout: "nested" (payload under
	// "data", underscore/uppercase symbols) or "flat" (lowercase
	// concatenated symbols, flat layout).
	Dialect string
	// BookThrottle is the minimum interval between order book deliveries
	// per symbol. 0 disables throttling.
	BookThrottle time.Duration
}

type Book struct {
	Aggregation   string
	DepthLimit    int
	MaxRows       int
	BaseDecimals  int
	QuoteDecimals int
}

type Journal struct {
	Enabled bool
	Path    string
}

type Kafka struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type API struct {
	Addr string
}

type Config struct {
	Feed    Feed
	Book    Book
	Journal Journal
	Kafka   Kafka
	API     API
}

func Default() Config {
	return Config{
		Feed: Feed{
			URL:          "wss://stream.example.exchange/ws",
			Symbols:      []string{"BTC_USDT"},
			Dialect:      "nested",
			BookThrottle: 100 * time.Millisecond,
		},
		Book: Book{
			Aggregation:   "0.01",
			DepthLimit:    1000,
			MaxRows:       50,
			BaseDecimals:  5,
			QuoteDecimals: 2,
		},
		Journal: Journal{
			Enabled: false,
			Path:    "data/journal",
		},
		Kafka: Kafka{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   "market-data",
		},
		API: API{
			Addr: ":8080",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Feed.URL = getEnv("FEED_URL", cfg.Feed.URL)
	cfg.Feed.Dialect = getEnv("FEED_DIALECT", cfg.Feed.Dialect)
	if syms := os.Getenv("FEED_SYMBOLS"); syms != "" {
		// Example: "BTC_USDT,ETH_USDT"
		cfg.Feed.Symbols = strings.Split(syms, ",")
	}
	if ms := envInt("FEED_BOOK_THROTTLE_MS", -1); ms >= 0 {
		cfg.Feed.BookThrottle = time.Duration(ms) * time.Millisecond
	}

	cfg.Book.Aggregation = getEnv("BOOK_AGGREGATION", cfg.Book.Aggregation)
	cfg.Book.DepthLimit = envInt("BOOK_DEPTH_LIMIT", cfg.Book.DepthLimit)
	cfg.Book.MaxRows = envInt("BOOK_MAX_ROWS", cfg.Book.MaxRows)
	cfg.Book.BaseDecimals = envInt("BOOK_BASE_DECIMALS", cfg.Book.BaseDecimals)
	cfg.Book.QuoteDecimals = envInt("BOOK_QUOTE_DECIMALS", cfg.Book.QuoteDecimals)

	cfg.Journal.Enabled = getEnv("JOURNAL_ENABLED", "") == "true"
	cfg.Journal.Path = getEnv("JOURNAL_PATH", cfg.Journal.Path)

	cfg.Kafka.Enabled = getEnv("KAFKA_ENABLED", "") == "true"
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
