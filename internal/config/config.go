// Package config holds the engine's runtime configuration: a fixed record of
// the enumerated knobs, loaded once at startup from the environment (with an
// optional .env file) and immutable afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Backend selects the Quote Store realization.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// Config is the complete set of runtime knobs. No arbitrary key/value bags:
// every option the engine understands is a named field here.
type Config struct {
	// Processor cadence and retention.
	ProcessorInterval float64 // seconds, clamped to [0.1, 10]
	QuoteTTLSeconds   int64
	PatternTTLSeconds int64
	IdleEvictSeconds  int64 // ticker leaves the tracked set after this much silence

	// Detection thresholds.
	TickSize           decimal.Decimal            // default minimum price increment
	TickSizeOverrides  map[string]decimal.Decimal // per-ticker overrides
	LargeSizeThreshold int64

	// Storage.
	StoreBackend  Backend
	RedisAddr     string
	RedisDB       int
	RedisPassword string

	// Surfaces.
	Port    int
	FeedURL string // upstream quote feed websocket; empty disables ingest

	// Journal.
	JournalDir string // empty disables the CSV quote journal

	LogLevel string
}

// Load reads the process env (hydrated from .env when present) and returns a
// validated Config with sane defaults for missing keys.
func Load() (Config, error) {
	// Missing .env is fine; the process env still applies.
	_ = godotenv.Load()

	cfg := Config{
		ProcessorInterval: getEnvFloat("PROCESSOR_INTERVAL_SECONDS", 1.0),
		QuoteTTLSeconds:   int64(getEnvInt("QUOTE_TTL_SECONDS", 3600)),
		PatternTTLSeconds: int64(getEnvInt("PATTERN_TTL_SECONDS", 3600)),
		IdleEvictSeconds:  int64(getEnvInt("TRACKED_IDLE_EVICT_SECONDS", 600)),

		LargeSizeThreshold: int64(getEnvInt("LARGE_SIZE_THRESHOLD", 10_000)),

		StoreBackend:  Backend(strings.ToLower(getEnv("STORE_BACKEND", "memory"))),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		Port:       getEnvInt("PORT", 8080),
		FeedURL:    getEnv("FEED_URL", ""),
		JournalDir: getEnv("JOURNAL_DIR", ""),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
	}

	// Interval range is part of the contract, not a suggestion.
	if cfg.ProcessorInterval < 0.1 {
		cfg.ProcessorInterval = 0.1
	}
	if cfg.ProcessorInterval > 10 {
		cfg.ProcessorInterval = 10
	}

	tick, err := decimal.NewFromString(getEnv("TICK_SIZE", "0.01"))
	if err != nil || tick.Sign() <= 0 {
		return Config{}, fmt.Errorf("config: invalid TICK_SIZE: %q", getEnv("TICK_SIZE", "0.01"))
	}
	cfg.TickSize = tick

	overrides, err := parseTickOverrides(getEnv("TICK_SIZE_OVERRIDES", ""))
	if err != nil {
		return Config{}, err
	}
	cfg.TickSizeOverrides = overrides

	switch cfg.StoreBackend {
	case BackendMemory, BackendRedis:
	default:
		return Config{}, fmt.Errorf("config: unknown STORE_BACKEND: %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// TickSizeFor returns the minimum price increment for a ticker.
func (c Config) TickSizeFor(ticker string) decimal.Decimal {
	if t, ok := c.TickSizeOverrides[ticker]; ok {
		return t
	}
	return c.TickSize
}

// parseTickOverrides parses "TICKER:SIZE,TICKER:SIZE" pairs.
func parseTickOverrides(s string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("config: bad TICK_SIZE_OVERRIDES entry: %q", pair)
		}
		ticker := strings.ToUpper(strings.TrimSpace(parts[0]))
		size, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil || size.Sign() <= 0 {
			return nil, fmt.Errorf("config: bad tick size for %s: %q", ticker, parts[1])
		}
		out[ticker] = size
	}
	return out, nil
}

// --------- Env helpers ---------

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
