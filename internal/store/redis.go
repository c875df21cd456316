package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
)

// Key schema shared with the upstream publisher. The broker writes quotes
// into the same keys this store reads, so none of these may change.
const (
	keyQuotes    = "orderflow:quotes:%s"     // ZSET, score = quote ms timestamp
	keyLatest    = "orderflow:latest:%s"     // HASH, latest-quote fast path
	keyMetrics   = "orderflow:metrics:%s:%s" // STRING (JSON), TTL
	keyBehaviors = "orderflow:behaviors:%s"  // STRING (JSON), TTL
	keyPatterns  = "orderflow:patterns:%s"   // ZSET, score = pattern ms timestamp
	keyLevels    = "orderflow:levels:%s:%s"  // STRING (JSON array), TTL
)

// Redis is the Quote Store realization backed by a sorted-set-capable KV
// service. Every command error wraps ErrUnavailable; the store itself never
// retries.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects and verifies the server is reachable.
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: ping %s: %v", ErrUnavailable, addr, err)
	}
	return &Redis{rdb: rdb}, nil
}

// wireQuote is the JSON shape the publisher writes into the quotes ZSET.
type wireQuote struct {
	Ticker    string          `json:"ticker"`
	Timestamp int64           `json:"timestamp"`
	BidPrice  decimal.Decimal `json:"bid_price"`
	AskPrice  decimal.Decimal `json:"ask_price"`
	BidSize   int64           `json:"bid_size"`
	AskSize   int64           `json:"ask_size"`
}

func toWire(q model.Quote) wireQuote {
	return wireQuote{
		Ticker:    q.Ticker,
		Timestamp: q.Timestamp,
		BidPrice:  q.BidPrice,
		AskPrice:  q.AskPrice,
		BidSize:   q.BidSize,
		AskSize:   q.AskSize,
	}
}

func fromWire(w wireQuote) model.Quote {
	return model.Quote{
		Ticker:    w.Ticker,
		Timestamp: w.Timestamp,
		BidPrice:  w.BidPrice,
		AskPrice:  w.AskPrice,
		BidSize:   w.BidSize,
		AskSize:   w.AskSize,
	}
}

func (s *Redis) AppendQuote(ctx context.Context, q model.Quote) error {
	payload, err := json.Marshal(toWire(q))
	if err != nil {
		return fmt.Errorf("store: marshal quote: %w", err)
	}

	key := fmt.Sprintf(keyQuotes, q.Ticker)
	ts := float64(q.Timestamp)

	pipe := s.rdb.TxPipeline()
	// Equal-timestamp entries collapse to the last observed.
	pipe.ZRemRangeByScore(ctx, key, fmt.Sprintf("%d", q.Timestamp), fmt.Sprintf("%d", q.Timestamp))
	pipe.ZAdd(ctx, key, redis.Z{Score: ts, Member: payload})
	pipe.HSet(ctx, fmt.Sprintf(keyLatest, q.Ticker), map[string]interface{}{
		"ticker":    q.Ticker,
		"timestamp": q.Timestamp,
		"bid_price": q.BidPrice.String(),
		"ask_price": q.AskPrice.String(),
		"bid_size":  q.BidSize,
		"ask_size":  q.AskSize,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: append quote: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Redis) LatestQuote(ctx context.Context, ticker string) (model.Quote, bool, error) {
	fields, err := s.rdb.HGetAll(ctx, fmt.Sprintf(keyLatest, ticker)).Result()
	if err != nil {
		return model.Quote{}, false, fmt.Errorf("%w: latest quote: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return model.Quote{}, false, nil
	}

	var w wireQuote
	w.Ticker = fields["ticker"]
	fmt.Sscanf(fields["timestamp"], "%d", &w.Timestamp)
	fmt.Sscanf(fields["bid_size"], "%d", &w.BidSize)
	fmt.Sscanf(fields["ask_size"], "%d", &w.AskSize)
	if w.BidPrice, err = decimal.NewFromString(fields["bid_price"]); err != nil {
		return model.Quote{}, false, fmt.Errorf("store: bad latest bid_price for %s: %w", ticker, err)
	}
	if w.AskPrice, err = decimal.NewFromString(fields["ask_price"]); err != nil {
		return model.Quote{}, false, fmt.Errorf("store: bad latest ask_price for %s: %w", ticker, err)
	}
	return fromWire(w), true, nil
}

func (s *Redis) QuoteRange(ctx context.Context, ticker string, fromMs, toMs int64) ([]model.Quote, error) {
	members, err := s.rdb.ZRangeByScore(ctx, fmt.Sprintf(keyQuotes, ticker), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", fromMs),
		Max: fmt.Sprintf("%d", toMs),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: quote range: %v", ErrUnavailable, err)
	}

	quotes := make([]model.Quote, 0, len(members))
	for _, m := range members {
		var w wireQuote
		if err := json.Unmarshal([]byte(m), &w); err != nil {
			// Malformed member from a foreign writer; skip rather than fail
			// the whole window.
			continue
		}
		quotes = append(quotes, fromWire(w))
	}
	return quotes, nil
}

func (s *Redis) PruneQuotes(ctx context.Context, ticker string, olderThanMs int64) error {
	err := s.rdb.ZRemRangeByScore(ctx, fmt.Sprintf(keyQuotes, ticker),
		"-inf", fmt.Sprintf("(%d", olderThanMs)).Err()
	if err != nil {
		return fmt.Errorf("%w: prune quotes: %v", ErrUnavailable, err)
	}
	return nil
}

// putJSON writes a derived slot as one JSON value so readers always see a
// whole record.
func (s *Redis) putJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal slot %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *Redis) getJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	payload, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return false, fmt.Errorf("store: unmarshal slot %s: %w", key, err)
	}
	return true, nil
}

func (s *Redis) PutMetrics(ctx context.Context, ticker string, m model.WindowMetrics, ttl time.Duration) error {
	return s.putJSON(ctx, fmt.Sprintf(keyMetrics, ticker, m.Window.Slot()), m, ttl)
}

func (s *Redis) GetMetrics(ctx context.Context, ticker string, w model.Window) (model.WindowMetrics, bool, error) {
	var m model.WindowMetrics
	ok, err := s.getJSON(ctx, fmt.Sprintf(keyMetrics, ticker, w.Slot()), &m)
	return m, ok, err
}

func (s *Redis) PutBehaviors(ctx context.Context, ticker string, b model.Behaviors, ttl time.Duration) error {
	return s.putJSON(ctx, fmt.Sprintf(keyBehaviors, ticker), b, ttl)
}

func (s *Redis) GetBehaviors(ctx context.Context, ticker string) (model.Behaviors, bool, error) {
	var b model.Behaviors
	ok, err := s.getJSON(ctx, fmt.Sprintf(keyBehaviors, ticker), &b)
	return b, ok, err
}

func (s *Redis) AppendPattern(ctx context.Context, ticker string, p model.Pattern) error {
	key := fmt.Sprintf(keyPatterns, ticker)
	sk := p.SuppressionKey()

	// Same-identity members within the suppression window collapse with the
	// candidate, later timestamp winning.
	neighbors, err := s.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", p.Timestamp-SuppressionWindowMs),
		Max: fmt.Sprintf("%d", p.Timestamp+SuppressionWindowMs),
	}).Result()
	if err != nil {
		return fmt.Errorf("%w: append pattern: %v", ErrUnavailable, err)
	}
	var earlier []interface{}
	for _, m := range neighbors {
		var prev model.Pattern
		if json.Unmarshal([]byte(m), &prev) != nil || prev.SuppressionKey() != sk {
			continue
		}
		if prev.Timestamp > p.Timestamp {
			return nil // a later occurrence already holds the slot
		}
		earlier = append(earlier, m)
	}
	if len(earlier) > 0 {
		if err := s.rdb.ZRem(ctx, key, earlier...).Err(); err != nil {
			return fmt.Errorf("%w: append pattern: %v", ErrUnavailable, err)
		}
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: marshal pattern: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, key, redis.Z{Score: float64(p.Timestamp), Member: payload}).Err(); err != nil {
		return fmt.Errorf("%w: append pattern: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Redis) PatternRange(ctx context.Context, ticker string, fromMs, toMs int64) ([]model.Pattern, error) {
	members, err := s.rdb.ZRangeByScore(ctx, fmt.Sprintf(keyPatterns, ticker), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", fromMs),
		Max: fmt.Sprintf("%d", toMs),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: pattern range: %v", ErrUnavailable, err)
	}

	patterns := make([]model.Pattern, 0, len(members))
	for _, m := range members {
		var p model.Pattern
		if err := json.Unmarshal([]byte(m), &p); err != nil {
			continue
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func (s *Redis) PrunePatterns(ctx context.Context, ticker string, olderThanMs int64) error {
	err := s.rdb.ZRemRangeByScore(ctx, fmt.Sprintf(keyPatterns, ticker),
		"-inf", fmt.Sprintf("(%d", olderThanMs)).Err()
	if err != nil {
		return fmt.Errorf("%w: prune patterns: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Redis) PutLevels(ctx context.Context, ticker string, side model.Side, levels []model.PriceLevel, ttl time.Duration) error {
	return s.putJSON(ctx, fmt.Sprintf(keyLevels, ticker, side), levels, ttl)
}

func (s *Redis) GetLevels(ctx context.Context, ticker string, side model.Side) ([]model.PriceLevel, error) {
	var levels []model.PriceLevel
	if _, err := s.getJSON(ctx, fmt.Sprintf(keyLevels, ticker, side), &levels); err != nil {
		return nil, err
	}
	return levels, nil
}

func (s *Redis) ActiveTickers(ctx context.Context) ([]string, error) {
	prefix := fmt.Sprintf(keyQuotes, "")
	var (
		cursor  uint64
		tickers []string
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: scan tickers: %v", ErrUnavailable, err)
		}
		for _, k := range keys {
			tickers = append(tickers, strings.TrimPrefix(k, prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return tickers, nil
}

func (s *Redis) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the client's connection pool.
func (s *Redis) Close() error { return s.rdb.Close() }
