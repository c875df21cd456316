// Package store defines the Quote Store contract (C1): an append-only,
// time-ordered per-ticker quote buffer plus TTL'd slots for derived data.
// Concrete realizations are the in-memory store and the Redis store; both
// keep the same semantics so the engine never knows which one it talks to.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
)

// SuppressionWindowMs is the span within which same-identity patterns
// collapse to a single log entry.
const SuppressionWindowMs = 30_000

// ErrUnavailable classifies backing-store I/O failures. The store never
// retries; retries belong to the processor, and the query layer surfaces the
// condition as a StoreUnavailable document without retrying at all.
var ErrUnavailable = errors.New("store unavailable")

// Store is the Quote Store contract.
//
// Consistency: quote appends are single-writer-per-ticker (the publisher);
// derived slots are single-writer-per-ticker-per-slot (the processor). A slot
// write is atomic: readers see the previous record or the new one, never a mix.
type Store interface {
	// AppendQuote inserts by timestamp score; an equal-timestamp entry is
	// overwritten. Also refreshes the latest-quote fast path.
	AppendQuote(ctx context.Context, q model.Quote) error

	// LatestQuote returns the most recent quote, or ok=false when the ticker
	// has none.
	LatestQuote(ctx context.Context, ticker string) (model.Quote, bool, error)

	// QuoteRange returns quotes with fromMs <= Timestamp <= toMs, ascending.
	QuoteRange(ctx context.Context, ticker string, fromMs, toMs int64) ([]model.Quote, error)

	// PruneQuotes drops quotes with Timestamp < olderThanMs. Idempotent.
	PruneQuotes(ctx context.Context, ticker string, olderThanMs int64) error

	// Derived-data slots.
	PutMetrics(ctx context.Context, ticker string, m model.WindowMetrics, ttl time.Duration) error
	GetMetrics(ctx context.Context, ticker string, w model.Window) (model.WindowMetrics, bool, error)

	PutBehaviors(ctx context.Context, ticker string, b model.Behaviors, ttl time.Duration) error
	GetBehaviors(ctx context.Context, ticker string) (model.Behaviors, bool, error)

	// AppendPattern adds to the per-ticker time-ordered pattern log and
	// enforces duplicate suppression: two patterns with the same
	// (kind, side, cent-rounded price) within 30 s collapse to one
	// occurrence, the later timestamp winning.
	AppendPattern(ctx context.Context, ticker string, p model.Pattern) error
	PatternRange(ctx context.Context, ticker string, fromMs, toMs int64) ([]model.Pattern, error)
	PrunePatterns(ctx context.Context, ticker string, olderThanMs int64) error

	PutLevels(ctx context.Context, ticker string, side model.Side, levels []model.PriceLevel, ttl time.Duration) error
	GetLevels(ctx context.Context, ticker string, side model.Side) ([]model.PriceLevel, error)

	// ActiveTickers lists tickers that currently hold any quotes.
	ActiveTickers(ctx context.Context) ([]string, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}
