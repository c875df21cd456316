package processor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fintools-ai/mcp-order-flow-server/internal/config"
	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
	"github.com/fintools-ai/mcp-order-flow-server/internal/store"
)

const baseMs = int64(1_700_000_000_000)

func testConfig() config.Config {
	return config.Config{
		ProcessorInterval:  1,
		QuoteTTLSeconds:    3600,
		PatternTTLSeconds:  3600,
		IdleEvictSeconds:   600,
		TickSize:           decimal.RequireFromString("0.01"),
		LargeSizeThreshold: 10_000,
		StoreBackend:       config.BackendMemory,
	}
}

func newTestProcessor(st store.Store) *Processor {
	return New(st, testConfig(), zap.NewNop())
}

func quote(tsMs int64, bid, ask string, bidSize, askSize int64) model.Quote {
	return model.Quote{
		Ticker:    "SPY",
		Timestamp: tsMs,
		BidPrice:  decimal.RequireFromString(bid),
		AskPrice:  decimal.RequireFromString(ask),
		BidSize:   bidSize,
		AskSize:   askSize,
	}
}

// seedRisingBid writes 61 quotes, one per second, with the bid climbing a cent
// per second for ten seconds and bid size building throughout.
func seedRisingBid(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i <= 60; i++ {
		steps := i
		if steps > 10 {
			steps = 10
		}
		bid := decimal.New(45010+int64(steps), -2)
		q := model.Quote{
			Ticker:    "SPY",
			Timestamp: baseMs + int64(i)*1000,
			BidPrice:  bid,
			AskPrice:  decimal.RequireFromString("450.30"),
			BidSize:   5000 + int64(i)*50,
			AskSize:   2000,
		}
		require.NoError(t, st.AppendQuote(ctx, q))
	}
}

func TestTickDerivesShortAndMediumWindows(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedRisingBid(t, st)

	p := newTestProcessor(st)
	p.now = func() time.Time { return time.UnixMilli(baseMs + 60_000) }
	p.Tick(ctx)

	_, ok, err := st.GetMetrics(ctx, "SPY", model.Window10s)
	require.NoError(t, err)
	assert.True(t, ok, "10s metrics always refresh")

	m60, ok, err := st.GetMetrics(ctx, "SPY", model.Window60s)
	require.NoError(t, err)
	require.True(t, ok, "a minute of history fills the 60s window")
	assert.Equal(t, 10, m60.BidLifts)

	b, ok, err := st.GetBehaviors(ctx, "SPY")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, b.BidStacking)

	_, ok, err = st.GetMetrics(ctx, "SPY", model.Window5min)
	require.NoError(t, err)
	assert.False(t, ok, "one minute of history must not produce a 5min reading")

	levels, err := st.GetLevels(ctx, "SPY", model.SideBid)
	require.NoError(t, err)
	assert.Empty(t, levels, "level tracking waits for the full 5min window")

	patterns, err := st.PatternRange(ctx, "SPY", 0, baseMs+120_000)
	require.NoError(t, err)
	require.NotEmpty(t, patterns)
	for _, pat := range patterns {
		assert.NotEmpty(t, pat.ID)
	}
}

func TestTickIsIdempotentOnUnchangedQuotes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedRisingBid(t, st)

	p := newTestProcessor(st)
	p.now = func() time.Time { return time.UnixMilli(baseMs + 60_000) }

	p.Tick(ctx)
	first, err := st.PatternRange(ctx, "SPY", 0, baseMs+120_000)
	require.NoError(t, err)
	m60First, _, err := st.GetMetrics(ctx, "SPY", model.Window60s)
	require.NoError(t, err)

	p.Tick(ctx)
	second, err := st.PatternRange(ctx, "SPY", 0, baseMs+120_000)
	require.NoError(t, err)
	m60Second, _, err := st.GetMetrics(ctx, "SPY", model.Window60s)
	require.NoError(t, err)

	assert.Equal(t, m60First, m60Second)

	// Re-detection reproduces the same records up to the assigned IDs;
	// suppression keeps the log from growing.
	require.Len(t, second, len(first))
	for i := range first {
		first[i].ID, second[i].ID = "", ""
		assert.Equal(t, first[i], second[i])
	}
}

func TestColdTickerIsSkipped(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.AppendQuote(ctx, quote(baseMs, "450.00", "450.02", 500, 500)))

	p := newTestProcessor(st)
	p.now = func() time.Time { return time.UnixMilli(baseMs + 5000) }
	p.Tick(ctx)

	_, ok, err := st.GetMetrics(ctx, "SPY", model.Window10s)
	require.NoError(t, err)
	assert.False(t, ok, "a single quote is not enough to derive anything")
}

func TestFiveMinuteWindowAddsLevelsAndSweeps(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	// A persistent 12k bid wall at 450.00 across the whole window.
	for i := 0; i <= 300; i++ {
		q := quote(baseMs+int64(i)*1000, "450.00", "450.20", 12_000, 100)
		require.NoError(t, st.AppendQuote(ctx, q))
	}

	p := newTestProcessor(st)
	p.now = func() time.Time { return time.UnixMilli(baseMs + 300_000) }
	p.Tick(ctx)

	_, ok, err := st.GetMetrics(ctx, "SPY", model.Window5min)
	require.NoError(t, err)
	assert.True(t, ok)

	bids, err := st.GetLevels(ctx, "SPY", model.SideBid)
	require.NoError(t, err)
	require.NotEmpty(t, bids)
	assert.Equal(t, "450", bids[0].Price.String())
	assert.Equal(t, 301, bids[0].Appearances)
}

func TestRefreshDiscoversStoreTickers(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedRisingBid(t, st)

	// No Observe call: the tick itself must pick the ticker up from the store.
	p := newTestProcessor(st)
	p.now = func() time.Time { return time.UnixMilli(baseMs + 60_000) }
	p.Tick(ctx)

	_, ok, err := st.GetMetrics(ctx, "SPY", model.Window10s)
	require.NoError(t, err)
	assert.True(t, ok)
}
