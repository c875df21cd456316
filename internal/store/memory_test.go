package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
)

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

func pattern(tsMs int64, kind model.PatternKind, side model.Side, price string) model.Pattern {
	return model.Pattern{
		Kind:       kind,
		Side:       side,
		Strength:   model.StrengthModerate,
		Timestamp:  tsMs,
		PriceLevel: decimal.RequireFromString(price),
		HasPrice:   true,
	}
}

func TestQuoteAppendAndRange(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	for _, ts := range []int64{1000, 3000, 2000} { // out-of-order arrival
		require.NoError(t, s.AppendQuote(ctx, quote(ts, "100.00", "100.02", 500, 500)))
	}

	quotes, err := s.QuoteRange(ctx, "SPY", 0, 10_000)
	require.NoError(t, err)
	require.Len(t, quotes, 3)
	assert.Equal(t, int64(1000), quotes[0].Timestamp)
	assert.Equal(t, int64(2000), quotes[1].Timestamp)
	assert.Equal(t, int64(3000), quotes[2].Timestamp)

	quotes, err = s.QuoteRange(ctx, "SPY", 2000, 3000)
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
}

func TestEqualTimestampCollapsesToLast(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.AppendQuote(ctx, quote(1000, "100.00", "100.02", 500, 500)))
	require.NoError(t, s.AppendQuote(ctx, quote(1000, "100.01", "100.03", 700, 700)))

	quotes, err := s.QuoteRange(ctx, "SPY", 0, 10_000)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, int64(700), quotes[0].BidSize)
}

func TestLatestQuote(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, ok, err := s.LatestQuote(ctx, "SPY")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AppendQuote(ctx, quote(1000, "100.00", "100.02", 500, 500)))
	require.NoError(t, s.AppendQuote(ctx, quote(2000, "100.05", "100.07", 600, 600)))

	q, ok, err := s.LatestQuote(ctx, "SPY")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2000), q.Timestamp)
}

func TestPruneQuotesIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	for ts := int64(1000); ts <= 5000; ts += 1000 {
		require.NoError(t, s.AppendQuote(ctx, quote(ts, "100.00", "100.02", 500, 500)))
	}

	require.NoError(t, s.PruneQuotes(ctx, "SPY", 3000))
	require.NoError(t, s.PruneQuotes(ctx, "SPY", 3000))

	quotes, err := s.QuoteRange(ctx, "SPY", 0, 10_000)
	require.NoError(t, err)
	require.Len(t, quotes, 3)
	assert.Equal(t, int64(3000), quotes[0].Timestamp)
}

func TestPatternSuppressionLaterWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	early := pattern(1000, model.PatternAbsorption, model.SideBid, "450.10")
	late := pattern(20_000, model.PatternAbsorption, model.SideBid, "450.10")

	require.NoError(t, s.AppendPattern(ctx, "SPY", early))
	require.NoError(t, s.AppendPattern(ctx, "SPY", late))

	patterns, err := s.PatternRange(ctx, "SPY", 0, 100_000)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, int64(20_000), patterns[0].Timestamp)

	// Re-appending an earlier duplicate is a no-op.
	require.NoError(t, s.AppendPattern(ctx, "SPY", early))
	patterns, err = s.PatternRange(ctx, "SPY", 0, 100_000)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, int64(20_000), patterns[0].Timestamp)
}

func TestPatternSuppressionScope(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	base := pattern(1000, model.PatternAbsorption, model.SideBid, "450.10")
	otherPrice := pattern(2000, model.PatternAbsorption, model.SideBid, "450.25")
	otherSide := pattern(3000, model.PatternAbsorption, model.SideAsk, "450.10")
	farAway := pattern(1000+SuppressionWindowMs+1, model.PatternAbsorption, model.SideBid, "450.10")

	for _, p := range []model.Pattern{base, otherPrice, otherSide, farAway} {
		require.NoError(t, s.AppendPattern(ctx, "SPY", p))
	}

	patterns, err := s.PatternRange(ctx, "SPY", 0, 100_000)
	require.NoError(t, err)
	assert.Len(t, patterns, 4, "different price, side or a gap beyond the window all coexist")
}

func TestCentRoundingJoinsSuppressionKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.AppendPattern(ctx, "SPY",
		pattern(1000, model.PatternIceberg, model.SideBid, "450.1004")))
	require.NoError(t, s.AppendPattern(ctx, "SPY",
		pattern(5000, model.PatternIceberg, model.SideBid, "450.0996")))

	patterns, err := s.PatternRange(ctx, "SPY", 0, 100_000)
	require.NoError(t, err)
	assert.Len(t, patterns, 1, "both round to 450.10")
}

func TestPrunePatterns(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.AppendPattern(ctx, "SPY", pattern(1000, model.PatternSweep, model.SideBid, "450.00")))
	require.NoError(t, s.AppendPattern(ctx, "SPY", pattern(90_000, model.PatternSweep, model.SideBid, "450.00")))

	require.NoError(t, s.PrunePatterns(ctx, "SPY", 50_000))

	patterns, err := s.PatternRange(ctx, "SPY", 0, 200_000)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, int64(90_000), patterns[0].Timestamp)
}

func TestDerivedSlotTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	clock := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return clock }

	m := model.WindowMetrics{Window: model.Window10s, QuoteCount: 9}
	require.NoError(t, s.PutMetrics(ctx, "SPY", m, 100*time.Second))

	got, ok, err := s.GetMetrics(ctx, "SPY", model.Window10s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 9, got.QuoteCount)

	clock = clock.Add(101 * time.Second)
	_, ok, err = s.GetMetrics(ctx, "SPY", model.Window10s)
	require.NoError(t, err)
	assert.False(t, ok, "expired slot reads as absent")
}

func TestLevelsSlotCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	levels := []model.PriceLevel{{
		Price:       decimal.RequireFromString("450.00"),
		Appearances: 4,
		TotalSize:   40_000,
	}}
	require.NoError(t, s.PutLevels(ctx, "SPY", model.SideBid, levels, time.Minute))

	levels[0].TotalSize = 1 // caller mutation must not leak into the slot

	got, err := s.GetLevels(ctx, "SPY", model.SideBid)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(40_000), got[0].TotalSize)
}

func TestActiveTickersSorted(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	for _, ticker := range []string{"SPY", "AAPL", "QQQ"} {
		q := quote(1000, "100.00", "100.02", 500, 500)
		q.Ticker = ticker
		require.NoError(t, s.AppendQuote(ctx, q))
	}

	tickers, err := s.ActiveTickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "QQQ", "SPY"}, tickers)
}
