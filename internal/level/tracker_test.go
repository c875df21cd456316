package level

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
)

func newTestTracker() *Tracker {
	return NewTracker(decimal.RequireFromString("0.01"))
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

// repeatAt builds n quotes at the same bid price, one second apart.
func repeatAt(startMs int64, n int, bid string, bidSize int64) []model.Quote {
	out := make([]model.Quote, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, quote(startMs+int64(i)*1000, bid, "500.00", bidSize, 100))
	}
	return out
}

func TestScoreboardQualification(t *testing.T) {
	var quotes []model.Quote
	quotes = append(quotes, repeatAt(0, 3, "100.00", 10_000)...)   // 3 x 10k: qualifies
	quotes = append(quotes, repeatAt(3000, 2, "100.05", 20_000)...) // 2 appearances: too few
	quotes = append(quotes, repeatAt(5000, 4, "100.10", 5_000)...)  // 20k total: too small

	bids, _, _ := newTestTracker().Update(quotes)

	require.Len(t, bids, 1)
	assert.Equal(t, "100", bids[0].Price.String())
	assert.Equal(t, 3, bids[0].Appearances)
	assert.Equal(t, int64(30_000), bids[0].TotalSize)
	assert.Equal(t, int64(5000), bids[0].LastSeen)
}

func TestScoreboardRanksBySignificance(t *testing.T) {
	var quotes []model.Quote
	quotes = append(quotes, repeatAt(0, 3, "100.00", 10_000)...)
	quotes = append(quotes, repeatAt(10_000, 6, "100.50", 10_000)...) // more of everything

	bids, _, _ := newTestTracker().Update(quotes)

	require.Len(t, bids, 2)
	assert.Equal(t, "100.5", bids[0].Price.String())
	assert.Greater(t, bids[0].Significance, bids[1].Significance)
}

func TestSignificanceMonotonicity(t *testing.T) {
	// Strictly more size and more appearances always scores higher.
	assert.Greater(t,
		model.LevelSignificance(30_000, 5),
		model.LevelSignificance(25_000, 4))
	assert.Greater(t,
		model.LevelSignificance(25_001, 4),
		model.LevelSignificance(25_000, 3))
}

func TestScoreboardKeepsTopTen(t *testing.T) {
	var quotes []model.Quote
	for i := 0; i < 12; i++ {
		price := decimal.RequireFromString("100.00").
			Add(decimal.New(int64(i), -2)).String()
		quotes = append(quotes, repeatAt(int64(i)*10_000, 3+i, price, 10_000)...)
	}

	bids, _, _ := newTestTracker().Update(quotes)
	assert.Len(t, bids, 10)
}

func TestRoundsToTick(t *testing.T) {
	tr := NewTracker(decimal.RequireFromString("0.05"))
	quotes := []model.Quote{
		quote(0, "100.02", "500.00", 10_000, 100),
		quote(1000, "100.01", "500.00", 10_000, 100),
		quote(2000, "99.99", "500.00", 10_000, 100),
	}

	bids, _, _ := tr.Update(quotes)
	require.Len(t, bids, 1)
	assert.Equal(t, "100", bids[0].Price.String())
}

func TestSweepOnVanishedLevel(t *testing.T) {
	tr := newTestTracker()

	first := repeatAt(0, 4, "450.00", 10_000)
	_, _, sweeps := tr.Update(first)
	assert.Empty(t, sweeps, "first tick has no previous state")

	// Next tick: the 450.00 wall is gone from the window.
	second := repeatAt(60_000, 4, "449.80", 10_000)
	_, _, sweeps = tr.Update(second)

	require.Len(t, sweeps, 1)
	p := sweeps[0]
	assert.Equal(t, model.PatternSweep, p.Kind)
	assert.Equal(t, model.SideBid, p.Side)
	assert.Equal(t, model.DirectionDrop, p.Direction)
	assert.Equal(t, "450.0000", p.PriceLevel.StringFixed(4))
	assert.Equal(t, int64(40_000), p.Volume)
	assert.Equal(t, int64(63_000), p.Timestamp, "sweep stamps the newest quote")
}

func TestNoSweepBelowDropRatio(t *testing.T) {
	tr := newTestTracker()

	tr.Update(repeatAt(0, 4, "450.00", 10_000))

	// Level shrinks to 30k of its former 40k: a 25% drop, not a sweep.
	second := repeatAt(60_000, 3, "450.00", 10_000)
	_, _, sweeps := tr.Update(second)
	assert.Empty(t, sweeps)
}

func TestUnchangedWindowIsStable(t *testing.T) {
	tr := newTestTracker()
	quotes := repeatAt(0, 5, "450.00", 10_000)

	first, _, _ := tr.Update(quotes)
	second, _, sweeps := tr.Update(quotes)

	assert.Equal(t, first, second)
	assert.Empty(t, sweeps)
}
