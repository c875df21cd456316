package momentum

import (
	"testing"

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

// risingBidWindow builds 60 quotes one second apart: bid climbs 450.10 to
// 450.20 in ten cent-steps then holds, ask flat at 450.30, bid size grows
// linearly 5000 to 7950, ask size flat 2000.
func risingBidWindow() []model.Quote {
	quotes := make([]model.Quote, 0, 60)
	for i := 0; i < 60; i++ {
		steps := i
		if steps > 10 {
			steps = 10
		}
		bid := decimal.RequireFromString("450.10").
			Add(decimal.New(int64(steps), -2))
		quotes = append(quotes, model.Quote{
			Ticker:    "SPY",
			Timestamp: int64(i) * 1000,
			BidPrice:  bid,
			AskPrice:  decimal.RequireFromString("450.30"),
			BidSize:   5000 + int64(i)*50,
			AskSize:   2000,
		})
	}
	return quotes
}

func TestComputeInsufficient(t *testing.T) {
	m := Compute([]model.Quote{quote(0, "100.00", "100.02", 500, 500)}, model.Window10s, 10_000)

	assert.True(t, m.Insufficient)
	assert.Equal(t, 1, m.QuoteCount)
	assert.Equal(t, model.AccelStable, m.BidSizeAccel)
	assert.Equal(t, model.AccelStable, m.AskSizeAccel)
	assert.Zero(t, m.QuotesPerSecond)
	assert.Zero(t, m.BidLifts)
}

func TestComputeRisingBid(t *testing.T) {
	m := Compute(risingBidWindow(), model.Window60s, 10_000)

	require.False(t, m.Insufficient)
	assert.Equal(t, 10, m.BidLifts)
	assert.Equal(t, 0, m.BidDrops)
	assert.Equal(t, 0, m.AskLifts)
	assert.Equal(t, 0, m.AskDrops)
	assert.Equal(t, model.AccelIncreasing, m.BidSizeAccel)
	assert.Equal(t, model.AccelStable, m.AskSizeAccel)
	assert.Equal(t, "0.1", m.BidPriceChange.String())
	assert.True(t, m.AskPriceChange.IsZero())
	assert.Equal(t, int64(2950), m.BidSizeChange)
	assert.Equal(t, int64(0), m.AskSizeChange)
	assert.Equal(t, int64(2000), m.AvgAskSize)
	assert.Equal(t, 0, m.LargeBidCount)

	// Mid moved 0.05 over 60 seconds.
	assert.InDelta(t, 0.05/60.0, m.PriceVelocity, 1e-9)
	assert.InDelta(t, 2950.0/60.0, m.SizeTurnover, 1e-9)
}

func TestTransitionPartition(t *testing.T) {
	// Mixed ups, downs and holds on both sides.
	quotes := []model.Quote{
		quote(0, "100.00", "100.05", 500, 500),
		quote(1000, "100.01", "100.05", 500, 500),
		quote(2000, "100.01", "100.04", 500, 500),
		quote(3000, "99.99", "100.06", 500, 500),
		quote(4000, "100.02", "100.06", 500, 500),
		quote(5000, "100.02", "100.03", 500, 500),
		quote(6000, "100.00", "100.07", 500, 500),
	}
	m := Compute(quotes, model.Window10s, 10_000)

	assert.Equal(t, 2, m.BidLifts)
	assert.Equal(t, 2, m.BidDrops)
	assert.Equal(t, 2, m.AskLifts)
	assert.Equal(t, 2, m.AskDrops)

	// Two holds per side complete the partition: lifts + drops + unchanged
	// must cover every adjacent pair.
	n := len(quotes)
	assert.Equal(t, n-1, m.BidLifts+m.BidDrops+2)
	assert.Equal(t, n-1, m.AskLifts+m.AskDrops+2)
}

func TestQuotesPerSecondTimesWindow(t *testing.T) {
	for _, w := range model.Windows {
		n := int(w.Seconds())
		quotes := make([]model.Quote, 0, n)
		for i := 0; i < n; i++ {
			quotes = append(quotes, quote(int64(i)*1000, "100.00", "100.02", 500, 500))
		}
		m := Compute(quotes, w, 10_000)
		assert.InDelta(t, float64(n), m.QuotesPerSecond*float64(w.Seconds()), 1.0)
	}
}

func TestAverageSkipsZeroSizes(t *testing.T) {
	quotes := []model.Quote{
		quote(0, "100.00", "100.02", 1000, 0),
		quote(1000, "100.00", "100.02", 3000, 600),
		quote(2000, "100.00", "100.02", 0, 600),
	}
	m := Compute(quotes, model.Window10s, 10_000)

	assert.Equal(t, int64(2000), m.AvgBidSize)
	assert.Equal(t, int64(600), m.AvgAskSize)
}

func TestLargeSizeCounts(t *testing.T) {
	quotes := []model.Quote{
		quote(0, "100.00", "100.02", 12_000, 500),
		quote(1000, "100.00", "100.02", 10_000, 15_000),
		quote(2000, "100.00", "100.02", 9_000, 10_001),
	}
	m := Compute(quotes, model.Window10s, 10_000)

	assert.Equal(t, 1, m.LargeBidCount)
	assert.Equal(t, 2, m.LargeAskCount)
}

func TestAccelerationDecreasing(t *testing.T) {
	quotes := make([]model.Quote, 0, 20)
	for i := 0; i < 20; i++ {
		size := int64(10_000)
		if i >= 10 {
			size = 4_000
		}
		quotes = append(quotes, quote(int64(i)*500, "100.00", "100.02", size, size))
	}
	m := Compute(quotes, model.Window10s, 10_000)

	assert.Equal(t, model.AccelDecreasing, m.BidSizeAccel)
	assert.Equal(t, model.AccelDecreasing, m.AskSizeAccel)
}

func TestAccelerationZeroFirstHalf(t *testing.T) {
	quotes := []model.Quote{
		quote(0, "100.00", "100.02", 0, 0),
		quote(1000, "100.00", "100.02", 0, 0),
		quote(2000, "100.00", "100.02", 5_000, 5_000),
		quote(3000, "100.00", "100.02", 5_000, 5_000),
	}
	m := Compute(quotes, model.Window10s, 10_000)

	assert.Equal(t, model.AccelStable, m.BidSizeAccel)
}
