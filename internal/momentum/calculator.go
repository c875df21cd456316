// Package momentum computes per-window momentum and size-dynamics metrics
// from a quote window. Everything here is a pure function over an immutable
// quote slice: no clock, no store, no shared state.
package momentum

import (
	"github.com/shopspring/decimal"

	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
)

// Acceleration half-comparison bounds: second-half mean size vs first-half.
const (
	accelUpRatio   = 1.2
	accelDownRatio = 0.8
)

// Compute derives the metrics record for one window. The slice must be
// time-ascending; the caller owns the windowing.
//
// With fewer than two quotes the record is flagged Insufficient and every
// numeric field stays zero. No numeric path below divides by anything that
// can be zero.
func Compute(quotes []model.Quote, w model.Window, largeSizeThreshold int64) model.WindowMetrics {
	m := model.WindowMetrics{
		Window:       w,
		QuoteCount:   len(quotes),
		BidSizeAccel: model.AccelStable,
		AskSizeAccel: model.AccelStable,
	}
	if len(quotes) < 2 {
		m.Insufficient = true
		return m
	}

	first, last := quotes[0], quotes[len(quotes)-1]
	seconds := float64(w.Seconds())

	m.BidPriceChange = last.BidPrice.Sub(first.BidPrice).Round(4)
	m.AskPriceChange = last.AskPrice.Sub(first.AskPrice).Round(4)
	m.BidSizeChange = last.BidSize - first.BidSize
	m.AskSizeChange = last.AskSize - first.AskSize

	m.BidLifts, m.BidDrops, m.AskLifts, m.AskDrops = countTransitions(quotes)

	m.AvgBidSize = meanNonZero(quotes, model.SideBid)
	m.AvgAskSize = meanNonZero(quotes, model.SideAsk)

	for _, q := range quotes {
		if q.BidSize > largeSizeThreshold {
			m.LargeBidCount++
		}
		if q.AskSize > largeSizeThreshold {
			m.LargeAskCount++
		}
	}

	m.BidSizeAccel = classifyAcceleration(quotes, model.SideBid)
	m.AskSizeAccel = classifyAcceleration(quotes, model.SideAsk)

	m.QuotesPerSecond = float64(len(quotes)) / seconds
	m.PriceVelocity = last.Mid().Sub(first.Mid()).Abs().InexactFloat64() / seconds
	m.SizeTurnover = float64(abs64(m.BidSizeChange)+abs64(m.AskSizeChange)) / seconds

	return m
}

// countTransitions counts strict price moves on adjacent pairs. Equal-price
// transitions count as neither, so lifts + drops + unchanged = n - 1 per side.
func countTransitions(quotes []model.Quote) (bidLifts, bidDrops, askLifts, askDrops int) {
	for i := 1; i < len(quotes); i++ {
		prev, curr := quotes[i-1], quotes[i]

		switch curr.BidPrice.Cmp(prev.BidPrice) {
		case 1:
			bidLifts++
		case -1:
			bidDrops++
		}
		switch curr.AskPrice.Cmp(prev.AskPrice) {
		case 1:
			askLifts++
		case -1:
			askDrops++
		}
	}
	return
}

// meanNonZero averages the side's size over quotes where that size > 0.
func meanNonZero(quotes []model.Quote, side model.Side) int64 {
	var sum, n int64
	for _, q := range quotes {
		size := q.BidSize
		if side == model.SideAsk {
			size = q.AskSize
		}
		if size > 0 {
			sum += size
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

// classifyAcceleration splits the window in halves and compares mean sizes.
// A zero first-half mean cannot be classified; that is the STABLE branch, not
// a division.
func classifyAcceleration(quotes []model.Quote, side model.Side) model.Acceleration {
	mid := len(quotes) / 2
	firstMean := meanSize(quotes[:mid], side)
	secondMean := meanSize(quotes[mid:], side)

	if firstMean == 0 {
		return model.AccelStable
	}
	switch {
	case secondMean > firstMean*accelUpRatio:
		return model.AccelIncreasing
	case secondMean < firstMean*accelDownRatio:
		return model.AccelDecreasing
	default:
		return model.AccelStable
	}
}

func meanSize(quotes []model.Quote, side model.Side) float64 {
	if len(quotes) == 0 {
		return 0
	}
	var sum int64
	for _, q := range quotes {
		if side == model.SideBid {
			sum += q.BidSize
		} else {
			sum += q.AskSize
		}
	}
	return float64(sum) / float64(len(quotes))
}

// MeanSpread averages ask-bid over a quote slice. Used by the behavior
// analyzer's spread-tightening rule.
func MeanSpread(quotes []model.Quote) decimal.Decimal {
	if len(quotes) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, q := range quotes {
		sum = sum.Add(q.Spread())
	}
	return sum.Div(decimal.NewFromInt(int64(len(quotes))))
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
