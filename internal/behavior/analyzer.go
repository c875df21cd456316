// Package behavior derives per-ticker boolean market-behavior flags from the
// 60 s metrics record plus the most recent quotes. Each rule is evaluated
// independently and has no memory beyond its window.
package behavior

import (
	"github.com/shopspring/decimal"

	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
	"github.com/fintools-ai/mcp-order-flow-server/internal/momentum"
)

const (
	// momentum_building: lift/drop ratio gate and movement gate.
	momentumLiftRatio = 1.5
	// Velocity threshold is ticker-independent: 0.001 x price per second.
	momentumVelocityFactor = 0.001
	// Absolute bid movement that also satisfies the movement gate. A slow
	// grind can build momentum without ever clearing the velocity bar.
	momentumMovementFloor = 0.02

	// spread_tightening: recent mean must undercut the prior mean by 10%.
	tighteningRatio = 0.9

	// Transition votes needed over the last 10 quotes.
	minVotes = 3

	// aggressive buying/selling: indicators required out of four.
	aggressiveVotes = 2
)

// Analyze evaluates all behavior rules. metrics is the 60 s record; recent is
// the tail of the window, newest last (20 quotes when available).
func Analyze(metrics model.WindowMetrics, recent []model.Quote) model.Behaviors {
	return model.Behaviors{
		// Each of the last 10 quotes is judged against its predecessor, so
		// the slices carry one extra quote.
		BidStacking:       bidStacking(lastN(recent, 11)),
		AskPulling:        askPulling(lastN(recent, 11)),
		SpreadTightening:  spreadTightening(recent),
		MomentumBuilding:  momentumBuilding(metrics, recent),
		AggressiveBuying:  aggressiveBuying(metrics),
		AggressiveSelling: aggressiveSelling(metrics),
	}
}

// bidStacking: at least 3 of the last 10 quotes grew the bid size while the
// bid price held or rose.
func bidStacking(quotes []model.Quote) bool {
	votes := 0
	for i := 1; i < len(quotes); i++ {
		prev, curr := quotes[i-1], quotes[i]
		if curr.BidSize > prev.BidSize && curr.BidPrice.Cmp(prev.BidPrice) >= 0 {
			votes++
		}
	}
	return votes >= minVotes
}

// askPulling: at least 3 of the last 10 quotes shrank the ask size while the
// ask price held or rose.
func askPulling(quotes []model.Quote) bool {
	votes := 0
	for i := 1; i < len(quotes); i++ {
		prev, curr := quotes[i-1], quotes[i]
		if curr.AskSize < prev.AskSize && curr.AskPrice.Cmp(prev.AskPrice) >= 0 {
			votes++
		}
	}
	return votes >= minVotes
}

// spreadTightening compares the mean spread of the last 10 quotes against the
// prior 10. Needs both halves to say anything.
func spreadTightening(recent []model.Quote) bool {
	if len(recent) < 20 {
		return false
	}
	tail := recent[len(recent)-10:]
	prior := recent[len(recent)-20 : len(recent)-10]

	priorMean := momentum.MeanSpread(prior)
	if priorMean.Sign() <= 0 {
		return false
	}
	recentMean := momentum.MeanSpread(tail)
	return recentMean.Cmp(priorMean.Mul(decimal.NewFromFloat(tighteningRatio))) <= 0
}

// momentumBuilding: bid lifts dominate drops AND price is actually moving.
func momentumBuilding(metrics model.WindowMetrics, recent []model.Quote) bool {
	if metrics.Insufficient || len(recent) == 0 {
		return false
	}
	drops := metrics.BidDrops
	if drops < 1 {
		drops = 1
	}
	ratio := float64(metrics.BidLifts) / float64(drops)
	if ratio <= momentumLiftRatio {
		return false
	}

	price := recent[len(recent)-1].Mid().InexactFloat64()
	if metrics.PriceVelocity > momentumVelocityFactor*price {
		return true
	}
	return metrics.BidPriceChange.Abs().Cmp(decimal.NewFromFloat(momentumMovementFloor)) > 0
}

// aggressiveBuying votes over four independent indicators of buy-side
// aggression; two are enough.
func aggressiveBuying(metrics model.WindowMetrics) bool {
	if metrics.Insufficient {
		return false
	}
	votes := 0
	if metrics.AskLifts > metrics.AskDrops*2 {
		votes++
	}
	if metrics.LargeBidCount > 3 {
		votes++
	}
	if metrics.BidSizeAccel == model.AccelIncreasing {
		votes++
	}
	if metrics.BidPriceChange.Cmp(decimal.NewFromFloat(0.05)) > 0 {
		votes++
	}
	return votes >= aggressiveVotes
}

// aggressiveSelling mirrors aggressiveBuying on the sell side.
func aggressiveSelling(metrics model.WindowMetrics) bool {
	if metrics.Insufficient {
		return false
	}
	votes := 0
	if metrics.BidDrops > metrics.BidLifts*2 {
		votes++
	}
	if metrics.LargeAskCount > 3 {
		votes++
	}
	if metrics.AskSizeAccel == model.AccelIncreasing {
		votes++
	}
	if metrics.BidPriceChange.Cmp(decimal.NewFromFloat(-0.05)) < 0 {
		votes++
	}
	return votes >= aggressiveVotes
}

func lastN(quotes []model.Quote, n int) []model.Quote {
	if len(quotes) <= n {
		return quotes
	}
	return quotes[len(quotes)-n:]
}
