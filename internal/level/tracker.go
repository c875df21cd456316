// Package level maintains, per ticker and side, the scoreboard of significant
// resting prices observed over the 5 min window, and flags sweeps when a
// previously top-ranked level disappears between processor ticks.
package level

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
)

const (
	// Qualification gates for a significant level.
	minAppearances = 3
	minTotalSize   = 25_000

	// Scoreboard depth kept per side.
	topLevels = 10

	// A level in the previous top 5 whose size drops by more than 75%
	// between consecutive ticks is reported as swept.
	sweepWatchDepth = 5
	sweepDropRatio  = 0.75
)

// Tracker scores resting prices for a single ticker. Not safe for concurrent
// use; the processor owns exactly one per tracked ticker.
type Tracker struct {
	tick decimal.Decimal

	// Previous tick's top-5 totals per side, keyed by tick-rounded price.
	prevTop map[model.Side]map[string]int64
}

// NewTracker builds a tracker using the ticker's minimum price increment.
func NewTracker(tickSize decimal.Decimal) *Tracker {
	return &Tracker{
		tick: tickSize,
		prevTop: map[model.Side]map[string]int64{
			model.SideBid: {},
			model.SideAsk: {},
		},
	}
}

// Update rescans the 5 min window and returns the new per-side scoreboards
// plus any sweep events since the previous tick. An unchanged window yields
// identical scoreboards and no sweeps.
func (t *Tracker) Update(quotes []model.Quote) (bids, asks []model.PriceLevel, sweeps []model.Pattern) {
	var nowMs int64
	if len(quotes) > 0 {
		nowMs = quotes[len(quotes)-1].Timestamp
	}

	bids = t.scoreboard(quotes, model.SideBid)
	asks = t.scoreboard(quotes, model.SideAsk)

	sweeps = append(sweeps, t.detectSweeps(model.SideBid, bids, nowMs)...)
	sweeps = append(sweeps, t.detectSweeps(model.SideAsk, asks, nowMs)...)

	t.prevTop[model.SideBid] = topTotals(bids)
	t.prevTop[model.SideAsk] = topTotals(asks)
	return bids, asks, sweeps
}

// scoreboard groups the side's quotes by tick-rounded price, qualifies, and
// keeps the top 10 by significance.
func (t *Tracker) scoreboard(quotes []model.Quote, side model.Side) []model.PriceLevel {
	type bucket struct {
		appearances int
		totalSize   int64
		lastSeen    int64
	}
	buckets := make(map[string]*bucket)

	for _, q := range quotes {
		price := q.BidPrice
		size := q.BidSize
		if side == model.SideAsk {
			price = q.AskPrice
			size = q.AskSize
		}
		if size == 0 {
			continue
		}
		key := t.roundToTick(price).String()
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		b.appearances++
		b.totalSize += size
		if q.Timestamp > b.lastSeen {
			b.lastSeen = q.Timestamp
		}
	}

	levels := make([]model.PriceLevel, 0, len(buckets))
	for key, b := range buckets {
		if b.appearances < minAppearances || b.totalSize < minTotalSize {
			continue
		}
		price, err := decimal.NewFromString(key)
		if err != nil {
			continue
		}
		levels = append(levels, model.PriceLevel{
			Price:        price,
			Appearances:  b.appearances,
			TotalSize:    b.totalSize,
			LastSeen:     b.lastSeen,
			Significance: model.LevelSignificance(b.totalSize, b.appearances),
		})
	}

	sort.Slice(levels, func(i, j int) bool {
		if levels[i].Significance != levels[j].Significance {
			return levels[i].Significance > levels[j].Significance
		}
		return levels[i].Price.Cmp(levels[j].Price) > 0 // stable order for equal scores
	})
	if len(levels) > topLevels {
		levels = levels[:topLevels]
	}
	return levels
}

// detectSweeps compares the previous top-5 against the fresh scoreboard.
func (t *Tracker) detectSweeps(side model.Side, fresh []model.PriceLevel, nowMs int64) []model.Pattern {
	prev := t.prevTop[side]
	if len(prev) == 0 {
		return nil
	}

	current := make(map[string]int64, len(fresh))
	for _, lvl := range fresh {
		current[lvl.Price.String()] = lvl.TotalSize
	}

	var out []model.Pattern
	for key, prevSize := range prev {
		remaining := current[key] // zero when the level vanished entirely
		if float64(prevSize-remaining) <= float64(prevSize)*sweepDropRatio {
			continue
		}
		price, err := decimal.NewFromString(key)
		if err != nil {
			continue
		}
		// Ask liquidity vanishing reads as buyers lifting offers; bid
		// liquidity vanishing as sellers hitting bids.
		direction := model.DirectionDrop
		if side == model.SideAsk {
			direction = model.DirectionLift
		}
		out = append(out, model.Pattern{
			Kind:       model.PatternSweep,
			Side:       side,
			Strength:   model.StrengthStrong,
			Direction:  direction,
			Timestamp:  nowMs,
			PriceLevel: price,
			HasPrice:   true,
			Volume:     prevSize - remaining,
			Description: fmt.Sprintf("%s level %s swept: size fell from %d to %d",
				side, price.StringFixed(4), prevSize, remaining),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PriceLevel.Cmp(out[j].PriceLevel) < 0 })
	return out
}

// topTotals records the totals of the top-5 levels for the next comparison.
func topTotals(levels []model.PriceLevel) map[string]int64 {
	depth := sweepWatchDepth
	if len(levels) < depth {
		depth = len(levels)
	}
	out := make(map[string]int64, depth)
	for _, lvl := range levels[:depth] {
		out[lvl.Price.String()] = lvl.TotalSize
	}
	return out
}

// roundToTick snaps a price to the ticker's minimum increment.
func (t *Tracker) roundToTick(price decimal.Decimal) decimal.Decimal {
	if t.tick.Sign() <= 0 {
		return price
	}
	return price.Div(t.tick).Round(0).Mul(t.tick)
}
