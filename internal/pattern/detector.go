// Package pattern detects discrete microstructure events in a 60 s quote
// window: absorption, stacking, momentum shifts and iceberg/sweep prints.
// Detection is pure; timestamps come from the quotes that triggered the
// event, so identical input always produces identical patterns.
package pattern

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
)

const (
	// Absorption: a price pinned inside one tick for at least this long,
	// against at least this much mean displayed size.
	absorptionMinSpanMs = 15_000
	absorptionMinMean   = 8_000
	absorptionModerate  = 12_000
	absorptionStrong    = 20_000

	// Stacking: consecutive quotes with non-decreasing size, all at least
	// this large.
	stackingMinRun  = 5
	stackingMinSize = 5_000

	// Momentum shift strength from the dominance ratio.
	momentumShiftRatio    = 2.0
	momentumShiftModerate = 3.0
	momentumShiftStrong   = 4.0

	// Iceberg/sweep: size vanishing (or appearing) without the price moving
	// more than two ticks.
	icebergSizeJump = 15_000
	icebergMaxTicks = 2
)

// Config carries the per-ticker knobs detection needs.
type Config struct {
	TickSize decimal.Decimal
}

// Detect runs all detectors over the window and returns the patterns in
// kind-alphabetical order (absorption, iceberg, momentum_shift, stacking).
// The caller is responsible for duplicate suppression against the log.
func Detect(quotes []model.Quote, metrics model.WindowMetrics, cfg Config) []model.Pattern {
	if len(quotes) < 2 {
		return nil
	}

	var out []model.Pattern
	for _, side := range [2]model.Side{model.SideBid, model.SideAsk} {
		if p, ok := detectAbsorption(quotes, side, cfg.TickSize); ok {
			out = append(out, p)
		}
		if p, ok := detectStacking(quotes, side); ok {
			out = append(out, p)
		}
		if p, ok := detectIceberg(quotes, side, cfg.TickSize); ok {
			out = append(out, p)
		}
	}
	if p, ok := detectMomentumShift(quotes, metrics); ok {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Side < out[j].Side
	})
	return out
}

func sidePrice(q model.Quote, side model.Side) decimal.Decimal {
	if side == model.SideBid {
		return q.BidPrice
	}
	return q.AskPrice
}

func sideSize(q model.Quote, side model.Side) int64 {
	if side == model.SideBid {
		return q.BidSize
	}
	return q.AskSize
}

// detectAbsorption looks for the most recent contiguous run of at least 15 s
// where the side's price stays inside one tick and its mean size exceeds the
// absorption floor.
func detectAbsorption(quotes []model.Quote, side model.Side, tick decimal.Decimal) (model.Pattern, bool) {
	var (
		found model.Pattern
		ok    bool
	)

	start := 0
	for i := 1; i <= len(quotes); i++ {
		if i < len(quotes) && withinOneTick(quotes[start:i+1], side, tick) {
			continue
		}
		// Run [start, i) just ended (or the window did). A restarted run may
		// not have been re-verified yet, so check it before qualifying.
		run := quotes[start:i]
		if len(run) >= 2 && withinOneTick(run, side, tick) {
			if p, qualifies := qualifyAbsorption(run, side); qualifies {
				found, ok = p, true // later runs overwrite earlier ones
			}
		}
		// The breaking quote may sit within a tick of its predecessor, so a
		// fresh run starts one quote back.
		start = i - 1
	}
	return found, ok
}

// withinOneTick reports whether the side's price range over the run is
// strictly below one tick.
func withinOneTick(run []model.Quote, side model.Side, tick decimal.Decimal) bool {
	lo := sidePrice(run[0], side)
	hi := lo
	for _, q := range run[1:] {
		p := sidePrice(q, side)
		if p.Cmp(lo) < 0 {
			lo = p
		}
		if p.Cmp(hi) > 0 {
			hi = p
		}
	}
	return hi.Sub(lo).Cmp(tick) < 0
}

func qualifyAbsorption(run []model.Quote, side model.Side) (model.Pattern, bool) {
	if len(run) < 2 {
		return model.Pattern{}, false
	}
	span := run[len(run)-1].Timestamp - run[0].Timestamp
	if span < absorptionMinSpanMs {
		return model.Pattern{}, false
	}

	var sum int64
	for _, q := range run {
		sum += sideSize(q, side)
	}
	mean := sum / int64(len(run))
	if mean <= absorptionMinMean {
		return model.Pattern{}, false
	}

	strength := model.StrengthWeak
	switch {
	case mean > absorptionStrong:
		strength = model.StrengthStrong
	case mean > absorptionModerate:
		strength = model.StrengthModerate
	}

	price := sidePrice(run[len(run)-1], side)
	return model.Pattern{
		Kind:       model.PatternAbsorption,
		Side:       side,
		Strength:   strength,
		Timestamp:  run[len(run)-1].Timestamp,
		PriceLevel: price,
		HasPrice:   true,
		Volume:     mean * int64(len(run)),
		Description: fmt.Sprintf("%s absorption at %s with avg size %d over %d quotes",
			side, price.StringFixed(4), mean, len(run)),
	}, true
}

// detectStacking scans for the longest tail-most run of at least 5
// consecutive quotes whose side size is non-decreasing and never below the
// stacking floor. One-sided quotes break the run.
func detectStacking(quotes []model.Quote, side model.Side) (model.Pattern, bool) {
	var (
		found model.Pattern
		ok    bool
	)

	runStart := -1
	for i := 0; i < len(quotes); i++ {
		size := sideSize(quotes[i], side)
		inRun := size >= stackingMinSize && !quotes[i].OneSided()
		if inRun && i > 0 && runStart >= 0 {
			if size < sideSize(quotes[i-1], side) {
				inRun = false // size shrank, run broken
			}
		}

		if inRun {
			if runStart < 0 {
				runStart = i
			}
			continue
		}

		if runStart >= 0 {
			if p, qualifies := qualifyStacking(quotes[runStart:i], side); qualifies {
				found, ok = p, true
			}
		}
		runStart = -1
		if size >= stackingMinSize && !quotes[i].OneSided() {
			runStart = i // this quote can start a fresh run
		}
	}
	if runStart >= 0 {
		if p, qualifies := qualifyStacking(quotes[runStart:], side); qualifies {
			found, ok = p, true
		}
	}
	return found, ok
}

func qualifyStacking(run []model.Quote, side model.Side) (model.Pattern, bool) {
	if len(run) < stackingMinRun {
		return model.Pattern{}, false
	}

	strength := model.StrengthWeak
	switch {
	case len(run) >= 10:
		strength = model.StrengthStrong
	case len(run) >= 7:
		strength = model.StrengthModerate
	}

	last := run[len(run)-1]
	total := sideSize(last, side)
	price := sidePrice(last, side)
	return model.Pattern{
		Kind:       model.PatternStacking,
		Side:       side,
		Strength:   strength,
		Timestamp:  last.Timestamp,
		PriceLevel: price,
		HasPrice:   true,
		Volume:     total,
		Levels:     len(run),
		Description: fmt.Sprintf("%s stacking over %d quotes, size built to %d at %s",
			side, len(run), total, price.StringFixed(4)),
	}, true
}

// detectMomentumShift fires when one direction's transitions dominate the
// other's by at least 2x.
func detectMomentumShift(quotes []model.Quote, metrics model.WindowMetrics) (model.Pattern, bool) {
	if metrics.Insufficient {
		return model.Pattern{}, false
	}

	dominant := metrics.BidLifts
	if metrics.AskDrops > dominant {
		dominant = metrics.AskDrops
	}
	opposing := metrics.BidDrops
	if metrics.AskLifts < opposing {
		opposing = metrics.AskLifts
	}
	if opposing < 1 {
		opposing = 1
	}

	ratio := float64(dominant) / float64(opposing)
	if ratio < momentumShiftRatio {
		return model.Pattern{}, false
	}

	direction := model.DirectionBearish
	if metrics.BidLifts >= metrics.AskDrops {
		direction = model.DirectionBullish
	}

	strength := model.StrengthWeak
	switch {
	case ratio >= momentumShiftStrong:
		strength = model.StrengthStrong
	case ratio >= momentumShiftModerate:
		strength = model.StrengthModerate
	}

	return model.Pattern{
		Kind:      model.PatternMomentumShift,
		Side:      model.SideNone,
		Strength:  strength,
		Direction: direction,
		Timestamp: quotes[len(quotes)-1].Timestamp,
		Description: fmt.Sprintf("%s momentum: %d bid lifts / %d bid drops, %d ask lifts / %d ask drops",
			direction, metrics.BidLifts, metrics.BidDrops, metrics.AskLifts, metrics.AskDrops),
	}, true
}

// detectIceberg looks for an adjacent pair where the side's displayed size
// jumped by more than the iceberg threshold while its price moved at most two
// ticks. The most recent occurrence wins.
func detectIceberg(quotes []model.Quote, side model.Side, tick decimal.Decimal) (model.Pattern, bool) {
	maxMove := tick.Mul(decimal.NewFromInt(icebergMaxTicks))

	for i := len(quotes) - 1; i >= 1; i-- {
		prev, curr := quotes[i-1], quotes[i]

		jump := sideSize(curr, side) - sideSize(prev, side)
		if jump < 0 {
			jump = -jump
		}
		if jump <= icebergSizeJump {
			continue
		}
		move := sidePrice(curr, side).Sub(sidePrice(prev, side))
		if move.Abs().Cmp(maxMove) > 0 {
			continue
		}

		// Direction is lift when the side's price rose across the pair,
		// drop otherwise. Both flat and falling prices read as drop.
		direction := model.DirectionDrop
		if move.Sign() > 0 {
			direction = model.DirectionLift
		}

		price := sidePrice(curr, side)
		return model.Pattern{
			Kind:       model.PatternIceberg,
			Side:       side,
			Strength:   model.StrengthStrong,
			Direction:  direction,
			Timestamp:  curr.Timestamp,
			PriceLevel: price,
			HasPrice:   true,
			Volume:     jump,
			Description: fmt.Sprintf("%s size jumped %d at %s without price follow-through",
				side, jump, price.StringFixed(4)),
		}, true
	}
	return model.Pattern{}, false
}
