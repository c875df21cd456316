package snapshot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
	"github.com/fintools-ai/mcp-order-flow-server/internal/store"
)

// ErrNoData means the ticker has no quotes within the requested lookback.
var ErrNoData = errors.New("snapshot: no quote data")

// timeLayout renders timestamps at seconds precision.
const timeLayout = "2006-01-02T15:04:05"

// topLevelsPerSide bounds the rendered level lists.
const topLevelsPerSide = 10

// patternDisplayLimit bounds the detected_patterns element to the most
// recent entries.
const patternDisplayLimit = 10

// Builder assembles analysis documents from the store's cached slots. The
// output is deterministic: for a frozen store, two builds with the same
// arguments differ only in the root timestamp attribute.
type Builder struct {
	store store.Store
}

func NewBuilder(st store.Store) *Builder {
	return &Builder{store: st}
}

// Build reads the ticker's cached state and renders the analysis document
// covering [now - historySec, now].
func (b *Builder) Build(ctx context.Context, ticker string, historySec int64, includePatterns bool, now time.Time) (string, error) {
	nowMs := now.UnixMilli()
	fromMs := nowMs - historySec*1000

	latest, ok, err := b.store.LatestQuote(ctx, ticker)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNoData
	}

	quotes, err := b.store.QuoteRange(ctx, ticker, fromMs, nowMs)
	if err != nil {
		return "", err
	}
	if len(quotes) == 0 {
		return "", ErrNoData
	}

	// A missing slot renders as a zero-valued record, same as a cold start.
	m10, _, err := b.store.GetMetrics(ctx, ticker, model.Window10s)
	if err != nil {
		return "", err
	}
	var m60, m5 model.WindowMetrics
	has60 := historySec >= model.Window60s.Seconds()
	has5 := historySec >= model.Window5min.Seconds()
	if has60 {
		if m60, _, err = b.store.GetMetrics(ctx, ticker, model.Window60s); err != nil {
			return "", err
		}
	}
	if has5 {
		if m5, _, err = b.store.GetMetrics(ctx, ticker, model.Window5min); err != nil {
			return "", err
		}
	}

	behaviors, _, err := b.store.GetBehaviors(ctx, ticker)
	if err != nil {
		return "", err
	}
	bidLevels, err := b.store.GetLevels(ctx, ticker, model.SideBid)
	if err != nil {
		return "", err
	}
	askLevels, err := b.store.GetLevels(ctx, ticker, model.SideAsk)
	if err != nil {
		return "", err
	}
	patterns, err := b.store.PatternRange(ctx, ticker, fromMs, nowMs)
	if err != nil {
		return "", err
	}

	mid := latest.Mid()
	window := fmt.Sprintf("%ds", historySec)

	root := El("order_flow_data").
		Attr("ticker", ticker).
		Attr("timestamp", now.UTC().Format(timeLayout)).
		Attr("current_price", fprice(mid)).
		Attr("history_window", window)

	root.Add(El("data_summary").
		Leaf("quote_count", strconv.Itoa(len(quotes))).
		Leaf("window_seconds", strconv.FormatInt(historySec, 10)).
		Leaf("pattern_count", strconv.Itoa(len(patterns))))

	root.Add(currentQuote(latest, mid))
	root.Add(momentumBlock(m10, m60, m5, has60, has5))

	// Size dynamics come from the widest refreshed window the history covers.
	sizeSource := m10
	if has60 {
		sizeSource = m60
	}
	root.Add(sizeMetrics(sizeSource))
	root.Add(behaviorBlock(behaviors))
	root.Add(priceLevels(mid, bidLevels, askLevels, patterns))
	root.Add(velocityBlock(len(quotes), historySec, sizeSource))

	if includePatterns && len(patterns) > 0 {
		root.Add(detectedPatterns(patterns, window))
	}

	return root.Render(), nil
}

func currentQuote(q model.Quote, mid decimal.Decimal) *Node {
	ratio := float64(q.BidSize) / float64(max64(1, q.AskSize))
	spread := q.Spread()
	bps := 0.0
	if mid.Sign() > 0 {
		bps, _ = spread.Div(mid).Mul(decimal.NewFromInt(10_000)).Float64()
	}

	n := El("current_quote")
	n.Add(El("bid").Attr("price", fprice(q.BidPrice)).Attr("size", strconv.FormatInt(q.BidSize, 10)))
	n.Add(El("ask").Attr("price", fprice(q.AskPrice)).Attr("size", strconv.FormatInt(q.AskSize, 10)))
	n.Leaf("bid_ask_ratio", fratio(ratio))
	n.Add(El("spread").Attr("value", fprice(spread)).Attr("basis_points", f1(bps)))
	return n
}

func momentumBlock(m10, m60, m5 model.WindowMetrics, has60, has5 bool) *Node {
	n := El("momentum")

	n.Add(El("last_10s").
		Leaf("bid_price_change", fprice(m10.BidPriceChange)).
		Leaf("ask_price_change", fprice(m10.AskPriceChange)).
		Leaf("bid_size_change", strconv.FormatInt(m10.BidSizeChange, 10)).
		Leaf("ask_size_change", strconv.FormatInt(m10.AskSizeChange, 10)))

	if has60 {
		n.Add(El("last_60s").
			Leaf("bid_price_change", fprice(m60.BidPriceChange)).
			Leaf("ask_price_change", fprice(m60.AskPriceChange)).
			Leaf("bid_lifts", strconv.Itoa(m60.BidLifts)).
			Leaf("bid_drops", strconv.Itoa(m60.BidDrops)).
			Leaf("ask_lifts", strconv.Itoa(m60.AskLifts)).
			Leaf("ask_drops", strconv.Itoa(m60.AskDrops)))
	}
	if has5 {
		n.Add(El("last_5min").
			Leaf("bid_price_change", fprice(m5.BidPriceChange)).
			Leaf("ask_price_change", fprice(m5.AskPriceChange)).
			Leaf("bid_lifts", strconv.Itoa(m5.BidLifts)).
			Leaf("bid_drops", strconv.Itoa(m5.BidDrops)))
	}
	return n
}

func sizeMetrics(m model.WindowMetrics) *Node {
	n := El("size_metrics")
	n.Add(El("large_orders").
		Leaf("bids_over_10k", strconv.Itoa(m.LargeBidCount)).
		Leaf("asks_over_10k", strconv.Itoa(m.LargeAskCount)))
	n.Add(El("average_sizes").
		Leaf("bid_avg", strconv.FormatInt(m.AvgBidSize, 10)).
		Leaf("ask_avg", strconv.FormatInt(m.AvgAskSize, 10)))
	n.Add(El("acceleration").
		Leaf("bid", accel(m.BidSizeAccel)).
		Leaf("ask", accel(m.AskSizeAccel)))
	return n
}

func behaviorBlock(b model.Behaviors) *Node {
	return El("behaviors").
		Leaf("bid_stacking", yesNo(b.BidStacking)).
		Leaf("ask_pulling", yesNo(b.AskPulling)).
		Leaf("spread_tightening", yesNo(b.SpreadTightening)).
		Leaf("momentum_building", yesNo(b.MomentumBuilding)).
		Leaf("aggressive_buying", yesNo(b.AggressiveBuying)).
		Leaf("aggressive_selling", yesNo(b.AggressiveSelling))
}

func priceLevels(mid decimal.Decimal, bids, asks []model.PriceLevel, patterns []model.Pattern) *Node {
	n := El("price_levels")

	count := 0
	for _, l := range bids {
		if count == topLevelsPerSide {
			break
		}
		if l.Price.Cmp(mid) >= 0 {
			continue
		}
		n.Add(levelNode("bid_level", l, mid, mid.Sub(l.Price)))
		count++
	}
	count = 0
	for _, l := range asks {
		if count == topLevelsPerSide {
			break
		}
		if l.Price.Cmp(mid) <= 0 {
			continue
		}
		n.Add(levelNode("ask_level", l, mid, l.Price.Sub(mid)))
		count++
	}

	for _, p := range patterns {
		if p.Kind != model.PatternSweep {
			continue
		}
		n.Add(El("sweep").
			Attr("price", fprice(p.PriceLevel)).
			Attr("size", strconv.FormatInt(p.Volume, 10)).
			Attr("direction", p.Direction).
			Attr("detected_at", msTime(p.Timestamp)))
	}
	return n
}

func levelNode(name string, l model.PriceLevel, mid, distance decimal.Decimal) *Node {
	pct := decimal.Zero
	if mid.Sign() > 0 {
		pct = distance.Div(mid).Mul(decimal.NewFromInt(100))
	}
	return El(name).
		Attr("price", fprice(l.Price)).
		Attr("size", strconv.FormatInt(l.TotalSize, 10)).
		Attr("appearances", strconv.Itoa(l.Appearances)).
		Attr("distance_pct", pct.StringFixed(2))
}

func velocityBlock(quoteCount int, historySec int64, m model.WindowMetrics) *Node {
	qps := float64(quoteCount) / float64(max64(1, historySec))
	return El("velocity").
		Leaf("quotes_per_second", fratio(qps)).
		Leaf("price_velocity", f6(m.PriceVelocity)).
		Leaf("size_turnover", strconv.FormatInt(int64(math.Round(m.SizeTurnover)), 10))
}

func detectedPatterns(patterns []model.Pattern, window string) *Node {
	n := El("detected_patterns").
		Attr("count", strconv.Itoa(len(patterns))).
		Attr("window", window)

	display := patterns
	if len(display) > patternDisplayLimit {
		display = display[len(display)-patternDisplayLimit:]
	}
	for _, p := range display {
		n.Add(patternNode(p))
	}
	return n
}

func patternNode(p model.Pattern) *Node {
	n := El("pattern").Leaf("type", string(p.Kind))

	switch p.Kind {
	case model.PatternAbsorption:
		n.Leaf("side", string(p.Side)).
			Leaf("strength", string(p.Strength)).
			Leaf("price_level", fprice(p.PriceLevel)).
			Leaf("volume", strconv.FormatInt(p.Volume, 10))
	case model.PatternStacking:
		n.Leaf("side", string(p.Side)).
			Leaf("levels", strconv.Itoa(p.Levels)).
			Leaf("total_size", strconv.FormatInt(p.Volume, 10))
	case model.PatternMomentumShift:
		n.Leaf("direction", p.Direction).
			Leaf("strength", string(p.Strength))
	case model.PatternIceberg:
		n.Leaf("side", string(p.Side)).
			Leaf("direction", p.Direction).
			Leaf("price_level", fprice(p.PriceLevel)).
			Leaf("size", strconv.FormatInt(p.Volume, 10))
	case model.PatternSweep:
		n.Leaf("direction", p.Direction).
			Leaf("price", fprice(p.PriceLevel)).
			Leaf("size", strconv.FormatInt(p.Volume, 10))
	}

	if p.Description != "" {
		n.Leaf("description", p.Description)
	}
	n.Leaf("detected_at", msTime(p.Timestamp))
	return n
}

// --------- Rendering precision ---------

func fprice(d decimal.Decimal) string { return d.StringFixed(4) }

func fratio(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func f1(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

func f6(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

func msTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(timeLayout)
}

func accel(a model.Acceleration) string {
	if a == "" {
		return string(model.AccelStable)
	}
	return string(a)
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
