package model

import "github.com/shopspring/decimal"

// Acceleration classifies how a side's displayed size evolved across a window
// (second half mean vs first half mean).
type Acceleration string

const (
	AccelIncreasing Acceleration = "INCREASING"
	AccelStable     Acceleration = "STABLE"
	AccelDecreasing Acceleration = "DECREASING"
)

// WindowMetrics is the computed momentum and size-dynamics summary for one
// (ticker, window) pair. It overwrites the previous record for the same pair
// on every processor tick.
//
// Insufficient is set when the window held fewer than two quotes; all numeric
// fields are zero-valued in that case and consumers must not divide by them.
type WindowMetrics struct {
	Window       Window
	Insufficient bool
	QuoteCount   int

	// End - start across the window. Prices rounded to 4 decimals.
	BidPriceChange decimal.Decimal
	AskPriceChange decimal.Decimal
	BidSizeChange  int64
	AskSizeChange  int64

	// Adjacent-pair transitions. Equal-price pairs count as neither, so per
	// side: lifts + drops + unchanged == quoteCount - 1.
	BidLifts int
	BidDrops int
	AskLifts int
	AskDrops int

	// Arithmetic mean over quotes where the side's size > 0.
	AvgBidSize int64
	AvgAskSize int64

	// Count of quotes whose size exceeded the large-size threshold.
	LargeBidCount int
	LargeAskCount int

	BidSizeAccel Acceleration
	AskSizeAccel Acceleration

	QuotesPerSecond float64 // quoteCount / window seconds
	PriceVelocity   float64 // |mid end-start| / window seconds
	SizeTurnover    float64 // (|bid size change| + |ask size change|) / window seconds
}

// Behaviors are per-ticker boolean market-behavior flags, derived fresh on
// each processor tick from the 60 s window. No memory beyond the window.
type Behaviors struct {
	BidStacking       bool
	AskPulling        bool
	SpreadTightening  bool
	MomentumBuilding  bool
	AggressiveBuying  bool
	AggressiveSelling bool
}
