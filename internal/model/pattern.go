package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PatternKind enumerates the detectable microstructure patterns. The sweep
// kind is emitted by the level tracker when a previously significant level
// disappears; the others come from the pattern detector.
type PatternKind string

const (
	PatternAbsorption    PatternKind = "absorption"
	PatternIceberg       PatternKind = "iceberg"
	PatternMomentumShift PatternKind = "momentum_shift"
	PatternStacking      PatternKind = "stacking"
	PatternSweep         PatternKind = "sweep"
)

// Strength grades a detected pattern.
type Strength string

const (
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
)

// Momentum-shift and sweep direction labels.
const (
	DirectionBullish = "bullish"
	DirectionBearish = "bearish"
	DirectionLift    = "lift"
	DirectionDrop    = "drop"
)

// Pattern is a discrete event appended to a per-ticker time-ordered log.
// Timestamps derive from the quote data that triggered the detection, never
// from the wall clock, so re-running detection on an unchanged store yields
// identical records.
type Pattern struct {
	ID        string // uuid, assigned by the processor on first append
	Kind      PatternKind
	Side      Side
	Strength  Strength
	Direction string // bullish/bearish for momentum_shift, lift/drop for sweep
	Timestamp int64  // unix ms, from quote data

	PriceLevel decimal.Decimal
	HasPrice   bool

	Volume int64 // pattern-specific: absorbed volume, swept size, run total
	Levels int   // stacking run length

	Description string
}

// SuppressionKey identifies duplicate detections: two patterns with the same
// key within the suppression interval collapse to one (later timestamp wins).
// Price participates rounded to the cent.
func (p Pattern) SuppressionKey() string {
	price := ""
	if p.HasPrice {
		price = p.PriceLevel.Round(2).String()
	}
	return fmt.Sprintf("%s|%s|%s", p.Kind, p.Side, price)
}
