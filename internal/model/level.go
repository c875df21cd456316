package model

import (
	"math"

	"github.com/shopspring/decimal"
)

// PriceLevel is a size-weighted score of a resting price on one side of the
// book, recomputed each processor tick from the 5 min quote window. Only
// prices with enough appearances and enough cumulative size qualify.
type PriceLevel struct {
	Price        decimal.Decimal // rounded to the ticker's minimum tick
	Appearances  int             // quotes observed at this price in the window
	TotalSize    int64           // sum of displayed sizes at this price
	LastSeen     int64           // unix ms of the most recent observation
	Significance float64         // TotalSize * log(1 + Appearances)
}

// LevelSignificance is the ranking score for a resting price. Strictly
// monotonic in both size and appearances.
func LevelSignificance(totalSize int64, appearances int) float64 {
	return float64(totalSize) * math.Log1p(float64(appearances))
}
