package model

import (
	"math"

	"github.com/shopspring/decimal"
)

// Side identifies which side of the book a metric, pattern or level refers to.
type Side string

const (
	SideBid  Side = "bid"
	SideAsk  Side = "ask"
	SideNone Side = "none"
)

var two = decimal.NewFromInt(2)

// Quote is a single immutable top-of-book observation for one ticker.
// Timestamps are milliseconds since the Unix epoch and monotonic per ticker
// within a session. A quote with either size == 0 is "one-sided": it still
// participates in metrics but never in stacking detection.
type Quote struct {
	Ticker    string
	Timestamp int64 // unix ms
	BidPrice  decimal.Decimal
	AskPrice  decimal.Decimal
	BidSize   int64
	AskSize   int64
}

// Mid returns the midpoint price (bid+ask)/2.
func (q Quote) Mid() decimal.Decimal {
	return q.BidPrice.Add(q.AskPrice).Div(two)
}

// Spread returns ask - bid. Non-negative for any valid quote.
func (q Quote) Spread() decimal.Decimal {
	return q.AskPrice.Sub(q.BidPrice)
}

// OneSided reports whether either side shows zero displayed size.
func (q Quote) OneSided() bool {
	return q.BidSize == 0 || q.AskSize == 0
}

// AppendMsgPack appends the MsgPack representation of the Quote to the
// provided buffer. The live-stream hub serializes once per quote and fans the
// same buffer out to every client.
// Format: FixArray(6) [Ticker, Timestamp, BidPrice, AskPrice, BidSize, AskSize]
func (q *Quote) AppendMsgPack(b []byte) []byte {
	b = append(b, 0x96)

	b = appendString(b, q.Ticker)
	b = appendInt64(b, q.Timestamp)
	b = appendFloat64(b, q.BidPrice.InexactFloat64())
	b = appendFloat64(b, q.AskPrice.InexactFloat64())
	b = appendInt64(b, q.BidSize)
	b = appendInt64(b, q.AskSize)

	return b
}

// appendString writes a FixStr / str8 header followed by the bytes.
// Tickers are 1-10 chars so the FixStr branch is the one that runs.
func appendString(b []byte, s string) []byte {
	if len(s) <= 31 {
		b = append(b, 0xa0|byte(len(s)))
	} else {
		b = append(b, 0xd9, byte(len(s)))
	}
	return append(b, s...)
}

func appendInt64(b []byte, v int64) []byte {
	// positive fixint
	if v >= 0 && v <= 127 {
		return append(b, byte(v))
	}
	// negative fixint
	if v < 0 && v >= -32 {
		return append(b, byte(v))
	}
	b = append(b, 0xd3)
	return append(b, byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendFloat64(b []byte, v float64) []byte {
	b = append(b, 0xcb)
	bits := math.Float64bits(v)
	return append(b, byte(bits>>56), byte(bits>>48), byte(bits>>40), byte(bits>>32),
		byte(bits>>24), byte(bits>>16), byte(bits>>8), byte(bits))
}
