package query

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
	"github.com/fintools-ai/mcp-order-flow-server/internal/store"
)

const baseMs = int64(1_700_000_000_000)

func TestParseHistory(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"", 300, true},
		{"  ", 300, true},
		{"30s", 30, true},
		{"45sec", 45, true},
		{"90secs", 90, true},
		{"5m", 300, true},
		{"5min", 300, true},
		{"5mins", 300, true},
		{"1h", 3600, true},
		{"1hr", 3600, true},
		{"2hrs", 3600, true}, // clamped to the one hour ceiling
		{"3s", 5, true},      // clamped to the five second floor
		{"10M", 600, true},   // case-insensitive
		{"0s", 0, false},
		{"-5s", 0, false},
		{"abc", 0, false},
		{"30", 0, false},
		{"3fortnights", 0, false},
		{"5 mins", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseHistory(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, "input %q", tc.in)
		}
	}
}

func newCoordinator(st store.Store, nowMs int64) *Coordinator {
	c := New(st, zap.NewNop())
	c.now = func() time.Time { return time.UnixMilli(nowMs) }
	return c
}

func seedQuotes(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		q := model.Quote{
			Ticker:    "SPY",
			Timestamp: baseMs + int64(i)*1000,
			BidPrice:  decimal.RequireFromString("450.00"),
			AskPrice:  decimal.RequireFromString("450.02"),
			BidSize:   500,
			AskSize:   500,
		}
		require.NoError(t, st.AppendQuote(ctx, q))
	}
}

func TestAnalyzeHappyPath(t *testing.T) {
	st := store.NewMemory()
	seedQuotes(t, st)
	c := newCoordinator(st, baseMs+10_000)

	doc := c.AnalyzeOrderFlow(context.Background(), " spy ", "5m", true)
	assert.Contains(t, doc, `ticker="SPY"`, "ticker is trimmed and uppercased")
	assert.NotContains(t, doc, `error="true"`)
	assert.Contains(t, doc, `history_window="300s"`)
}

func TestAnalyzeInvalidTicker(t *testing.T) {
	c := newCoordinator(store.NewMemory(), baseMs)

	for _, ticker := range []string{"", "zz!!", "TOOLONGSYMBOL", "BRK.B"} {
		doc := c.AnalyzeOrderFlow(context.Background(), ticker, "", true)
		assert.Contains(t, doc, `code="invalid_ticker"`, "ticker %q", ticker)
	}
}

func TestAnalyzeInvalidHistory(t *testing.T) {
	st := store.NewMemory()
	seedQuotes(t, st)
	c := newCoordinator(st, baseMs+10_000)

	doc := c.AnalyzeOrderFlow(context.Background(), "SPY", "3fortnights", true)
	assert.Contains(t, doc, `code="invalid_history"`)
}

func TestAnalyzeNoData(t *testing.T) {
	c := newCoordinator(store.NewMemory(), baseMs)

	doc := c.AnalyzeOrderFlow(context.Background(), "SPY", "", true)
	assert.Contains(t, doc, `code="no_data"`)
	assert.Contains(t, doc, "<possible_causes>")
	assert.Contains(t, doc, "<suggestions>")
}

func TestAnalyzeIsDeterministicForFrozenClock(t *testing.T) {
	st := store.NewMemory()
	seedQuotes(t, st)
	c := newCoordinator(st, baseMs+10_000)

	first := c.AnalyzeOrderFlow(context.Background(), "SPY", "5m", true)
	second := c.AnalyzeOrderFlow(context.Background(), "SPY", "5m", true)
	assert.Equal(t, first, second)
}

func TestAnalyzeTimestampMovesWithClock(t *testing.T) {
	st := store.NewMemory()
	seedQuotes(t, st)

	first := newCoordinator(st, baseMs+10_000).
		AnalyzeOrderFlow(context.Background(), "SPY", "5m", true)
	second := newCoordinator(st, baseMs+12_000).
		AnalyzeOrderFlow(context.Background(), "SPY", "5m", true)

	require.NotEqual(t, first, second)

	strip := func(doc string) string {
		i := strings.Index(doc, `timestamp="`)
		require.True(t, i >= 0)
		j := strings.Index(doc[i+len(`timestamp="`):], `"`)
		return doc[:i] + doc[i+len(`timestamp="`)+j:]
	}
	assert.Equal(t, strip(first), strip(second),
		"frozen store output varies only in the timestamp attribute")
}
