// Package query coordinates the analyze_order_flow operation: argument
// validation, snapshot assembly and the mapping of every failure onto an
// error document. The operation always returns a document.
package query

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fintools-ai/mcp-order-flow-server/internal/snapshot"
	"github.com/fintools-ai/mcp-order-flow-server/internal/store"
	"github.com/fintools-ai/mcp-order-flow-server/internal/telemetry"
)

const (
	defaultHistorySec int64 = 300
	minHistorySec     int64 = 5
	maxHistorySec     int64 = 3600
)

var (
	tickerPattern  = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)
	historyPattern = regexp.MustCompile(`^(\d+)(s|sec|secs|m|min|mins|h|hr|hrs)$`)
)

type Coordinator struct {
	builder *snapshot.Builder
	log     *zap.Logger
	now     func() time.Time
}

func New(st store.Store, log *zap.Logger) *Coordinator {
	return &Coordinator{
		builder: snapshot.NewBuilder(st),
		log:     log,
		now:     time.Now,
	}
}

// AnalyzeOrderFlow runs one analysis query. Failures are encoded in the
// returned document, never as an error.
func (c *Coordinator) AnalyzeOrderFlow(ctx context.Context, ticker, history string, includePatterns bool) string {
	start := c.now()
	defer func() {
		telemetry.QuerySeconds.Observe(c.now().Sub(start).Seconds())
	}()

	normalized := strings.ToUpper(strings.TrimSpace(ticker))
	if !tickerPattern.MatchString(normalized) {
		telemetry.Queries.WithLabelValues("invalid_ticker").Inc()
		return snapshot.ErrorDocument(normalized, start, snapshot.ErrorInvalidTicker)
	}

	historySec, ok := ParseHistory(history)
	if !ok {
		telemetry.Queries.WithLabelValues("invalid_history").Inc()
		return snapshot.ErrorDocument(normalized, start, snapshot.ErrorInvalidHistory)
	}

	doc, err := c.builder.Build(ctx, normalized, historySec, includePatterns, start)
	if err != nil {
		kind := c.classify(normalized, err)
		telemetry.Queries.WithLabelValues(string(kind)).Inc()
		return snapshot.ErrorDocument(normalized, start, kind)
	}

	telemetry.Queries.WithLabelValues("ok").Inc()
	return doc
}

func (c *Coordinator) classify(ticker string, err error) snapshot.ErrorKind {
	switch {
	case errors.Is(err, snapshot.ErrNoData):
		return snapshot.ErrorNoData
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return snapshot.ErrorTimeout
	case errors.Is(err, store.ErrUnavailable):
		c.log.Warn("query hit unavailable store", zap.String("ticker", ticker), zap.Error(err))
		return snapshot.ErrorStoreUnavailable
	default:
		c.log.Error("query failed", zap.String("ticker", ticker), zap.Error(err))
		return snapshot.ErrorInternal
	}
}

// ParseHistory converts a history token like "30s", "5mins" or "1h" into
// seconds, clamped to the supported range. An empty token means the default
// five minutes.
func ParseHistory(history string) (int64, bool) {
	token := strings.ToLower(strings.TrimSpace(history))
	if token == "" {
		return defaultHistorySec, true
	}

	m := historyPattern.FindStringSubmatch(token)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}

	switch m[2][0] {
	case 'm':
		n *= 60
	case 'h':
		n *= 3600
	}

	if n < minHistorySec {
		n = minHistorySec
	}
	if n > maxHistorySec {
		n = maxHistorySec
	}
	return n, true
}
