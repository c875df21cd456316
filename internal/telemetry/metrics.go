// Package telemetry exposes Prometheus metrics for the engine:
//   - orderflow_ticks_total                    – processor ticks completed
//   - orderflow_ticker_errors_total{ticker}    – per-ticker derivation failures
//   - orderflow_ticker_skips_total{reason}     – tickers skipped (deadline|no_data)
//   - orderflow_patterns_total{kind}           – patterns appended to the log
//   - orderflow_tracked_tickers                – current tracked-set size (gauge)
//   - orderflow_queries_total{result}          – analyze_order_flow calls by outcome
//   - orderflow_query_seconds                  – query latency histogram
//   - orderflow_quotes_ingested_total{ticker}  – quotes appended via the feed
//
// Registered in init() and served at /metrics by the HTTP server.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	Ticks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orderflow_ticks_total",
			Help: "Processor ticks completed",
		},
	)

	TickerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_ticker_errors_total",
			Help: "Per-ticker derivation failures",
		},
		[]string{"ticker"},
	)

	TickerSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_ticker_skips_total",
			Help: "Tickers skipped during a tick, by reason",
		},
		[]string{"reason"}, // deadline|no_data
	)

	Patterns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_patterns_total",
			Help: "Patterns appended to the pattern log, by kind",
		},
		[]string{"kind"},
	)

	TrackedTickers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orderflow_tracked_tickers",
			Help: "Tickers currently in the tracked set",
		},
	)

	Queries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_queries_total",
			Help: "analyze_order_flow calls by outcome",
		},
		[]string{"result"}, // ok|no_data|invalid_ticker|invalid_history|store_unavailable|timeout|internal_error
	)

	QuerySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orderflow_query_seconds",
			Help:    "analyze_order_flow latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	QuotesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_quotes_ingested_total",
			Help: "Quotes appended through the feed client",
		},
		[]string{"ticker"},
	)
)

func init() {
	prometheus.MustRegister(Ticks, TickerErrors, TickerSkips, Patterns, TrackedTickers)
	prometheus.MustRegister(Queries, QuerySeconds, QuotesIngested)
}
