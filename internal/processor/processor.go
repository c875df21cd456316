// Package processor runs the periodic derivation loop: every interval it walks
// the tracked ticker set and refreshes windowed metrics, behaviors, patterns
// and price levels from the raw quote log, then prunes expired data.
package processor

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fintools-ai/mcp-order-flow-server/internal/behavior"
	"github.com/fintools-ai/mcp-order-flow-server/internal/config"
	"github.com/fintools-ai/mcp-order-flow-server/internal/level"
	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
	"github.com/fintools-ai/mcp-order-flow-server/internal/momentum"
	"github.com/fintools-ai/mcp-order-flow-server/internal/pattern"
	"github.com/fintools-ai/mcp-order-flow-server/internal/store"
	"github.com/fintools-ai/mcp-order-flow-server/internal/telemetry"
)

// behaviorRecentQuotes bounds the tail of the 60s window that the behavior
// heuristics look at.
const behaviorRecentQuotes = 20

// tracked is the per-ticker state the loop keeps between ticks. The level
// tracker is stateful (sweep detection compares against the previous tick),
// so it lives here rather than in the store.
type tracked struct {
	levels   *level.Tracker
	lastSeen int64 // ms timestamp of the newest quote observed
}

type Processor struct {
	store store.Store
	cfg   config.Config
	log   *zap.Logger

	workers int
	now     func() time.Time

	mu      sync.Mutex
	tracked map[string]*tracked
}

func New(st store.Store, cfg config.Config, log *zap.Logger) *Processor {
	return &Processor{
		store:   st,
		cfg:     cfg,
		log:     log,
		workers: runtime.NumCPU(),
		now:     time.Now,
		tracked: make(map[string]*tracked),
	}
}

// Observe admits a ticker into the tracked set. Called by the ingest
// subscriber on every quote; cheap when the ticker is already tracked.
func (p *Processor) Observe(ticker string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.tracked[ticker]; ok {
		return
	}
	p.tracked[ticker] = &tracked{
		levels:   level.NewTracker(p.cfg.TickSizeFor(ticker)),
		lastSeen: p.now().UnixMilli(),
	}
}

// Run drives the derivation loop until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	interval := time.Duration(p.cfg.ProcessorInterval * float64(time.Second))
	tick := time.NewTicker(interval)
	defer tick.Stop()

	p.log.Info("processor started",
		zap.Duration("interval", interval),
		zap.Int("workers", p.workers))

	for {
		select {
		case <-ctx.Done():
			p.log.Info("processor stopped")
			return nil
		case <-tick.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one derivation pass over the tracked set. Exposed so tests can
// step the loop deterministically.
func (p *Processor) Tick(ctx context.Context) {
	nowMs := p.now().UnixMilli()
	tickers := p.refresh(ctx, nowMs)
	telemetry.TrackedTickers.Set(float64(len(tickers)))

	if len(tickers) > 0 {
		interval := time.Duration(p.cfg.ProcessorInterval * float64(time.Second))

		jobs := make(chan string)
		var wg sync.WaitGroup
		workers := p.workers
		if workers > len(tickers) {
			workers = len(tickers)
		}
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for ticker := range jobs {
					// A slow ticker must not starve the rest of the tick.
					tctx, cancel := context.WithTimeout(ctx, interval)
					err := p.processTicker(tctx, ticker, nowMs)
					cancel()
					switch {
					case err == nil:
					case errors.Is(err, context.DeadlineExceeded):
						telemetry.TickerSkips.WithLabelValues("deadline").Inc()
						p.log.Warn("ticker derivation deadline", zap.String("ticker", ticker))
					default:
						telemetry.TickerErrors.WithLabelValues(ticker).Inc()
						p.log.Warn("ticker derivation failed",
							zap.String("ticker", ticker), zap.Error(err))
					}
				}
			}()
		}
		for _, t := range tickers {
			jobs <- t
		}
		close(jobs)
		wg.Wait()
	}

	telemetry.Ticks.Inc()
}

// refresh merges store-known tickers into the tracked set, evicts tickers
// idle past the configured horizon, and returns a sorted snapshot.
func (p *Processor) refresh(ctx context.Context, nowMs int64) []string {
	known, err := p.store.ActiveTickers(ctx)
	if err != nil {
		// Run with what we already track; the store may come back.
		p.log.Warn("active ticker scan failed", zap.Error(err))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range known {
		if _, ok := p.tracked[t]; !ok {
			p.tracked[t] = &tracked{
				levels:   level.NewTracker(p.cfg.TickSizeFor(t)),
				lastSeen: nowMs,
			}
		}
	}

	idleMs := p.cfg.IdleEvictSeconds * 1000
	out := make([]string, 0, len(p.tracked))
	for t, st := range p.tracked {
		if nowMs-st.lastSeen > idleMs {
			delete(p.tracked, t)
			p.log.Info("ticker evicted", zap.String("ticker", t))
			continue
		}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// processTicker refreshes every derived slot for one ticker from a single
// 5min quote fetch, then prunes quotes and patterns past their TTLs.
func (p *Processor) processTicker(ctx context.Context, ticker string, nowMs int64) error {
	quotes, err := p.store.QuoteRange(ctx, ticker, nowMs-model.Window5min.Millis(), nowMs)
	if err != nil {
		return err
	}

	if len(quotes) < 2 {
		telemetry.TickerSkips.WithLabelValues("no_data").Inc()
		return p.prune(ctx, ticker, nowMs)
	}

	p.touch(ticker, quotes[len(quotes)-1].Timestamp)

	// 10s metrics are always refreshed; longer windows only once enough
	// history has accumulated, so a cold ticker never reports a full-window
	// reading computed from a sliver of data.
	w10 := windowTail(quotes, nowMs, model.Window10s)
	m10 := momentum.Compute(w10, model.Window10s, p.cfg.LargeSizeThreshold)
	if err := p.store.PutMetrics(ctx, ticker, m10, metricsTTL(model.Window10s)); err != nil {
		return err
	}

	if windowFilled(quotes, nowMs, model.Window60s) {
		w60 := windowTail(quotes, nowMs, model.Window60s)
		m60 := momentum.Compute(w60, model.Window60s, p.cfg.LargeSizeThreshold)
		if err := p.store.PutMetrics(ctx, ticker, m60, metricsTTL(model.Window60s)); err != nil {
			return err
		}

		b := behavior.Analyze(m60, tail(w60, behaviorRecentQuotes))
		if err := p.store.PutBehaviors(ctx, ticker, b, metricsTTL(model.Window60s)); err != nil {
			return err
		}

		detected := pattern.Detect(w60, m60, pattern.Config{TickSize: p.cfg.TickSizeFor(ticker)})
		if err := p.appendPatterns(ctx, ticker, detected); err != nil {
			return err
		}
	}

	if windowFilled(quotes, nowMs, model.Window5min) {
		m5 := momentum.Compute(quotes, model.Window5min, p.cfg.LargeSizeThreshold)
		if err := p.store.PutMetrics(ctx, ticker, m5, metricsTTL(model.Window5min)); err != nil {
			return err
		}

		bids, asks, sweeps := p.trackerFor(ticker).Update(quotes)
		ttl := metricsTTL(model.Window5min)
		if err := p.store.PutLevels(ctx, ticker, model.SideBid, bids, ttl); err != nil {
			return err
		}
		if err := p.store.PutLevels(ctx, ticker, model.SideAsk, asks, ttl); err != nil {
			return err
		}
		if err := p.appendPatterns(ctx, ticker, sweeps); err != nil {
			return err
		}
	}

	return p.prune(ctx, ticker, nowMs)
}

func (p *Processor) appendPatterns(ctx context.Context, ticker string, patterns []model.Pattern) error {
	for _, pat := range patterns {
		pat.ID = uuid.NewString()
		if err := p.store.AppendPattern(ctx, ticker, pat); err != nil {
			return err
		}
		telemetry.Patterns.WithLabelValues(string(pat.Kind)).Inc()
	}
	return nil
}

func (p *Processor) prune(ctx context.Context, ticker string, nowMs int64) error {
	if err := p.store.PruneQuotes(ctx, ticker, nowMs-p.cfg.QuoteTTLSeconds*1000); err != nil {
		return err
	}
	return p.store.PrunePatterns(ctx, ticker, nowMs-p.cfg.PatternTTLSeconds*1000)
}

func (p *Processor) touch(ticker string, lastQuoteMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.tracked[ticker]; ok && lastQuoteMs > st.lastSeen {
		st.lastSeen = lastQuoteMs
	}
}

func (p *Processor) trackerFor(ticker string) *level.Tracker {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.tracked[ticker]
	if !ok {
		st = &tracked{
			levels:   level.NewTracker(p.cfg.TickSizeFor(ticker)),
			lastSeen: p.now().UnixMilli(),
		}
		p.tracked[ticker] = st
	}
	return st.levels
}

// windowFilled reports whether the oldest fetched quote is old enough to
// cover the window. Counting span between first and last would reject a
// window whose quotes arrive exactly once a second.
func windowFilled(quotes []model.Quote, nowMs int64, w model.Window) bool {
	return len(quotes) > 0 && nowMs-quotes[0].Timestamp >= w.Millis()
}

// windowTail returns the suffix of quotes within the window ending at nowMs.
func windowTail(quotes []model.Quote, nowMs int64, w model.Window) []model.Quote {
	cutoff := nowMs - w.Millis()
	lo := sort.Search(len(quotes), func(i int) bool {
		return quotes[i].Timestamp >= cutoff
	})
	return quotes[lo:]
}

func tail(quotes []model.Quote, n int) []model.Quote {
	if len(quotes) <= n {
		return quotes
	}
	return quotes[len(quotes)-n:]
}

// metricsTTL keeps a derived slot alive for ten refresh horizons of its
// window, long enough for queries to read a recent slot after the feed stops.
func metricsTTL(w model.Window) time.Duration {
	return 10 * time.Duration(w.Seconds()) * time.Second
}
