package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
)

// Memory is the in-process Quote Store realization: per-ticker sorted buffers
// for quotes and patterns, plus expiring slots for derived data. It never
// returns ErrUnavailable.
type Memory struct {
	mu      sync.RWMutex
	buffers map[string]*quoteBuffer

	slotMu    sync.RWMutex
	metrics   map[string]metricsSlot  // key: ticker|window
	behaviors map[string]behaviorSlot // key: ticker
	levels    map[string]levelSlot    // key: ticker|side

	patMu    sync.RWMutex
	patterns map[string][]model.Pattern // ascending by Timestamp

	now func() time.Time // injectable for tests
}

type metricsSlot struct {
	m        model.WindowMetrics
	deadline time.Time
}

type behaviorSlot struct {
	b        model.Behaviors
	deadline time.Time
}

type levelSlot struct {
	levels   []model.PriceLevel
	deadline time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		buffers:   make(map[string]*quoteBuffer),
		metrics:   make(map[string]metricsSlot),
		behaviors: make(map[string]behaviorSlot),
		levels:    make(map[string]levelSlot),
		patterns:  make(map[string][]model.Pattern),
		now:       time.Now,
	}
}

func (s *Memory) buffer(ticker string, create bool) *quoteBuffer {
	s.mu.RLock()
	b := s.buffers[ticker]
	s.mu.RUnlock()
	if b != nil || !create {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b = s.buffers[ticker]; b == nil {
		b = &quoteBuffer{}
		s.buffers[ticker] = b
	}
	return b
}

func (s *Memory) AppendQuote(_ context.Context, q model.Quote) error {
	s.buffer(q.Ticker, true).add(q)
	return nil
}

func (s *Memory) LatestQuote(_ context.Context, ticker string) (model.Quote, bool, error) {
	b := s.buffer(ticker, false)
	if b == nil {
		return model.Quote{}, false, nil
	}
	q, ok := b.latest()
	return q, ok, nil
}

func (s *Memory) QuoteRange(_ context.Context, ticker string, fromMs, toMs int64) ([]model.Quote, error) {
	b := s.buffer(ticker, false)
	if b == nil {
		return nil, nil
	}
	return b.between(fromMs, toMs), nil
}

func (s *Memory) PruneQuotes(_ context.Context, ticker string, olderThanMs int64) error {
	if b := s.buffer(ticker, false); b != nil {
		b.prune(olderThanMs)
	}
	return nil
}

func (s *Memory) PutMetrics(_ context.Context, ticker string, m model.WindowMetrics, ttl time.Duration) error {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	s.metrics[ticker+"|"+m.Window.Slot()] = metricsSlot{m: m, deadline: s.now().Add(ttl)}
	return nil
}

func (s *Memory) GetMetrics(_ context.Context, ticker string, w model.Window) (model.WindowMetrics, bool, error) {
	s.slotMu.RLock()
	defer s.slotMu.RUnlock()
	slot, ok := s.metrics[ticker+"|"+w.Slot()]
	if !ok || s.now().After(slot.deadline) {
		return model.WindowMetrics{}, false, nil
	}
	return slot.m, true, nil
}

func (s *Memory) PutBehaviors(_ context.Context, ticker string, b model.Behaviors, ttl time.Duration) error {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	s.behaviors[ticker] = behaviorSlot{b: b, deadline: s.now().Add(ttl)}
	return nil
}

func (s *Memory) GetBehaviors(_ context.Context, ticker string) (model.Behaviors, bool, error) {
	s.slotMu.RLock()
	defer s.slotMu.RUnlock()
	slot, ok := s.behaviors[ticker]
	if !ok || s.now().After(slot.deadline) {
		return model.Behaviors{}, false, nil
	}
	return slot.b, true, nil
}

func (s *Memory) AppendPattern(_ context.Context, ticker string, p model.Pattern) error {
	s.patMu.Lock()
	defer s.patMu.Unlock()

	log := s.patterns[ticker]
	key := p.SuppressionKey()

	// Suppression: a same-identity entry within the window collapses with
	// the candidate, later timestamp winning.
	for _, existing := range log {
		if existing.SuppressionKey() == key && existing.Timestamp > p.Timestamp &&
			existing.Timestamp-p.Timestamp <= SuppressionWindowMs {
			return nil // a later occurrence already holds the slot
		}
	}
	kept := log[:0]
	for _, existing := range log {
		if existing.SuppressionKey() == key {
			if d := p.Timestamp - existing.Timestamp; d >= 0 && d <= SuppressionWindowMs {
				continue // earlier occurrence gives way to the candidate
			}
		}
		kept = append(kept, existing)
	}
	log = kept

	n := len(log)
	i := sort.Search(n, func(i int) bool { return log[i].Timestamp >= p.Timestamp })
	log = append(log, model.Pattern{})
	copy(log[i+1:], log[i:])
	log[i] = p
	s.patterns[ticker] = log
	return nil
}

func (s *Memory) PatternRange(_ context.Context, ticker string, fromMs, toMs int64) ([]model.Pattern, error) {
	s.patMu.RLock()
	defer s.patMu.RUnlock()

	log := s.patterns[ticker]
	n := len(log)
	lo := sort.Search(n, func(i int) bool { return log[i].Timestamp >= fromMs })
	hi := sort.Search(n, func(i int) bool { return log[i].Timestamp > toMs })
	if lo >= hi {
		return nil, nil
	}
	out := make([]model.Pattern, hi-lo)
	copy(out, log[lo:hi])
	return out, nil
}

func (s *Memory) PrunePatterns(_ context.Context, ticker string, olderThanMs int64) error {
	s.patMu.Lock()
	defer s.patMu.Unlock()

	log := s.patterns[ticker]
	n := len(log)
	i := sort.Search(n, func(i int) bool { return log[i].Timestamp >= olderThanMs })
	if i == 0 {
		return nil
	}
	s.patterns[ticker] = append(log[:0], log[i:]...)
	return nil
}

func (s *Memory) PutLevels(_ context.Context, ticker string, side model.Side, levels []model.PriceLevel, ttl time.Duration) error {
	cp := make([]model.PriceLevel, len(levels))
	copy(cp, levels)

	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	s.levels[ticker+"|"+string(side)] = levelSlot{levels: cp, deadline: s.now().Add(ttl)}
	return nil
}

func (s *Memory) GetLevels(_ context.Context, ticker string, side model.Side) ([]model.PriceLevel, error) {
	s.slotMu.RLock()
	defer s.slotMu.RUnlock()
	slot, ok := s.levels[ticker+"|"+string(side)]
	if !ok || s.now().After(slot.deadline) {
		return nil, nil
	}
	out := make([]model.PriceLevel, len(slot.levels))
	copy(out, slot.levels)
	return out, nil
}

func (s *Memory) ActiveTickers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.buffers))
	for ticker, b := range s.buffers {
		if b.size() > 0 {
			out = append(out, ticker)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Memory) Ping(context.Context) error { return nil }
