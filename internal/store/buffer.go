package store

import (
	"sort"
	"sync"

	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
)

// quoteBuffer holds one ticker's quotes in ascending timestamp order.
// Thread-safe for a single writer (the publisher) and multiple readers
// (processor ticks, queries).
type quoteBuffer struct {
	mu     sync.RWMutex
	quotes []model.Quote
}

// add inserts by timestamp. Equal-timestamp entries collapse to the last
// observed. The common case is an in-order append at the tail; out-of-order
// arrivals fall back to a binary-search insert.
func (b *quoteBuffer) add(q model.Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.quotes)
	if n == 0 || q.Timestamp > b.quotes[n-1].Timestamp {
		b.quotes = append(b.quotes, q)
		return
	}
	if q.Timestamp == b.quotes[n-1].Timestamp {
		b.quotes[n-1] = q
		return
	}

	i := sort.Search(n, func(i int) bool { return b.quotes[i].Timestamp >= q.Timestamp })
	if i < n && b.quotes[i].Timestamp == q.Timestamp {
		b.quotes[i] = q
		return
	}
	b.quotes = append(b.quotes, model.Quote{})
	copy(b.quotes[i+1:], b.quotes[i:])
	b.quotes[i] = q
}

// latest returns the most recent quote.
func (b *quoteBuffer) latest() (model.Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.quotes) == 0 {
		return model.Quote{}, false
	}
	return b.quotes[len(b.quotes)-1], true
}

// between returns a copy of quotes with fromMs <= Timestamp <= toMs.
// The copy keeps readers isolated from concurrent appends: a caller holds a
// consistent snapshot of the window at the moment of the call.
func (b *quoteBuffer) between(fromMs, toMs int64) []model.Quote {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.quotes)
	lo := sort.Search(n, func(i int) bool { return b.quotes[i].Timestamp >= fromMs })
	hi := sort.Search(n, func(i int) bool { return b.quotes[i].Timestamp > toMs })
	if lo >= hi {
		return nil
	}
	out := make([]model.Quote, hi-lo)
	copy(out, b.quotes[lo:hi])
	return out
}

// prune drops quotes older than the cutoff. Idempotent.
func (b *quoteBuffer) prune(olderThanMs int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.quotes)
	i := sort.Search(n, func(i int) bool { return b.quotes[i].Timestamp >= olderThanMs })
	if i == 0 {
		return
	}
	b.quotes = append(b.quotes[:0], b.quotes[i:]...)
}

// size returns the current quote count.
func (b *quoteBuffer) size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.quotes)
}
