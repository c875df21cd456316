// Package bus is the in-process quote pub/sub: the feed client publishes
// every parsed quote, and the store writer, journal and processor each hold
// their own subscription.
package bus

import (
	"sync"

	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
)

// Bus handles internal pub/sub of quotes.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan model.Quote
}

func New() *Bus {
	return &Bus{
		subscribers: make([]chan model.Quote, 0),
	}
}

// Subscribe returns a read-only channel of quotes.
func (b *Bus) Subscribe(bufferSize int) <-chan model.Quote {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.Quote, bufferSize)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish broadcasts the quote to all subscribers.
// Non-blocking publish: if a subscriber is slow/full, we drop the message.
// A dropped fan-out message is an upstream gap like any other; it lowers
// confidence downstream instead of blocking the publisher.
func (b *Bus) Publish(q model.Quote) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- q:
		default:
			// Slow consumer, dropping to keep the publisher unblocked
		}
	}
}
