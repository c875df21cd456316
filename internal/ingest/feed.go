// Package ingest maintains the websocket connection to the upstream quote
// publisher and feeds parsed quotes onto the internal bus. Reconnects with
// exponential backoff; a dropped feed never takes the engine down.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fintools-ai/mcp-order-flow-server/internal/bus"
	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
	"github.com/fintools-ai/mcp-order-flow-server/internal/telemetry"
)

const (
	reconnectDelay    = 1 * time.Second
	maxReconnectDelay = 30 * time.Second
)

// quoteEvent matches the publisher's top-of-book JSON frame.
// Example: {"ticker":"SPY","timestamp":1723651200123,"bid_price":"450.10",
// "ask_price":"450.12","bid_size":5000,"ask_size":3200}
type quoteEvent struct {
	Ticker    string          `json:"ticker"`
	Timestamp int64           `json:"timestamp"`
	BidPrice  decimal.Decimal `json:"bid_price"`
	AskPrice  decimal.Decimal `json:"ask_price"`
	BidSize   int64           `json:"bid_size"`
	AskSize   int64           `json:"ask_size"`
}

type Feed struct {
	url string
	bus *bus.Bus
	log *zap.Logger
}

func NewFeed(url string, b *bus.Bus, log *zap.Logger) *Feed {
	return &Feed{url: url, bus: b, log: log}
}

func (f *Feed) Start(ctx context.Context) {
	go f.loop(ctx)
}

func (f *Feed) loop(ctx context.Context) {
	delay := reconnectDelay

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := f.connectAndConsume(ctx)
		if err != nil {
			f.log.Warn("feed disconnected",
				zap.Error(err), zap.Duration("retry_in", delay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
		} else {
			delay = reconnectDelay
		}
	}
}

func (f *Feed) connectAndConsume(ctx context.Context) error {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	f.log.Info("connected to quote feed", zap.String("url", f.url))

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var event quoteEvent
		if err := c.ReadJSON(&event); err != nil {
			return err
		}

		q, ok := toQuote(event)
		if !ok {
			// Malformed frame from the publisher; skip, don't reconnect.
			continue
		}

		f.bus.Publish(q)
		telemetry.QuotesIngested.WithLabelValues(q.Ticker).Inc()
	}
}

// toQuote validates a frame against the quote invariants: positive bid,
// ask at or above bid, non-negative sizes.
func toQuote(e quoteEvent) (model.Quote, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(e.Ticker))
	if ticker == "" || e.Timestamp <= 0 {
		return model.Quote{}, false
	}
	if e.BidPrice.Sign() <= 0 || e.AskPrice.Cmp(e.BidPrice) < 0 {
		return model.Quote{}, false
	}
	if e.BidSize < 0 || e.AskSize < 0 {
		return model.Quote{}, false
	}
	return model.Quote{
		Ticker:    ticker,
		Timestamp: e.Timestamp,
		BidPrice:  e.BidPrice,
		AskPrice:  e.AskPrice,
		BidSize:   e.BidSize,
		AskSize:   e.AskSize,
	}, true
}
