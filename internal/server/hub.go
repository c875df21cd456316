package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // internal tooling surface, no origin policy
	},
}

// Hub fans live quotes out to websocket subscribers. Each client watches one
// ticker; a quote is serialized once and delivered to every matching client.
type Hub struct {
	log        *zap.Logger
	register   chan *client
	unregister chan *client
	clients    map[*client]struct{}
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:        log,
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]struct{}),
	}
}

// Run drives the fan-out loop until the context is cancelled.
func (h *Hub) Run(ctx context.Context, quotes <-chan model.Quote) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.log.Info("ws client connected",
				zap.String("ticker", c.ticker), zap.Int("total", len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.log.Info("ws client disconnected", zap.Int("total", len(h.clients)))
			}
		case q := <-quotes:
			// Serialize once per quote.
			msg := q.AppendMsgPack(make([]byte, 0, 96))
			for c := range h.clients {
				if c.ticker != q.Ticker {
					continue
				}
				select {
				case c.send <- msg:
				default:
					// Slow client, drop this quote. Dead clients are
					// cleaned up via readPump.
				}
			}
		}
	}
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	ticker string
	send   chan []byte
}

func (h *Hub) serveWS(ticker string, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{hub: h, conn: conn, ticker: ticker, send: make(chan []byte, 256)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for {
		msg, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return
		}
	}
}
