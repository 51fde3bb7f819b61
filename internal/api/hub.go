package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signalengine/internal/logger"
	"signalengine/internal/model"
)

// Channel names carried in envelopes.
const (
	ChannelSignals = "signals"
	quotePrefix    = "quote:"
	signalPrefix   = "signal:"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

type latestEntry struct {
	Data []byte
	TS   time.Time
}

// Hub fans quotes and signals out to dashboard WebSocket clients. Every
// envelope is {"channel","data","ts","seq"} with seq increasing per channel.
// A new client first receives the latest envelope of every channel.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seqs    map[string]int64
	logger  *slog.Logger
	now     func() time.Time
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(l *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string]latestEntry),
		seqs:    make(map[string]int64),
		logger:  logger.Component(l, "api"),
		now:     time.Now,
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("[api] ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn)
	if syms := r.URL.Query().Get("symbols"); syms != "" {
		c.subscribe(strings.Split(syms, ","))
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("[api] ws client connected", slog.Int("clients", count))

	c.sendInitialState()
	go c.writePump()
	go c.readPump()
}

// PublishSignals broadcasts the ranked list and each signal on its own
// channel. It implements model.SignalSink.
func (h *Hub) PublishSignals(_ context.Context, signals []model.TradingSignal) error {
	if signals == nil {
		signals = []model.TradingSignal{}
	}
	data, err := json.Marshal(signals)
	if err != nil {
		return err
	}
	h.Broadcast(ChannelSignals, data)
	for i := range signals {
		h.Broadcast(signalPrefix+signals[i].Symbol, signals[i].JSON())
	}
	return nil
}

// PublishQuote broadcasts one quote. It implements model.QuotePublisher.
func (h *Hub) PublishQuote(_ context.Context, q model.Quote) error {
	h.Broadcast(quotePrefix+q.Symbol, q.JSON())
	return nil
}

// Broadcast sends data on a channel to every client interested in it.
// Slow clients lose messages instead of blocking the sender.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := h.now().UTC()

	h.mu.Lock()
	h.seqs[channel]++
	seq := h.seqs[channel]
	h.latest[channel] = latestEntry{Data: data, TS: now}
	h.mu.Unlock()

	buf := envelope(channel, data, now, seq, false)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(channel) {
			continue
		}
		select {
		case c.send <- buf:
		default:
		}
	}
}

// envelope hand-crafts the JSON wrapper around an already encoded payload.
func envelope(channel string, data []byte, ts time.Time, seq int64, initial bool) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+96)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	buf = append(buf, '}')
	return buf
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	return nil
}
