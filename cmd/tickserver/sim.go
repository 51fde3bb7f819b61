package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signalengine/internal/marketdata/ws"
)

// priceEvent is the provider's price push.
type priceEvent struct {
	Event     string  `json:"event"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Timestamp int64   `json:"timestamp"`
}

type symbolRef struct {
	Symbol string `json:"symbol"`
}

type subscribeStatus struct {
	Event   string      `json:"event"`
	Status  string      `json:"status"`
	Success []symbolRef `json:"success"`
	Fails   []symbolRef `json:"fails"`
}

// simulator random-walks a fixed set of provider symbols and streams them to
// every connection that subscribed.
type simulator struct {
	mu      sync.RWMutex
	prices  map[string]float64
	clients map[*simClient]bool
	rng     *rand.Rand
	spread  float64
	logger  *slog.Logger
	now     func() time.Time
}

type simClient struct {
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

func (c *simClient) subscribed(sym string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[sym]
}

func newSimulator(prices map[string]float64, seed int64, l *slog.Logger) *simulator {
	cp := make(map[string]float64, len(prices))
	for k, v := range prices {
		cp[k] = v
	}
	return &simulator{
		prices:  cp,
		clients: make(map[*simClient]bool),
		rng:     rand.New(rand.NewSource(seed)),
		spread:  0.00005,
		logger:  l,
		now:     time.Now,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// step moves every price by up to ±0.05% and broadcasts the new quotes.
func (s *simulator) step() {
	ts := s.now().Unix()

	s.mu.Lock()
	events := make([]priceEvent, 0, len(s.prices))
	for sym, p := range s.prices {
		p *= 1 + (s.rng.Float64()*0.1-0.05)/100
		s.prices[sym] = p
		events = append(events, priceEvent{
			Event:     ws.EventPrice,
			Symbol:    sym,
			Price:     p,
			Bid:       p * (1 - s.spread),
			Ask:       p * (1 + s.spread),
			Timestamp: ts,
		})
	}
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		for c := range s.clients {
			if !c.subscribed(ev.Symbol) {
				continue
			}
			select {
			case c.send <- b:
			default: // slow client, drop tick
			}
		}
	}
}

func (s *simulator) run(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.step()
		}
	}
}

func (s *simulator) known(sym string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.prices[sym]
	return ok
}

// handleWS serves the streaming protocol.
func (s *simulator) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("[tickserver] upgrade error", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("[tickserver] client connected", slog.String("remote", r.RemoteAddr))

	c := &simClient{send: make(chan []byte, 256), subs: make(map[string]bool)}
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	go func() {
		for msg := range c.send {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				conn.Close()
				return
			}
		}
	}()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		close(c.send)
		s.mu.Unlock()
		conn.Close()
		s.logger.Info("[tickserver] client disconnected", slog.String("remote", r.RemoteAddr))
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f ws.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			s.reply(c, map[string]string{"event": ws.EventError, "status": "error", "message": "invalid json"})
			continue
		}
		switch f.Action {
		case ws.ActionHeartbeat:
			s.reply(c, map[string]string{"event": ws.EventHeartbeat, "status": "ok"})
		case ws.ActionSubscribe:
			st := subscribeStatus{Event: ws.EventSubscribeStatus, Status: "ok", Success: []symbolRef{}, Fails: []symbolRef{}}
			c.mu.Lock()
			for _, sym := range f.Symbols() {
				sym = strings.TrimSpace(sym)
				if s.known(sym) {
					c.subs[sym] = true
					st.Success = append(st.Success, symbolRef{sym})
				} else {
					st.Fails = append(st.Fails, symbolRef{sym})
				}
			}
			c.mu.Unlock()
			s.reply(c, st)
		case ws.ActionUnsubscribe:
			c.mu.Lock()
			for _, sym := range f.Symbols() {
				delete(c.subs, strings.TrimSpace(sym))
			}
			c.mu.Unlock()
		default:
			s.reply(c, map[string]string{"event": ws.EventError, "status": "error", "message": "unknown action " + f.Action})
		}
	}
}

func (s *simulator) reply(c *simClient, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.clients[c] {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

// handlePrice serves GET /price?symbol=A,B. A single symbol answers with the
// bare object, several with a map keyed by symbol.
func (s *simulator) handlePrice(w http.ResponseWriter, r *http.Request) {
	syms := strings.Split(r.URL.Query().Get("symbol"), ",")
	out := make(map[string]interface{}, len(syms))

	s.mu.RLock()
	for _, sym := range syms {
		if p, ok := s.prices[sym]; ok {
			out[sym] = map[string]string{"price": strconv.FormatFloat(p, 'f', 6, 64)}
		} else {
			out[sym] = map[string]string{"status": "error", "message": "symbol not found"}
		}
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if len(syms) == 1 {
		json.NewEncoder(w).Encode(out[syms[0]])
		return
	}
	json.NewEncoder(w).Encode(out)
}
