package api

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Symbols this client follows. Empty means everything.
	subMu sync.RWMutex
	subs  map[string]bool
}

// clientMsg is an inbound control message:
//
//	{"type":"SUBSCRIBE","symbols":["EURUSD"]}
//	{"type":"UNSUBSCRIBE","symbols":["EURUSD"]}
//	{"ping":1710331200000}
type clientMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]bool),
	}
}

func (c *Client) sendInitialState() {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	for channel, entry := range c.hub.latest {
		if !c.wants(channel) {
			continue
		}
		select {
		case c.send <- envelope(channel, entry.Data, entry.TS, c.hub.seqs[channel], true):
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
		c.hub.logger.Info("[api] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var msg clientMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}

		switch msg.Type {
		case "SUBSCRIBE":
			c.subscribe(msg.Symbols)
			c.reply(map[string]interface{}{"type": "subscribed", "symbols": c.symbols()})
		case "UNSUBSCRIBE":
			c.unsubscribe(msg.Symbols)
			c.reply(map[string]interface{}{"type": "unsubscribed", "symbols": c.symbols()})
		default:
			if msg.Ping > 0 {
				c.reply(map[string]interface{}{
					"type":      "pong",
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
			} else {
				c.hub.logger.Debug("[api] unknown client message", slog.String("type", msg.Type))
			}
		}
	}
}

// reply queues a control response. It is dropped when the client is slow.
func (c *Client) reply(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (c *Client) subscribe(symbols []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range symbols {
		if s = strings.TrimSpace(s); s != "" {
			c.subs[s] = true
		}
	}
}

func (c *Client) unsubscribe(symbols []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range symbols {
		delete(c.subs, strings.TrimSpace(s))
	}
}

func (c *Client) symbols() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	out := make([]string, 0, len(c.subs))
	for s := range c.subs {
		out = append(out, s)
	}
	return out
}

// wants reports whether a channel should be delivered to this client.
// The ranked list is always delivered.
func (c *Client) wants(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.subs) == 0 {
		return true
	}
	sym := strings.TrimPrefix(channel, quotePrefix)
	if sym == channel {
		sym = strings.TrimPrefix(channel, signalPrefix)
		if sym == channel {
			return true
		}
	}
	return c.subs[sym]
}
