// Package quotecache holds the latest quote per local symbol, a short price
// history per symbol, and publishes every update to the listener registry.
//
// There is a single writer (the ingestion service); readers get copies.
package quotecache

import (
	"math"
	"sort"
	"sync"
	"time"

	"signalengine/internal/marketdata/bus"
	"signalengine/internal/model"
	"signalengine/internal/ringbuf"
)

// Config controls history depth and snapshot reuse.
type Config struct {
	// HistorySize is the number of price samples kept per symbol.
	HistorySize int
	// SnapshotTTL bounds how long a Snapshot copy is reused between updates.
	SnapshotTTL time.Duration
}

func (c *Config) defaults() {
	if c.HistorySize <= 0 {
		c.HistorySize = 128
	}
	if c.SnapshotTTL <= 0 {
		c.SnapshotTTL = time.Second
	}
}

// Cache is the in-memory quote store.
type Cache struct {
	cfg       Config
	listeners *bus.Registry
	now       func() time.Time

	mu         sync.RWMutex
	quotes     map[string]model.Quote
	history    map[string]*ringbuf.Ring
	lastUpdate time.Time
	version    uint64

	snapMu      sync.Mutex
	snap        map[string]model.Quote
	snapVersion uint64
	snapAt      time.Time
}

// New creates a Cache. listeners may be nil when nothing subscribes.
func New(cfg Config, listeners *bus.Registry) *Cache {
	cfg.defaults()
	return &Cache{
		cfg:       cfg,
		listeners: listeners,
		now:       time.Now,
		quotes:    make(map[string]model.Quote),
		history:   make(map[string]*ringbuf.Ring),
	}
}

// Apply records a new tick for a local symbol and returns the resulting
// quote. Change and ChangePercent are computed against the previous quote
// for the same symbol (0 when there is none). Bid and Ask default to price.
func (c *Cache) Apply(symbol string, price, bid, ask float64, timestampMs int64) model.Quote {
	if bid <= 0 {
		bid = price
	}
	if ask <= 0 {
		ask = price
	}
	q := model.Quote{
		Symbol:      symbol,
		Price:       price,
		Bid:         bid,
		Ask:         ask,
		TimestampMs: timestampMs,
	}

	c.mu.Lock()
	if prev, ok := c.quotes[symbol]; ok {
		q.Change = price - prev.Price
		if prev.Price != 0 {
			q.ChangePercent = q.Change / prev.Price * 100
		}
	}
	c.quotes[symbol] = q
	h, ok := c.history[symbol]
	if !ok {
		h = ringbuf.New(c.cfg.HistorySize)
		c.history[symbol] = h
	}
	h.Push(model.PriceSample{Price: price, TimestampMs: timestampMs})
	c.lastUpdate = c.now()
	c.version++
	c.mu.Unlock()

	if c.listeners != nil {
		c.listeners.Publish(q)
	}
	return q
}

// Quote returns the latest quote for symbol.
func (c *Cache) Quote(symbol string) (model.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[symbol]
	return q, ok
}

// Snapshot returns every latest quote keyed by symbol. The copy is reused
// until the next update or until SnapshotTTL elapses; callers must not
// modify it.
func (c *Cache) Snapshot() map[string]model.Quote {
	c.mu.RLock()
	version := c.version
	c.mu.RUnlock()

	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	if c.snap != nil && c.snapVersion == version && c.now().Sub(c.snapAt) < c.cfg.SnapshotTTL {
		return c.snap
	}

	c.mu.RLock()
	out := make(map[string]model.Quote, len(c.quotes))
	for k, v := range c.quotes {
		out[k] = v
	}
	c.snapVersion = c.version
	c.mu.RUnlock()

	c.snap = out
	c.snapAt = c.now()
	return out
}

// History returns the recent price samples for symbol, oldest first.
func (c *Cache) History(symbol string) []model.PriceSample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.history[symbol]
	if !ok {
		return nil
	}
	return h.Snapshot(0)
}

// Symbols lists symbols with a quote, sorted.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.quotes))
	for s := range c.quotes {
		out = append(out, s)
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// LastUpdate returns the wall-clock time of the last Apply. ok is false when
// nothing has been applied since creation or the last Clear.
func (c *Cache) LastUpdate() (t time.Time, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate, !c.lastUpdate.IsZero()
}

// Staleness is the time since the last update, or the maximum duration
// when nothing was applied.
func (c *Cache) Staleness() time.Duration {
	t, ok := c.LastUpdate()
	if !ok {
		return time.Duration(math.MaxInt64)
	}
	return c.now().Sub(t)
}

// Clear drops every quote and history. Safe to call repeatedly.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.quotes = make(map[string]model.Quote)
	c.history = make(map[string]*ringbuf.Ring)
	c.lastUpdate = time.Time{}
	c.version++
	c.mu.Unlock()

	c.snapMu.Lock()
	c.snap = nil
	c.snapMu.Unlock()
}

// Len returns the number of symbols held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quotes)
}
