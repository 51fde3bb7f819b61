// Package bus provides the quote listener registry.
//
// Every registered listener gets every published quote through its own
// bounded mailbox drained by its own goroutine. Publish never blocks: a
// full mailbox drops the quote for that listener only, and a panicking
// listener is recovered and keeps its subscription.
package bus

import (
	"log/slog"
	"sync"

	"signalengine/internal/model"
)

// Listener receives quote updates.
type Listener func(q model.Quote)

type subscription struct {
	id   string
	fn   Listener
	ch   chan model.Quote
	once sync.Once
}

// Registry is an observer registry keyed by listener id.
type Registry struct {
	mu      sync.RWMutex
	subs    map[string]*subscription
	bufSize int
	closed  bool
	wg      sync.WaitGroup
	logger  *slog.Logger

	// OnDrop is called when a quote is dropped for a slow listener.
	OnDrop func(listenerID string)

	// OnPanic is called after a listener panic was recovered.
	OnPanic func(listenerID string, recovered any)
}

// New creates a Registry whose listener mailboxes hold bufSize quotes.
func New(bufSize int, logger *slog.Logger) *Registry {
	if bufSize < 1 {
		bufSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		subs:    make(map[string]*subscription),
		bufSize: bufSize,
		logger:  logger,
	}
}

// Subscribe registers fn under id and returns its unsubscribe func.
// Subscribing an id that is already registered replaces the old listener.
// The returned func is safe to call more than once.
func (r *Registry) Subscribe(id string, fn Listener) (unsubscribe func()) {
	s := &subscription{id: id, fn: fn, ch: make(chan model.Quote, r.bufSize)}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return func() {}
	}
	if old, ok := r.subs[id]; ok {
		r.closeLocked(old)
	}
	r.subs[id] = s
	r.wg.Add(1)
	r.mu.Unlock()

	go r.drain(s)

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.subs[id]; ok && cur == s {
			delete(r.subs, id)
		}
		r.closeLocked(s)
	}
}

// closeLocked closes a mailbox once. Caller holds r.mu for writing, so no
// Publish can be sending on it.
func (r *Registry) closeLocked(s *subscription) {
	s.once.Do(func() { close(s.ch) })
}

func (r *Registry) drain(s *subscription) {
	defer r.wg.Done()
	for q := range s.ch {
		r.invoke(s, q)
	}
}

func (r *Registry) invoke(s *subscription, q model.Quote) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("[bus] listener panicked",
				slog.String("listener", s.id),
				slog.String("symbol", q.Symbol),
				slog.Any("panic", rec),
			)
			if r.OnPanic != nil {
				r.OnPanic(s.id, rec)
			}
		}
	}()
	s.fn(q)
}

// Publish hands q to every listener without blocking.
func (r *Registry) Publish(q model.Quote) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, s := range r.subs {
		select {
		case s.ch <- q:
		default:
			if r.OnDrop != nil {
				r.OnDrop(id)
			} else {
				r.logger.Warn("[bus] listener mailbox full, dropping quote",
					slog.String("listener", id), slog.String("symbol", q.Symbol))
			}
		}
	}
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// ChannelStat reports mailbox saturation for one listener.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns mailbox (length, capacity) per listener id.
func (r *Registry) ChannelStats() map[string]ChannelStat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make(map[string]ChannelStat, len(r.subs))
	for id, s := range r.subs {
		stats[id] = ChannelStat{Len: len(s.ch), Cap: cap(s.ch)}
	}
	return stats
}

// Close unregisters every listener and waits for their mailboxes to drain.
// Later Subscribe calls are no-ops.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	for id, s := range r.subs {
		r.closeLocked(s)
		delete(r.subs, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
