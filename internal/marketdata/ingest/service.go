// Package ingest keeps a live quote cache fed from the provider stream.
//
// Lifecycle:
//
//	Disconnected → Connecting → Subscribing → Streaming
//	     ↑              ↓ (error/close)
//	     └──── Reconnecting (doubling backoff, capped attempts) → Fallback (REST polling)
//
// The tick path only decodes, aliases the symbol and writes the cache.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"signalengine/internal/logger"
	"signalengine/internal/marketdata/quotecache"
	"signalengine/internal/marketdata/ws"
	"signalengine/internal/markethours"
	"signalengine/internal/model"
)

var (
	// ErrAlreadyRunning is returned by Start on a running service.
	ErrAlreadyRunning = errors.New("ingest: already running")
	// ErrNoSymbols is returned by Start when nothing is tracked.
	ErrNoSymbols = errors.New("ingest: no symbols configured")
)

// Poller fetches quotes over REST while the stream is unavailable.
type Poller interface {
	FetchQuotes(ctx context.Context, symbols []string) ([]model.ProviderTick, error)
}

// Config holds connection and pacing settings. Zero values take defaults.
type Config struct {
	URL     string
	Symbols []string

	BatchSize         int
	BatchDelay        time.Duration
	KeepAliveInterval time.Duration

	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	MaxReconnectAttempts int

	PollInterval          time.Duration
	FallbackRetryInterval time.Duration
	HealthCheckInterval   time.Duration
}

func (c *Config) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 8
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = 250 * time.Millisecond
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 10 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.FallbackRetryInterval <= 0 {
		c.FallbackRetryInterval = 2 * time.Minute
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
}

// Service owns the provider connection and is the only writer of the cache.
type Service struct {
	cfg     Config
	symbols []string
	dialer  ws.Dialer
	poller  Poller
	cache   *quotecache.Cache
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	subMu      sync.Mutex
	subscribed map[string]bool

	state       atomic.Int32
	lastMessage atomic.Int64

	// Optional hooks. Set them before Start.
	OnStateChange    func(from, to State)
	OnTick           func(q model.Quote)
	OnMalformed      func(err error)
	OnReconnect      func(attempt int, delay time.Duration)
	OnSubscribeBatch func(symbols []string)
	OnFallbackPoll   func(ticks int, err error)
}

// New creates a Service. poller may be nil, in which case fallback mode
// only waits for the next stream retry.
func New(cfg Config, dialer ws.Dialer, poller Poller, cache *quotecache.Cache, l *slog.Logger) *Service {
	cfg.defaults()
	return &Service{
		cfg:        cfg,
		symbols:    dedupe(cfg.Symbols),
		dialer:     dialer,
		poller:     poller,
		cache:      cache,
		logger:     logger.Component(l, "ingest"),
		now:        time.Now,
		subscribed: make(map[string]bool),
	}
}

// dedupe keeps the first occurrence of each provider symbol, in order.
func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Start launches the connection loop and returns immediately.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	if len(s.symbols) == 0 {
		return ErrNoSymbols
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, s.done)
	s.logger.Info("[ingest] started", slog.Int("symbols", len(s.symbols)), slog.Int("batch_size", s.cfg.BatchSize))
	return nil
}

// Stop closes the connection, stops every timer and goroutine, and clears
// the subscription set and the cache. Calling it again is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.resetSubscriptions()
	s.cache.Clear()
	s.setState(StateDisconnected)
	s.logger.Info("[ingest] stopped")
}

// State returns the current lifecycle state.
func (s *Service) State() State { return State(s.state.Load()) }

// IsActive reports whether the stream is live.
func (s *Service) IsActive() bool { return s.State() == StateStreaming }

// Symbols returns the tracked provider symbols in configuration order.
func (s *Service) Symbols() []string {
	return append([]string(nil), s.symbols...)
}

// Subscriptions returns the provider symbols subscribed on the current
// connection.
func (s *Service) Subscriptions() []string {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	out := make([]string, 0, len(s.subscribed))
	for _, sym := range s.symbols {
		if s.subscribed[sym] {
			out = append(out, sym)
		}
	}
	return out
}

// LastMessage is the arrival time of the last inbound message on any
// connection; ok is false before the first one.
func (s *Service) LastMessage() (t time.Time, ok bool) {
	ns := s.lastMessage.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

func (s *Service) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	s.logger.Debug("[ingest] state", slog.String("from", from.String()), slog.String("to", to.String()))
	if s.OnStateChange != nil {
		s.OnStateChange(from, to)
	}
}

// run is the reconnect loop. It owns the health checker.
func (s *Service) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.healthLoop(ctx)
	}()
	defer wg.Wait()

	attempts := 0
	delay := s.cfg.ReconnectDelay
	for {
		if ctx.Err() != nil {
			return
		}
		s.setState(StateConnecting)
		streamed, err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if streamed {
			attempts = 0
			delay = s.cfg.ReconnectDelay
		}
		attempts++
		s.logger.Warn("[ingest] connection lost", slog.String("error", errString(err)), slog.Int("attempt", attempts))

		if attempts >= s.cfg.MaxReconnectAttempts {
			s.logger.Warn("[ingest] reconnect attempts exhausted, switching to REST polling",
				slog.Duration("retry_in", s.cfg.FallbackRetryInterval))
			s.fallback(ctx)
			attempts = 0
			delay = s.cfg.ReconnectDelay
			continue
		}

		s.setState(StateReconnecting)
		if s.OnReconnect != nil {
			s.OnReconnect(attempts, delay)
		}
		s.logger.Info("[ingest] reconnecting", slog.Duration("delay", delay), slog.Int("attempt", attempts))
		if !sleep(ctx, delay) {
			return
		}

		delay *= 2
		if delay > s.cfg.MaxReconnectDelay {
			delay = s.cfg.MaxReconnectDelay
		}
	}
}

// session runs one connection until it fails or ctx ends. streamed reports
// whether it reached StateStreaming.
func (s *Service) session(ctx context.Context) (streamed bool, err error) {
	conn, err := s.dialer.Dial(ctx, s.cfg.URL)
	if err != nil {
		return false, err
	}

	sessCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 2)
	fail := func(err error) {
		select {
		case errCh <- err:
		default:
		}
		cancel()
	}

	var wg sync.WaitGroup
	defer func() {
		cancel()
		conn.Close()
		wg.Wait()
		s.resetSubscriptions()
	}()

	if err := conn.WriteJSON(ws.HeartbeatFrame()); err != nil {
		return false, fmt.Errorf("ingest: initial keep-alive: %w", err)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLoop(conn, fail)
	}()
	go func() {
		defer wg.Done()
		s.keepAlive(sessCtx, conn, fail)
	}()

	s.setState(StateSubscribing)
	if err := s.subscribeAll(sessCtx, conn); err != nil {
		select {
		case cause := <-errCh:
			return false, cause
		default:
			return false, err
		}
	}

	s.setState(StateStreaming)
	s.logger.Info("[ingest] streaming", slog.Int("subscriptions", len(s.Subscriptions())))

	select {
	case <-ctx.Done():
		return true, nil
	case err := <-errCh:
		return true, err
	}
}

// subscribeAll sends every not-yet-subscribed symbol in BatchSize chunks,
// one chunk per BatchDelay.
func (s *Service) subscribeAll(ctx context.Context, conn ws.Conn) error {
	limiter := rate.NewLimiter(rate.Every(s.cfg.BatchDelay), 1)
	for start := 0; start < len(s.symbols); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(s.symbols) {
			end = len(s.symbols)
		}
		batch := s.pending(s.symbols[start:end])
		if len(batch) == 0 {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		frame := ws.SubscribeFrame(batch)
		if err := conn.WriteJSON(frame); err != nil {
			return fmt.Errorf("ingest: subscribe batch: %w", err)
		}
		s.markSubscribed(batch)
		s.logger.Debug("[ingest] subscribe batch sent",
			slog.String("correlation_id", frame.CorrelationID), slog.Int("symbols", len(batch)))
		if s.OnSubscribeBatch != nil {
			s.OnSubscribeBatch(batch)
		}
	}
	return nil
}

func (s *Service) pending(batch []string) []string {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	out := make([]string, 0, len(batch))
	for _, sym := range batch {
		if !s.subscribed[sym] {
			out = append(out, sym)
		}
	}
	return out
}

func (s *Service) markSubscribed(batch []string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, sym := range batch {
		s.subscribed[sym] = true
	}
}

func (s *Service) resetSubscriptions() {
	s.subMu.Lock()
	s.subscribed = make(map[string]bool)
	s.subMu.Unlock()
}

// readLoop processes inbound messages in arrival order until the
// connection fails.
func (s *Service) readLoop(conn ws.Conn, fail func(error)) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			fail(fmt.Errorf("ingest: read: %w", err))
			return
		}
		s.lastMessage.Store(s.now().UnixNano())
		s.handleMessage(data)
	}
}

func (s *Service) handleMessage(data []byte) {
	msg, err := ws.DecodeMessage(data)
	if err != nil {
		s.logger.Debug("[ingest] dropping message", slog.String("error", err.Error()))
		if s.OnMalformed != nil {
			s.OnMalformed(err)
		}
		return
	}

	switch msg.Event {
	case ws.EventPrice:
		s.applyTick(msg.Tick)
	case ws.EventSubscribeStatus:
		if len(msg.Fails) > 0 {
			s.logger.Warn("[ingest] provider refused symbols", slog.Any("symbols", msg.Fails))
		}
		s.logger.Debug("[ingest] subscribe status", slog.String("status", msg.Status), slog.Int("ok", len(msg.Success)))
	case ws.EventHeartbeat:
	case ws.EventError:
		s.logger.Warn("[ingest] provider error", slog.String("message", msg.Text))
	}
}

// applyTick aliases the provider symbol and writes the cache.
func (s *Service) applyTick(t model.ProviderTick) {
	now := s.now()
	local := markethours.LocalSymbol(t.Symbol, now)
	tsMs := t.EpochSeconds * 1000
	if tsMs <= 0 {
		tsMs = now.UnixMilli()
	}
	q := s.cache.Apply(local, t.Price, t.Bid, t.Ask, tsMs)
	if s.OnTick != nil {
		s.OnTick(q)
	}
}

func (s *Service) keepAlive(ctx context.Context, conn ws.Conn, fail func(error)) {
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(ws.HeartbeatFrame()); err != nil {
				fail(fmt.Errorf("ingest: keep-alive: %w", err))
				return
			}
		}
	}
}

// fallback polls over REST until FallbackRetryInterval elapses or ctx ends.
func (s *Service) fallback(ctx context.Context) {
	s.setState(StateFallback)
	retry := time.NewTimer(s.cfg.FallbackRetryInterval)
	defer retry.Stop()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-retry.C:
			s.logger.Info("[ingest] retrying stream after fallback")
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// healthLoop polls once per HealthCheckInterval while no session is open
// and fallback has not taken over yet.
func (s *Service) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if st := s.State(); healthPollDue(st) {
				s.logger.Info("[ingest] health check: stream not open, polling", slog.String("state", st.String()))
				s.poll(ctx)
			}
		}
	}
}

// healthPollDue reports whether the health timer should poll in st. An open
// session (Subscribing) already delivers ticks and keeps the cache
// single-writer.
func healthPollDue(st State) bool {
	switch st {
	case StateSubscribing, StateStreaming, StateFallback:
		return false
	}
	return true
}

func (s *Service) poll(ctx context.Context) {
	if s.poller == nil {
		return
	}
	ticks, err := s.poller.FetchQuotes(ctx, s.symbols)
	if s.OnFallbackPoll != nil {
		s.OnFallbackPoll(len(ticks), err)
	}
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("[ingest] fallback poll failed", slog.String("error", err.Error()))
		}
		return
	}
	for _, t := range ticks {
		s.applyTick(t)
	}
	s.logger.Debug("[ingest] fallback poll", slog.Int("ticks", len(ticks)))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func errString(err error) string {
	if err == nil {
		return "closed"
	}
	return err.Error()
}
