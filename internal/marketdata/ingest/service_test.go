package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"signalengine/internal/logger"
	"signalengine/internal/marketdata/quotecache"
	"signalengine/internal/marketdata/ws"
	"signalengine/internal/model"
)

var errConnClosed = errors.New("fake: connection closed")

// fakeConn records frames and delivers queued inbound messages.
type fakeConn struct {
	inbox  chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	frames []ws.Frame
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.inbox:
		return b, nil
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, v.(ws.Frame))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) subscribeBatches() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][]string
	for _, f := range c.frames {
		if f.Action == ws.ActionSubscribe {
			out = append(out, f.Symbols())
		}
	}
	return out
}

func (c *fakeConn) firstFrame() ws.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return ws.Frame{}
	}
	return c.frames[0]
}

type fakeDialer struct {
	conns chan *fakeConn
	fail  bool

	mu    sync.Mutex
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (ws.Conn, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()
	if d.fail {
		return nil, errors.New("fake: connection refused")
	}
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakePoller struct {
	mu    sync.Mutex
	calls int
	ticks []model.ProviderTick
}

func (p *fakePoller) FetchQuotes(context.Context, []string) ([]model.ProviderTick, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.ticks, nil
}

func (p *fakePoller) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// A Wednesday afternoon, forex open.
var midweek = time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC)

func fastConfig(symbols ...string) Config {
	return Config{
		URL:                   "ws://provider.test/quotes",
		Symbols:               symbols,
		BatchSize:             2,
		BatchDelay:            time.Millisecond,
		KeepAliveInterval:     time.Hour,
		ReconnectDelay:        time.Millisecond,
		MaxReconnectDelay:     4 * time.Millisecond,
		MaxReconnectAttempts:  3,
		PollInterval:          5 * time.Millisecond,
		FallbackRetryInterval: time.Hour,
		HealthCheckInterval:   time.Hour,
	}
}

func newService(cfg Config, d ws.Dialer, p Poller) (*Service, *quotecache.Cache) {
	cache := quotecache.New(quotecache.Config{}, nil)
	s := New(cfg, d, p, cache, logger.Nop())
	s.now = func() time.Time { return midweek }
	return s, cache
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func nextConn(t *testing.T, d *fakeDialer) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a dial")
		return nil
	}
}

func TestService_SubscribesInBatchesAndStreams(t *testing.T) {
	d := &fakeDialer{conns: make(chan *fakeConn, 4)}
	s, cache := newService(fastConfig("EUR/USD", "GBP/USD", "EUR/USD", "USD/JPY", "BTC/USD", "AUD/USD"), d, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	conn := nextConn(t, d)
	eventually(t, "streaming", s.IsActive)

	if f := conn.firstFrame(); f.Action != ws.ActionHeartbeat {
		t.Errorf("expected keep-alive as the first frame, got %+v", f)
	}
	batches := conn.subscribeBatches()
	want := [][]string{{"EUR/USD", "GBP/USD"}, {"USD/JPY", "BTC/USD"}, {"AUD/USD"}}
	if !equalBatches(batches, want) {
		t.Errorf("expected batches %v, got %v", want, batches)
	}

	conn.inbox <- []byte(`{"event":"price","symbol":"EUR/USD","price":1.0851,"timestamp":1710338400}`)
	conn.inbox <- []byte(`garbage`)
	eventually(t, "quote in cache", func() bool { _, ok := cache.Quote("EURUSD"); return ok })

	q, _ := cache.Quote("EURUSD")
	if q.Price != 1.0851 || q.TimestampMs != 1710338400000 {
		t.Errorf("unexpected quote %+v", q)
	}
	if _, ok := s.LastMessage(); !ok {
		t.Error("expected last message time to be set")
	}
}

func TestService_ResubscribesSameSetAfterDrop(t *testing.T) {
	d := &fakeDialer{conns: make(chan *fakeConn, 4)}
	s, _ := newService(fastConfig("EUR/USD", "GBP/USD", "USD/JPY", "AUD/USD", "NZD/USD"), d, nil)

	var mu sync.Mutex
	reconnects := 0
	s.OnReconnect = func(int, time.Duration) {
		mu.Lock()
		reconnects++
		mu.Unlock()
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	first := nextConn(t, d)
	eventually(t, "first stream", s.IsActive)
	before := first.subscribeBatches()
	subsBefore := s.Subscriptions()

	first.Close()

	second := nextConn(t, d)
	eventually(t, "second stream", func() bool {
		return s.IsActive() && len(second.subscribeBatches()) == len(before)
	})
	after := second.subscribeBatches()

	if !equalBatches(before, after) {
		t.Errorf("expected identical batches after reconnect, got %v then %v", before, after)
	}
	seen := map[string]bool{}
	for _, b := range after {
		if len(b) > 2 {
			t.Errorf("batch %v exceeds batch size", b)
		}
		for _, sym := range b {
			if seen[sym] {
				t.Errorf("duplicate subscription for %s", sym)
			}
			seen[sym] = true
		}
	}
	if got := s.Subscriptions(); len(got) != len(subsBefore) {
		t.Errorf("expected %d subscriptions, got %v", len(subsBefore), got)
	}
	mu.Lock()
	defer mu.Unlock()
	if reconnects != 1 {
		t.Errorf("expected 1 reconnect, got %d", reconnects)
	}
}

func TestService_FallsBackToPollingAfterMaxAttempts(t *testing.T) {
	d := &fakeDialer{conns: make(chan *fakeConn, 1), fail: true}
	p := &fakePoller{ticks: []model.ProviderTick{{Symbol: "GBP/USD", Price: 1.2712}}}
	s, cache := newService(fastConfig("GBP/USD"), d, p)

	var mu sync.Mutex
	var delays []time.Duration
	s.OnReconnect = func(_ int, delay time.Duration) {
		mu.Lock()
		delays = append(delays, delay)
		mu.Unlock()
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	eventually(t, "fallback", func() bool { return s.State() == StateFallback })
	eventually(t, "polled quote", func() bool { _, ok := cache.Quote("GBPUSD"); return ok })
	eventually(t, "repeated polls", func() bool { return p.callCount() >= 2 })

	if n := d.dialCount(); n != 3 {
		t.Errorf("expected 3 dial attempts before fallback, got %d", n)
	}
	mu.Lock()
	defer mu.Unlock()
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond}
	if len(delays) != len(want) || delays[0] != want[0] || delays[1] != want[1] {
		t.Errorf("expected doubling delays %v, got %v", want, delays)
	}
	if s.IsActive() {
		t.Error("expected IsActive false in fallback")
	}
}

func TestService_FallbackRetriesStream(t *testing.T) {
	d := &fakeDialer{conns: make(chan *fakeConn, 1), fail: true}
	cfg := fastConfig("EUR/USD")
	cfg.MaxReconnectAttempts = 1
	cfg.FallbackRetryInterval = 10 * time.Millisecond
	s, _ := newService(cfg, d, &fakePoller{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	eventually(t, "dial after fallback retry", func() bool { return d.dialCount() >= 3 })
}

func TestService_StopIsIdempotentAndClears(t *testing.T) {
	d := &fakeDialer{conns: make(chan *fakeConn, 4)}
	s, cache := newService(fastConfig("EUR/USD"), d, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	conn := nextConn(t, d)
	eventually(t, "streaming", s.IsActive)
	conn.inbox <- []byte(`{"event":"price","symbol":"EUR/USD","price":1.1}`)
	eventually(t, "quote", func() bool { return cache.Len() == 1 })

	s.Stop()
	s.Stop()

	if s.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", s.State())
	}
	if cache.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", cache.Len())
	}
	if len(s.Subscriptions()) != 0 {
		t.Errorf("expected no subscriptions, got %v", s.Subscriptions())
	}
	select {
	case <-conn.closed:
	default:
		t.Error("expected transport to be closed")
	}

	if err := s.Start(context.Background()); err != nil {
		t.Errorf("expected restart after stop, got %v", err)
	}
	s.Stop()
}

func TestService_StartWithoutSymbols(t *testing.T) {
	s, _ := newService(fastConfig(), &fakeDialer{}, nil)
	if err := s.Start(context.Background()); !errors.Is(err, ErrNoSymbols) {
		t.Errorf("expected ErrNoSymbols, got %v", err)
	}
	s.Stop()
}

func TestService_ClosedMarketUsesAlternateSymbol(t *testing.T) {
	s, cache := newService(fastConfig("EUR/USD", "BTC/USD"), &fakeDialer{}, nil)
	saturday := time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return saturday }

	s.handleMessage([]byte(`{"event":"price","symbol":"EUR/USD","price":1.09}`))
	s.handleMessage([]byte(`{"event":"price","symbol":"BTC/USD","price":64000}`))

	if _, ok := cache.Quote("EURUSD-OTC"); !ok {
		t.Errorf("expected EURUSD-OTC on a Saturday, got %v", cache.Symbols())
	}
	if _, ok := cache.Quote("BTCUSD"); !ok {
		t.Errorf("expected BTCUSD to keep its symbol, got %v", cache.Symbols())
	}
	q, _ := cache.Quote("EURUSD-OTC")
	if q.TimestampMs != saturday.UnixMilli() {
		t.Errorf("expected receive time for a tick without timestamp, got %d", q.TimestampMs)
	}
}

func TestService_MalformedMessagesCounted(t *testing.T) {
	s, cache := newService(fastConfig("EUR/USD"), &fakeDialer{}, nil)
	var errs []error
	s.OnMalformed = func(err error) { errs = append(errs, err) }

	for _, m := range []string{`{`, `{"event":"price","symbol":"EUR/USD","price":"NaN"}`, `{"event":"bogus"}`} {
		s.handleMessage([]byte(m))
	}
	s.handleMessage([]byte(`{"event":"subscribe-status","status":"ok","success":[{"symbol":"EUR/USD"}]}`))
	s.handleMessage([]byte(`{"status":"error","message":"rate limited"}`))

	if len(errs) != 3 {
		t.Errorf("expected 3 malformed messages, got %d (%v)", len(errs), errs)
	}
	if cache.Len() != 0 {
		t.Errorf("expected nothing cached, got %v", cache.Symbols())
	}
}

// subscribeBlockingDialer hands out connections whose subscribe frames hang
// until release is closed, holding the session in StateSubscribing.
type subscribeBlockingDialer struct {
	conns   chan *fakeConn
	release chan struct{}
}

type subscribeBlockingConn struct {
	*fakeConn
	release <-chan struct{}
}

func (c subscribeBlockingConn) WriteJSON(v interface{}) error {
	if f, ok := v.(ws.Frame); ok && f.Action == ws.ActionSubscribe {
		<-c.release
	}
	return c.fakeConn.WriteJSON(v)
}

func (d *subscribeBlockingDialer) Dial(context.Context, string) (ws.Conn, error) {
	c := newFakeConn()
	select {
	case d.conns <- c:
	default:
	}
	return subscribeBlockingConn{fakeConn: c, release: d.release}, nil
}

func TestService_NoHealthPollWhileSubscribing(t *testing.T) {
	d := &subscribeBlockingDialer{conns: make(chan *fakeConn, 1), release: make(chan struct{})}
	p := &fakePoller{ticks: []model.ProviderTick{{Symbol: "EUR/USD", Price: 1.0}}}
	cfg := fastConfig("EUR/USD")
	cfg.HealthCheckInterval = 2 * time.Millisecond
	s, cache := newService(cfg, d, p)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	defer close(d.release)

	var conn *fakeConn
	select {
	case conn = <-d.conns:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a dial")
	}
	eventually(t, "subscribing", func() bool { return s.State() == StateSubscribing })
	polls := p.callCount()

	conn.inbox <- []byte(`{"event":"price","symbol":"EUR/USD","price":1.0851}`)
	eventually(t, "streamed quote", func() bool { _, ok := cache.Quote("EURUSD"); return ok })
	time.Sleep(30 * time.Millisecond)

	if n := p.callCount() - polls; n != 0 {
		t.Errorf("expected no health polls during subscription, got %d", n)
	}
	if q, _ := cache.Quote("EURUSD"); q.Price != 1.0851 {
		t.Errorf("expected the streamed price to stand, got %v", q.Price)
	}
}

func TestHealthPollDue(t *testing.T) {
	due := map[State]bool{
		StateDisconnected: true,
		StateConnecting:   true,
		StateReconnecting: true,
		StateSubscribing:  false,
		StateStreaming:    false,
		StateFallback:     false,
	}
	for st, want := range due {
		if got := healthPollDue(st); got != want {
			t.Errorf("%s: expected %v, got %v", st, want, got)
		}
	}
}

func TestState_String(t *testing.T) {
	if StateStreaming.String() != "streaming" || StateFallback.String() != "fallback" || State(99).String() != "unknown" {
		t.Error("unexpected state names")
	}
}

func equalBatches(a, b [][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}
