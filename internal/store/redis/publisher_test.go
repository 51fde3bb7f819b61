package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"signalengine/internal/logger"
	"signalengine/internal/model"
)

type fakeExecer struct {
	mu      sync.Mutex
	fail    bool
	batches [][]op
}

func (f *fakeExecer) exec(_ context.Context, ops []op) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection refused")
	}
	f.batches = append(f.batches, ops)
	return nil
}

func (f *fakeExecer) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeExecer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeExecer) batch(i int) []op {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[i]
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func testPublisher(cfg Config) (*Publisher, *fakeExecer) {
	ex := &fakeExecer{}
	return newPublisher(cfg, ex, logger.Nop()), ex
}

func signal(symbol string, conf float64) model.TradingSignal {
	return model.TradingSignal{
		Symbol:           symbol,
		Direction:        model.DirectionCall,
		Confidence:       conf,
		TimeframeMinutes: 2,
		EntryPrice:       1.085,
		RiskLevel:        model.RiskMedium,
	}
}

func TestPublishSignals_Layout(t *testing.T) {
	p, ex := testPublisher(Config{StreamMaxLen: 100, LatestTTL: time.Minute})
	signals := []model.TradingSignal{signal("EURUSD", 80), signal("GBPUSD", 70)}

	if err := p.PublishSignals(context.Background(), signals); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.count() != 1 {
		t.Fatalf("expected a single pipeline, got %d", ex.count())
	}
	ops := ex.batch(0)
	if len(ops) != 7 {
		t.Fatalf("expected 7 commands, got %d", len(ops))
	}

	if ops[0].kind != opPublish || ops[0].key != ChannelSignals {
		t.Errorf("expected ranked publish first, got %+v", ops[0])
	}
	var ranked []model.TradingSignal
	if err := json.Unmarshal(ops[0].value, &ranked); err != nil {
		t.Fatalf("ranked payload: %v", err)
	}
	if len(ranked) != 2 || ranked[0].Symbol != "EURUSD" {
		t.Errorf("expected ranked order preserved, got %+v", ranked)
	}

	want := []struct {
		kind opKind
		key  string
	}{
		{opSet, "signal:latest:EURUSD"},
		{opPublish, "pub:signal:EURUSD"},
		{opXAdd, SignalStream},
		{opSet, "signal:latest:GBPUSD"},
		{opPublish, "pub:signal:GBPUSD"},
		{opXAdd, SignalStream},
	}
	for i, w := range want {
		got := ops[i+1]
		if got.kind != w.kind || got.key != w.key {
			t.Errorf("command %d: expected %v %s, got %v %s", i+1, w.kind, w.key, got.kind, got.key)
		}
	}
	if ops[1].ttl != time.Minute {
		t.Errorf("expected latest TTL 1m, got %v", ops[1].ttl)
	}
	if ops[3].maxLen != 100 {
		t.Errorf("expected stream cap 100, got %d", ops[3].maxLen)
	}
}

func TestPublishSignals_EmptyClearsView(t *testing.T) {
	p, ex := testPublisher(Config{})
	if err := p.PublishSignals(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ops := ex.batch(0)
	if len(ops) != 1 || string(ops[0].value) != "[]" {
		t.Errorf("expected a single empty array publish, got %+v", ops)
	}
}

func TestPublishSignals_StreamDisabled(t *testing.T) {
	p, ex := testPublisher(Config{})
	p.PublishSignals(context.Background(), []model.TradingSignal{signal("EURUSD", 80)})
	for _, o := range ex.batch(0) {
		if o.kind == opXAdd {
			t.Error("expected no stream writes when StreamMaxLen is 0")
		}
	}
}

func TestPublishQuote(t *testing.T) {
	p, ex := testPublisher(Config{})
	q := model.Quote{Symbol: "EURUSD-OTC", Price: 1.0851, TimestampMs: 1710331200000}
	if err := p.PublishQuote(context.Background(), q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	o := ex.batch(0)[0]
	if o.key != "pub:quote:EURUSD-OTC" {
		t.Errorf("expected quote channel, got %s", o.key)
	}
	var got model.Quote
	if err := json.Unmarshal(o.value, &got); err != nil || got.Price != 1.0851 {
		t.Errorf("expected quote payload, got %s (%v)", o.value, err)
	}
}

func TestPublisher_OnWrite(t *testing.T) {
	p, ex := testPublisher(Config{MaxFailures: 1, ResetTimeout: time.Hour})
	var calls int
	var lastErr error
	p.OnWrite = func(_ time.Duration, err error) { calls++; lastErr = err }

	p.PublishQuote(context.Background(), model.Quote{Symbol: "EURUSD"})
	ex.setFail(true)
	p.PublishQuote(context.Background(), model.Quote{Symbol: "EURUSD"})
	// Breaker now open: rejected calls are not timed.
	p.PublishQuote(context.Background(), model.Quote{Symbol: "EURUSD"})

	if calls != 2 {
		t.Errorf("expected 2 timed writes, got %d", calls)
	}
	if lastErr == nil {
		t.Error("expected the failed write to be reported")
	}
}

func TestBufferedPublisher_BuffersAndFlushes(t *testing.T) {
	p, ex := testPublisher(Config{MaxFailures: 2, ResetTimeout: 50 * time.Millisecond, BufferedBatches: 2})
	clk := &clock{t: time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)}
	p.cb.now = clk.now

	bp := NewBuffered(context.Background(), p)
	var flushed int
	var mu sync.Mutex
	bp.OnFlush = func(n int, _ error) { mu.Lock(); flushed = n; mu.Unlock() }

	ctx := context.Background()
	ex.setFail(true)
	bp.PublishSignals(ctx, []model.TradingSignal{signal("A", 60)})
	bp.PublishSignals(ctx, []model.TradingSignal{signal("B", 60)})
	if p.Breaker().CurrentState() != StateOpen {
		t.Fatalf("expected Open, got %v", p.Breaker().CurrentState())
	}

	for _, sym := range []string{"C", "D", "E"} {
		if err := bp.PublishSignals(ctx, []model.TradingSignal{signal(sym, 60)}); err != nil {
			t.Fatalf("expected buffered publish to succeed, got %v", err)
		}
	}
	if bp.Pending() != 2 {
		t.Fatalf("expected 2 pending batches after drop-oldest, got %d", bp.Pending())
	}
	if err := bp.PublishQuote(ctx, model.Quote{Symbol: "A"}); err != nil {
		t.Errorf("expected dropped quote to be swallowed, got %v", err)
	}

	ex.setFail(false)
	clk.advance(time.Second)
	if err := bp.PublishSignals(ctx, []model.TradingSignal{signal("F", 60)}); err != nil {
		t.Fatalf("expected probe to succeed, got %v", err)
	}

	eventually(t, func() bool { return bp.Pending() == 0 && ex.count() == 3 }, "expected buffered batches to be replayed")
	mu.Lock()
	defer mu.Unlock()
	if flushed != 2 {
		t.Errorf("expected 2 flushed batches, got %d", flushed)
	}
	// F went first as the probe, then D and E in buffer order.
	if got := ex.batch(1)[1].key; got != "signal:latest:D" {
		t.Errorf("expected D replayed first, got %s", got)
	}
	if got := ex.batch(2)[1].key; got != "signal:latest:E" {
		t.Errorf("expected E replayed second, got %s", got)
	}
}
