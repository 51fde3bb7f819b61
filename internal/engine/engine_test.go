package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"signalengine/internal/logger"
	"signalengine/internal/marketdata/bus"
	"signalengine/internal/marketdata/quotecache"
	"signalengine/internal/model"
	"signalengine/internal/signalgen"
)

type fakeStream struct{ active atomic.Bool }

func (f *fakeStream) IsActive() bool { return f.active.Load() }

// fakeAnalyzer returns canned signals and records peak concurrency.
type fakeAnalyzer struct {
	signals map[string]model.TradingSignal
	delay   time.Duration

	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeAnalyzer) AnalyzeSymbol(_ context.Context, symbol string) *model.TradingSignal {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)
	s, ok := f.signals[symbol]
	if !ok {
		return nil
	}
	return &s
}

func sig(symbol string, confidence float64, tf int) model.TradingSignal {
	return model.TradingSignal{Symbol: symbol, Direction: model.DirectionCall, Confidence: confidence, TimeframeMinutes: tf}
}

func newTestEngine(cfg Config, a Analyzer) (*Engine, *quotecache.Cache, *bus.Registry) {
	reg := bus.New(8, logger.Nop())
	cache := quotecache.New(quotecache.Config{}, reg)
	return New(cfg, cache, reg, &fakeStream{}, a, logger.Nop(), nil), cache, reg
}

func TestRank_ConfidenceThenShorterTimeframe(t *testing.T) {
	in := []model.TradingSignal{
		sig("A", 70, 5), // 70
		sig("B", 66, 1), // 74
		sig("C", 70, 5), // 70, tie with A
		sig("D", 60, 3), // 64
	}
	got := Rank(in, 3)
	want := []string{"B", "A", "C"}
	if len(got) != len(want) {
		t.Fatalf("expected %d signals, got %d", len(want), len(got))
	}
	for i, s := range got {
		if s.Symbol != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], s.Symbol)
		}
	}
	if in[0].Symbol != "A" || in[1].Symbol != "B" {
		t.Error("expected input slice to be left untouched")
	}
}

func TestRankScore(t *testing.T) {
	if got := RankScore(sig("X", 80, 2)); got != 86 {
		t.Errorf("expected 86, got %v", got)
	}
	if got := RankScore(sig("X", 80, 5)); got != 80 {
		t.Errorf("expected 80, got %v", got)
	}
}

func TestAnalyzeAll_BoundedPoolAndTopN(t *testing.T) {
	a := &fakeAnalyzer{signals: map[string]model.TradingSignal{}, delay: 5 * time.Millisecond}
	e, cache, _ := newTestEngine(Config{Workers: 3, TopN: 5}, a)
	for i := 0; i < 20; i++ {
		sym := fmt.Sprintf("SYM%02d", i)
		cache.Apply(sym, 1+float64(i), 0, 0, int64(i))
		if i%2 == 0 {
			a.signals[sym] = sig(sym, 55+float64(i), 3)
		}
	}

	var passes, emittedSeen int
	e.OnPass = func(_ time.Duration, emitted int) { passes++; emittedSeen = emitted }

	ranked := e.AnalyzeAll(context.Background())
	if len(ranked) != 5 {
		t.Fatalf("expected top 5, got %d", len(ranked))
	}
	if ranked[0].Symbol != "SYM18" || ranked[4].Symbol != "SYM10" {
		t.Errorf("unexpected ranking %v ... %v", ranked[0].Symbol, ranked[4].Symbol)
	}
	if p := a.peak.Load(); p > 3 {
		t.Errorf("expected at most 3 concurrent analyses, got %d", p)
	}
	if passes != 1 || emittedSeen != 10 {
		t.Errorf("expected one pass with 10 signals, got %d passes, %d signals", passes, emittedSeen)
	}
	if got := e.RankedSignals(); len(got) != 5 {
		t.Errorf("expected stored ranking, got %d", len(got))
	}
	if s, ok := e.LatestSignal("SYM02"); !ok || s.Confidence != 57 {
		t.Errorf("expected latest signal for SYM02 even outside top N, got %+v ok=%v", s, ok)
	}
	if e.LastRun().IsZero() {
		t.Error("expected last run time to be set")
	}
}

func TestAnalyzeAll_EmptyCache(t *testing.T) {
	e, _, _ := newTestEngine(Config{}, &fakeAnalyzer{})
	if got := e.AnalyzeAll(context.Background()); len(got) != 0 {
		t.Errorf("expected no signals, got %v", got)
	}
}

func TestAnalyzeAll_WithGenerator(t *testing.T) {
	reg := bus.New(8, logger.Nop())
	cache := quotecache.New(quotecache.Config{}, nil)
	base := time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		ts := base.Add(time.Duration(i) * time.Second).UnixMilli()
		cache.Apply("EURUSD", 100+float64(i)*0.1, 0, 0, ts)
		cache.Apply("GBPUSD", 120+float64(i)*0.12, 0, 0, ts)
		cache.Apply("USDCHF", 0.9, 0, 0, ts)
	}
	now := base.Add(59*time.Second + 500*time.Millisecond)
	gen := signalgen.New(signalgen.DefaultConfig(), cache,
		signalgen.WithSeed(1),
		signalgen.WithClock(func() time.Time { return now }),
		signalgen.WithLogger(logger.Nop()))
	e := New(Config{Workers: 2, TopN: 5}, cache, reg, &fakeStream{}, gen, logger.Nop(), nil)

	ranked := e.AnalyzeAll(context.Background())
	if len(ranked) == 0 {
		t.Fatal("expected signals for the trending symbols")
	}
	for _, s := range ranked {
		if s.Symbol == "USDCHF" {
			t.Errorf("expected no signal for the flat symbol, got %+v", s)
		}
		if s.Direction != model.DirectionCall {
			t.Errorf("%s: expected CALL, got %s", s.Symbol, s.Direction)
		}
	}
	for i := 1; i < len(ranked); i++ {
		if RankScore(ranked[i-1]) < RankScore(ranked[i]) {
			t.Errorf("expected descending rank at %d", i)
		}
	}
}

func TestAnalyzeAll_FixedSeedReproducibleAcrossWorkers(t *testing.T) {
	cache := quotecache.New(quotecache.Config{}, nil)
	base := time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC)
	for i := 0; i < 80; i++ {
		ts := base.Add(time.Duration(i) * time.Second).UnixMilli()
		for j := 0; j < 12; j++ {
			step := 0.02 * float64(j+1)
			if j%2 == 1 {
				step = -step
			}
			cache.Apply(fmt.Sprintf("SYM%02d", j), 100+float64(i)*step, 0, 0, ts)
		}
	}
	now := base.Add(79*time.Second + 500*time.Millisecond)

	gen := signalgen.New(signalgen.DefaultConfig(), cache,
		signalgen.WithSeed(5),
		signalgen.WithClock(func() time.Time { return now }),
		signalgen.WithLogger(logger.Nop()))
	e := New(Config{Workers: 4, TopN: 12}, cache, bus.New(8, logger.Nop()), &fakeStream{}, gen, logger.Nop(), nil)

	pass := func() string {
		out := ""
		for _, s := range e.AnalyzeAll(context.Background()) {
			out += fmt.Sprintf("%s:%s:%d:%.2f;", s.Symbol, s.Direction, s.TimeframeMinutes, s.Confidence)
		}
		return out
	}

	want := pass()
	if want == "" {
		t.Fatal("expected at least one signal")
	}
	for i := 0; i < 40; i++ {
		if got := pass(); got != want {
			t.Fatalf("run %d: expected %s, got %s", i, want, got)
		}
	}
}

func TestEngine_QueryAPI(t *testing.T) {
	stream := &fakeStream{}
	reg := bus.New(8, logger.Nop())
	defer reg.Close()
	cache := quotecache.New(quotecache.Config{}, reg)
	e := New(Config{}, cache, reg, stream, &fakeAnalyzer{}, logger.Nop(), nil)

	if e.IsActive() {
		t.Error("expected inactive before the stream is up")
	}
	stream.active.Store(true)
	if !e.IsActive() {
		t.Error("expected active")
	}
	if _, ok := e.LastUpdateTime(); ok {
		t.Error("expected no update time before the first quote")
	}

	got := make(chan model.Quote, 4)
	unsubscribe := e.Subscribe("ui", func(q model.Quote) { got <- q })

	cache.Apply("EURUSD", 1.085, 0, 0, 1)
	select {
	case q := <-got:
		if q.Symbol != "EURUSD" {
			t.Errorf("expected EURUSD, got %s", q.Symbol)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener not called")
	}
	if _, ok := e.LastUpdateTime(); !ok {
		t.Error("expected update time after a quote")
	}
	if q, ok := e.CurrentQuotes()["EURUSD"]; !ok || q.Price != 1.085 {
		t.Errorf("expected EURUSD in snapshot, got %+v", e.CurrentQuotes())
	}

	unsubscribe()
	unsubscribe()
	cache.Apply("EURUSD", 1.086, 0, 0, 2)
	select {
	case q := <-got:
		t.Errorf("expected no delivery after unsubscribe, got %+v", q)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEngine_AnalyzeSymbolRemembersLatest(t *testing.T) {
	a := &fakeAnalyzer{signals: map[string]model.TradingSignal{"EURUSD": sig("EURUSD", 70, 2)}}
	e, _, _ := newTestEngine(Config{}, a)
	if s := e.AnalyzeSymbol(context.Background(), "EURUSD"); s == nil {
		t.Fatal("expected a signal")
	}
	if e.AnalyzeSymbol(context.Background(), "GBPUSD") != nil {
		t.Error("expected nil for an unknown symbol")
	}
	if _, ok := e.LatestSignal("EURUSD"); !ok {
		t.Error("expected latest signal to be stored")
	}
}

type chanSink struct {
	got chan []model.TradingSignal
	err error
}

func (s *chanSink) PublishSignals(_ context.Context, signals []model.TradingSignal) error {
	s.got <- signals
	return s.err
}

func TestLoop_TriggerPublishesToEverySink(t *testing.T) {
	a := &fakeAnalyzer{signals: map[string]model.TradingSignal{"EURUSD": sig("EURUSD", 70, 2)}}
	e, cache, _ := newTestEngine(Config{}, a)
	cache.Apply("EURUSD", 1.08, 0, 0, 1)

	ok := &chanSink{got: make(chan []model.TradingSignal, 1)}
	failing := &chanSink{got: make(chan []model.TradingSignal, 1), err: errors.New("redis down")}

	var mu sync.Mutex
	var sinkErrs []error
	loop := NewLoop(e, time.Hour, time.Second, logger.Nop(), ok, failing)
	loop.OnSinkError = func(_ int, err error) {
		mu.Lock()
		sinkErrs = append(sinkErrs, err)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	loop.Trigger()
	loop.Trigger()

	for _, s := range []*chanSink{ok, failing} {
		select {
		case got := <-s.got:
			if len(got) != 1 || got[0].Symbol != "EURUSD" {
				t.Errorf("unexpected result %+v", got)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("sink not called")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, err := range sinkErrs {
		if err.Error() == "redis down" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the failing sink to be reported, got %v", sinkErrs)
	}
}
