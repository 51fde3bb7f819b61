// Package engine is the consumer-facing facade over the quote cache, the
// ingestion service and the signal generator.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"signalengine/internal/logger"
	"signalengine/internal/marketdata/bus"
	"signalengine/internal/marketdata/quotecache"
	"signalengine/internal/model"
)

// Stream reports the upstream connection status.
type Stream interface {
	IsActive() bool
}

// Analyzer produces at most one signal per symbol.
type Analyzer interface {
	AnalyzeSymbol(ctx context.Context, symbol string) *model.TradingSignal
}

// Config for the engine.
type Config struct {
	// Workers bounds concurrent symbol analyses in AnalyzeAll.
	Workers int
	// TopN caps the ranked result of AnalyzeAll.
	TopN int
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.TopN <= 0 {
		c.TopN = 5
	}
}

// Engine answers the query API.
type Engine struct {
	cfg       Config
	cache     *quotecache.Cache
	listeners *bus.Registry
	stream    Stream
	analyzer  Analyzer
	logger    *slog.Logger
	tracer    trace.Tracer

	mu      sync.RWMutex
	ranked  []model.TradingSignal
	latest  map[string]model.TradingSignal
	lastRun time.Time

	// OnPass is called after every AnalyzeAll with its duration and the
	// number of signals before ranking.
	OnPass func(d time.Duration, emitted int)
}

// New creates an Engine. tracer may be nil.
func New(cfg Config, cache *quotecache.Cache, listeners *bus.Registry, stream Stream, analyzer Analyzer, l *slog.Logger, tracer trace.Tracer) *Engine {
	cfg.defaults()
	if tracer == nil {
		tracer = otel.Tracer("signalengine/engine")
	}
	return &Engine{
		cfg:       cfg,
		cache:     cache,
		listeners: listeners,
		stream:    stream,
		analyzer:  analyzer,
		logger:    logger.Component(l, "engine"),
		tracer:    tracer,
		latest:    make(map[string]model.TradingSignal),
	}
}

// Subscribe registers a quote listener and returns its unsubscribe func.
func (e *Engine) Subscribe(listenerID string, fn bus.Listener) (unsubscribe func()) {
	return e.listeners.Subscribe(listenerID, fn)
}

// CurrentQuotes returns the latest quote per local symbol. The map is shared
// between callers until the next update and must not be modified.
func (e *Engine) CurrentQuotes() map[string]model.Quote {
	return e.cache.Snapshot()
}

// IsActive reports whether the provider stream is live.
func (e *Engine) IsActive() bool {
	return e.stream != nil && e.stream.IsActive()
}

// LastUpdateTime is the time of the last cache update; ok is false when
// nothing has arrived yet.
func (e *Engine) LastUpdateTime() (t time.Time, ok bool) {
	return e.cache.LastUpdate()
}

// AnalyzeSymbol runs one analysis pass for symbol.
func (e *Engine) AnalyzeSymbol(ctx context.Context, symbol string) *model.TradingSignal {
	sig := e.analyzer.AnalyzeSymbol(ctx, symbol)
	if sig != nil {
		e.mu.Lock()
		e.latest[symbol] = *sig
		e.mu.Unlock()
	}
	return sig
}

// AnalyzeAll analyses every cached symbol on a bounded pool and returns the
// TopN signals by rank.
func (e *Engine) AnalyzeAll(ctx context.Context) []model.TradingSignal {
	start := time.Now()
	runID := uuid.NewString()
	ctx, span := e.tracer.Start(ctx, "signal.analyze_all", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	symbols := e.cache.Symbols()
	results := make([]*model.TradingSignal, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, sym := range symbols {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			results[i] = e.analyzer.AnalyzeSymbol(gctx, sym)
			return nil
		})
	}
	_ = g.Wait()

	signals := make([]model.TradingSignal, 0, len(symbols))
	for _, r := range results {
		if r != nil {
			signals = append(signals, *r)
		}
	}
	emitted := len(signals)
	ranked := Rank(signals, e.cfg.TopN)

	e.mu.Lock()
	for _, s := range signals {
		e.latest[s.Symbol] = s
	}
	e.ranked = ranked
	e.lastRun = time.Now()
	e.mu.Unlock()

	span.SetAttributes(attribute.Int("symbols", len(symbols)), attribute.Int("signals", emitted))
	d := time.Since(start)
	e.logger.Info("[engine] analysis pass",
		slog.String("run_id", runID),
		slog.Int("symbols", len(symbols)),
		slog.Int("signals", emitted),
		slog.Int("ranked", len(ranked)),
		slog.Duration("took", d))
	if e.OnPass != nil {
		e.OnPass(d, emitted)
	}
	return ranked
}

// RankedSignals returns the result of the last AnalyzeAll.
func (e *Engine) RankedSignals() []model.TradingSignal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]model.TradingSignal(nil), e.ranked...)
}

// LatestSignal returns the most recent signal emitted for symbol.
func (e *Engine) LatestSignal(symbol string) (model.TradingSignal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.latest[symbol]
	return s, ok
}

// LastRun is when AnalyzeAll last finished.
func (e *Engine) LastRun() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRun
}

// RankScore favours confidence and then shorter expiries.
func RankScore(s model.TradingSignal) float64 {
	return s.Confidence + float64(5-s.TimeframeMinutes)*2
}

// Rank sorts signals by RankScore, highest first, keeping input order on
// ties, and keeps at most topN.
func Rank(signals []model.TradingSignal, topN int) []model.TradingSignal {
	out := append([]model.TradingSignal(nil), signals...)
	sort.SliceStable(out, func(i, j int) bool {
		return RankScore(out[i]) > RankScore(out[j])
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}
