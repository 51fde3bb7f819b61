// Package signalgen turns the quote history of one symbol into at most one
// gated trading signal.
package signalgen

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"signalengine/internal/analysis"
	"signalengine/internal/indicator"
	"signalengine/internal/logger"
	"signalengine/internal/model"
	"signalengine/internal/quality"
	"signalengine/internal/strategy"
)

// Reason names why a pass produced no signal.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonNoQuote             Reason = "no_quote"
	ReasonInsufficientHistory Reason = "insufficient_history"
	ReasonNoCandidate         Reason = "no_candidate"
	ReasonLowQuality          Reason = "low_quality"
	ReasonLowConfidence       Reason = "low_confidence"
	ReasonHighRisk            Reason = "high_risk"
	ReasonLowSuccessRate      Reason = "low_success_rate"
	ReasonInvalid             Reason = "invalid_signal"
)

// Generator runs the analysis pipeline for one symbol at a time. It is safe
// for concurrent use as long as the hooks are set before the first call.
type Generator struct {
	cfg     Config
	quotes  model.QuoteReader
	scorer  *strategy.Scorer
	sources SourceFactory
	now     func() time.Time
	logger  *slog.Logger
	tracer  trace.Tracer

	// OnReject is called with the reason whenever a pass yields nothing.
	OnReject func(symbol string, reason Reason)
	// OnEmit is called for every signal that passed all gates.
	OnEmit func(sig model.TradingSignal)
	// OnQuality is called with each computed data quality score.
	OnQuality func(symbol string, score float64)
}

// Option configures a Generator.
type Option func(*Generator)

// WithScorer replaces the default ten-strategy scorer.
func WithScorer(s *strategy.Scorer) Option { return func(g *Generator) { g.scorer = s } }

// WithRand shares r between every pass. Concurrent passes then draw in
// scheduling order; use WithSeed when results must be reproducible.
func WithRand(r RandSource) Option {
	return func(g *Generator) { g.sources = func(string, int64) RandSource { return r } }
}

// WithSeed gives every pass its own source derived from seed.
func WithSeed(seed int64) Option { return func(g *Generator) { g.sources = Seeded(seed) } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(g *Generator) { g.now = now } }

func WithLogger(l *slog.Logger) Option { return func(g *Generator) { g.logger = l } }

func WithTracer(t trace.Tracer) Option { return func(g *Generator) { g.tracer = t } }

// New creates a Generator reading from quotes.
func New(cfg Config, quotes model.QuoteReader, opts ...Option) *Generator {
	g := &Generator{
		cfg:    cfg,
		quotes: quotes,
		scorer: strategy.Default(),
		now:    time.Now,
		tracer: otel.Tracer("signalengine/signalgen"),
	}
	for _, o := range opts {
		o(g)
	}
	if g.sources == nil {
		g.sources = Seeded(0)
	}
	g.logger = logger.Component(g.logger, "signalgen")
	return g
}

// Config returns the active thresholds.
func (g *Generator) Config() Config { return g.cfg }

// AnalyzeSymbol returns a signal for symbol, or nil when any gate rejects
// the pass. It never returns an error; rejections are logged at debug.
func (g *Generator) AnalyzeSymbol(ctx context.Context, symbol string) *model.TradingSignal {
	sig, _ := g.Evaluate(ctx, symbol)
	return sig
}

// Evaluate is AnalyzeSymbol plus the rejection reason.
func (g *Generator) Evaluate(ctx context.Context, symbol string) (*model.TradingSignal, Reason) {
	now := g.now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(symbol, now))
	ctx, span := g.tracer.Start(ctx, "signal.analyze", trace.WithAttributes(attribute.String("symbol", symbol)))
	defer span.End()

	sig, reason := g.evaluate(symbol, now)
	if sig == nil {
		span.SetAttributes(attribute.String("reject_reason", string(reason)))
		if reason == ReasonInvalid {
			span.SetStatus(codes.Error, string(reason))
		}
		g.logger.Debug("[signalgen] no signal",
			append(logger.LogWithTrace(ctx), slog.String("symbol", symbol), slog.String("reason", string(reason)))...)
		if g.OnReject != nil {
			g.OnReject(symbol, reason)
		}
		return nil, reason
	}

	span.SetAttributes(
		attribute.String("direction", string(sig.Direction)),
		attribute.Float64("confidence", sig.Confidence),
		attribute.Int("timeframe_minutes", sig.TimeframeMinutes),
	)
	g.logger.Info("[signalgen] signal",
		append(logger.LogWithTrace(ctx),
			slog.String("symbol", symbol),
			slog.String("direction", string(sig.Direction)),
			slog.Float64("confidence", sig.Confidence),
			slog.Int("timeframe", sig.TimeframeMinutes),
			slog.String("strategy", sig.Strategy),
			slog.String("risk", string(sig.RiskLevel)))...)
	if g.OnEmit != nil {
		g.OnEmit(*sig)
	}
	return sig, ReasonNone
}

func (g *Generator) evaluate(symbol string, now time.Time) (*model.TradingSignal, Reason) {
	quote, ok := g.quotes.Quote(symbol)
	if !ok {
		return nil, ReasonNoQuote
	}
	samples := g.quotes.History(symbol)
	if len(samples) == 0 || len(samples) < g.cfg.MinSamples {
		return nil, ReasonInsufficientHistory
	}
	if len(samples) > g.cfg.WindowSize {
		samples = samples[len(samples)-g.cfg.WindowSize:]
	}

	rng := g.sources(symbol, samples[len(samples)-1].TimestampMs)
	candles := CandleBuilder{WickRatio: g.cfg.WickRatio, BaseVolume: g.cfg.BaseVolume, Rand: rng}.Build(samples)
	ind := indicator.Compute(candles)
	ma := analysis.Analyze(candles, ind)

	best, ok := g.scorer.Best(strategy.Input{Indicators: ind, Market: ma, Price: quote.Price})
	if !ok {
		return nil, ReasonNoCandidate
	}

	report := quality.Assess(quality.Input{
		Candles:    candles,
		Indicators: ind,
		Market:     ma,
		LastTick:   quote.Time(),
		Now:        now,
	})
	if g.OnQuality != nil {
		g.OnQuality(symbol, report.Score)
	}

	return g.decide(pass{
		symbol:     symbol,
		price:      quote.Price,
		candidate:  best,
		indicators: ind,
		market:     ma,
		quality:    report.Score,
		at:         now,
		rng:        rng,
	})
}

// pass is everything the gates need.
type pass struct {
	symbol     string
	price      float64
	candidate  model.StrategyCandidate
	indicators model.Indicators
	market     model.MarketAnalysis
	quality    float64
	at         time.Time
	rng        RandSource // nil draws a fresh source for symbol at at
}

// decide applies the gates in order: quality, confidence, risk, success
// rate, validation. It draws from the noise source only for the timeframe.
func (g *Generator) decide(p pass) (*model.TradingSignal, Reason) {
	if math.IsNaN(p.quality) || p.quality < g.cfg.MinQuality {
		return nil, ReasonLowQuality
	}
	score := p.candidate.Score
	if math.IsNaN(score) || score < g.cfg.MinConfidence {
		return nil, ReasonLowConfidence
	}

	rng := p.rng
	if rng == nil {
		rng = g.sources(p.symbol, p.at.UnixMilli())
	}
	timeframe := SelectTimeframe(g.cfg.Timeframes, p.market, rng)

	risk := RiskLevelFor(RiskPoints(p.indicators, p.market))
	if risk == model.RiskHigh {
		return nil, ReasonHighRisk
	}

	success := ExpectedSuccessRate(p.candidate, p.indicators, p.market, p.quality, g.cfg.MinConfidence)
	if math.IsNaN(success) || success < g.cfg.MinSuccessRate {
		return nil, ReasonLowSuccessRate
	}

	reasoning := make([]string, 0, len(p.candidate.Reasons)+2)
	reasoning = append(reasoning, p.candidate.Reasons...)
	reasoning = append(reasoning,
		"Strategy: "+p.candidate.Strategy,
		fmt.Sprintf("Data quality: %.0f/100", p.quality),
	)

	sig := &model.TradingSignal{
		Symbol:              p.symbol,
		Direction:           p.candidate.Direction,
		Confidence:          math.Min(g.cfg.MaxConfidence, score),
		TimeframeMinutes:    timeframe,
		EntryPrice:          p.price,
		Reasoning:           reasoning,
		Indicators:          p.indicators,
		MarketAnalysis:      p.market,
		RiskLevel:           risk,
		ExpectedSuccessRate: success,
		Strategy:            p.candidate.Strategy,
		DataQuality:         p.quality,
		CreatedAtMs:         p.at.UnixMilli(),
	}
	if err := sig.Validate(); err != nil {
		g.logger.Error("[signalgen] discarding invalid signal", slog.String("symbol", p.symbol), slog.String("error", err.Error()))
		return nil, ReasonInvalid
	}
	return sig, ReasonNone
}
