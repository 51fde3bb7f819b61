// Package strategy provides the multi-strategy scorer.
//
// A Strategy inspects one analysis pass (indicators, market state, price)
// and either votes for a direction with a score and reasons, or abstains.
// The Scorer runs every registered strategy and keeps the best vote.
package strategy

import (
	"fmt"

	"signalengine/internal/model"
)

// DefaultMinScore is the internal score a strategy must reach before it
// returns a candidate.
const DefaultMinScore = 40

// Input is everything a strategy may look at. Strategies must not retain or
// modify it.
type Input struct {
	Indicators model.Indicators
	Market     model.MarketAnalysis
	Price      float64
}

// Strategy is the interface that all scoring strategies implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Evaluate returns a candidate, or nil to abstain.
	Evaluate(in Input) *model.StrategyCandidate
}

// Func adapts a plain function to the Strategy interface.
type Func struct {
	name string
	fn   func(Input) *model.StrategyCandidate
}

// NewFunc wraps fn as a named Strategy.
func NewFunc(name string, fn func(Input) *model.StrategyCandidate) Func {
	return Func{name: name, fn: fn}
}

func (f Func) Name() string { return f.name }

func (f Func) Evaluate(in Input) *model.StrategyCandidate {
	c := f.fn(in)
	if c != nil {
		c.Strategy = f.name
	}
	return c
}

// Scorer runs registered strategies in registration order.
type Scorer struct {
	strategies []Strategy
}

// NewScorer creates a scorer with the given strategies.
func NewScorer(strategies ...Strategy) *Scorer {
	return &Scorer{strategies: strategies}
}

// Default returns a scorer with the ten built-in strategies. Registration
// order is the tie-break order.
func Default() *Scorer {
	return NewScorer(
		NewFunc("rsi_advanced", RSIAdvanced),
		NewFunc("ema_scalping", EMAScalping),
		NewFunc("bollinger", BollingerBands),
		NewFunc("momentum_breakout", MomentumBreakout),
		NewFunc("reversal", Reversal),
		NewFunc("trend_following", TrendFollowing),
		NewFunc("stochastic", StochasticOscillator),
		NewFunc("macd_histogram", MACDHistogram),
		NewFunc("volume_spike", VolumeSpike),
		NewFunc("williams_r", WilliamsRExtremes),
	)
}

// Register adds a strategy after the existing ones.
func (s *Scorer) Register(st Strategy) {
	s.strategies = append(s.strategies, st)
}

// Names lists registered strategies in order.
func (s *Scorer) Names() []string {
	names := make([]string, len(s.strategies))
	for i, st := range s.strategies {
		names[i] = st.Name()
	}
	return names
}

// Candidates returns every non-nil vote in registration order.
func (s *Scorer) Candidates(in Input) []model.StrategyCandidate {
	var out []model.StrategyCandidate
	for _, st := range s.strategies {
		if c := st.Evaluate(in); c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// Best returns the highest-scoring candidate. On equal scores the earlier
// registered strategy wins. ok is false when no strategy voted.
func (s *Scorer) Best(in Input) (best model.StrategyCandidate, ok bool) {
	for _, c := range s.Candidates(in) {
		if !ok || c.Score > best.Score {
			best, ok = c, true
		}
	}
	return best, ok
}

// tally accumulates points and reasons for one strategy vote.
type tally struct {
	dir     model.Direction
	score   float64
	reasons []string
}

func vote(dir model.Direction) *tally {
	return &tally{dir: dir}
}

func (t *tally) add(points float64, format string, args ...any) {
	t.score += points
	t.reasons = append(t.reasons, fmt.Sprintf(format, args...))
}

// result returns the candidate when the score reached minScore.
func (t *tally) result(minScore float64) *model.StrategyCandidate {
	if t.score < minScore {
		return nil
	}
	return &model.StrategyCandidate{
		Direction: t.dir,
		Score:     t.score,
		Reasons:   t.reasons,
	}
}

// against reports whether a trend contradicts the direction.
func against(dir model.Direction, t model.Trend) bool {
	return (dir == model.DirectionCall && t == model.TrendBearish) ||
		(dir == model.DirectionPut && t == model.TrendBullish)
}

func side(call bool) model.Direction {
	if call {
		return model.DirectionCall
	}
	return model.DirectionPut
}
