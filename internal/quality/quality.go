// Package quality scores how far an analysis pass can be trusted.
package quality

import (
	"fmt"
	"math"
	"time"

	"signalengine/internal/indicator"
	"signalengine/internal/model"
)

// Thresholds and penalties. The score starts at 100 and is clamped to [0,100].
const (
	MinCandlesHard = 50
	MinCandlesSoft = 100

	FlatVolatility    = 1e-6
	ExtremeVolatility = 0.05

	penaltyFewCandles    = 20
	penaltySomeCandles   = 10
	penaltyInvalidOHLC   = 30
	penaltyFlat          = 25
	penaltyExtremeVol    = 15
	penaltyRSIRange      = 20
	penaltyMACDNonFinite = 15
	penaltyZeroVolume    = 10
	penaltyStaleSevere   = 30
	penaltyStaleModerate = 15
	penaltyStaleMild     = 5
	staleSevere          = 10 * time.Second
	staleModerate        = 5 * time.Second
	staleMild            = 2 * time.Second
)

// Input is what the assessor looks at for one pass.
type Input struct {
	Candles    []model.Candle
	Indicators model.Indicators
	Market     model.MarketAnalysis
	LastTick   time.Time
	Now        time.Time
}

// Report is the quality score and the issues that lowered it.
type Report struct {
	Score  float64
	Issues []string
}

// Assess scores the input.
func Assess(in Input) Report {
	r := Report{Score: 100}
	penalize := func(points float64, format string, args ...any) {
		r.Score -= points
		r.Issues = append(r.Issues, fmt.Sprintf(format, args...))
	}

	switch n := len(in.Candles); {
	case n < MinCandlesHard:
		penalize(penaltyFewCandles, "only %d candles", n)
	case n < MinCandlesSoft:
		penalize(penaltySomeCandles, "%d candles (< %d)", n, MinCandlesSoft)
	}

	for i := range in.Candles {
		if !in.Candles[i].Valid() {
			penalize(penaltyInvalidOHLC, "invalid OHLC at candle %d", i)
			break
		}
	}

	vol := in.Market.Volatility
	switch {
	case math.IsNaN(vol) || math.IsInf(vol, 0) || vol > ExtremeVolatility:
		penalize(penaltyExtremeVol, "extreme volatility (%.4f)", vol)
	case vol < FlatVolatility:
		penalize(penaltyFlat, "suspiciously flat prices")
	}

	if rsi := in.Indicators.RSI; math.IsNaN(rsi) || rsi < 0 || rsi > 100 {
		penalize(penaltyRSIRange, "RSI out of range (%v)", rsi)
	}
	m := in.Indicators.MACD
	if !finite(m.MACD) || !finite(m.Signal) || !finite(m.Histogram) {
		penalize(penaltyMACDNonFinite, "MACD not finite")
	}

	if len(in.Candles) > 0 && indicator.Mean(model.Volumes(in.Candles)) == 0 {
		penalize(penaltyZeroVolume, "zero average volume")
	}

	if !in.LastTick.IsZero() {
		switch age := in.Now.Sub(in.LastTick); {
		case age > staleSevere:
			penalize(penaltyStaleSevere, "last tick %s old", age.Round(time.Second))
		case age > staleModerate:
			penalize(penaltyStaleModerate, "last tick %s old", age.Round(time.Second))
		case age > staleMild:
			penalize(penaltyStaleMild, "last tick %s old", age.Round(100*time.Millisecond))
		}
	}

	r.Score = math.Max(0, math.Min(100, r.Score))
	return r
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
