// Package analysis derives the qualitative market state used by the
// strategy scorer from a candle series and its indicators.
package analysis

import (
	"math"

	"signalengine/internal/indicator"
	"signalengine/internal/model"
)

// Thresholds on fractional price change.
const (
	TrendWindow         = 10
	TrendThreshold      = 0.0005 // 0.05%
	MicroTrendWindow    = 3
	MicroTrendThreshold = 0.0002 // 0.02%
	StrengthScale       = 2000
	ReversalWindow      = 5
	VolumeWindow        = 3
	VolumeBand          = 0.15
)

// Analyze computes a fresh MarketAnalysis. It keeps no state between calls.
func Analyze(candles []model.Candle, ind model.Indicators) model.MarketAnalysis {
	closes := model.Closes(candles)

	trendChange := windowChange(closes, TrendWindow)
	ma := model.MarketAnalysis{
		Trend:               classify(trendChange, TrendThreshold),
		MicroTrend:          classify(windowChange(closes, MicroTrendWindow), MicroTrendThreshold),
		Strength:            math.Min(100, math.Abs(trendChange)*StrengthScale),
		Volatility:          Volatility(closes),
		VolumeTrend:         volumeTrend(model.Volumes(candles)),
		MomentumStrength:    (math.Abs(indicator.Momentum(closes, 3)) + math.Abs(indicator.Momentum(closes, 5))) / 2,
		ReversalProbability: reversalProbability(candles),
	}

	if price := lastClose(closes); price > 0 {
		ma.BreakoutPotential = math.Min(100, math.Abs(ind.EMA5-ind.EMA8)/price*10000)
	}
	return ma
}

// Volatility is stddev(closes)/mean(closes), or 0 for an empty or zero-mean series.
func Volatility(closes []float64) float64 {
	mean := indicator.Mean(closes)
	if mean == 0 {
		return 0
	}
	return indicator.StdDev(closes) / mean
}

// windowChange is the fractional change from the first to the last of the
// last n closes.
func windowChange(closes []float64, n int) float64 {
	if len(closes) < 2 {
		return 0
	}
	if len(closes) > n {
		closes = closes[len(closes)-n:]
	}
	first := closes[0]
	if first == 0 {
		return 0
	}
	return (closes[len(closes)-1] - first) / first
}

func classify(change, threshold float64) model.Trend {
	switch {
	case change > threshold:
		return model.TrendBullish
	case change < -threshold:
		return model.TrendBearish
	default:
		return model.TrendSideways
	}
}

// reversalProbability is 80 when the last close sits in the top or bottom
// 10% of the recent high/low band, otherwise it rises linearly from 20 at
// the band midpoint. A band without range yields 50.
func reversalProbability(candles []model.Candle) float64 {
	if len(candles) == 0 {
		return 50
	}
	window := candles
	if len(window) > ReversalWindow {
		window = window[len(window)-ReversalWindow:]
	}
	hh, ll := window[0].High, window[0].Low
	for _, c := range window[1:] {
		hh = math.Max(hh, c.High)
		ll = math.Min(ll, c.Low)
	}
	if hh <= ll {
		return 50
	}
	pos := (window[len(window)-1].Close - ll) / (hh - ll)
	if pos >= 0.9 || pos <= 0.1 {
		return 80
	}
	return 20 + math.Abs(pos-0.5)/0.5*60
}

func volumeTrend(volumes []float64) model.VolumeTrend {
	avg := indicator.Mean(volumes)
	if avg <= 0 {
		return model.VolumeStable
	}
	recent := volumes
	if len(recent) > VolumeWindow {
		recent = recent[len(recent)-VolumeWindow:]
	}
	ratio := indicator.Mean(recent) / avg
	switch {
	case ratio > 1+VolumeBand:
		return model.VolumeIncreasing
	case ratio < 1-VolumeBand:
		return model.VolumeDecreasing
	default:
		return model.VolumeStable
	}
}

func lastClose(closes []float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	return closes[len(closes)-1]
}
