package signalgen

import (
	"math"

	"signalengine/internal/model"
)

// RiskPoints scores risk on a 0-10 scale from volatility (0-3), reversal
// probability (0-2), weakness of the trend (0-3) and RSI extremity (0-2).
func RiskPoints(ind model.Indicators, ma model.MarketAnalysis) int {
	points := 0

	switch v := ma.Volatility; {
	case v > 0.03:
		points += 3
	case v > 0.02:
		points += 2
	case v > 0.01:
		points++
	}

	switch rp := ma.ReversalProbability; {
	case rp > 75:
		points += 2
	case rp > 50:
		points++
	}

	switch s := ma.Strength; {
	case s < 5:
		points += 3
	case s < 10:
		points += 2
	case s < 15:
		points++
	}

	switch rsi := ind.RSI; {
	case rsi > 90 || rsi < 10:
		points += 2
	case rsi > 80 || rsi < 20:
		points++
	}
	return points
}

// RiskLevelFor maps points to LOW (<=3), MEDIUM (4-6) or HIGH (>=7).
func RiskLevelFor(points int) model.RiskLevel {
	switch {
	case points <= 3:
		return model.RiskLow
	case points <= 6:
		return model.RiskMedium
	default:
		return model.RiskHigh
	}
}

// ExpectedSuccessRate estimates the win rate for a candidate, clamped to [0,95].
func ExpectedSuccessRate(c model.StrategyCandidate, ind model.Indicators, ma model.MarketAnalysis, quality, minConfidence float64) float64 {
	rate := 65 + (c.Score-minConfidence)*0.5

	if ma.Strength > 15 && c.Direction.Aligned(ma.Trend) {
		rate += 2
	}
	if ma.Volatility > 0.02 {
		rate -= 5
	}
	switch ma.VolumeTrend {
	case model.VolumeIncreasing:
		rate += 2
	case model.VolumeDecreasing:
		rate -= 2
	}
	if ind.Bollinger.Squeeze {
		rate += 3
	}
	switch {
	case quality >= 95:
		rate += 2
	case quality < 70:
		rate -= 5
	}
	return math.Max(0, math.Min(95, rate))
}
