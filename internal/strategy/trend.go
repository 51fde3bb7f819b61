package strategy

import (
	"math"

	"signalengine/internal/model"
)

// EMAScalping follows the EMA5/EMA8 cross, confirmed by EMA12/26 alignment,
// momentum strength and volume.
func EMAScalping(in Input) *model.StrategyCandidate {
	ind := in.Indicators
	if in.Price <= 0 || math.Abs(ind.EMA5-ind.EMA8)/in.Price < flatTolerance {
		return nil
	}
	t := vote(side(ind.EMA5 > ind.EMA8))
	call := t.dir == model.DirectionCall
	if call {
		t.add(25, "EMA5 above EMA8")
	} else {
		t.add(25, "EMA5 below EMA8")
	}

	if (call && ind.EMA12 > ind.EMA26) || (!call && ind.EMA12 < ind.EMA26) {
		t.add(15, "EMA12/26 aligned")
	}

	switch ms := in.Market.MomentumStrength; {
	case ms > 0.1:
		t.add(15, "Strong momentum (%.3f%%)", ms)
	case ms > 0.03:
		t.add(8, "Building momentum (%.3f%%)", ms)
	}

	switch in.Market.VolumeTrend {
	case model.VolumeIncreasing:
		t.add(10, "Volume increasing")
	case model.VolumeDecreasing:
		t.add(-5, "Volume fading")
	}

	if bp := in.Market.BreakoutPotential; bp > 5 {
		t.add(10, "EMA spread widening (%.1f)", bp)
	}
	return t.result(DefaultMinScore)
}

// TrendFollowing rides an established trend when strength is above 15,
// backing off when RSI is overextended in the trend direction.
func TrendFollowing(in Input) *model.StrategyCandidate {
	ma := in.Market
	if ma.Trend == model.TrendSideways || ma.Strength <= 15 {
		return nil
	}
	t := vote(side(ma.Trend == model.TrendBullish))
	call := t.dir == model.DirectionCall
	t.add(30, "Following %s trend (strength %.1f)", ma.Trend, ma.Strength)

	switch {
	case ma.Strength > 30:
		t.add(15, "Very strong trend")
	case ma.Strength > 20:
		t.add(10, "Strong trend")
	default:
		t.add(5, "Moderate trend")
	}

	ind := in.Indicators
	if (call && ind.EMA5 > ind.EMA21) || (!call && ind.EMA5 < ind.EMA21) {
		t.add(10, "EMA5/21 aligned")
	}
	if (call && ind.MACD.MACD > 0) || (!call && ind.MACD.MACD < 0) {
		t.add(10, "MACD agrees")
	}

	rsi := ind.RSI
	switch {
	case (call && rsi > 85) || (!call && rsi < 15):
		t.add(-15, "RSI overextended (%.1f)", rsi)
	case (call && rsi > 75) || (!call && rsi < 25):
		t.add(-5, "RSI stretched (%.1f)", rsi)
	}
	if against(t.dir, ma.MicroTrend) {
		t.add(-10, "Micro trend pulling back")
	}
	return t.result(DefaultMinScore)
}

// MACDHistogram trades a strong histogram confirmed by the signal-line cross
// and the trend. Histogram size is measured relative to price.
func MACDHistogram(in Input) *model.StrategyCandidate {
	if in.Price <= 0 {
		return nil
	}
	m := in.Indicators.MACD
	histPct := m.Histogram / in.Price * 100
	if math.Abs(histPct) < 0.005 {
		return nil
	}
	t := vote(side(histPct > 0))
	call := t.dir == model.DirectionCall

	switch abs := math.Abs(histPct); {
	case abs > 0.03:
		t.add(30, "Strong MACD histogram (%.4f%%)", histPct)
	case abs > 0.01:
		t.add(25, "Solid MACD histogram (%.4f%%)", histPct)
	default:
		t.add(18, "MACD histogram (%.4f%%)", histPct)
	}

	if (call && m.MACD > m.Signal) || (!call && m.MACD < m.Signal) {
		t.add(15, "MACD crossed its signal line")
	}
	if t.dir.Aligned(in.Market.Trend) {
		t.add(15, "Trend aligned (%s)", in.Market.Trend)
	}
	if t.dir.Aligned(in.Market.MicroTrend) {
		t.add(5, "Micro trend aligned")
	}
	return t.result(DefaultMinScore)
}

// VolumeSpike trades rising volume in the direction of the trend.
func VolumeSpike(in Input) *model.StrategyCandidate {
	ma := in.Market
	if ma.VolumeTrend != model.VolumeIncreasing || ma.Trend == model.TrendSideways {
		return nil
	}
	t := vote(side(ma.Trend == model.TrendBullish))
	t.add(30, "Rising volume behind %s trend", ma.Trend)

	switch {
	case ma.Strength > 15:
		t.add(15, "Trend strength %.1f", ma.Strength)
	case ma.Strength > 5:
		t.add(8, "Trend strength %.1f", ma.Strength)
	}
	if t.dir.Aligned(ma.MicroTrend) {
		t.add(10, "Micro trend aligned")
	}
	if ma.MomentumStrength > 0.05 {
		t.add(5, "Momentum %.3f%%", ma.MomentumStrength)
	}
	return t.result(DefaultMinScore)
}
