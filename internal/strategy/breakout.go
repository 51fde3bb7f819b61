package strategy

import (
	"math"

	"signalengine/internal/model"
)

// flatTolerance treats two prices as equal when their difference relative
// to price is below it. Repeated float smoothing of a constant series drifts
// by a few ulps.
const flatTolerance = 1e-9

// BollingerBands distinguishes a squeeze breakout (narrow bands, trade the
// side of the middle band price sits on) from an ordinary band touch (fade
// the touched band).
func BollingerBands(in Input) *model.StrategyCandidate {
	b := in.Indicators.Bollinger
	price := in.Price
	if b.Middle <= 0 || price <= 0 {
		return nil
	}
	ma := in.Market

	if b.Squeeze {
		if math.Abs(price-b.Middle)/b.Middle < flatTolerance {
			return nil
		}
		t := vote(side(price > b.Middle))
		if against(t.dir, ma.MicroTrend) {
			return nil
		}
		if t.dir == model.DirectionCall {
			t.add(25, "Bollinger squeeze breakout above middle band")
		} else {
			t.add(25, "Bollinger squeeze breakout below middle band")
		}
		if t.dir.Aligned(ma.MicroTrend) {
			t.add(15, "Micro trend confirms breakout")
		}
		if ma.MomentumStrength > 0.05 {
			t.add(10, "Momentum expanding (%.3f%%)", ma.MomentumStrength)
		}
		if ma.VolumeTrend == model.VolumeIncreasing {
			t.add(10, "Volume increasing")
		}
		if ma.BreakoutPotential > 5 {
			t.add(5, "Breakout potential %.1f", ma.BreakoutPotential)
		}
		return t.result(DefaultMinScore)
	}

	var t *tally
	switch {
	case price <= b.Lower*1.001:
		t = vote(model.DirectionCall)
		t.add(30, "Price touching lower band")
	case price >= b.Upper*0.999:
		t = vote(model.DirectionPut)
		t.add(30, "Price touching upper band")
	default:
		return nil
	}
	call := t.dir == model.DirectionCall

	rsi := in.Indicators.RSI
	if (call && rsi < 35) || (!call && rsi > 65) {
		t.add(15, "RSI confirms (%.1f)", rsi)
	}
	st := in.Indicators.Stochastic
	if (call && st.Oversold) || (!call && st.Overbought) {
		t.add(10, "Stochastic confirms (%.1f)", st.K)
	}
	if t.dir.Aligned(ma.MicroTrend) {
		t.add(10, "Micro trend turning")
	}
	if against(t.dir, ma.Trend) && ma.Strength > 15 {
		t.add(-20, "Strong %s trend against the fade", ma.Trend)
	}
	return t.result(DefaultMinScore)
}

// MomentumBreakout trades momentum magnitude confirmed by CCI.
func MomentumBreakout(in Input) *model.StrategyCandidate {
	m := in.Indicators.Momentum
	abs := math.Abs(m)
	if abs < 0.05 {
		return nil
	}
	t := vote(side(m > 0))
	call := t.dir == model.DirectionCall

	switch {
	case abs > 0.5:
		t.add(35, "Explosive momentum (%.3f%%)", m)
	case abs > 0.2:
		t.add(28, "Strong momentum (%.3f%%)", m)
	default:
		t.add(20, "Momentum (%.3f%%)", m)
	}

	cci := in.Indicators.CCI
	switch {
	case (call && cci > 100) || (!call && cci < -100):
		t.add(20, "CCI confirms breakout (%.0f)", cci)
	case (call && cci > 50) || (!call && cci < -50):
		t.add(10, "CCI leaning (%.0f)", cci)
	case (call && cci < -50) || (!call && cci > 50):
		t.add(-10, "CCI disagrees (%.0f)", cci)
	}

	if t.dir.Aligned(in.Market.Trend) {
		t.add(10, "Trend aligned")
	}
	if in.Market.BreakoutPotential > 10 {
		t.add(5, "Breakout potential %.1f", in.Market.BreakoutPotential)
	}
	return t.result(DefaultMinScore)
}
