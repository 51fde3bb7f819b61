package strategy

import "signalengine/internal/model"

// RSIAdvanced fades RSI extremes in tiers, confirmed by the fast RSI and the
// micro trend. A micro trend still running into the extreme vetoes the vote.
func RSIAdvanced(in Input) *model.StrategyCandidate {
	rsi := in.Indicators.RSI
	var t *tally
	switch {
	case rsi < 30:
		t = vote(model.DirectionCall)
		switch {
		case rsi < 20:
			t.add(35, "RSI extremely oversold (%.1f)", rsi)
		case rsi < 25:
			t.add(28, "RSI strongly oversold (%.1f)", rsi)
		default:
			t.add(20, "RSI oversold (%.1f)", rsi)
		}
	case rsi > 70:
		t = vote(model.DirectionPut)
		switch {
		case rsi > 80:
			t.add(35, "RSI extremely overbought (%.1f)", rsi)
		case rsi > 75:
			t.add(28, "RSI strongly overbought (%.1f)", rsi)
		default:
			t.add(20, "RSI overbought (%.1f)", rsi)
		}
	default:
		return nil
	}

	micro := in.Market.MicroTrend
	if against(t.dir, micro) {
		return nil
	}

	fast := in.Indicators.RSIFast
	call := t.dir == model.DirectionCall
	switch {
	case (call && fast < 25) || (!call && fast > 75):
		t.add(15, "Fast RSI confirms (%.1f)", fast)
	case (call && fast < 35) || (!call && fast > 65):
		t.add(8, "Fast RSI leaning (%.1f)", fast)
	}

	if micro == model.TrendSideways {
		t.add(5, "Micro trend stalling")
	} else {
		t.add(15, "Micro trend turning %s", micro)
	}

	st := in.Indicators.Stochastic
	if (call && st.Oversold) || (!call && st.Overbought) {
		t.add(10, "Stochastic agrees (%.1f)", st.K)
	}
	return t.result(DefaultMinScore)
}

// StochasticOscillator fades extreme %K with RSI confirmation.
func StochasticOscillator(in Input) *model.StrategyCandidate {
	st := in.Indicators.Stochastic
	var t *tally
	switch {
	case st.Oversold:
		t = vote(model.DirectionCall)
		t.add(25, "Stochastic %%K oversold (%.1f)", st.K)
	case st.Overbought:
		t = vote(model.DirectionPut)
		t.add(25, "Stochastic %%K overbought (%.1f)", st.K)
	default:
		return nil
	}
	if against(t.dir, in.Market.MicroTrend) {
		return nil
	}

	call := t.dir == model.DirectionCall
	if (call && st.K < 10) || (!call && st.K > 90) {
		t.add(10, "%%K at extreme")
	}
	rsi := in.Indicators.RSI
	if (call && rsi < 35) || (!call && rsi > 65) {
		t.add(15, "RSI confirms (%.1f)", rsi)
	}
	if t.dir.Aligned(in.Market.MicroTrend) {
		t.add(10, "Micro trend turning %s", in.Market.MicroTrend)
	}
	return t.result(DefaultMinScore)
}

// WilliamsRExtremes fades Williams %R extremes, confirmed by the Stochastic
// and boosted by the reversal probability.
func WilliamsRExtremes(in Input) *model.StrategyCandidate {
	wr := in.Indicators.WilliamsR
	var t *tally
	switch {
	case wr < -80:
		t = vote(model.DirectionCall)
		t.add(20, "Williams %%R oversold (%.1f)", wr)
	case wr > -20:
		t = vote(model.DirectionPut)
		t.add(20, "Williams %%R overbought (%.1f)", wr)
	default:
		return nil
	}
	if against(t.dir, in.Market.MicroTrend) {
		return nil
	}

	call := t.dir == model.DirectionCall
	if (call && wr < -90) || (!call && wr > -10) {
		t.add(10, "Williams %%R at extreme")
	}
	st := in.Indicators.Stochastic
	if (call && st.Oversold) || (!call && st.Overbought) {
		t.add(15, "Stochastic confirms (%.1f)", st.K)
	}
	switch rp := in.Market.ReversalProbability; {
	case rp > 75:
		t.add(15, "High reversal probability (%.0f%%)", rp)
	case rp > 60:
		t.add(10, "Elevated reversal probability (%.0f%%)", rp)
	}
	return t.result(DefaultMinScore)
}

// Reversal trades Williams %R and Stochastic extremes together, only when
// the reversal probability is above 60.
func Reversal(in Input) *model.StrategyCandidate {
	rp := in.Market.ReversalProbability
	if rp <= 60 {
		return nil
	}
	wr, st := in.Indicators.WilliamsR, in.Indicators.Stochastic

	var t *tally
	switch {
	case wr < -80 && st.Oversold:
		t = vote(model.DirectionCall)
		t.add(25, "Williams %%R oversold (%.1f)", wr)
		t.add(20, "Stochastic oversold (%.1f)", st.K)
	case wr > -20 && st.Overbought:
		t = vote(model.DirectionPut)
		t.add(25, "Williams %%R overbought (%.1f)", wr)
		t.add(20, "Stochastic overbought (%.1f)", st.K)
	default:
		return nil
	}
	if against(t.dir, in.Market.MicroTrend) {
		return nil
	}

	if rp > 75 {
		t.add(10, "Reversal probability %.0f%%", rp)
	}
	rsi := in.Indicators.RSI
	if (t.dir == model.DirectionCall && rsi < 35) || (t.dir == model.DirectionPut && rsi > 65) {
		t.add(10, "RSI confirms (%.1f)", rsi)
	}
	return t.result(DefaultMinScore)
}
