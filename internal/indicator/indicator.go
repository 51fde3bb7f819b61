// Package indicator provides technical indicator calculations over price and
// candle series.
//
// Every function is pure: series are ordered oldest to newest, are never
// modified, and short history yields a neutral value instead of an error.
package indicator

import "signalengine/internal/model"

// Default periods used by Compute.
const (
	RSIPeriod            = 14
	RSIFastPeriod        = 7
	BollingerPeriod      = 20
	BollingerStdDevs     = 2.0
	SqueezeBandwidth     = 0.02
	StochasticPeriod     = 14
	StochasticOversold   = 20.0
	StochasticOverbought = 80.0
	WilliamsRPeriod      = 14
	CCIPeriod            = 20
	MomentumPeriod       = 10
	PricePositionPeriod  = 14
)

// Compute derives the full indicator set from a candle series.
func Compute(candles []model.Candle) model.Indicators {
	closes := model.Closes(candles)
	highs := model.Highs(candles)
	lows := model.Lows(candles)

	return model.Indicators{
		RSI:           RSI(closes, RSIPeriod),
		RSIFast:       RSI(closes, RSIFastPeriod),
		MACD:          MACD(closes),
		Bollinger:     Bollinger(closes, BollingerPeriod),
		SMA5:          SMA(closes, 5),
		SMA10:         SMA(closes, 10),
		SMA15:         SMA(closes, 15),
		SMA20:         SMA(closes, 20),
		EMA5:          EMA(closes, 5),
		EMA8:          EMA(closes, 8),
		EMA12:         EMA(closes, 12),
		EMA21:         EMA(closes, 21),
		EMA26:         EMA(closes, 26),
		Stochastic:    Stochastic(highs, lows, closes, StochasticPeriod),
		WilliamsR:     WilliamsR(highs, lows, closes, WilliamsRPeriod),
		CCI:           CCI(highs, lows, closes, CCIPeriod),
		Momentum:      Momentum(closes, MomentumPeriod),
		PricePosition: PricePosition(highs, lows, closes, PricePositionPeriod),
	}
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

// tail returns the last n elements (all of them when shorter).
func tail(values []float64, n int) []float64 {
	if n <= 0 || n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}

// aligned trims three series to their common (newest-aligned) length.
func aligned(highs, lows, closes []float64) ([]float64, []float64, []float64) {
	n := min(len(highs), len(lows), len(closes))
	return tail(highs, n), tail(lows, n), tail(closes, n)
}

func highestLowest(highs, lows []float64) (float64, float64) {
	hh, ll := highs[0], lows[0]
	for i := 1; i < len(highs); i++ {
		hh = max(hh, highs[i])
		ll = min(ll, lows[i])
	}
	return hh, ll
}
