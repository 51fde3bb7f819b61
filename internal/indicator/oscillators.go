package indicator

import (
	"math"

	"signalengine/internal/model"
)

// Stochastic computes %K over the last period bars and a simplified %D.
// A window without range yields %K = 50.
func Stochastic(highs, lows, closes []float64, period int) model.Stochastic {
	k := rangePosition(highs, lows, closes, period)
	return model.Stochastic{
		K:          k,
		D:          stochasticD(k),
		Oversold:   k < StochasticOversold,
		Overbought: k > StochasticOverbought,
	}
}

// stochasticD approximates %D as 0.9 x %K instead of a 3-period SMA of %K.
func stochasticD(k float64) float64 {
	return k * 0.9
}

// WilliamsR is (highestHigh - close)/(highestHigh - lowestLow) x -100,
// ranging from -100 (at the low) to 0 (at the high). A flat window yields -50.
func WilliamsR(highs, lows, closes []float64, period int) float64 {
	highs, lows, closes = aligned(highs, lows, closes)
	if len(closes) == 0 {
		return -50
	}
	hh, ll := highestLowest(tail(highs, period), tail(lows, period))
	if hh == ll {
		return -50
	}
	return (hh - last(closes)) / (hh - ll) * -100
}

// CCI is the Commodity Channel Index of the typical price over period bars.
// A window without deviation yields 0.
func CCI(highs, lows, closes []float64, period int) float64 {
	highs, lows, closes = aligned(highs, lows, closes)
	if len(closes) == 0 {
		return 0
	}
	typical := make([]float64, len(closes))
	for i := range closes {
		typical[i] = (highs[i] + lows[i] + closes[i]) / 3
	}
	window := tail(typical, period)
	mean := Mean(window)

	dev := 0.0
	for _, tp := range window {
		dev += math.Abs(tp - mean)
	}
	dev /= float64(len(window))
	if dev == 0 {
		return 0
	}
	return (last(typical) - mean) / (0.015 * dev)
}

// Momentum is the percent change between the last value and the value period
// samples back. Short history yields 0.
func Momentum(values []float64, period int) float64 {
	if period < 1 || len(values) <= period {
		return 0
	}
	past := values[len(values)-1-period]
	if past == 0 {
		return 0
	}
	return (last(values) - past) / past * 100
}

// PricePosition is the percent location of the last close within the
// high/low range of the last period bars. A flat window yields 50.
func PricePosition(highs, lows, closes []float64, period int) float64 {
	return rangePosition(highs, lows, closes, period)
}

func rangePosition(highs, lows, closes []float64, period int) float64 {
	highs, lows, closes = aligned(highs, lows, closes)
	if len(closes) == 0 {
		return 50
	}
	hh, ll := highestLowest(tail(highs, period), tail(lows, period))
	if hh == ll {
		return 50
	}
	pos := (last(closes) - ll) / (hh - ll) * 100
	return math.Max(0, math.Min(100, pos))
}
