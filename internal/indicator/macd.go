package indicator

import "signalengine/internal/model"

// MACD computes EMA12 - EMA26 of values with a simplified signal line.
func MACD(values []float64) model.MACD {
	line := EMA(values, 12) - EMA(values, 26)
	signal := macdSignal(line)
	return model.MACD{
		MACD:      line,
		Signal:    signal,
		Histogram: line - signal,
	}
}

// macdSignal approximates the signal line as 0.9 x MACD rather than a
// 9-period EMA of the MACD series. Strategy thresholds are calibrated
// against this approximation.
func macdSignal(macd float64) float64 {
	return macd * 0.9
}
