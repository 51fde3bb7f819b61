package signalgen

import (
	"math"

	"signalengine/internal/model"
)

// CandleBuilder turns a stream of price samples into synthetic candles.
//
// The provider only sends a last price, so each sample becomes one candle:
// open is the previous sample's price, close is the sample's price, and the
// wicks and volume are drawn from Rand. This is an approximation layer; a
// real OHLC feed can replace it without touching the indicator or analysis
// code.
type CandleBuilder struct {
	WickRatio  float64
	BaseVolume float64
	Rand       RandSource
}

// Build returns one candle per sample, oldest first. Upper and lower wicks
// are each close x WickRatio x [0.5, 1); volume is BaseVolume x [0.5, 1.5).
func (b CandleBuilder) Build(samples []model.PriceSample) []model.Candle {
	out := make([]model.Candle, len(samples))
	for i, s := range samples {
		open := s.Price
		if i > 0 {
			open = samples[i-1].Price
		}
		last := s.Price
		upper := last * b.WickRatio * (0.5 + 0.5*b.Rand.Float64())
		lower := last * b.WickRatio * (0.5 + 0.5*b.Rand.Float64())
		out[i] = model.Candle{
			TimestampMs: s.TimestampMs,
			Open:        open,
			High:        math.Max(open, last) + upper,
			Low:         math.Min(open, last) - lower,
			Close:       last,
			Volume:      b.BaseVolume * (0.5 + b.Rand.Float64()),
		}
	}
	return out
}
