package model

// Candle is an OHLCV bar. Series are ordered oldest to newest.
type Candle struct {
	TimestampMs int64   `json:"timestampMs"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
}

// Valid reports whether the OHLC relationship holds:
// low <= min(open, close) and high >= max(open, close), all positive.
func (c *Candle) Valid() bool {
	if c.Low <= 0 || c.High <= 0 || c.Open <= 0 || c.Close <= 0 {
		return false
	}
	return c.Low <= c.Open && c.Low <= c.Close && c.High >= c.Open && c.High >= c.Close && c.High >= c.Low
}

// Closes extracts the close series.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}

// Highs extracts the high series.
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].High
	}
	return out
}

// Lows extracts the low series.
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Low
	}
	return out
}

// Volumes extracts the volume series.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Volume
	}
	return out
}
