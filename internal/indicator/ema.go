package indicator

// EMA is the exponential moving average of values, seeded with the first
// element and smoothed left to right with multiplier 2/(period+1).
// An empty series yields 0.
func EMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if period < 1 {
		period = 1
	}
	k := 2.0 / float64(period+1)
	ema := values[0]
	for _, v := range values[1:] {
		// EMA = (price * k) + (EMA_prev * (1 - k))
		ema = v*k + ema*(1-k)
	}
	return ema
}
