package indicator

// RSI is the Relative Strength Index over the last period deltas, using
// simple averages of gains and losses.
//
// It returns 50 when there are fewer than period+1 values or when the window
// has no movement at all, and 100 when there were gains but no losses.
func RSI(values []float64, period int) float64 {
	if period < 1 || len(values) < period+1 {
		return 50
	}

	window := tail(values, period+1)
	gains, losses := 0.0, 0.0
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
