package indicator

import "math"

// SMA is the arithmetic mean of the last period values. With fewer values
// than period it returns the last value; an empty series yields 0.
func SMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if period <= 0 || len(values) < period {
		return last(values)
	}
	return Mean(tail(values, period))
}

// Mean is the arithmetic mean of values (0 for an empty series).
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev is the population standard deviation of values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := Mean(values)
	acc := 0.0
	for _, v := range values {
		d := v - m
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(values)))
}
