package indicator

import "signalengine/internal/model"

// Bollinger computes SMA +/- 2 standard deviations over the last period
// values (all of them when shorter). Squeeze is set when the band width
// relative to the middle band is below SqueezeBandwidth.
func Bollinger(values []float64, period int) model.Bollinger {
	if len(values) == 0 {
		return model.Bollinger{}
	}
	window := tail(values, period)
	middle := Mean(window)
	sd := StdDev(window)

	b := model.Bollinger{
		Upper:  middle + BollingerStdDevs*sd,
		Middle: middle,
		Lower:  middle - BollingerStdDevs*sd,
	}
	b.Squeeze = Bandwidth(b) < SqueezeBandwidth
	return b
}

// Bandwidth is (upper - lower) / middle, or 0 when middle is 0.
func Bandwidth(b model.Bollinger) float64 {
	if b.Middle == 0 {
		return 0
	}
	return (b.Upper - b.Lower) / b.Middle
}
