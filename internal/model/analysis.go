package model

// Trend is the qualitative direction of a price series.
type Trend string

const (
	TrendBullish  Trend = "bullish"
	TrendBearish  Trend = "bearish"
	TrendSideways Trend = "sideways"
)

// VolumeTrend compares recent volume to the window average.
type VolumeTrend string

const (
	VolumeIncreasing VolumeTrend = "increasing"
	VolumeDecreasing VolumeTrend = "decreasing"
	VolumeStable     VolumeTrend = "stable"
)

// MarketAnalysis is the qualitative market state derived for one pass.
//
// Volatility is a ratio (stddev/mean). Strength, ReversalProbability and
// BreakoutPotential are on a 0-100 scale. MomentumStrength is in percent.
type MarketAnalysis struct {
	Trend               Trend       `json:"trend"`
	MicroTrend          Trend       `json:"microTrend"`
	Strength            float64     `json:"strength"`
	Volatility          float64     `json:"volatility"`
	VolumeTrend         VolumeTrend `json:"volumeTrend"`
	MomentumStrength    float64     `json:"momentumStrength"`
	ReversalProbability float64     `json:"reversalProbability"`
	BreakoutPotential   float64     `json:"breakoutPotential"`
}
