package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Direction is the binary option side.
type Direction string

const (
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
)

// Aligned reports whether the direction agrees with a trend.
func (d Direction) Aligned(t Trend) bool {
	return (d == DirectionCall && t == TrendBullish) || (d == DirectionPut && t == TrendBearish)
}

// RiskLevel buckets the 0-10 risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// StrategyCandidate is one strategy's vote for a pass.
type StrategyCandidate struct {
	Strategy  string    `json:"strategy"`
	Direction Direction `json:"direction"`
	Score     float64   `json:"score"`
	Reasons   []string  `json:"reasons"`
}

// TradingSignal is the terminal output of one analysis pass for one symbol.
// It is never mutated after creation.
type TradingSignal struct {
	Symbol              string         `json:"symbol"`
	Direction           Direction      `json:"direction"`
	Confidence          float64        `json:"confidence"`
	TimeframeMinutes    int            `json:"timeframeMinutes"`
	EntryPrice          float64        `json:"entryPrice"`
	Reasoning           []string       `json:"reasoning"`
	Indicators          Indicators     `json:"indicators"`
	MarketAnalysis      MarketAnalysis `json:"marketAnalysis"`
	RiskLevel           RiskLevel      `json:"riskLevel"`
	ExpectedSuccessRate float64        `json:"expectedSuccessRate"`
	Strategy            string         `json:"strategy"`
	DataQuality         float64        `json:"dataQuality"`
	CreatedAtMs         int64          `json:"createdAtMs"`
}

// ErrInvalidSignal marks a signal that must be discarded rather than shown.
var ErrInvalidSignal = errors.New("invalid trading signal")

// Validate checks that every numeric field is finite and every enum is known.
func (s *TradingSignal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidSignal)
	}
	if s.Direction != DirectionCall && s.Direction != DirectionPut {
		return fmt.Errorf("%w: direction %q", ErrInvalidSignal, s.Direction)
	}
	switch s.TimeframeMinutes {
	case 1, 2, 3, 5:
	default:
		return fmt.Errorf("%w: timeframe %d", ErrInvalidSignal, s.TimeframeMinutes)
	}
	switch s.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		return fmt.Errorf("%w: risk level %q", ErrInvalidSignal, s.RiskLevel)
	}
	nums := map[string]float64{
		"confidence":          s.Confidence,
		"entryPrice":          s.EntryPrice,
		"expectedSuccessRate": s.ExpectedSuccessRate,
		"rsi":                 s.Indicators.RSI,
		"macd":                s.Indicators.MACD.MACD,
		"cci":                 s.Indicators.CCI,
		"williamsR":           s.Indicators.WilliamsR,
		"volatility":          s.MarketAnalysis.Volatility,
		"strength":            s.MarketAnalysis.Strength,
	}
	for name, v := range nums {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidSignal, name)
		}
	}
	if s.EntryPrice <= 0 {
		return fmt.Errorf("%w: entry price %v", ErrInvalidSignal, s.EntryPrice)
	}
	return nil
}

// JSON returns the JSON-encoded signal.
func (s *TradingSignal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
