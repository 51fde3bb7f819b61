package signalgen

import (
	"errors"
	"fmt"
)

// Config holds the gating thresholds, the synthetic candle parameters and the
// timeframe weight table. Field tags match the YAML tuning file.
type Config struct {
	MinConfidence  float64 `yaml:"min_confidence"`
	MaxConfidence  float64 `yaml:"max_confidence"`
	MinQuality     float64 `yaml:"min_quality"`
	MinSuccessRate float64 `yaml:"min_success_rate"`

	// MinSamples is the shortest price history worth analysing.
	MinSamples int `yaml:"min_samples"`
	// WindowSize is the number of most recent samples turned into candles.
	WindowSize int `yaml:"window_size"`

	WickRatio  float64 `yaml:"wick_ratio"`
	BaseVolume float64 `yaml:"base_volume"`

	// Timeframes is evaluated top-down; the first matching rule supplies the
	// weighted choices.
	Timeframes []TimeframeRule `yaml:"timeframes"`
}

// TimeframeRule matches when volatility exceeds MinVolatility or strength
// exceeds MinStrength. A rule with both thresholds at zero always matches.
type TimeframeRule struct {
	Name          string            `yaml:"name"`
	MinVolatility float64           `yaml:"min_volatility"`
	MinStrength   float64           `yaml:"min_strength"`
	Choices       []TimeframeChoice `yaml:"choices"`
}

// TimeframeChoice is one weighted expiry option in minutes.
type TimeframeChoice struct {
	Minutes int     `yaml:"minutes"`
	Weight  float64 `yaml:"weight"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinConfidence:  55,
		MaxConfidence:  95,
		MinQuality:     60,
		MinSuccessRate: 50,
		MinSamples:     30,
		WindowSize:     100,
		WickRatio:      0.0002,
		BaseVolume:     1000,
		Timeframes: []TimeframeRule{
			{
				Name:          "high_activity",
				MinVolatility: 0.02,
				MinStrength:   50,
				Choices:       []TimeframeChoice{{Minutes: 1, Weight: 0.6}, {Minutes: 2, Weight: 0.4}},
			},
			{
				Name:          "active",
				MinVolatility: 0.005,
				MinStrength:   20,
				Choices:       []TimeframeChoice{{Minutes: 2, Weight: 0.5}, {Minutes: 3, Weight: 0.5}},
			},
			{
				Name:    "calm",
				Choices: []TimeframeChoice{{Minutes: 3, Weight: 0.6}, {Minutes: 5, Weight: 0.4}},
			},
		},
	}
}

var errNoTimeframes = errors.New("signalgen: at least one timeframe rule is required")

// Validate rejects tables that could yield an unsupported timeframe.
func (c *Config) Validate() error {
	if len(c.Timeframes) == 0 {
		return errNoTimeframes
	}
	for _, r := range c.Timeframes {
		if len(r.Choices) == 0 {
			return fmt.Errorf("signalgen: timeframe rule %q has no choices", r.Name)
		}
		for _, ch := range r.Choices {
			switch ch.Minutes {
			case 1, 2, 3, 5:
			default:
				return fmt.Errorf("signalgen: timeframe rule %q: unsupported expiry %d minutes", r.Name, ch.Minutes)
			}
			if ch.Weight <= 0 {
				return fmt.Errorf("signalgen: timeframe rule %q: weight must be positive", r.Name)
			}
		}
	}
	if c.MinSamples < 2 {
		return fmt.Errorf("signalgen: min_samples must be at least 2, got %d", c.MinSamples)
	}
	if c.WindowSize < c.MinSamples {
		return fmt.Errorf("signalgen: window_size %d is below min_samples %d", c.WindowSize, c.MinSamples)
	}
	return nil
}
