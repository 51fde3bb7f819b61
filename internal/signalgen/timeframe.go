package signalgen

import "signalengine/internal/model"

// SelectTimeframe picks the first rule matching the market state and draws
// one of its choices by weight. With no match the last rule is used.
func SelectTimeframe(rules []TimeframeRule, ma model.MarketAnalysis, rng RandSource) int {
	if len(rules) == 0 {
		return 3
	}
	rule := rules[len(rules)-1]
	for _, r := range rules {
		if r.matches(ma) {
			rule = r
			break
		}
	}
	return rule.draw(rng)
}

func (r TimeframeRule) matches(ma model.MarketAnalysis) bool {
	if r.MinVolatility == 0 && r.MinStrength == 0 {
		return true
	}
	return (r.MinVolatility > 0 && ma.Volatility > r.MinVolatility) ||
		(r.MinStrength > 0 && ma.Strength > r.MinStrength)
}

func (r TimeframeRule) draw(rng RandSource) int {
	total := 0.0
	for _, c := range r.Choices {
		total += c.Weight
	}
	x := rng.Float64() * total
	for _, c := range r.Choices {
		if x < c.Weight {
			return c.Minutes
		}
		x -= c.Weight
	}
	return r.Choices[len(r.Choices)-1].Minutes
}
