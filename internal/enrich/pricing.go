package enrich

import "NewsIngest/internal/config"

// Pricing converts token usage to money with per-model rates expressed per Criteria tokens.
type Pricing struct {
	Criteria float64
	Rates    map[string]config.PriceConfig
}

// PricingFromConfig copies the configured rate table.
func PricingFromConfig(cfg config.AIConfig) Pricing {
	return Pricing{Criteria: cfg.Criteria, Rates: cfg.Prices}
}

// Cost returns (prompt/criteria)*input + (completion/criteria)*output, or 0 for an unknown model.
func (p Pricing) Cost(model string, promptTokens, completionTokens int) float64 {
	rate, ok := p.Rates[model]
	if !ok || p.Criteria <= 0 {
		return 0
	}
	return float64(promptTokens)/p.Criteria*rate.Input + float64(completionTokens)/p.Criteria*rate.Output
}

// Known reports whether model has a rate entry.
func (p Pricing) Known(model string) bool {
	_, ok := p.Rates[model]
	return ok
}
