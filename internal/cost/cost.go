// Package cost estimates what LLM completions cost.
package cost

import "go.uber.org/zap"

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64
	Output float64
}

// Rates maps model IDs to their pricing.
type Rates map[string]ModelRate

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Tokens computes the cost of one completion. Unknown models cost 0.
func (c *Calculator) Tokens(model string, input, output int) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Log records token usage and estimated cost for one completion.
func (c *Calculator) Log(provider, model, phase string, input, output int) {
	zap.L().Info("cost attribution",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int("input_tokens", input),
		zap.Int("output_tokens", output),
		zap.Float64("estimated_cost_usd", c.Tokens(model, input, output)),
	)
}

// DefaultRates returns list prices for the models reconciliation defaults to
// or commonly runs with.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
		"gpt-4o":                     {Input: 2.50, Output: 10.00},
		"gpt-4.1-mini":               {Input: 0.40, Output: 1.60},
		"gemini-2.0-flash":           {Input: 0.10, Output: 0.40},
		"gemini-2.5-flash":           {Input: 0.30, Output: 2.50},
	}
}

var defaultCalculator = NewCalculator(DefaultRates())

// Default returns the calculator over DefaultRates.
func Default() *Calculator { return defaultCalculator }
