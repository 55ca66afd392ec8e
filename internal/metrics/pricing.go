// Package metrics aggregates model usage and cost per workflow run.
package metrics

import "strings"

// ModelPricing is USD per one million tokens.
type ModelPricing struct {
	InputPer1M  float64 `json:"input_per_1m"`
	OutputPer1M float64 `json:"output_per_1m"`
}

var modelPricing = map[string]ModelPricing{
	"gpt-4o":        {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":   {InputPer1M: 0.150, OutputPer1M: 0.600},
	"gpt-3.5-turbo": {InputPer1M: 0.50, OutputPer1M: 1.50},
	"gpt-4":         {InputPer1M: 30.00, OutputPer1M: 60.00},
	"gpt-4-turbo":   {InputPer1M: 10.00, OutputPer1M: 30.00},
}

// PricingFor returns the pricing of model. Dated or suffixed variants such
// as "gpt-4o-2024-08-06" use the longest matching base name. Unknown models
// report false and are priced at zero.
func PricingFor(model string) (ModelPricing, bool) {
	name := strings.ToLower(strings.TrimSpace(model))
	if pricing, ok := modelPricing[name]; ok {
		return pricing, true
	}
	best := ""
	for base := range modelPricing {
		if strings.HasPrefix(name, base+"-") && len(base) > len(best) {
			best = base
		}
	}
	if best == "" {
		return ModelPricing{}, false
	}
	return modelPricing[best], true
}

// CalculateCost prices a single call.
func CalculateCost(inputTokens, outputTokens int, model string) (inputCost, outputCost, totalCost float64) {
	pricing, _ := PricingFor(model)
	inputCost = float64(inputTokens) / 1_000_000 * pricing.InputPer1M
	outputCost = float64(outputTokens) / 1_000_000 * pricing.OutputPer1M
	totalCost = inputCost + outputCost
	return
}
