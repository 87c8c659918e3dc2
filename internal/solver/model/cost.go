package model

import "strings"

// Pricing defines USD cost per 1M tokens for input/output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// defaultPricing holds Gemini standard text pricing per 1M tokens, keyed by
// model prefix.
var defaultPricing = map[string]Pricing{
	"gemini-1.5-flash":      {InputPerM: 0.075, OutputPerM: 0.30},
	"gemini-1.5-pro":        {InputPerM: 1.25, OutputPerM: 5.00},
	"gemini-2.0-flash":      {InputPerM: 0.10, OutputPerM: 0.40},
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
	"gemini-2.5-pro":        {InputPerM: 1.25, OutputPerM: 10.00},
}

// ResolvePricing returns the pricing of the longest matching model prefix,
// or zero pricing for unknown models.
func ResolvePricing(name string) Pricing {
	name = strings.TrimPrefix(name, "models/")
	var (
		best    Pricing
		bestLen int
	)
	for prefix, p := range defaultPricing {
		if strings.HasPrefix(name, prefix) && len(prefix) > bestLen {
			best, bestLen = p, len(prefix)
		}
	}
	return best
}

// ComputeCost converts token usage to USD cost using per-1M Pricing.
func ComputeCost(usage *Usage, p Pricing) (inputCost, outputCost, total float64) {
	if usage == nil {
		return 0, 0, 0
	}
	inputCost = p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0
	outputCost = p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0
	total = inputCost + outputCost
	return
}
