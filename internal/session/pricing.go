// Package session implements the server-authoritative scoring session
// ledger: creation, turn accounting, freeze/unfreeze timing,
// single-completion enforcement, and TTL-based expiry.
package session

import (
	"strings"
)

// ModelPricing holds per-model dollar rates per million tokens.
type ModelPricing struct {
	// InputPerMillion is the dollar cost per million prompt tokens.
	InputPerMillion float64 `yaml:"input_per_million" validate:"min=0"`

	// OutputPerMillion is the dollar cost per million completion tokens.
	OutputPerMillion float64 `yaml:"output_per_million" validate:"min=0"`
}

// PricingTable maps model names to their token rates, with a default
// row for models not listed. Lookup is by longest matching prefix so
// dated model variants share their family's row.
type PricingTable struct {
	// Models maps a model name prefix to its pricing row.
	Models map[string]ModelPricing `yaml:"models" validate:"required"`

	// Default is the fallback rate applied to unknown models.
	Default ModelPricing `yaml:"default"`
}

// DefaultPricingTable returns the compiled-in rates. Values are
// overridable via configuration and intentionally conservative for
// unknown models.
func DefaultPricingTable() PricingTable {
	return PricingTable{
		Models: map[string]ModelPricing{
			"gpt-4o":           {InputPerMillion: 2.50, OutputPerMillion: 10.00},
			"gpt-4o-mini":      {InputPerMillion: 0.15, OutputPerMillion: 0.60},
			"claude-sonnet":    {InputPerMillion: 3.00, OutputPerMillion: 15.00},
			"claude-haiku":     {InputPerMillion: 0.80, OutputPerMillion: 4.00},
			"gemini-2.0-flash": {InputPerMillion: 0.10, OutputPerMillion: 0.40},
		},
		Default: ModelPricing{InputPerMillion: 1.00, OutputPerMillion: 3.00},
	}
}

// Lookup returns the pricing row for a model, preferring the longest
// prefix match and falling back to the default row.
func (t PricingTable) Lookup(model string) ModelPricing {
	best := ""
	for prefix := range t.Models {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return t.Default
	}
	return t.Models[best]
}

// Cost computes the dollar cost of a token usage pair for a model.
func (t PricingTable) Cost(model string, inputTokens, outputTokens int64) float64 {
	p := t.Lookup(model)
	return float64(inputTokens)*p.InputPerMillion/1e6 +
		float64(outputTokens)*p.OutputPerMillion/1e6
}

// EstimateTokensFromWords approximates a token count as twice the word
// count. Used for partial turns where the provider never reported
// usage because the stream was aborted.
func EstimateTokensFromWords(text string) int64 {
	return int64(len(strings.Fields(text)) * 2)
}
