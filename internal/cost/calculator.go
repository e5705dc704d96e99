// Package cost computes the monetary cost of extraction attempts from
// per-provider pricing tables.
package cost

import (
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ModelRate holds per-model token pricing in USD per million tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// ProviderRates holds the pricing table for one provider. Free providers
// (the local fallback) cost zero regardless of token counts.
type ProviderRates struct {
	Free   bool                 `yaml:"free" mapstructure:"free"`
	Models map[string]ModelRate `yaml:"models" mapstructure:"models"`
}

// Rates maps provider name to its pricing table.
type Rates struct {
	Providers map[string]ProviderRates `yaml:"providers" mapstructure:"providers"`
}

// Calculator computes attempt costs from a Rates table. Unknown providers or
// models cost zero and log a warning once per process rather than failing the
// attempt.
type Calculator struct {
	rates Rates

	mu     sync.Mutex
	warned map[string]bool
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates, warned: make(map[string]bool)}
}

// Cost returns the USD cost of one attempt: a linear per-token formula for
// paid providers, zero for free ones.
func (c *Calculator) Cost(provider, model string, promptTokens, completionTokens int) float64 {
	pr, ok := c.rates.Providers[provider]
	if !ok {
		c.warnOnce(provider, "", "provider not in pricing table")
		return 0
	}
	if pr.Free {
		return 0
	}

	rate, ok := pr.Models[model]
	if !ok {
		c.warnOnce(provider, model, "model not in pricing table")
		return 0
	}

	inCost := (float64(promptTokens) / 1e6) * rate.Input
	outCost := (float64(completionTokens) / 1e6) * rate.Output
	return inCost + outCost
}

func (c *Calculator) warnOnce(provider, model, reason string) {
	key := provider + "/" + model
	c.mu.Lock()
	seen := c.warned[key]
	c.warned[key] = true
	c.mu.Unlock()
	if seen {
		return
	}
	zap.L().Warn("cost: unknown pricing, charging zero",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.String("reason", reason),
	)
}

// LoadRates reads a pricing table from a YAML file. An empty path returns the
// shipped defaults.
func LoadRates(path string) (Rates, error) {
	if path == "" {
		return DefaultRates(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rates{}, eris.Wrapf(err, "cost: read rates file %s", path)
	}

	var rates Rates
	if err := yaml.Unmarshal(data, &rates); err != nil {
		return Rates{}, eris.Wrap(err, "cost: parse rates file")
	}
	if len(rates.Providers) == 0 {
		return Rates{}, eris.Errorf("cost: rates file %s has no providers", path)
	}

	return rates, nil
}

// DefaultRates returns the shipped pricing table.
func DefaultRates() Rates {
	return Rates{
		Providers: map[string]ProviderRates{
			"anthropic": {
				Models: map[string]ModelRate{
					"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
					"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
				},
			},
			"openrouter": {
				Models: map[string]ModelRate{
					"qwen/qwen2.5-vl-72b-instruct":             {Input: 0.25, Output: 0.75},
					"google/gemini-2.0-flash-001":              {Input: 0.10, Output: 0.40},
					"meta-llama/llama-3.2-90b-vision-instruct": {Input: 0.35, Output: 0.40},
				},
			},
			"tesseract": {Free: true},
		},
	}
}
