package provider

// Default per-1K-token prices in USD (deepseek-chat list prices).
const (
	DefaultPromptPer1K     = 0.00028
	DefaultCompletionPer1K = 0.00042
)

// Pricing converts token counts into a USD cost.
type Pricing struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k" json:"prompt_per_1k"`
	CompletionPer1K float64 `yaml:"completion_per_1k" json:"completion_per_1k"`
}

// DefaultPricing returns the built-in price table.
func DefaultPricing() Pricing {
	return Pricing{
		PromptPer1K:     DefaultPromptPer1K,
		CompletionPer1K: DefaultCompletionPer1K,
	}
}

// Cost returns prompt/1000*PromptPer1K + completion/1000*CompletionPer1K.
func (p Pricing) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*p.PromptPer1K +
		float64(completionTokens)/1000*p.CompletionPer1K
}
