package openai

import (
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/dschat/internal/provider"
)

// Supported provider kinds. Each selects a default base URL and model;
// any other OpenAI-compatible endpoint works as KindOpenAI with an
// explicit base URL.
const (
	KindDeepSeek = "deepseek"
	KindGroq     = "groq"
	KindOpenAI   = "openai"
)

// Defaults applied by Config.defaults.
const (
	DefaultKind      = KindDeepSeek
	DefaultMaxTokens = 4000
	DefaultTimeout   = "60s"
)

// kindDefaults holds the per-kind base URL and model.
var kindDefaults = map[string]struct{ baseURL, model string }{
	KindDeepSeek: {"https://api.deepseek.com/v1", "deepseek-chat"},
	KindGroq:     {"https://api.groq.com/openai/v1", "llama-3.1-8b-instant"},
	KindOpenAI:   {"https://api.openai.com/v1", "gpt-4o-mini"},
}

// Config holds the configuration of the chat transport.
type Config struct {
	Kind        string   `yaml:"kind"`
	APIKey      string   `yaml:"api_key"`
	Model       string   `yaml:"model"`
	BaseURL     string   `yaml:"base_url"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`

	// FrequencyPenalty and PresencePenalty are only sent to DeepSeek.
	FrequencyPenalty *float64 `yaml:"frequency_penalty"`
	PresencePenalty  *float64 `yaml:"presence_penalty"`

	// Timeout bounds non-streaming calls and the wait for response
	// headers of streaming calls. A stream that has started is bounded
	// only by its context.
	Timeout string `yaml:"timeout"`

	Pricing provider.Pricing `yaml:"pricing"`
}

// defaults fills zero-valued fields with the defaults of c.Kind.
func (c *Config) defaults() {
	if c.Kind == "" {
		c.Kind = DefaultKind
	}
	if d, ok := kindDefaults[c.Kind]; ok {
		if c.BaseURL == "" {
			c.BaseURL = d.baseURL
		}
		if c.Model == "" {
			c.Model = d.model
		}
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout == "" {
		c.Timeout = DefaultTimeout
	}
	if c.Pricing == (provider.Pricing{}) && c.Kind == KindDeepSeek {
		c.Pricing = provider.DefaultPricing()
	}
}

// parsedTimeout returns the timeout as a time.Duration.
// Assumes the value has been validated.
func (c *Config) parsedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// Validate checks a defaulted configuration.
func (c *Config) Validate() error {
	var errs []error
	if _, ok := kindDefaults[c.Kind]; !ok {
		errs = append(errs, fmt.Errorf("provider: unknown kind %q", c.Kind))
	}
	if c.APIKey == "" {
		errs = append(errs, errors.New("provider: api_key is required"))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("provider: model is required"))
	}
	if c.BaseURL == "" {
		errs = append(errs, errors.New("provider: base_url is required"))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("provider: max_tokens must not be negative, got %d", c.MaxTokens))
	}
	if d, err := time.ParseDuration(c.Timeout); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("provider: invalid timeout %q", c.Timeout))
	}
	return errors.Join(errs...)
}
