// Package config handles YAML configuration loading, environment variable
// expansion, defaults and structural validation for dschat.
package config

import "github.com/flemzord/dschat/internal/provider"

// Config is the top-level configuration structure.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Provider  ProviderConfig  `yaml:"provider"`
	Context   ContextConfig   `yaml:"context"`
	Storage   StorageConfig   `yaml:"storage"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Cron      CronConfig      `yaml:"cron"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// ProviderConfig describes the upstream chat endpoint.
type ProviderConfig struct {
	// Kind is deepseek, groq or openai (any OpenAI-compatible endpoint).
	Kind             string           `yaml:"kind"`
	BaseURL          string           `yaml:"base_url"`
	APIKey           string           `yaml:"api_key"`
	Model            string           `yaml:"model"`
	MaxTokens        int              `yaml:"max_tokens"`
	Temperature      *float64         `yaml:"temperature"`
	TopP             *float64         `yaml:"top_p"`
	FrequencyPenalty *float64         `yaml:"frequency_penalty"`
	PresencePenalty  *float64         `yaml:"presence_penalty"`
	Timeout          string           `yaml:"timeout"`
	Pricing          provider.Pricing `yaml:"pricing"`
}

// ContextConfig tunes history handling and the context strategies.
type ContextConfig struct {
	SystemPrompt string `yaml:"system_prompt"`

	// Strategy is the default strategy name for new turns.
	Strategy string `yaml:"strategy"`

	// Capacity bounds the number of retained turns per session.
	Capacity int `yaml:"capacity"`

	// WindowSize is the number of trailing turns the window and facts
	// strategies send.
	WindowSize int `yaml:"window_size"`

	Compression CompressionConfig `yaml:"compression"`
	Overhead    OverheadConfig    `yaml:"overhead"`

	// Tokenizer is heuristic or tiktoken.
	Tokenizer string `yaml:"tokenizer"`

	// TitleTurns lists the turn counts after which an untitled session
	// gets a generated title.
	TitleTurns []int `yaml:"title_turns"`

	// SaveTimeout bounds the post-turn save.
	SaveTimeout string `yaml:"save_timeout"`
}

// CompressionConfig controls the running-summary strategy.
type CompressionConfig struct {
	Enabled   *bool `yaml:"enabled"`
	Threshold int   `yaml:"threshold"`
	Keep      int   `yaml:"keep"`
}

// OverheadConfig holds the per-message framing costs added by the token
// counter. Nil keeps the built-in values; zero is a valid setting.
type OverheadConfig struct {
	PerMessage *int `yaml:"per_message"`
	PerName    *int `yaml:"per_name"`
}

// StorageConfig selects where sessions are persisted.
type StorageConfig struct {
	// Backend is file, sqlite or memory.
	Backend    string `yaml:"backend"`
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// GatewayConfig configures the HTTP surface.
type GatewayConfig struct {
	Bind         string     `yaml:"bind"`
	ReadTimeout  string     `yaml:"read_timeout"`
	WriteTimeout string     `yaml:"write_timeout"`
	Auth         AuthConfig `yaml:"auth"`

	// TurnsPerMinute limits turns per client address. Zero disables it.
	TurnsPerMinute int `yaml:"turns_per_minute"`
}

// AuthConfig protects the gateway. An empty bearer token disables auth.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
}

// CronConfig schedules background jobs. The spec "off" disables a job.
type CronConfig struct {
	Autosave string `yaml:"autosave"`
	Prune    string `yaml:"prune"`
	IdleTTL  string `yaml:"idle_ttl"`
}

// CronDisabled is the job spec that turns a scheduled job off.
const CronDisabled = "off"

// TelemetryConfig controls trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
}
