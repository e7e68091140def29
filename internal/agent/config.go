package agent

import "time"

// Default values for Config.
const (
	DefaultSystemPrompt   = "You are a helpful assistant."
	DefaultSaveTimeout    = 10 * time.Second
	DefaultTitleTimeout   = 30 * time.Second
	DefaultTitleMaxTurns  = 4
	defaultEventBuffer    = 64
	titleTemperature      = 0.3
	contextExceededPrefix = "context window exceeded"
)

// Config controls turn execution.
type Config struct {
	// SystemPrompt is synthesized as the first message of every request.
	SystemPrompt string

	// MaxTokens caps the reply length. Zero leaves the provider default.
	MaxTokens int

	// TitleTurns lists the total turn counts after which a title is
	// generated for an untitled session. Nil uses 2 and 4.
	TitleTurns []int

	// SaveTimeout bounds the post-turn persistence step, which runs even
	// when the turn's own context was cancelled.
	SaveTimeout time.Duration

	// TitleTimeout bounds the title side call.
	TitleTimeout time.Duration
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.TitleTurns == nil {
		c.TitleTurns = []int{2, 4}
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = DefaultSaveTimeout
	}
	if c.TitleTimeout <= 0 {
		c.TitleTimeout = DefaultTitleTimeout
	}
	return c
}
