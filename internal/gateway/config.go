package gateway

import "time"

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// BearerToken protects every route except /health. Empty disables
	// authentication.
	BearerToken string

	// TurnsPerMinute limits turns per client address. Zero disables it.
	TurnsPerMinute int
}

// defaults fills zero values. WriteTimeout stays zero: turn streams may
// outlive any fixed deadline.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}
