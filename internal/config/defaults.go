package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/flemzord/dschat/internal/agent"
	ctxengine "github.com/flemzord/dschat/internal/context"
	"github.com/flemzord/dschat/internal/provider"
)

// Built-in values applied by Default and Config.defaults.
const (
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultKind         = "deepseek"
	DefaultTimeout      = "60s"
	DefaultMaxTokens    = 4000
	DefaultCapacity     = 40
	DefaultTokenizer    = "heuristic"
	DefaultBackend      = "file"
	DefaultBind         = "127.0.0.1:8080"
	DefaultReadTimeout  = "30s"
	DefaultWriteTimeout = "0s"
	DefaultAutosave     = "*/1 * * * *"
	DefaultPrune        = "*/5 * * * *"
	DefaultIdleTTL      = "24h"
	DefaultServiceName  = "dschat"
	DefaultPerMessage   = 3
	DefaultPerName      = 1
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// defaults fills zero-valued fields. Kind-specific provider defaults
// (base URL, model) are left to the transport.
func (c *Config) defaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	p := &c.Provider
	if p.Kind == "" {
		p.Kind = DefaultKind
	}
	if p.APIKey == "" {
		p.APIKey = os.Getenv(apiKeyEnv(p.Kind))
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	if p.Timeout == "" {
		p.Timeout = DefaultTimeout
	}
	if p.Pricing == (provider.Pricing{}) && p.Kind == DefaultKind {
		p.Pricing = provider.DefaultPricing()
	}

	x := &c.Context
	if x.SystemPrompt == "" {
		x.SystemPrompt = agent.DefaultSystemPrompt
	}
	if x.Strategy == "" {
		x.Strategy = ctxengine.StrategyDefault
	}
	if x.Capacity == 0 {
		x.Capacity = DefaultCapacity
	}
	if x.WindowSize == 0 {
		x.WindowSize = ctxengine.DefaultWindowSize
	}
	if x.Compression.Enabled == nil {
		t := true
		x.Compression.Enabled = &t
	}
	if x.Compression.Threshold == 0 {
		x.Compression.Threshold = ctxengine.DefaultCompressionThreshold
	}
	if x.Compression.Keep == 0 {
		x.Compression.Keep = ctxengine.DefaultCompressionKeep
	}
	if x.Overhead.PerMessage == nil {
		v := DefaultPerMessage
		x.Overhead.PerMessage = &v
	}
	if x.Overhead.PerName == nil {
		v := DefaultPerName
		x.Overhead.PerName = &v
	}
	if x.Tokenizer == "" {
		x.Tokenizer = DefaultTokenizer
	}
	if x.TitleTurns == nil {
		x.TitleTurns = []int{2, 4}
	}
	if x.SaveTimeout == "" {
		x.SaveTimeout = agent.DefaultSaveTimeout.String()
	}

	s := &c.Storage
	if s.Backend == "" {
		s.Backend = DefaultBackend
	}
	if s.Dir == "" {
		s.Dir = filepath.Join(dataHome(), "dschat", "sessions")
	}
	if s.SQLitePath == "" {
		s.SQLitePath = filepath.Join(dataHome(), "dschat", "sessions.db")
	}
	s.Dir = expandHome(s.Dir)
	s.SQLitePath = expandHome(s.SQLitePath)

	g := &c.Gateway
	if g.Bind == "" {
		g.Bind = DefaultBind
	}
	if g.ReadTimeout == "" {
		g.ReadTimeout = DefaultReadTimeout
	}
	if g.WriteTimeout == "" {
		g.WriteTimeout = DefaultWriteTimeout
	}

	if c.Cron.Autosave == "" {
		c.Cron.Autosave = DefaultAutosave
	}
	if c.Cron.Prune == "" {
		c.Cron.Prune = DefaultPrune
	}
	if c.Cron.IdleTTL == "" {
		c.Cron.IdleTTL = DefaultIdleTTL
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
}

// apiKeyEnv names the environment variable consulted when no api_key is
// configured.
func apiKeyEnv(kind string) string {
	switch kind {
	case "groq":
		return "GROQ_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return "DEEPSEEK_API_KEY"
	}
}

// dataHome returns $XDG_DATA_HOME or ~/.local/share.
func dataHome() string {
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
