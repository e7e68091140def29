package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")

	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate(Default()) = %v", err)
	}

	if cfg.Context.Capacity != 40 || cfg.Context.WindowSize != 10 {
		t.Errorf("context capacity=%d window=%d", cfg.Context.Capacity, cfg.Context.WindowSize)
	}
	if !*cfg.Context.Compression.Enabled || cfg.Context.Compression.Threshold != 10 || cfg.Context.Compression.Keep != 4 {
		t.Errorf("compression = %+v", cfg.Context.Compression)
	}
	if *cfg.Context.Overhead.PerMessage != 3 || *cfg.Context.Overhead.PerName != 1 {
		t.Errorf("overhead = %d/%d", *cfg.Context.Overhead.PerMessage, *cfg.Context.Overhead.PerName)
	}
	if cfg.Provider.Pricing.PromptPer1K != 0.00028 || cfg.Provider.Pricing.CompletionPer1K != 0.00042 {
		t.Errorf("pricing = %+v", cfg.Provider.Pricing)
	}
	if cfg.Storage.Backend != "file" || !strings.HasSuffix(cfg.Storage.Dir, filepath.Join("dschat", "sessions")) {
		t.Errorf("storage = %+v", cfg.Storage)
	}
}

func TestParse_ExpandsEnvAndKeepsExplicitValues(t *testing.T) {
	t.Setenv("DSCHAT_TEST_KEY", "sk-from-env")

	raw := []byte(`
provider:
  kind: groq
  api_key: ${DSCHAT_TEST_KEY}
  model: ${DSCHAT_TEST_MODEL:-llama-3.1-8b-instant}
context:
  strategy: facts
  compression:
    enabled: false
  overhead:
    per_message: 0
storage:
  backend: memory
cron:
  prune: "off"
`)
	cfg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Provider.APIKey != "sk-from-env" || cfg.Provider.Model != "llama-3.1-8b-instant" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Provider.Pricing.PromptPer1K != 0 {
		t.Error("DeepSeek pricing applied to a groq provider")
	}
	if *cfg.Context.Compression.Enabled {
		t.Error("explicit compression.enabled=false overwritten")
	}
	if *cfg.Context.Overhead.PerMessage != 0 || *cfg.Context.Overhead.PerName != DefaultPerName {
		t.Errorf("overhead = %d/%d", *cfg.Context.Overhead.PerMessage, *cfg.Context.Overhead.PerName)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"unresolved variable", "provider:\n  api_key: ${DSCHAT_SURELY_UNSET_VAR}\n", "DSCHAT_SURELY_UNSET_VAR"},
		{"unknown key", "provder:\n  kind: deepseek\n", "provder"},
		{"bad yaml", "context: [", "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.raw))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg.Context.Strategy != "default" {
		t.Errorf("strategy = %q", cfg.Context.Strategy)
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Provider.Kind = "anthropic"
	cfg.Context.Strategy = "magic"
	cfg.Context.Compression.Keep = 12
	cfg.Context.Tokenizer = "bpe"
	cfg.Storage.Backend = "redis"
	cfg.Gateway.ReadTimeout = "soon"
	cfg.Cron.Autosave = "every minute"
	cfg.Cron.IdleTTL = "-1h"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"log.level", "provider.kind", "context.strategy", "keep (12)", "tokenizer",
		"storage.backend", "gateway.read_timeout", "cron.autosave", "cron.idle_ttl",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %q:\n%v", want, err)
		}
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := LoadOrDefault("")
	if err != nil || path != "" || cfg == nil {
		t.Fatalf("LoadOrDefault without files = %v, %q, %v", cfg, path, err)
	}

	if _, _, err := LoadOrDefault(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("explicit missing path must fail")
	}

	want := filepath.Join(dir, "dschat", FileName)
	if err := os.MkdirAll(filepath.Dir(want), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(want, []byte("context:\n  window_size: 6\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, path, err = LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if path != want || cfg.Context.WindowSize != 6 {
		t.Errorf("path=%q window=%d", path, cfg.Context.WindowSize)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Error("ParseLevel(trace) succeeded")
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	if got := Duration("2s", time.Minute); got != 2*time.Second {
		t.Errorf("Duration(2s) = %v", got)
	}
	if got := Duration("nope", time.Minute); got != time.Minute {
		t.Errorf("Duration(nope) = %v", got)
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if got := expandHome("~/x/y"); got != filepath.Join(home, "x", "y") {
		t.Errorf("expandHome = %q", got)
	}
	if got := expandHome("/abs"); got != "/abs" {
		t.Errorf("expandHome(/abs) = %q", got)
	}
}
