package agent

import (
	"testing"
	"time"

	"github.com/flemzord/dschat/internal/memory"
)

func TestConfigWithDefaults_ZeroValue(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()

	if cfg.SystemPrompt != DefaultSystemPrompt {
		t.Errorf("SystemPrompt = %q, want %q", cfg.SystemPrompt, DefaultSystemPrompt)
	}
	if cfg.SaveTimeout != DefaultSaveTimeout {
		t.Errorf("SaveTimeout = %v, want %v", cfg.SaveTimeout, DefaultSaveTimeout)
	}
	if cfg.TitleTimeout != DefaultTitleTimeout {
		t.Errorf("TitleTimeout = %v, want %v", cfg.TitleTimeout, DefaultTitleTimeout)
	}
	if len(cfg.TitleTurns) != 2 || cfg.TitleTurns[0] != 2 || cfg.TitleTurns[1] != 4 {
		t.Errorf("TitleTurns = %v, want [2 4]", cfg.TitleTurns)
	}
	if cfg.MaxTokens != 0 {
		t.Errorf("MaxTokens = %d, want 0", cfg.MaxTokens)
	}
}

func TestConfigWithDefaults_ExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		SystemPrompt: "be terse",
		MaxTokens:    4000,
		TitleTurns:   []int{},
		SaveTimeout:  time.Second,
		TitleTimeout: 2 * time.Second,
	}.withDefaults()

	if cfg.SystemPrompt != "be terse" || cfg.MaxTokens != 4000 {
		t.Errorf("explicit values overwritten: %+v", cfg)
	}
	if len(cfg.TitleTurns) != 0 {
		t.Errorf("empty TitleTurns must stay empty, got %v", cfg.TitleTurns)
	}
	if cfg.SaveTimeout != time.Second || cfg.TitleTimeout != 2*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.SaveTimeout, cfg.TitleTimeout)
	}
}

func TestTitleAtTurns(t *testing.T) {
	t.Parallel()

	policy := TitleAtTurns(2, 4)
	h := memory.NewHistory(10)

	tests := []struct {
		add  func()
		want bool
	}{
		{func() { h.AddUser("q1") }, false},
		{func() { h.AddAssistant("a1") }, true},
		{func() { h.AddUser("q2") }, false},
		{func() { h.AddAssistant("a2") }, true},
		{func() { h.SetSummary("Titled") }, false},
	}
	for i, tt := range tests {
		tt.add()
		if got := policy(h); got != tt.want {
			t.Errorf("step %d: policy = %v, want %v", i, got, tt.want)
		}
	}
	if NeverTitle(h) {
		t.Error("NeverTitle returned true")
	}
}

func TestCleanTitle(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		`"Go Concurrency Basics"`: "Go Concurrency Basics",
		"  'Quoted'  ":            "Quoted",
		"Plain":                   "Plain",
		`""`:                      "",
	}
	for in, want := range tests {
		if got := cleanTitle(in); got != want {
			t.Errorf("cleanTitle(%q) = %q, want %q", in, got, want)
		}
	}
}
