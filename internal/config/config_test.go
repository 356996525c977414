package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	want := Default()
	if cfg != want {
		t.Fatalf("got %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadAppliesKnownKeys(t *testing.T) {
	path := writeConfig(t, "provider: codex\nmodel: o3\ntimeout: 60\nmax_prompt_chars: 2000\n")

	cfg := Load(path)
	if cfg.Provider != "codex" || cfg.Model != "o3" {
		t.Errorf("provider/model=%q/%q", cfg.Provider, cfg.Model)
	}
	if cfg.TimeoutSeconds != 60 {
		t.Errorf("timeout=%d, want 60", cfg.TimeoutSeconds)
	}
	if cfg.MaxPromptChars != 2000 {
		t.Errorf("max_prompt_chars=%d, want 2000", cfg.MaxPromptChars)
	}
	// Untouched keys keep defaults.
	if cfg.MaxResponseChars != 8000 || !cfg.Enabled {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadIgnoresUnknownKeys(t *testing.T) {
	path := writeConfig(t, "model: sonnet\nfuture_option: whatever\nnested:\n  a: 1\n")

	cfg := Load(path)
	if cfg.Model != "sonnet" {
		t.Errorf("model=%q, want sonnet", cfg.Model)
	}
	if cfg.Provider != "claude" {
		t.Errorf("provider=%q, want default", cfg.Provider)
	}
}

func TestLoadMalformedFileReturnsDefaults(t *testing.T) {
	path := writeConfig(t, ": definitely [ not yaml\n\t")

	cfg := Load(path)
	if cfg != Default() {
		t.Fatalf("got %+v, want defaults", cfg)
	}
}

func TestLoadDisable(t *testing.T) {
	path := writeConfig(t, "enabled: false\n")
	if cfg := Load(path); cfg.Enabled {
		t.Fatal("enabled should be false")
	}
}

func TestTimeoutOrDefault(t *testing.T) {
	c := Config{TimeoutSeconds: 0}
	if c.TimeoutOrDefault() != 30 {
		t.Errorf("zero timeout should floor at 30")
	}
	c.TimeoutSeconds = 5
	if c.TimeoutOrDefault() != 5 {
		t.Errorf("explicit timeout should pass through")
	}
}

func TestDetectHomesHonorEnv(t *testing.T) {
	t.Setenv("CLAUDE_HOME", "/custom/claude")
	t.Setenv("CODEX_HOME", "/custom/codex")

	if got := DetectClaudeHome(""); got != "/custom/claude" {
		t.Errorf("claude home=%q", got)
	}
	if got := DetectCodexHome(""); got != "/custom/codex" {
		t.Errorf("codex home=%q", got)
	}
	// Explicit override beats the environment.
	if got := DetectClaudeHome("/explicit"); got != "/explicit" {
		t.Errorf("explicit claude home=%q", got)
	}
}
