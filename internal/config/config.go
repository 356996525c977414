// Package config loads rekal settings from ~/.rekal/config.yaml. Unknown
// keys are dropped and a missing or malformed file falls back to defaults,
// so configuration can never fail a capture hook.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Provider         string `yaml:"provider"` // "claude" or "codex"
	Model            string `yaml:"model"`    // claude: haiku/sonnet/opus, codex: o4-mini/o3/...
	DBPath           string `yaml:"db_path"`
	Enabled          bool   `yaml:"enabled"`
	TimeoutSeconds   int    `yaml:"timeout"` // summarizer CLI call timeout
	MaxPromptChars   int    `yaml:"max_prompt_chars"`
	MaxResponseChars int    `yaml:"max_response_chars"`
	MaxEditChars     int    `yaml:"max_edit_chars"`
}

// knownKeys whitelists the config file keys that map to Config fields.
var knownKeys = map[string]struct{}{
	"provider":           {},
	"model":              {},
	"db_path":            {},
	"enabled":            {},
	"timeout":            {},
	"max_prompt_chars":   {},
	"max_response_chars": {},
	"max_edit_chars":     {},
}

func Default() Config {
	return Config{
		Provider:         "claude",
		Model:            "haiku",
		DBPath:           filepath.Join(Dir(), "db.sqlite"),
		Enabled:          true,
		TimeoutSeconds:   30,
		MaxPromptChars:   4000,
		MaxResponseChars: 8000,
		MaxEditChars:     2000,
	}
}

// Dir is the rekal home directory, ~/.rekal. The hooks installed into host
// tools depend on this layout, so it is fixed rather than configurable.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rekal"
	}
	return filepath.Join(home, ".rekal")
}

func DefaultConfigPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func LogPath() string {
	return filepath.Join(Dir(), "rekal.log")
}

// Load reads the config file at path (DefaultConfigPath when empty) and
// applies it over defaults. Unrecognized keys are filtered out before
// decoding; any read or parse failure yields pure defaults.
func Load(path string) Config {
	cfg := Default()
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg
	}
	filtered := make(map[string]any, len(raw))
	for k, v := range raw {
		if _, ok := knownKeys[k]; ok {
			filtered[k] = v
		}
	}

	buf, err := yaml.Marshal(filtered)
	if err != nil {
		return cfg
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return Default()
	}
	return cfg
}

// ResolvedDBPath expands a leading ~ in the configured database path.
func (c Config) ResolvedDBPath() string {
	path := c.DBPath
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return path
}

// TimeoutOrDefault is the summarizer call timeout with a sane floor.
func (c Config) TimeoutOrDefault() int {
	if c.TimeoutSeconds <= 0 {
		return 30
	}
	return c.TimeoutSeconds
}

// DetectClaudeHome resolves the Claude Code home directory, honoring an
// explicit override, then CLAUDE_HOME, then ~/.claude.
func DetectClaudeHome(explicit string) string {
	if explicit != "" {
		return filepath.Clean(explicit)
	}
	if fromEnv := os.Getenv("CLAUDE_HOME"); fromEnv != "" {
		return filepath.Clean(fromEnv)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude"
	}
	return filepath.Join(home, ".claude")
}

// DetectCodexHome resolves the Codex home directory, honoring an explicit
// override, then CODEX_HOME, then ~/.codex.
func DetectCodexHome(explicit string) string {
	if explicit != "" {
		return filepath.Clean(explicit)
	}
	if fromEnv := os.Getenv("CODEX_HOME"); fromEnv != "" {
		return filepath.Clean(fromEnv)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codex"
	}
	return filepath.Join(home, ".codex")
}
