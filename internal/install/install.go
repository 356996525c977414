// Package install wires the rekal hook commands into the host tools:
// async hooks in Claude Code's settings.json and a notify line in Codex's
// config.toml. Both directions are idempotent, and unrelated settings are
// always preserved.
package install

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/RolandSherwin/rekal/internal/config"
	"github.com/RolandSherwin/rekal/internal/store"
)

const tomlMarker = "# rekal-hook"

// Options locates the pieces being wired together. Zero values resolve to
// the standard homes and the current executable.
type Options struct {
	ClaudeHome string
	CodexHome  string
	BinaryPath string
	Out        io.Writer // progress lines; nil discards
}

func (o *Options) resolve() error {
	o.ClaudeHome = config.DetectClaudeHome(o.ClaudeHome)
	o.CodexHome = config.DetectCodexHome(o.CodexHome)
	if o.BinaryPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate rekal binary: %w", err)
		}
		o.BinaryPath = exe
	}
	if o.Out == nil {
		o.Out = io.Discard
	}
	return nil
}

func (o *Options) step(format string, args ...any) {
	fmt.Fprintf(o.Out, "  -> "+format+"\n", args...)
}

// claudeHookEvents maps settings.json hook events to the rekal subcommand
// handling them, with per-event timeouts in milliseconds.
var claudeHookEvents = []struct {
	Event      string
	Subcommand string
	TimeoutMS  int
}{
	{"Stop", "turn-complete", 30000},
	{"SessionEnd", "session-end", 30000},
	{"UserPromptSubmit", "prompt-submit", 15000},
}

// skillDoc teaches the host agent to reach for rekal when the user
// references earlier sessions. Installed under each host's skills dir.
const skillDoc = `---
name: rekal
description: Search the user's past coding sessions. Use when the user references earlier work ("like we did before", "that auth fix last week") or asks what was done previously.
---

# rekal — session memory

Every conversation turn is indexed locally with a title, summary, and
tags. When the user refers to past work instead of re-explaining it,
search before asking them to repeat context.

## Commands

    rekal <query> --plain          # full-text search across all sessions
    rekal <query> --workspace <w>  # prefer sessions from a workspace
    rekal recent --plain           # latest sessions
    rekal show <session-id> --plain

Search output lists a short session id under each hit; pass it (or any
unique prefix) to ` + "`rekal show`" + ` for the full turn-by-turn detail.

## Tips

- Query with a few concrete terms (error text, file names, feature
  names); every term must match.
- Results are ranked by relevance and recency, so "the recent jwt work"
  is just ` + "`rekal jwt`" + `.
- Use --plain when capturing output for your own context.
`

const defaultConfigTemplate = `# rekal configuration
# provider: claude or codex
provider: claude
# model used for summarization (claude: haiku/sonnet/opus)
model: haiku
enabled: true
# summarizer CLI timeout in seconds
timeout: 30
`

// Install creates ~/.rekal with a default config, materializes the
// database schema, and registers the hooks with whichever host tools are
// present.
func Install(opts Options) error {
	if err := opts.resolve(); err != nil {
		return err
	}

	if err := installRekalDir(&opts); err != nil {
		return err
	}
	checkSummarizerCLI(&opts)
	if err := installClaudeHooks(&opts); err != nil {
		return err
	}
	if err := installCodexNotify(&opts); err != nil {
		return err
	}
	return installSkills(&opts)
}

// Uninstall removes the hook wiring from both host tools. The database
// and config are left in place.
func Uninstall(opts Options) error {
	if err := opts.resolve(); err != nil {
		return err
	}

	if err := uninstallClaudeHooks(&opts); err != nil {
		return err
	}
	if err := uninstallCodexNotify(&opts); err != nil {
		return err
	}
	return uninstallSkills(&opts)
}

func installRekalDir(opts *Options) error {
	dir := config.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create rekal dir: %w", err)
	}

	configPath := config.DefaultConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(defaultConfigTemplate), 0o644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
		opts.step("Created %s", configPath)
	} else {
		opts.step("Config already exists at %s", configPath)
	}

	// Opening the store once creates the schema.
	cfg := config.Load("")
	st, err := store.Open(cfg.ResolvedDBPath(), nil)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	_ = st.Close()
	opts.step("Database ready at %s", cfg.ResolvedDBPath())
	return nil
}

func installClaudeHooks(opts *Options) error {
	settingsPath := filepath.Join(opts.ClaudeHome, "settings.json")
	if _, err := os.Stat(opts.ClaudeHome); os.IsNotExist(err) {
		opts.step("Claude Code not found, skipping hooks")
		return nil
	}

	settings, err := readLooseJSON(settingsPath)
	if err != nil {
		return err
	}

	hooks, _ := settings["hooks"].(map[string]any)
	if hooks == nil {
		hooks = map[string]any{}
	}

	modified := false
	for _, ev := range claudeHookEvents {
		existing, _ := hooks[ev.Event].([]any)
		if hooksContainRekal(existing) {
			opts.step("Claude %s hook already installed", ev.Event)
			continue
		}

		hookObj := map[string]any{
			"type":    "command",
			"command": fmt.Sprintf("%s hook %s", opts.BinaryPath, ev.Subcommand),
			"async":   true,
			"timeout": ev.TimeoutMS,
		}

		// Match whichever shape the file already uses: matcher groups
		// with a nested hooks list, or flat hook objects.
		usesMatcher := false
		for _, h := range existing {
			if m, ok := h.(map[string]any); ok {
				if _, has := m["hooks"]; has {
					usesMatcher = true
					break
				}
			}
		}
		if usesMatcher || len(existing) == 0 {
			existing = append(existing, map[string]any{
				"matcher": "",
				"hooks":   []any{hookObj},
			})
		} else {
			existing = append(existing, hookObj)
		}

		hooks[ev.Event] = existing
		modified = true
		opts.step("Added Claude %s async hook", ev.Event)
	}

	if modified {
		settings["hooks"] = hooks
		if err := writeLooseJSON(settingsPath, settings); err != nil {
			return err
		}
		opts.step("Updated %s", settingsPath)
	}
	return nil
}

func uninstallClaudeHooks(opts *Options) error {
	settingsPath := filepath.Join(opts.ClaudeHome, "settings.json")
	settings, err := readLooseJSON(settingsPath)
	if err != nil || len(settings) == 0 {
		return nil
	}

	hooks, _ := settings["hooks"].(map[string]any)
	if hooks == nil {
		return nil
	}

	modified := false
	for event, raw := range hooks {
		list, ok := raw.([]any)
		if !ok {
			continue
		}
		kept := make([]any, 0, len(list))
		for _, h := range list {
			if hooksContainRekal([]any{h}) {
				modified = true
				continue
			}
			kept = append(kept, h)
		}
		if len(kept) == 0 {
			delete(hooks, event)
		} else {
			hooks[event] = kept
		}
	}

	if modified {
		if len(hooks) == 0 {
			delete(settings, "hooks")
		} else {
			settings["hooks"] = hooks
		}
		if err := writeLooseJSON(settingsPath, settings); err != nil {
			return err
		}
		opts.step("Removed rekal hooks from %s", settingsPath)
	}
	return nil
}

// hooksContainRekal reports whether "rekal" appears in any hook command,
// in either the flat or the matcher-group format.
func hooksContainRekal(list []any) bool {
	for _, h := range list {
		m, ok := h.(map[string]any)
		if !ok {
			continue
		}
		if cmd, _ := m["command"].(string); strings.Contains(cmd, "rekal") {
			return true
		}
		inner, _ := m["hooks"].([]any)
		for _, ih := range inner {
			im, ok := ih.(map[string]any)
			if !ok {
				continue
			}
			if cmd, _ := im["command"].(string); strings.Contains(cmd, "rekal") {
				return true
			}
		}
	}
	return false
}

// checkSummarizerCLI warns when the configured provider's CLI is not on
// PATH. Capture still works, it just falls back to unsummarized titles.
func checkSummarizerCLI(opts *Options) {
	cfg := config.Load("")
	name := "claude"
	if cfg.Provider == "codex" {
		name = "codex"
	}
	if _, err := exec.LookPath(name); err != nil {
		opts.step("Warning: %s CLI not found on PATH, summaries will use fallbacks", name)
	}
}

// installSkills writes the rekal skill doc into each present host's
// skills directory so the agent knows to search past sessions.
func installSkills(opts *Options) error {
	for _, home := range []string{opts.ClaudeHome, opts.CodexHome} {
		if _, err := os.Stat(home); os.IsNotExist(err) {
			continue
		}
		dir := filepath.Join(home, "skills", "rekal")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create skill dir: %w", err)
		}
		path := filepath.Join(dir, "SKILL.md")
		if err := os.WriteFile(path, []byte(skillDoc), 0o644); err != nil {
			return fmt.Errorf("write skill doc: %w", err)
		}
		opts.step("Installed skill at %s", path)
	}
	return nil
}

func uninstallSkills(opts *Options) error {
	for _, home := range []string{opts.ClaudeHome, opts.CodexHome} {
		dir := filepath.Join(home, "skills", "rekal")
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove skill dir: %w", err)
		}
		opts.step("Removed %s", dir)
	}
	return nil
}

func installCodexNotify(opts *Options) error {
	if _, err := os.Stat(opts.CodexHome); os.IsNotExist(err) {
		opts.step("Codex not found, skipping notify hook")
		return nil
	}
	configPath := filepath.Join(opts.CodexHome, "config.toml")

	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read codex config: %w", err)
	}
	content := string(data)
	if strings.Contains(content, tomlMarker) {
		opts.step("Codex notify hook already installed")
		return nil
	}

	line := fmt.Sprintf("notify = [%q, %q, %q] %s\n", opts.BinaryPath, "hook", "codex-turn", tomlMarker)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += line
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write codex config: %w", err)
	}
	opts.step("Added Codex notify hook to %s", configPath)
	return nil
}

func uninstallCodexNotify(opts *Options) error {
	configPath := filepath.Join(opts.CodexHome, "config.toml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil
	}

	lines := strings.Split(string(data), "\n")
	kept := make([]string, 0, len(lines))
	removed := false
	for _, line := range lines {
		if strings.Contains(line, tomlMarker) {
			removed = true
			continue
		}
		kept = append(kept, line)
	}
	if !removed {
		return nil
	}
	if err := os.WriteFile(configPath, []byte(strings.Join(kept, "\n")), 0o644); err != nil {
		return fmt.Errorf("write codex config: %w", err)
	}
	opts.step("Removed Codex notify hook from %s", configPath)
	return nil
}

func readLooseJSON(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

func writeLooseJSON(path string, v map[string]any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
