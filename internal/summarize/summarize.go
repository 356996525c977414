// Package summarize turns raw turn text into searchable metadata by
// invoking the local claude or codex CLI. No API keys are involved, and
// no failure here ever propagates: every call degrades to a deterministic
// fallback so capture always completes.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/RolandSherwin/rekal/internal/config"
	"github.com/RolandSherwin/rekal/internal/store"
)

const turnSummaryPrompt = `Index one coding turn for future search retrieval.

Return ONLY this JSON (no markdown, no explanation):
{"title": "...", "description": "...", "tags": ["..."]}

title: Outcome headline, max 80 chars. Be specific.
  YES: "Fix null pointer in JWT refresh flow"
  YES: "Add FTS5 index to turns table"
  NO:  "Update code" / "Work on auth improvements"

description: 2-5 bullet points with file paths, function names, errors, or decisions that would help a future agent judge relevance.

tags: 5-10 search terms across four dimensions:
  domain (auth, payments, rendering, deployment)
  action (debug, implement, refactor, configure, test)
  stack  (react, golang, postgres, redis, docker)
  detail (jwt-refresh, rate-limiter, fts5-index)
  SKIP generic words: code, fix, update, change, work, file.`

const sessionRecapPrompt = `Summarize a completed coding session for future recall.

Return ONLY this JSON (no markdown, no explanation):
{"session_title": "...", "session_summary": "..."}

session_title: Overall goal or theme, max 80 chars.
session_summary: 2-4 sentences covering outcomes, key decisions, and unresolved issues. Focus on what was accomplished, not a turn-by-turn retelling.`

const quickTitlePrompt = `Write a short title (max 60 chars) describing the intent of this coding session.

Return ONLY this JSON: {"title": "..."}`

type TurnSummary struct {
	Title       string
	Description string
	Tags        string
}

type SessionSummary struct {
	Title   string
	Summary string
}

// runner executes a CLI and returns its stdout. Swapped out in tests.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

type Client struct {
	cfg config.Config
	log *slog.Logger
	run runner
}

func New(cfg config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, log: logger, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			stderr := string(exitErr.Stderr)
			if len(stderr) > 200 {
				stderr = stderr[:200]
			}
			return nil, fmt.Errorf("%s failed: %s", name, stderr)
		}
		return nil, err
	}
	return out, nil
}

// SummarizeTurn generates title, description, and tags for one turn.
// On any failure the fallback is a truncated prompt as the title.
func (c *Client) SummarizeTurn(ctx context.Context, prompt, response, edits string) TurnSummary {
	editsBlock := "(none)"
	if strings.TrimSpace(edits) != "" {
		editsBlock = truncate(edits, c.cfg.MaxEditChars)
	}
	userInput := fmt.Sprintf("USER ASKED:\n%s\n\nAGENT OUTPUT:\n%s\n\nFILES CHANGED:\n%s",
		truncate(prompt, c.cfg.MaxPromptChars),
		truncate(response, c.cfg.MaxResponseChars),
		editsBlock)

	result, err := c.call(ctx, turnSummaryPrompt, userInput)
	if err != nil {
		c.log.Error("turn summarization failed", "error", err)
		title := truncate(prompt, 60)
		if title == "" {
			title = "Untitled turn"
		}
		return TurnSummary{Title: title, Description: "- Summarization failed"}
	}

	return TurnSummary{
		Title:       asText(result["title"]),
		Description: asText(result["description"]),
		Tags:        joinTags(result["tags"]),
	}
}

// SummarizeSession generates a session title and recap from turn digests.
func (c *Client) SummarizeSession(ctx context.Context, turns []store.TurnDigest) SessionSummary {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		title := t.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "Turn %d: %s\n%s", i+1, title, t.Description)
	}

	result, err := c.call(ctx, sessionRecapPrompt, "SESSION TURNS:\n\n"+b.String())
	if err != nil {
		c.log.Error("session recap failed", "error", err)
		fallback := SessionSummary{
			Title:   "Untitled",
			Summary: fmt.Sprintf("Session with %d turns.", len(turns)),
		}
		if len(turns) > 0 && turns[0].Title != "" {
			fallback.Title = turns[0].Title
		}
		return fallback
	}

	return SessionSummary{
		Title:   asText(result["session_title"]),
		Summary: asText(result["session_summary"]),
	}
}

// GenerateTitle produces a short session title from the opening prompt.
func (c *Client) GenerateTitle(ctx context.Context, openingPrompt string) string {
	result, err := c.call(ctx, quickTitlePrompt, truncate(openingPrompt, 500))
	if err != nil {
		c.log.Error("title generation failed", "error", err)
		return truncate(openingPrompt, 60)
	}
	if title := asText(result["title"]); title != "" {
		return title
	}
	return truncate(openingPrompt, 60)
}

func (c *Client) call(ctx context.Context, system, user string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutOrDefault())*time.Second)
	defer cancel()

	if c.cfg.Provider == "codex" {
		return c.callCodex(ctx, system, user)
	}
	return c.callClaude(ctx, system, user)
}

func (c *Client) callClaude(ctx context.Context, system, user string) (map[string]any, error) {
	out, err := c.run(ctx, "claude",
		"-p",
		"--model", c.cfg.Model,
		"--tools", "",
		"--output-format", "json",
		"--no-session-persistence",
		"--system-prompt", system,
		user,
	)
	if err != nil {
		return nil, err
	}

	// --output-format json wraps the reply in {"type":"result","result":"..."}.
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	payload := out
	if err := json.Unmarshal(out, &envelope); err == nil && len(envelope.Result) > 0 {
		var inner string
		if err := json.Unmarshal(envelope.Result, &inner); err == nil {
			payload = []byte(inner)
		} else {
			payload = envelope.Result
		}
	}

	var result map[string]any
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("parse claude output: %w", err)
	}
	return result, nil
}

func (c *Client) callCodex(ctx context.Context, system, user string) (map[string]any, error) {
	out, err := c.run(ctx, "codex",
		"exec",
		"--model", c.cfg.Model,
		"--json",
		system+"\n\n"+user,
	)
	if err != nil {
		return nil, err
	}

	// --json emits JSONL events; the last assistant text block carries the
	// reply.
	var lastText string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		var event struct {
			Type    string          `json:"type"`
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if event.Type != "message" || event.Role != "assistant" {
			continue
		}
		var text string
		if err := json.Unmarshal(event.Content, &text); err == nil {
			lastText = text
			continue
		}
		var blocks []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(event.Content, &blocks); err == nil {
			for _, b := range blocks {
				if b.Type == "text" {
					lastText = b.Text
				}
			}
		}
	}
	if lastText == "" {
		lastText = strings.TrimSpace(string(out))
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(lastText), &result); err != nil {
		return nil, fmt.Errorf("parse codex output: %w", err)
	}
	return result, nil
}

// truncate cuts at a rune boundary so multibyte text never ends up as
// invalid UTF-8 in a prompt or fallback title.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func asText(v any) string {
	s, _ := v.(string)
	return s
}

// joinTags flattens the model's tag list into a comma-joined string,
// tolerating a plain string as well.
func joinTags(v any) string {
	switch tags := v.(type) {
	case string:
		return tags
	case []any:
		parts := make([]string, 0, len(tags))
		for _, t := range tags {
			parts = append(parts, fmt.Sprint(t))
		}
		return strings.Join(parts, ", ")
	}
	return ""
}
