// Package hook implements the capture entry points fired by the host
// tools: Claude Code's Stop, UserPromptSubmit, and SessionEnd hooks, and
// Codex's agent-turn-complete notify hook. Handlers read the event JSON
// from stdin and are strictly best-effort — a handler logs problems and
// returns nil so the host tool is never failed by capture.
package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/RolandSherwin/rekal/internal/config"
	"github.com/RolandSherwin/rekal/internal/store"
	"github.com/RolandSherwin/rekal/internal/summarize"
	"github.com/RolandSherwin/rekal/internal/transcript"
)

// StopInput is the stdin JSON for Claude Code Stop hooks.
type StopInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	CWD            string `json:"cwd"`
	StopHookActive bool   `json:"stop_hook_active"`
}

// PromptInput is the stdin JSON for UserPromptSubmit hooks.
type PromptInput struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
	CWD       string `json:"cwd"`
}

// SessionEndInput is the stdin JSON for SessionEnd hooks.
type SessionEndInput struct {
	SessionID string `json:"session_id"`
}

// CodexInput is the stdin JSON for the Codex notify hook.
type CodexInput struct {
	Type                 string          `json:"type"`
	ThreadID             string          `json:"thread-id"`
	CWD                  string          `json:"cwd"`
	InputMessages        []codexMessage  `json:"input-messages"`
	LastAssistantMessage json.RawMessage `json:"last-assistant-message"`
}

type codexMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Handler wires the extractor, summarizer, and store together for one
// hook invocation. Each invocation opens the store, does its work, and
// closes it; the database file is the only state shared across processes.
type Handler struct {
	cfg config.Config
	log *slog.Logger

	// openStore and summarizer are swappable for tests.
	openStore func() (*store.Store, error)
	sum       summarizer
}

type summarizer interface {
	SummarizeTurn(ctx context.Context, prompt, response, edits string) summarize.TurnSummary
	SummarizeSession(ctx context.Context, turns []store.TurnDigest) summarize.SessionSummary
	GenerateTitle(ctx context.Context, openingPrompt string) string
}

func NewHandler(cfg config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg: cfg,
		log: logger,
		openStore: func() (*store.Store, error) {
			return store.Open(cfg.ResolvedDBPath(), logger)
		},
		sum: summarize.New(cfg, logger),
	}
}

func decode[T any](r io.Reader) (T, error) {
	var in T
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return in, fmt.Errorf("decode hook input: %w", err)
	}
	return in, nil
}

// TurnComplete handles the Claude Code Stop event: extract the latest
// turn from the transcript, summarize it, and store it.
func (h *Handler) TurnComplete(ctx context.Context, stdin io.Reader) error {
	if !h.cfg.Enabled {
		return nil
	}
	in, err := decode[StopInput](stdin)
	if err != nil {
		h.log.Error("failed to read hook input", "error", err)
		return nil
	}
	if in.SessionID == "" || in.TranscriptPath == "" {
		h.log.Warn("missing session_id or transcript_path in hook input")
		return nil
	}
	// A stop fired by another hook would loop forever.
	if in.StopHookActive {
		return nil
	}

	turn := transcript.ExtractLatestTurn(in.TranscriptPath)
	if turn.Prompt == "" {
		h.log.Info("no user prompt found in latest turn, skipping")
		return nil
	}

	result := h.sum.SummarizeTurn(ctx, turn.Prompt, turn.Response, turn.Edits)

	st, err := h.openStore()
	if err != nil {
		h.log.Error("open store failed", "error", err)
		return nil
	}
	defer st.Close()

	if err := st.EnsureSession(in.SessionID, "claude", in.CWD, ""); err != nil {
		h.log.Error("ensure session failed", "error", err)
		return nil
	}
	_, err = st.StoreTurn(in.SessionID, turn.TurnNumber,
		clip(turn.Prompt, h.cfg.MaxPromptChars),
		clip(turn.Response, h.cfg.MaxResponseChars),
		result.Title, result.Description, result.Tags, h.cfg.Model)
	if err != nil {
		h.log.Error("store turn failed", "error", err)
		return nil
	}
	h.log.Info("stored turn",
		"turn", turn.TurnNumber, "session", short(in.SessionID), "title", result.Title)
	return nil
}

// PromptSubmit handles UserPromptSubmit: register the session early and
// give it a quick title from the opening prompt if it has none yet.
func (h *Handler) PromptSubmit(ctx context.Context, stdin io.Reader) error {
	if !h.cfg.Enabled {
		return nil
	}
	in, err := decode[PromptInput](stdin)
	if err != nil {
		h.log.Error("failed to read hook input", "error", err)
		return nil
	}
	if in.SessionID == "" || in.Prompt == "" {
		return nil
	}

	st, err := h.openStore()
	if err != nil {
		h.log.Error("open store failed", "error", err)
		return nil
	}
	defer st.Close()

	title, err := st.SessionTitle(in.SessionID)
	if err != nil {
		h.log.Error("session title lookup failed", "error", err)
		return nil
	}
	if title != "" {
		// Not the first prompt.
		return nil
	}

	if err := st.EnsureSession(in.SessionID, "claude", in.CWD, ""); err != nil {
		h.log.Error("ensure session failed", "error", err)
		return nil
	}
	title = h.sum.GenerateTitle(ctx, in.Prompt)
	if err := st.SetSessionTitle(in.SessionID, title); err != nil {
		h.log.Error("set session title failed", "error", err)
		return nil
	}
	h.log.Info("early title", "session", short(in.SessionID), "title", title)
	return nil
}

// SessionEnd handles SessionEnd: recap the session from its stored turn
// digests and write the summary.
func (h *Handler) SessionEnd(ctx context.Context, stdin io.Reader) error {
	if !h.cfg.Enabled {
		return nil
	}
	in, err := decode[SessionEndInput](stdin)
	if err != nil {
		h.log.Error("failed to read hook input", "error", err)
		return nil
	}
	if in.SessionID == "" {
		h.log.Warn("missing session_id in SessionEnd hook input")
		return nil
	}

	st, err := h.openStore()
	if err != nil {
		h.log.Error("open store failed", "error", err)
		return nil
	}
	defer st.Close()

	turns, err := st.GetSessionTurns(in.SessionID)
	if err != nil {
		h.log.Error("load session turns failed", "error", err)
		return nil
	}
	if len(turns) == 0 {
		h.log.Info("no turns found for session, skipping summary", "session", short(in.SessionID))
		return nil
	}

	result := h.sum.SummarizeSession(ctx, turns)
	if err := st.UpdateSessionSummary(in.SessionID, result.Title, result.Summary); err != nil {
		h.log.Error("update session summary failed", "error", err)
		return nil
	}
	h.log.Info("session summary", "session", short(in.SessionID), "title", result.Title)
	return nil
}

// CodexTurn handles the Codex notify hook. Codex delivers the turn
// content inline rather than via a transcript file, so the turn number is
// assigned from the store.
func (h *Handler) CodexTurn(ctx context.Context, stdin io.Reader) error {
	if !h.cfg.Enabled {
		return nil
	}
	in, err := decode[CodexInput](stdin)
	if err != nil {
		h.log.Error("failed to read codex hook input", "error", err)
		return nil
	}
	if in.Type != "agent-turn-complete" {
		return nil
	}
	if in.ThreadID == "" {
		h.log.Warn("missing thread-id in codex hook input")
		return nil
	}

	userMessage := lastUserMessage(in.InputMessages)
	agentReply := flattenCodexContent(in.LastAssistantMessage)
	if userMessage == "" && agentReply == "" {
		return nil
	}

	result := h.sum.SummarizeTurn(ctx, userMessage, agentReply, "")

	st, err := h.openStore()
	if err != nil {
		h.log.Error("open store failed", "error", err)
		return nil
	}
	defer st.Close()

	sessionID := "codex-" + in.ThreadID
	if err := st.EnsureSession(sessionID, "codex", in.CWD, ""); err != nil {
		h.log.Error("ensure session failed", "error", err)
		return nil
	}
	turnNumber, err := st.NextTurnNumber(sessionID)
	if err != nil {
		h.log.Error("next turn number failed", "error", err)
		return nil
	}
	_, err = st.StoreTurn(sessionID, turnNumber,
		clip(userMessage, h.cfg.MaxPromptChars),
		clip(agentReply, h.cfg.MaxResponseChars),
		result.Title, result.Description, result.Tags, h.cfg.Model)
	if err != nil {
		h.log.Error("store codex turn failed", "error", err)
		return nil
	}
	h.log.Info("stored codex turn",
		"turn", turnNumber, "thread", short(in.ThreadID), "title", result.Title)
	return nil
}

func lastUserMessage(messages []codexMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}
		if text := flattenCodexContent(messages[i].Content); text != "" {
			return text
		}
		return ""
	}
	return ""
}

// flattenCodexContent handles the shapes Codex uses for message payloads:
// a bare string, an object with a content field, or a list of text blocks.
func flattenCodexContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj.Content) > 0 {
		return flattenCodexContent(obj.Content)
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Type == "text" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// clip truncates at a rune boundary so a cut mid-character never stores
// invalid UTF-8.
func clip(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
