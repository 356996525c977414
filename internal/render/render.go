// Package render formats store query results as markdown for the CLI.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/RolandSherwin/rekal/internal/store"
)

const prefixFloor = 8

var (
	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)
	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))
)

// Empty styles a "nothing to show" message.
func Empty(msg string) string {
	return emptyStyle.Render(msg)
}

// Error styles a user-facing error line.
func Error(msg string) string {
	return errStyle.Render(msg)
}

// FormatAge renders an age in days as a compact bucket: 3h, 5d, 2w, 4mo, 1y.
func FormatAge(days float64) string {
	switch {
	case days < 1:
		hours := int(days * 24)
		if hours < 1 {
			hours = 1
		}
		return fmt.Sprintf("%dh ago", hours)
	case days < 7:
		return fmt.Sprintf("%dd ago", int(days))
	case days < 30:
		return fmt.Sprintf("%dw ago", int(days/7))
	case days < 365:
		return fmt.Sprintf("%dmo ago", int(days/30))
	default:
		return fmt.Sprintf("%dy ago", int(days/365))
	}
}

// UniquePrefix returns the minimum prefix length, at least 8, that keeps
// every id in the list distinct; truncated ids shown to the user stay
// unambiguous for the prefix lookup.
func UniquePrefix(ids []string) int {
	if len(ids) <= 1 {
		return prefixFloor
	}
	maxLen := 0
	for _, id := range ids {
		if len(id) > maxLen {
			maxLen = len(id)
		}
	}
	for length := prefixFloor; length < maxLen; length++ {
		seen := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			seen[clipTo(id, length)] = struct{}{}
		}
		if len(seen) == len(ids) {
			return length
		}
	}
	return maxLen
}

// SearchResults renders scored search hits as markdown sections.
func SearchResults(results []store.SearchResult) string {
	if len(results) == 0 {
		return Empty("No results found.")
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.SessionID
	}
	prefixLen := UniquePrefix(ids)

	var lines []string
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = "Untitled"
		}
		header := fmt.Sprintf("## %s (%s", title, FormatAge(r.AgeDays))
		if ws := workspaceBase(r.WorkspacePath); ws != "" {
			header += ", " + ws
		}
		header += ", " + r.Source + ")"

		lines = append(lines, header)
		if r.Tags != "" {
			lines = append(lines, "Tags: "+r.Tags)
		}
		if r.Description != "" {
			lines = append(lines, r.Description)
		}
		lines = append(lines, "Session: "+clipTo(r.SessionID, prefixLen), "")
	}
	return strings.Join(lines, "\n")
}

// RecentSessions renders a session listing as a markdown bullet list.
func RecentSessions(sessions []store.Session) string {
	if len(sessions) == 0 {
		return Empty("No sessions found.")
	}

	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.SessionID
	}
	prefixLen := UniquePrefix(ids)

	var lines []string
	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = "Untitled session"
		}
		header := fmt.Sprintf("- **%s** (%s, %d turns, %s)",
			title, clipTo(s.StartedAt, 16), s.TurnCount, s.Source)
		if ws := workspaceBase(s.WorkspacePath); ws != "" {
			header += " [" + ws + "]"
		}
		header += " `" + clipTo(s.SessionID, prefixLen) + "`"
		lines = append(lines, header)

		if s.Summary != "" {
			lines = append(lines, "  "+s.Summary)
		}
	}
	return strings.Join(lines, "\n")
}

// SessionDetail renders one session with all its turns.
func SessionDetail(detail *store.SessionDetail) string {
	if detail == nil {
		return Error("Session not found.")
	}

	title := detail.Title
	if title == "" {
		title = "Untitled session"
	}
	workspace := detail.WorkspacePath
	if workspace == "" {
		workspace = "unknown"
	}

	lines := []string{
		"# " + title,
		"Source: " + detail.Source,
		"Workspace: " + workspace,
		"Started: " + detail.StartedAt,
	}
	if detail.Summary != "" {
		lines = append(lines, "", detail.Summary)
	}
	lines = append(lines, "", fmt.Sprintf("## Turns (%d)", detail.TurnCount))

	for _, t := range detail.Turns {
		turnTitle := t.Title
		if turnTitle == "" {
			turnTitle = "Untitled"
		}
		lines = append(lines, "", fmt.Sprintf("### %s (%s)", turnTitle, clipTo(t.Timestamp, 16)))
		if t.Tags != "" {
			lines = append(lines, "Tags: "+t.Tags)
		}
		if t.Description != "" {
			lines = append(lines, t.Description)
		}
	}
	return strings.Join(lines, "\n")
}

// Stats renders usage statistics.
func Stats(st store.Stats) string {
	last := st.LastIndexed
	if last == "" {
		last = "never"
	}
	hitRate := "—"
	if st.TotalSearches > 0 {
		hitRate = fmt.Sprintf("%.0f%%", float64(st.SearchesWithHits)/float64(st.TotalSearches)*100)
	}

	lines := []string{
		"# Rekal Stats",
		"",
		fmt.Sprintf("Sessions: %d (%d claude, %d codex)",
			st.TotalSessions, st.ClaudeSessions, st.CodexSessions),
		fmt.Sprintf("Turns indexed: %d", st.TotalTurns),
		"Last indexed: " + last,
		"",
		fmt.Sprintf("Searches: %d", st.TotalSearches),
		fmt.Sprintf("Hit rate: %s (%d/%d returned results)",
			hitRate, st.SearchesWithHits, st.TotalSearches),
		fmt.Sprintf("Avg results per search: %.1f", st.AvgResults),
	}
	return strings.Join(lines, "\n")
}

// Pretty renders markdown for the terminal via glamour. On any renderer
// failure the raw markdown comes back unchanged.
func Pretty(markdown string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}

func workspaceBase(path string) string {
	path = strings.TrimRight(path, "/")
	if path == "" {
		return ""
	}
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func clipTo(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
