package render

import (
	"strings"
	"testing"

	"github.com/RolandSherwin/rekal/internal/store"
)

func TestFormatAge(t *testing.T) {
	cases := []struct {
		days float64
		want string
	}{
		{0.01, "1h ago"},
		{0.5, "12h ago"},
		{1, "1d ago"},
		{6.9, "6d ago"},
		{7, "1w ago"},
		{21, "3w ago"},
		{30, "1mo ago"},
		{120, "4mo ago"},
		{365, "1y ago"},
		{800, "2y ago"},
	}
	for _, c := range cases {
		if got := FormatAge(c.days); got != c.want {
			t.Errorf("FormatAge(%v)=%q, want %q", c.days, got, c.want)
		}
	}
}

func TestUniquePrefix(t *testing.T) {
	cases := []struct {
		name string
		ids  []string
		want int
	}{
		{"empty", nil, 8},
		{"single", []string{"abcdefghij"}, 8},
		{"distinct at floor", []string{"aaaaaaaa-1111", "bbbbbbbb-2222"}, 8},
		{"shared long prefix", []string{"aaaaaaaaaa-x", "aaaaaaaaaa-y"}, 12},
		{"identical ids", []string{"same-id-here", "same-id-here"}, 12},
	}
	for _, c := range cases {
		if got := UniquePrefix(c.ids); got != c.want {
			t.Errorf("%s: UniquePrefix=%d, want %d", c.name, got, c.want)
		}
	}
}

func TestSearchResults(t *testing.T) {
	out := SearchResults(nil)
	if !strings.Contains(out, "No results found.") {
		t.Errorf("empty output=%q", out)
	}

	results := []store.SearchResult{
		{
			SessionID:     "aaaaaaaa-1111-2222",
			Title:         "Fix auth bug",
			Description:   "- patched token refresh",
			Tags:          "auth, bugfix",
			WorkspacePath: "/home/me/projects/webapp",
			Source:        "claude",
			AgeDays:       2,
		},
		{
			SessionID: "bbbbbbbb-3333-4444",
			Source:    "codex",
			AgeDays:   40,
		},
	}
	out = SearchResults(results)
	for _, want := range []string{
		"## Fix auth bug (2d ago, webapp, claude)",
		"Tags: auth, bugfix",
		"- patched token refresh",
		"Session: aaaaaaaa",
		"## Untitled (1mo ago, codex)",
		"Session: bbbbbbbb",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRecentSessions(t *testing.T) {
	out := RecentSessions(nil)
	if !strings.Contains(out, "No sessions found.") {
		t.Errorf("empty output=%q", out)
	}

	sessions := []store.Session{
		{
			SessionID:     "aaaaaaaa-1111",
			Title:         "Refactor store",
			Summary:       "Moved schema into one place.",
			WorkspacePath: "/srv/repos/rekal",
			Source:        "claude",
			StartedAt:     "2026-08-30 10:15:00",
			TurnCount:     4,
		},
		{
			SessionID: "bbbbbbbb-2222",
			Source:    "codex",
			StartedAt: "2026-08-29 09:00:00",
			TurnCount: 1,
		},
	}
	out = RecentSessions(sessions)
	for _, want := range []string{
		"- **Refactor store** (2026-08-30 10:15, 4 turns, claude) [rekal] `aaaaaaaa`",
		"  Moved schema into one place.",
		"- **Untitled session** (2026-08-29 09:00, 1 turns, codex) `bbbbbbbb`",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSessionDetail(t *testing.T) {
	if out := SessionDetail(nil); !strings.Contains(out, "Session not found.") {
		t.Errorf("nil output=%q", out)
	}

	detail := &store.SessionDetail{
		Session: store.Session{
			SessionID:     "aaaaaaaa-1111",
			Title:         "Build importer",
			Summary:       "Imported all the things.",
			Source:        "claude",
			WorkspacePath: "/w/importer",
			StartedAt:     "2026-08-28 14:00:00",
			TurnCount:     2,
		},
		Turns: []store.TurnDigest{
			{Title: "Set up schema", Tags: "sqlite", Description: "- created tables", Timestamp: "2026-08-28 14:01:00"},
			{Timestamp: "2026-08-28 14:20:00"},
		},
	}
	out := SessionDetail(detail)
	for _, want := range []string{
		"# Build importer",
		"Source: claude",
		"Workspace: /w/importer",
		"Imported all the things.",
		"## Turns (2)",
		"### Set up schema (2026-08-28 14:01)",
		"Tags: sqlite",
		"- created tables",
		"### Untitled (2026-08-28 14:20)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	noWorkspace := &store.SessionDetail{Session: store.Session{SessionID: "x"}}
	if out := SessionDetail(noWorkspace); !strings.Contains(out, "Workspace: unknown") {
		t.Errorf("missing workspace fallback:\n%s", out)
	}
}

func TestStats(t *testing.T) {
	out := Stats(store.Stats{
		TotalSessions:    5,
		ClaudeSessions:   3,
		CodexSessions:    2,
		TotalTurns:       40,
		LastIndexed:      "2026-08-30 18:00:00",
		TotalSearches:    10,
		SearchesWithHits: 7,
		AvgResults:       2.5,
	})
	for _, want := range []string{
		"Sessions: 5 (3 claude, 2 codex)",
		"Turns indexed: 40",
		"Last indexed: 2026-08-30 18:00:00",
		"Hit rate: 70% (7/10 returned results)",
		"Avg results per search: 2.5",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	empty := Stats(store.Stats{})
	if !strings.Contains(empty, "Last indexed: never") {
		t.Errorf("missing never fallback:\n%s", empty)
	}
}

func TestWorkspaceBase(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"/home/me/proj", "proj"},
		{"/home/me/proj/", "proj"},
		{"relative", "relative"},
	}
	for _, c := range cases {
		if got := workspaceBase(c.path); got != c.want {
			t.Errorf("workspaceBase(%q)=%q, want %q", c.path, got, c.want)
		}
	}
}

func TestPrettyFallsBackToRawOnPlainInput(t *testing.T) {
	// Whatever the renderer does with styling, the text itself survives.
	out := Pretty("# Heading\n\nbody text")
	if !strings.Contains(out, "Heading") || !strings.Contains(out, "body text") {
		t.Errorf("rendered output lost content: %q", out)
	}
}
