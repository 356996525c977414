package store

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(filepath.Join(t.TempDir(), "db.sqlite"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func mustStoreTurn(t *testing.T, s *Store, sessionID string, turnNumber int, userMessage, title, tags string) {
	t.Helper()
	_, err := s.StoreTurn(sessionID, turnNumber, userMessage, "agent output", title, "description", tags, "haiku")
	if err != nil {
		t.Fatalf("store turn %d: %v", turnNumber, err)
	}
}

func TestEnsureSessionFirstWriteWins(t *testing.T) {
	s := newTestStore(t)

	if err := s.EnsureSession("sess-1", "claude", "/home/u/projects/api", "haiku"); err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	if err := s.EnsureSession("sess-1", "codex", "/somewhere/else", "o3"); err != nil {
		t.Fatalf("second ensure session: %v", err)
	}

	detail, err := s.SessionDetail("sess-1")
	if err != nil {
		t.Fatalf("session detail: %v", err)
	}
	if detail.Source != "claude" {
		t.Errorf("source=%q, want claude (first write wins)", detail.Source)
	}
	if detail.WorkspacePath != "/home/u/projects/api" {
		t.Errorf("workspace=%q, want original", detail.WorkspacePath)
	}
}

func TestStoreTurnCountIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureSession("sess-1", "claude", "", ""); err != nil {
		t.Fatalf("ensure session: %v", err)
	}

	mustStoreTurn(t, s, "sess-1", 1, "first", "Turn one", "")
	mustStoreTurn(t, s, "sess-1", 2, "second", "Turn two", "")
	// Overwrite turn 2 twice more.
	mustStoreTurn(t, s, "sess-1", 2, "second revised", "Turn two revised", "")
	mustStoreTurn(t, s, "sess-1", 2, "second final", "Turn two final", "")

	detail, err := s.SessionDetail("sess-1")
	if err != nil {
		t.Fatalf("session detail: %v", err)
	}
	if detail.TurnCount != 2 {
		t.Fatalf("turn_count=%d, want 2 (distinct turn numbers)", detail.TurnCount)
	}
	if len(detail.Turns) != 2 {
		t.Fatalf("stored turns=%d, want 2", len(detail.Turns))
	}
	if detail.Turns[1].Title != "Turn two final" {
		t.Errorf("turn 2 title=%q, want the last write", detail.Turns[1].Title)
	}
}

func TestStoreTurnReplaceKeepsSingleRow(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureSession("sess-1", "claude", "", ""); err != nil {
		t.Fatalf("ensure session: %v", err)
	}

	mustStoreTurn(t, s, "sess-1", 1, "original message", "Original", "old-tag")
	mustStoreTurn(t, s, "sess-1", 1, "replacement message", "Replacement", "new-tag")

	turns, err := s.GetSessionTurns("sess-1")
	if err != nil {
		t.Fatalf("get turns: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("rows=%d, want 1", len(turns))
	}
	if turns[0].UserMessage != "replacement message" || turns[0].Title != "Replacement" {
		t.Errorf("row should reflect second write, got %+v", turns[0])
	}

	// The FTS shadow must follow the replacement: old terms gone, new
	// terms findable.
	if got := s.Search("original", "", 10); len(got) != 0 {
		t.Errorf("stale FTS entry survived replacement: %d hits", len(got))
	}
	if got := s.Search("replacement", "", 10); len(got) != 1 {
		t.Errorf("replacement not indexed: %d hits", len(got))
	}
}

func TestSessionDetailPrefixResolution(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"abc-111", "abc-222", "xyz-333"} {
		if err := s.EnsureSession(id, "claude", "", ""); err != nil {
			t.Fatalf("ensure %s: %v", id, err)
		}
	}

	// Exact match.
	if d, err := s.SessionDetail("abc-111"); err != nil || d.SessionID != "abc-111" {
		t.Fatalf("exact match failed: %v", err)
	}
	// Unique prefix resolves.
	d, err := s.SessionDetail("xyz")
	if err != nil {
		t.Fatalf("unique prefix: %v", err)
	}
	if d.SessionID != "xyz-333" {
		t.Errorf("resolved=%q, want xyz-333", d.SessionID)
	}
	// Ambiguous prefix is not found.
	if _, err := s.SessionDetail("abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ambiguous prefix: err=%v, want ErrNotFound", err)
	}
	// Zero matches is not found.
	if _, err := s.SessionDetail("zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("no match: err=%v, want ErrNotFound", err)
	}
}

func TestUpdateSessionSummarySetsEndedAt(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureSession("sess-1", "claude", "", ""); err != nil {
		t.Fatalf("ensure session: %v", err)
	}

	if err := s.UpdateSessionSummary("sess-1", "Built the parser", "Parser work across three turns."); err != nil {
		t.Fatalf("update summary: %v", err)
	}

	d, err := s.SessionDetail("sess-1")
	if err != nil {
		t.Fatalf("session detail: %v", err)
	}
	if d.Title != "Built the parser" || d.Summary != "Parser work across three turns." {
		t.Errorf("summary not applied: %+v", d.Session)
	}
	if d.EndedAt == "" {
		t.Error("ended_at not set")
	}
}

func TestSetSessionTitle(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureSession("sess-1", "claude", "", ""); err != nil {
		t.Fatalf("ensure session: %v", err)
	}

	title, err := s.SessionTitle("sess-1")
	if err != nil || title != "" {
		t.Fatalf("fresh session title=%q err=%v, want empty", title, err)
	}
	if err := s.SetSessionTitle("sess-1", "Early title"); err != nil {
		t.Fatalf("set title: %v", err)
	}
	title, err = s.SessionTitle("sess-1")
	if err != nil || title != "Early title" {
		t.Fatalf("title=%q err=%v", title, err)
	}

	// Unknown session reads as empty, not an error.
	title, err = s.SessionTitle("missing")
	if err != nil || title != "" {
		t.Fatalf("missing session title=%q err=%v", title, err)
	}
}

func TestNextTurnNumber(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureSession("codex-t1", "codex", "", ""); err != nil {
		t.Fatalf("ensure session: %v", err)
	}

	n, err := s.NextTurnNumber("codex-t1")
	if err != nil || n != 1 {
		t.Fatalf("empty session next=%d err=%v, want 1", n, err)
	}
	mustStoreTurn(t, s, "codex-t1", 1, "q", "t", "")
	mustStoreTurn(t, s, "codex-t1", 2, "q", "t", "")
	n, err = s.NextTurnNumber("codex-t1")
	if err != nil || n != 3 {
		t.Fatalf("next=%d err=%v, want 3", n, err)
	}
}

func TestRecentSessionsWorkspaceFilter(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureSession("a", "claude", "/home/u/projects/api", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureSession("b", "claude", "/home/u/projects/web", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureSession("c", "codex", "", ""); err != nil {
		t.Fatal(err)
	}

	all, err := s.RecentSessions("", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("sessions=%d, want 3", len(all))
	}

	filtered, err := s.RecentSessions("api", 10)
	if err != nil {
		t.Fatalf("filtered recent: %v", err)
	}
	if len(filtered) != 1 || filtered[0].SessionID != "a" {
		t.Fatalf("filtered=%+v, want only session a", filtered)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureSession("a", "claude", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureSession("b", "codex", "", ""); err != nil {
		t.Fatal(err)
	}
	mustStoreTurn(t, s, "a", 1, "setup fts5 index", "FTS5 setup", "sqlite")
	_ = s.Search("fts5", "", 10)
	_ = s.Search("no-such-term-anywhere", "", 10)

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalSessions != 2 || st.ClaudeSessions != 1 || st.CodexSessions != 1 {
		t.Errorf("session counts=%+v", st)
	}
	if st.TotalTurns != 1 {
		t.Errorf("turns=%d, want 1", st.TotalTurns)
	}
	if st.TotalSearches != 2 || st.SearchesWithHits != 1 {
		t.Errorf("searches=%d hits=%d, want 2/1", st.TotalSearches, st.SearchesWithHits)
	}
	if st.LastIndexed == "" {
		t.Error("last indexed empty")
	}
	if st.AvgResults != 0.5 {
		t.Errorf("avg results=%v, want 0.5", st.AvgResults)
	}
}
