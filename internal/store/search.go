package store

import (
	"math"
	"sort"
	"strings"
	"time"
)

// SearchResult is one scored turn summary joined with its session's
// workspace and source.
type SearchResult struct {
	TurnID        int64
	SessionID     string
	Title         string
	Description   string
	Tags          string
	UserMessage   string
	Timestamp     string
	WorkspacePath string
	Source        string
	Score         float64
	AgeDays       float64
}

// fallbackAgeDays is assumed for turns whose timestamp is missing or
// unparsable, pushing them to the back of the ranking.
const fallbackAgeDays = 365

// recencyTimeConstant is the exponential-decay time constant in days
// (half-life about 21 days).
const recencyTimeConstant = 30

// workspaceBonus multiplies the score of turns whose session workspace
// contains the requested filter.
const workspaceBonus = 2.0

// sanitizeQuery quotes every whitespace-separated token as an exact
// phrase, so no token can be read as FTS5 syntax. An empty query becomes
// the explicit empty phrase.
func sanitizeQuery(query string) string {
	tokens := strings.Fields(query)
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.ReplaceAll(tok, `"`, "")
		if tok == "" {
			continue
		}
		quoted = append(quoted, `"`+tok+`"`)
	}
	if len(quoted) == 0 {
		return `""`
	}
	return strings.Join(quoted, " ")
}

// Search runs a sanitized FTS5 match, over-fetches limit*3 candidates by
// bm25, and re-ranks them by bm25 x recency x workspace affinity. Search
// is best-effort: any engine failure yields an empty result list. Every
// call appends a search-log entry; a failure there is swallowed too.
func (s *Store) Search(query, workspace string, limit int) []SearchResult {
	if limit <= 0 {
		limit = 20
	}

	results := s.searchCandidates(sanitizeQuery(query), limit*3)

	now := s.now().UTC()
	for i := range results {
		r := &results[i]
		r.AgeDays = ageDays(r.Timestamp, now)

		// bm25 is negative, closer to zero is better.
		lexical := -r.Score
		recency := math.Exp(-r.AgeDays / recencyTimeConstant)
		ws := 1.0
		if workspace != "" && r.WorkspacePath != "" && strings.Contains(r.WorkspacePath, workspace) {
			ws = workspaceBonus
		}
		r.Score = lexical * recency * ws
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	s.logSearch(query, workspace, len(results))
	return results
}

// searchCandidates returns lexical matches with the raw bm25 value in
// Score. Engine-level failures (malformed index state, missing FTS
// support) degrade to no candidates.
func (s *Store) searchCandidates(safeQuery string, fetch int) []SearchResult {
	rows, err := s.db.Query(
		`SELECT t.id, t.session_id, COALESCE(t.title, ''), COALESCE(t.description, ''),
		        COALESCE(t.tags, ''), COALESCE(t.user_message, ''), t.timestamp,
		        COALESCE(s.workspace_path, ''), s.source,
		        bm25(turns_fts) AS rank
		 FROM turns_fts
		 JOIN turns t ON t.id = turns_fts.rowid
		 JOIN sessions s ON s.session_id = t.session_id
		 WHERE turns_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`,
		safeQuery, fetch,
	)
	if err != nil {
		s.log.Debug("fts query failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.TurnID, &r.SessionID, &r.Title, &r.Description,
			&r.Tags, &r.UserMessage, &r.Timestamp, &r.WorkspacePath, &r.Source, &r.Score); err != nil {
			s.log.Debug("scan search row failed", "error", err)
			return nil
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		s.log.Debug("iterate search rows failed", "error", err)
		return nil
	}
	return out
}

// logSearch appends to the search log. Fire and forget: the log feeds
// aggregate stats only and must never fail the search itself.
func (s *Store) logSearch(query, workspace string, resultCount int) {
	_, err := s.db.Exec(
		`INSERT INTO search_log (query, result_count, workspace) VALUES (?, ?, ?)`,
		query, resultCount, nullable(workspace),
	)
	if err != nil {
		s.log.Debug("search_log insert failed", "error", err)
	}
}

// ageDays computes the age of a stored timestamp in days. SQLite's
// datetime('now') format is tried first, then RFC 3339; bad timestamps
// fall back to fallbackAgeDays rather than erroring.
func ageDays(timestamp string, now time.Time) float64 {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", timestamp, time.UTC)
	if err != nil {
		ts, err = time.Parse(time.RFC3339, timestamp)
	}
	if err != nil {
		return fallbackAgeDays
	}
	age := now.Sub(ts).Hours() / 24
	if age < 0 {
		age = 0
	}
	return age
}
