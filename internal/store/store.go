// Package store owns the durable rekal schema: sessions, turns, the
// search-query log, and the FTS5 shadow index over turn text. It is the
// system of record; everything else reads and writes through it.
//
// The FTS5 virtual table requires a go-sqlite3 build with the sqlite_fts5
// build tag.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned for unknown session lookups, including prefix
// lookups that match more than one session.
var ErrNotFound = errors.New("session not found")

type Session struct {
	SessionID     string
	Source        string
	WorkspacePath string
	Model         string
	Title         string
	Summary       string
	StartedAt     string
	EndedAt       string
	TurnCount     int
}

// TurnDigest is the slice of a turn used for session recaps and detail
// views.
type TurnDigest struct {
	Title       string
	Description string
	Tags        string
	UserMessage string
	Timestamp   string
}

type SessionDetail struct {
	Session
	Turns []TurnDigest
}

type Stats struct {
	TotalSessions    int
	ClaudeSessions   int
	CodexSessions    int
	TotalTurns       int
	LastIndexed      string
	TotalSearches    int
	SearchesWithHits int
	AvgResults       float64
}

type Store struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

var schemaStmts = []string{
	`PRAGMA journal_mode = WAL;`,
	`PRAGMA foreign_keys = ON;`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		source TEXT NOT NULL DEFAULT 'claude',
		workspace_path TEXT,
		model TEXT,
		title TEXT,
		summary TEXT,
		started_at TEXT NOT NULL DEFAULT (datetime('now')),
		ended_at TEXT,
		turn_count INTEGER DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		turn_number INTEGER,
		user_message TEXT,
		agent_output TEXT,
		title TEXT,
		description TEXT,
		tags TEXT,
		model_name TEXT,
		timestamp TEXT NOT NULL DEFAULT (datetime('now')),
		UNIQUE(session_id, turn_number)
	);`,
	`CREATE TABLE IF NOT EXISTS search_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		result_count INTEGER DEFAULT 0,
		workspace TEXT,
		searched_at TEXT NOT NULL DEFAULT (datetime('now'))
	);`,
	`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);`,
	`CREATE INDEX IF NOT EXISTS idx_turns_timestamp ON turns(timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_workspace ON sessions(workspace_path);`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS turns_fts USING fts5(
		title,
		description,
		tags,
		user_message,
		content='turns',
		content_rowid='id'
	);`,
	// The shadow index moves in lockstep with turns: inserts mirror in,
	// deletes tombstone out, updates are delete-then-reinsert so the row
	// is fully re-tokenized.
	`CREATE TRIGGER IF NOT EXISTS turns_ai AFTER INSERT ON turns BEGIN
		INSERT INTO turns_fts(rowid, title, description, tags, user_message)
		VALUES (new.id, new.title, new.description, new.tags, new.user_message);
	END;`,
	`CREATE TRIGGER IF NOT EXISTS turns_ad AFTER DELETE ON turns BEGIN
		INSERT INTO turns_fts(turns_fts, rowid, title, description, tags, user_message)
		VALUES ('delete', old.id, old.title, old.description, old.tags, old.user_message);
	END;`,
	`CREATE TRIGGER IF NOT EXISTS turns_au AFTER UPDATE ON turns BEGIN
		INSERT INTO turns_fts(turns_fts, rowid, title, description, tags, user_message)
		VALUES ('delete', old.id, old.title, old.description, old.tags, old.user_message);
		INSERT INTO turns_fts(rowid, title, description, tags, user_message)
		VALUES (new.id, new.title, new.description, new.tags, new.user_message);
	END;`,
}

// Open creates or opens the store at dbPath. Overlapping writers from
// concurrent hook processes serialize on a 5s busy timeout rather than
// failing immediately.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	s := &Store{db: db, log: logger, now: time.Now}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	for _, stmt := range schemaStmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// EnsureSession registers a session if it does not exist yet. A second
// call for the same id is a silent no-op even with different attributes:
// the "register early" hook and the "store result" hook can both call it.
func (s *Store) EnsureSession(sessionID, source, workspacePath, model string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sessions (session_id, source, workspace_path, model)
		 VALUES (?, ?, ?, ?)`,
		sessionID, source, nullable(workspacePath), nullable(model),
	)
	if err != nil {
		return fmt.Errorf("ensure session %s: %w", sessionID, err)
	}
	return nil
}

// StoreTurn writes one turn, replacing any existing row for the same
// (session_id, turn_number). The parent session's turn_count increments
// only when the key is new, so re-summarizing a turn never inflates it.
// Truncation of user/agent text to configured maxima is the caller's job.
// Returns the rowid of the written turn.
func (s *Store) StoreTurn(sessionID string, turnNumber int, userMessage, agentOutput, title, description, tags, modelName string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin store turn tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(
		`SELECT 1 FROM turns WHERE session_id = ? AND turn_number = ?`,
		sessionID, turnNumber,
	).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("check existing turn: %w", err)
	}
	existed := err == nil

	res, err := tx.Exec(
		`INSERT OR REPLACE INTO turns
		 (session_id, turn_number, user_message, agent_output,
		  title, description, tags, model_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, turnNumber, userMessage, agentOutput,
		title, description, tags, nullable(modelName),
	)
	if err != nil {
		return 0, fmt.Errorf("store turn %d for %s: %w", turnNumber, sessionID, err)
	}

	if !existed {
		if _, err := tx.Exec(
			`UPDATE sessions SET turn_count = turn_count + 1 WHERE session_id = ?`,
			sessionID,
		); err != nil {
			return 0, fmt.Errorf("bump turn count for %s: %w", sessionID, err)
		}
	}

	rowID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("turn rowid: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit store turn: %w", err)
	}
	return rowID, nil
}

// UpdateSessionSummary sets the session's title and summary and stamps
// ended_at. This is the terminal write of a session's lifecycle, though
// nothing hard-closes the session afterwards.
func (s *Store) UpdateSessionSummary(sessionID, title, summary string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET title = ?, summary = ?, ended_at = datetime('now')
		 WHERE session_id = ?`,
		title, summary, sessionID,
	)
	if err != nil {
		return fmt.Errorf("update session summary %s: %w", sessionID, err)
	}
	return nil
}

// SessionTitle returns the session's current title, empty when unset or
// when the session does not exist.
func (s *Store) SessionTitle(sessionID string) (string, error) {
	var title sql.NullString
	err := s.db.QueryRow(
		`SELECT title FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session title %s: %w", sessionID, err)
	}
	return title.String, nil
}

// SetSessionTitle sets only the title, used for the early title generated
// from the opening prompt.
func (s *Store) SetSessionTitle(sessionID, title string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET title = ? WHERE session_id = ?`, title, sessionID,
	)
	if err != nil {
		return fmt.Errorf("set session title %s: %w", sessionID, err)
	}
	return nil
}

// NextTurnNumber returns MAX(turn_number)+1 for sources that have no
// transcript to count turns from.
func (s *Store) NextTurnNumber(sessionID string) (int, error) {
	var maxTurn int
	err := s.db.QueryRow(
		`SELECT COALESCE(MAX(turn_number), 0) FROM turns WHERE session_id = ?`,
		sessionID,
	).Scan(&maxTurn)
	if err != nil {
		return 0, fmt.Errorf("next turn number for %s: %w", sessionID, err)
	}
	return maxTurn + 1, nil
}

// GetSessionTurns lists a session's turn digests ordered by turn number.
func (s *Store) GetSessionTurns(sessionID string) ([]TurnDigest, error) {
	rows, err := s.db.Query(
		`SELECT COALESCE(title, ''), COALESCE(description, ''), COALESCE(tags, ''),
		        COALESCE(user_message, ''), timestamp
		 FROM turns WHERE session_id = ? ORDER BY turn_number`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session turns: %w", err)
	}
	defer rows.Close()

	var out []TurnDigest
	for rows.Next() {
		var t TurnDigest
		if err := rows.Scan(&t.Title, &t.Description, &t.Tags, &t.UserMessage, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return out, nil
}

// RecentSessions lists sessions by start time descending, optionally
// substring-filtered on workspace path.
func (s *Store) RecentSessions(workspace string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 10
	}

	var rows *sql.Rows
	var err error
	if workspace != "" {
		rows, err = s.db.Query(sessionSelect+`
			WHERE workspace_path LIKE ?
			ORDER BY started_at DESC LIMIT ?`,
			"%"+workspace+"%", limit)
	} else {
		rows, err = s.db.Query(sessionSelect+`
			ORDER BY started_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

const sessionSelect = `
	SELECT session_id, source, COALESCE(workspace_path, ''), COALESCE(model, ''),
	       COALESCE(title, ''), COALESCE(summary, ''),
	       started_at, COALESCE(ended_at, ''), COALESCE(turn_count, 0)
	FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (Session, error) {
	var sess Session
	err := r.Scan(&sess.SessionID, &sess.Source, &sess.WorkspacePath, &sess.Model,
		&sess.Title, &sess.Summary, &sess.StartedAt, &sess.EndedAt, &sess.TurnCount)
	if err != nil {
		return Session{}, fmt.Errorf("scan session row: %w", err)
	}
	return sess, nil
}

// SessionDetail resolves a full or truncated session id and returns the
// session with its ordered turns. Exact match wins; otherwise a prefix
// must match exactly one session — zero or several matches are both
// ErrNotFound, so callers never act on a guess.
func (s *Store) SessionDetail(idOrPrefix string) (*SessionDetail, error) {
	sess, err := s.lookupSession(idOrPrefix)
	if err != nil {
		return nil, err
	}

	turns, err := s.GetSessionTurns(sess.SessionID)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{Session: sess, Turns: turns}, nil
}

func (s *Store) lookupSession(idOrPrefix string) (Session, error) {
	sess, err := scanSession(s.db.QueryRow(sessionSelect+` WHERE session_id = ?`, idOrPrefix))
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Session{}, err
	}

	rows, err := s.db.Query(sessionSelect+` WHERE session_id LIKE ?`, idOrPrefix+"%")
	if err != nil {
		return Session{}, fmt.Errorf("prefix lookup: %w", err)
	}
	defer rows.Close()

	var matches []Session
	for rows.Next() {
		m, err := scanSession(rows)
		if err != nil {
			return Session{}, err
		}
		matches = append(matches, m)
		if len(matches) > 1 {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return Session{}, fmt.Errorf("iterate prefix matches: %w", err)
	}
	if len(matches) != 1 {
		return Session{}, ErrNotFound
	}
	return matches[0], nil
}

// Stats computes aggregate usage counts directly from current state.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	var lastIndexed sql.NullString
	var avg sql.NullFloat64
	err := s.db.QueryRow(`SELECT
		(SELECT COUNT(*) FROM sessions),
		(SELECT COUNT(*) FROM sessions WHERE source = 'claude'),
		(SELECT COUNT(*) FROM sessions WHERE source = 'codex'),
		(SELECT COUNT(*) FROM turns),
		(SELECT MAX(timestamp) FROM turns),
		(SELECT COUNT(*) FROM search_log),
		(SELECT COUNT(*) FROM search_log WHERE result_count > 0),
		(SELECT AVG(result_count) FROM search_log)`,
	).Scan(&st.TotalSessions, &st.ClaudeSessions, &st.CodexSessions,
		&st.TotalTurns, &lastIndexed, &st.TotalSearches, &st.SearchesWithHits, &avg)
	if err != nil {
		return Stats{}, fmt.Errorf("compute stats: %w", err)
	}
	st.LastIndexed = lastIndexed.String
	st.AvgResults = avg.Float64
	return st, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
