// Package history keeps a searchable archive of terminated sessions and
// completed responses, backed by SQLite in WAL mode.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/braidhq/braid/internal/session"
)

// Store is the SQLite-backed archive.
type Store struct {
	db   *sql.DB
	path string
}

// ArchivedSession is one row from the sessions table.
type ArchivedSession struct {
	ID           string
	Name         string
	Status       string
	CreatedAt    time.Time
	LastActive   time.Time
	FirstMessage string
	MessageCount int
}

// Response is one archived response.
type Response struct {
	SessionID string
	Seq       int
	Text      string
	CreatedAt time.Time
}

// Open creates and initializes the archive database.
func Open(dbPath string) (*Store, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("history db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL DEFAULT 'archived',
		created_at    TEXT NOT NULL,
		last_active   TEXT NOT NULL,
		first_message TEXT NOT NULL DEFAULT '',
		message_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS responses (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq        INTEGER NOT NULL,
		text       TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE(session_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ArchiveSession upserts a terminated session's metadata into the archive.
func (s *Store) ArchiveSession(m *session.Metadata) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, name, status, created_at, last_active, first_message, message_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			last_active = excluded.last_active,
			first_message = excluded.first_message,
			message_count = excluded.message_count`,
		m.ID, m.Name, string(m.Status),
		m.CreatedAt.UTC().Format(time.RFC3339), m.LastActive.UTC().Format(time.RFC3339),
		m.FirstMessage, m.MessageCount)
	if err != nil {
		return fmt.Errorf("archive session %s: %w", m.ID, err)
	}
	return nil
}

// AddResponse appends a completed response for a session. The session row
// must exist; ArchiveSession is called with live metadata before responses
// are appended.
func (s *Store) AddResponse(sessionID string, seq int, text string) error {
	_, err := s.db.Exec(`
		INSERT INTO responses (session_id, seq, text, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO UPDATE SET text = excluded.text`,
		sessionID, seq, text, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("add response for %s: %w", sessionID, err)
	}
	return nil
}

// ListSessions returns archived sessions, most recently active first.
func (s *Store) ListSessions(limit int) ([]ArchivedSession, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, name, status, created_at, last_active, first_message, message_count
		FROM sessions ORDER BY last_active DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// SearchSessions returns archived sessions whose name or first message
// contains the query text, most recently active first.
func (s *Store) SearchSessions(query string, limit int) ([]ArchivedSession, error) {
	if limit <= 0 {
		limit = 100
	}
	pattern := "%" + query + "%"
	rows, err := s.db.Query(`
		SELECT id, name, status, created_at, last_active, first_message, message_count
		FROM sessions
		WHERE name LIKE ? OR first_message LIKE ?
		ORDER BY last_active DESC LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// Responses returns the archived responses for a session in order.
func (s *Store) Responses(sessionID string) ([]Response, error) {
	rows, err := s.db.Query(`
		SELECT session_id, seq, text, created_at
		FROM responses WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("responses for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var responses []Response
	for rows.Next() {
		var r Response
		var createdAt string
		if err := rows.Scan(&r.SessionID, &r.Seq, &r.Text, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

func scanSessions(rows *sql.Rows) ([]ArchivedSession, error) {
	var sessions []ArchivedSession
	for rows.Next() {
		var a ArchivedSession
		var createdAt, lastActive string
		if err := rows.Scan(&a.ID, &a.Name, &a.Status, &createdAt, &lastActive, &a.FirstMessage, &a.MessageCount); err != nil {
			return nil, err
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		a.LastActive, _ = time.Parse(time.RFC3339, lastActive)
		sessions = append(sessions, a)
	}
	return sessions, rows.Err()
}
