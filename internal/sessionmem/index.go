package sessionmem

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// index is the black-box SQLite index described by §6: the active-session
// marker, a session lookup table for recovery, and a countable-event log
// used to seed the prompt window when no session is restored.
type index struct {
	db *sql.DB
}

// openIndex opens (creating if absent) the SQLite file at path and ensures
// its schema exists.
func openIndex(path string) (*index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory index directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory index: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY under concurrent access
	idx := &index{db: db}
	if err := idx.init(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *index) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			path TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			closed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_client_started ON sessions(client_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS active_session (
			client_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS countable_index (
			session_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_countable_client_created ON countable_index(client_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := idx.db.Exec(stmt); err != nil {
			return fmt.Errorf("init memory index schema: %w", err)
		}
	}
	return nil
}

func (idx *index) close() error {
	return idx.db.Close()
}

// upsertSession records or updates a session's row.
func (idx *index) upsertSession(id, clientID, path, status string, startedAt time.Time) error {
	_, err := idx.db.Exec(
		`INSERT INTO sessions (id, client_id, path, status, started_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status`,
		id, clientID, path, status, startedAt)
	if err != nil {
		return fmt.Errorf("upsert session index row: %w", err)
	}
	return nil
}

func (idx *index) markClosed(id string, closedAt time.Time) error {
	_, err := idx.db.Exec(`UPDATE sessions SET status='closed', closed_at=? WHERE id=?`, closedAt, id)
	if err != nil {
		return fmt.Errorf("mark session closed: %w", err)
	}
	return nil
}

func (idx *index) markCrashed(id string) error {
	_, err := idx.db.Exec(`UPDATE sessions SET status='crashed' WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("mark session crashed: %w", err)
	}
	return nil
}

func (idx *index) setActiveSession(clientID, sessionID string) error {
	_, err := idx.db.Exec(
		`INSERT INTO active_session (client_id, session_id) VALUES (?, ?)
		 ON CONFLICT(client_id) DO UPDATE SET session_id=excluded.session_id`,
		clientID, sessionID)
	if err != nil {
		return fmt.Errorf("set active session marker: %w", err)
	}
	return nil
}

// activeSession returns the remembered active session row for clientID, if any.
func (idx *index) activeSession(clientID string) (sessionID, path string, ok bool, err error) {
	row := idx.db.QueryRow(
		`SELECT a.session_id, s.path FROM active_session a
		 LEFT JOIN sessions s ON s.id = a.session_id
		 WHERE a.client_id = ?`, clientID)
	if scanErr := row.Scan(&sessionID, &path); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return "", "", false, nil
		}
		return "", "", false, fmt.Errorf("read active session marker: %w", scanErr)
	}
	return sessionID, path, true, nil
}

// sessionRow is a recovery-scan candidate.
type sessionRow struct {
	ID        string
	ClientID  string
	Path      string
	Status    string
	StartedAt time.Time
}

// recentSessions lists sessions started on or after since, newest first, for
// the time-bounded recovery scan.
func (idx *index) recentSessions(since time.Time, limit int) ([]sessionRow, error) {
	rows, err := idx.db.Query(
		`SELECT id, client_id, path, status, started_at FROM sessions
		 WHERE started_at >= ? ORDER BY started_at DESC LIMIT ?`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()

	var out []sessionRow
	for rows.Next() {
		var r sessionRow
		if err := rows.Scan(&r.ID, &r.ClientID, &r.Path, &r.Status, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// appendCountable records one countable event for clientID's prompt-window
// seed.
func (idx *index) appendCountable(sessionID, clientID string, seq int, role, content string, createdAt time.Time) error {
	_, err := idx.db.Exec(
		`INSERT INTO countable_index (session_id, client_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, clientID, seq, role, content, createdAt)
	if err != nil {
		return fmt.Errorf("append countable index row: %w", err)
	}
	return nil
}

// recentCountable returns the latest limit countable turns for clientID,
// oldest first, used to seed the prompt window when no session is restored.
func (idx *index) recentCountable(clientID string, limit int) ([]Turn, error) {
	rows, err := idx.db.Query(
		`SELECT role, content, created_at FROM countable_index
		 WHERE client_id = ? ORDER BY created_at DESC LIMIT ?`, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent countable events: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Content, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan countable row: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse to oldest-first
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
