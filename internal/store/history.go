// Package store keeps a local SQLite mirror of finalized exchanges so chat
// history can be read offline. The in-memory state store is authoritative;
// this cache is append-mostly and every write is idempotent, so syncing the
// same exchange twice is harmless.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"chatfront/internal/state"
)

// History is the local message cache.
type History struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// NewHistory opens (creating if needed) the cache database at path.
// ":memory:" works for tests.
func NewHistory(path string, log *zap.Logger) (*History, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}

	h := &History{db: db, log: log}
	if err := h.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

func (h *History) initialize() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			session_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (session_id, message_id)
		);
		CREATE INDEX IF NOT EXISTS idx_messages_session
			ON messages(session_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveMessage upserts one finalized message. INSERT OR IGNORE keeps
// re-syncs idempotent.
func (h *History) SaveMessage(sessionID string, msg state.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.db.Exec(
		`INSERT OR IGNORE INTO messages (session_id, message_id, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, msg.ID, string(msg.Role), msg.Content, msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	return nil
}

// DeleteSession drops every cached message of a session.
func (h *History) DeleteSession(sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.db.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session history: %w", err)
	}
	return nil
}

// Messages returns a session's cached history, oldest first. limit <= 0
// means everything.
func (h *History) Messages(sessionID string, limit int) ([]state.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	q := `SELECT message_id, role, content, created_at
	        FROM messages WHERE session_id = ? ORDER BY created_at ASC`
	args := []any{sessionID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := h.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var msgs []state.Message
	for rows.Next() {
		var m state.Message
		var role, created string
		if err := rows.Scan(&m.ID, &role, &m.Content, &created); err != nil {
			h.log.Debug("skipping unreadable history row", zap.Error(err))
			continue
		}
		m.SessionID = sessionID
		m.Role = state.Role(role)
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			m.CreatedAt = t
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SessionIDs lists every session present in the cache, most recently
// active first.
func (h *History) SessionIDs() ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rows, err := h.db.Query(
		`SELECT session_id FROM messages GROUP BY session_id ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}
