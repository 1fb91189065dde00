package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/edgechat/pkg/chat"
	_ "github.com/mattn/go-sqlite3"
)

// ErrSessionNotFound is returned by Stat for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// SQLiteStore persists transcripts in a single SQLite database, one row
// per session id with the transcript serialized as JSON.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path, ensuring the
// parent directory exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			transcript TEXT NOT NULL,
			updated_at INTEGER NOT NULL DEFAULT (unixepoch())
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

// Get returns the stored transcript, or an empty one for unknown ids.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (chat.Transcript, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT transcript FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Transcript{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}

	var transcript chat.Transcript
	if err := json.Unmarshal([]byte(raw), &transcript); err != nil {
		return nil, fmt.Errorf("failed to parse transcript for session %s: %w", sessionID, err)
	}
	return transcript, nil
}

// Put overwrites the stored transcript wholesale.
func (s *SQLiteStore) Put(ctx context.Context, sessionID string, transcript chat.Transcript) error {
	data, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, transcript, updated_at)
		VALUES (?, ?, unixepoch())
		ON CONFLICT(session_id) DO UPDATE SET
			transcript = excluded.transcript,
			updated_at = excluded.updated_at
	`, sessionID, string(data))
	if err != nil {
		return fmt.Errorf("failed to write session %s: %w", sessionID, err)
	}
	return nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// List returns all stored session ids.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return ids, nil
}

// Stat returns session metadata.
func (s *SQLiteStore) Stat(ctx context.Context, sessionID string) (chat.SessionInfo, error) {
	var raw string
	var updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT transcript, updated_at FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.SessionInfo{}, ErrSessionNotFound
	}
	if err != nil {
		return chat.SessionInfo{}, fmt.Errorf("failed to stat session %s: %w", sessionID, err)
	}

	var transcript chat.Transcript
	if err := json.Unmarshal([]byte(raw), &transcript); err != nil {
		return chat.SessionInfo{}, fmt.Errorf("failed to parse transcript for session %s: %w", sessionID, err)
	}

	return chat.SessionInfo{
		SessionID: sessionID,
		Turns:     len(transcript),
		UpdatedAt: time.Unix(updatedAt, 0),
	}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
