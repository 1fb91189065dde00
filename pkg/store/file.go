package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/harun/edgechat/pkg/chat"
)

// FileStore persists one JSON file per session under a directory. Saves
// go through a temp file and an atomic rename so a crash mid-write never
// leaves a truncated transcript behind.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates the directory if needed and returns a store.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// validateSessionID rejects ids that could escape the store directory.
func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if strings.Contains(sessionID, "..") {
		return fmt.Errorf("session id cannot contain '..'")
	}
	if strings.ContainsAny(sessionID, "/\\") {
		return fmt.Errorf("session id cannot contain path separators")
	}
	if strings.Contains(sessionID, "\x00") {
		return fmt.Errorf("session id cannot contain null bytes")
	}
	return nil
}

func (s *FileStore) sessionPath(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Get returns the stored transcript, or an empty one for unknown ids.
func (s *FileStore) Get(ctx context.Context, sessionID string) (chat.Transcript, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.sessionPath(sessionID))
	if os.IsNotExist(err) {
		return chat.Transcript{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var transcript chat.Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return transcript, nil
}

// Put overwrites the stored transcript wholesale.
func (s *FileStore) Put(ctx context.Context, sessionID string, transcript chat.Transcript) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	data, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sessionPath := s.sessionPath(sessionID)
	tempPath := sessionPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tempPath, sessionPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Delete removes a session file. Deleting an unknown id is not an error.
func (s *FileStore) Delete(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.sessionPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// List returns all stored session ids.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// Stat returns session metadata using the file's modification time.
func (s *FileStore) Stat(ctx context.Context, sessionID string) (chat.SessionInfo, error) {
	if err := validateSessionID(sessionID); err != nil {
		return chat.SessionInfo{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionPath := s.sessionPath(sessionID)
	info, err := os.Stat(sessionPath)
	if os.IsNotExist(err) {
		return chat.SessionInfo{}, ErrSessionNotFound
	}
	if err != nil {
		return chat.SessionInfo{}, fmt.Errorf("failed to stat session file: %w", err)
	}

	data, err := os.ReadFile(sessionPath)
	if err != nil {
		return chat.SessionInfo{}, fmt.Errorf("failed to read session file: %w", err)
	}
	var transcript chat.Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return chat.SessionInfo{}, fmt.Errorf("failed to parse session file: %w", err)
	}

	return chat.SessionInfo{
		SessionID: sessionID,
		Turns:     len(transcript),
		UpdatedAt: info.ModTime(),
	}, nil
}
