package store

import (
	"context"
	"sync"
	"time"

	"github.com/harun/edgechat/pkg/chat"
)

// MemoryStore keeps transcripts in process memory. It is meant for tests
// and local development; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryRecord
}

type memoryRecord struct {
	transcript chat.Transcript
	updatedAt  time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryRecord),
	}
}

// Get returns the stored transcript, or an empty one for unknown ids.
func (s *MemoryStore) Get(ctx context.Context, sessionID string) (chat.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.sessions[sessionID]
	if !exists {
		return chat.Transcript{}, nil
	}

	out := make(chat.Transcript, len(record.transcript))
	copy(out, record.transcript)
	return out, nil
}

// Put overwrites the stored transcript.
func (s *MemoryStore) Put(ctx context.Context, sessionID string, transcript chat.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make(chat.Transcript, len(transcript))
	copy(stored, transcript)
	s.sessions[sessionID] = memoryRecord{
		transcript: stored,
		updatedAt:  time.Now(),
	}
	return nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// List returns all stored session ids.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

// Stat returns session metadata.
func (s *MemoryStore) Stat(ctx context.Context, sessionID string) (chat.SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.sessions[sessionID]
	if !exists {
		return chat.SessionInfo{}, ErrSessionNotFound
	}

	return chat.SessionInfo{
		SessionID: sessionID,
		Turns:     len(record.transcript),
		UpdatedAt: record.updatedAt,
	}, nil
}
