package chat

import (
	"context"
	"time"
)

// Turn roles. Alternation is not enforced; a client may send
// consecutive user turns and the transcript records them as-is.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single conversational utterance.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcript is the full ordered history of turns for one session.
type Transcript []Turn

// Window returns the trailing n turns of the transcript. A non-positive
// n or a transcript shorter than n returns the transcript unchanged.
func (t Transcript) Window(n int) Transcript {
	if n <= 0 || len(t) <= n {
		return t
	}
	return t[len(t)-n:]
}

// SessionInfo describes a stored session for retention decisions.
type SessionInfo struct {
	SessionID string
	Turns     int
	UpdatedAt time.Time
}

// Store is the durable mapping from session id to transcript. An absent
// session id resolves to an empty transcript, not an error. Put overwrites
// the stored transcript wholesale.
type Store interface {
	Get(ctx context.Context, sessionID string) (Transcript, error)
	Put(ctx context.Context, sessionID string, transcript Transcript) error
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
	Stat(ctx context.Context, sessionID string) (SessionInfo, error)
}
