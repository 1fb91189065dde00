package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Missing-id policies. The upstream protocol lets clients omit the
// session id; what happens then is a deployment decision, not a manager
// feature, so it is surfaced here explicitly.
const (
	// MissingIDShared collapses all identifier-less callers into one
	// shared session under DefaultSessionID.
	MissingIDShared = "shared"

	// MissingIDMint issues a fresh session id per identifier-less request.
	MissingIDMint = "mint"

	// MissingIDReject refuses requests without a session id.
	MissingIDReject = "reject"
)

// DefaultSessionID is the shared session for identifier-less callers.
const DefaultSessionID = "default"

// ErrSessionIDRequired is returned under MissingIDReject when a request
// carries no session id.
var ErrSessionIDRequired = errors.New("session id is required")

// RouterOptions configures session id resolution.
type RouterOptions struct {
	MissingIDPolicy string // shared, mint, reject; defaults to shared
}

// Router maps a caller-supplied session identifier to the manager
// responsible for it. One manager serves all sessions; per-session
// serialization lives inside the manager, keyed by the resolved id.
type Router struct {
	manager *Manager
	opts    RouterOptions
}

// NewRouter creates a session router.
func NewRouter(manager *Manager, opts RouterOptions) (*Router, error) {
	if manager == nil {
		return nil, fmt.Errorf("manager is required")
	}

	switch opts.MissingIDPolicy {
	case "":
		opts.MissingIDPolicy = MissingIDShared
	case MissingIDShared, MissingIDMint, MissingIDReject:
	default:
		return nil, fmt.Errorf("invalid missing id policy: %s", opts.MissingIDPolicy)
	}

	return &Router{manager: manager, opts: opts}, nil
}

// Resolve applies the missing-id policy to a caller-supplied session id.
func (r *Router) Resolve(sessionID string) (string, error) {
	if sessionID != "" {
		return sessionID, nil
	}

	switch r.opts.MissingIDPolicy {
	case MissingIDMint:
		return uuid.NewString(), nil
	case MissingIDReject:
		return "", ErrSessionIDRequired
	default:
		return DefaultSessionID, nil
	}
}

// Dispatch resolves the session id and hands the message to the manager.
func (r *Router) Dispatch(ctx context.Context, sessionID string, message string) (string, Transcript, error) {
	resolved, err := r.Resolve(sessionID)
	if err != nil {
		return "", nil, err
	}
	return r.manager.HandleMessage(ctx, resolved, message)
}
