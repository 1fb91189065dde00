package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/edgechat/internal/metrics"
	"github.com/harun/edgechat/pkg/generate"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxTurns is the context window size in turns.
	DefaultMaxTurns = 10

	// DefaultMaxOutputTokens is the generation output budget.
	DefaultMaxOutputTokens = 256
)

// Options configures the conversation core.
type Options struct {
	// Model is the generation backend model selector.
	Model string

	// MaxTurns bounds the context window and the echoed history.
	MaxTurns int

	// MaxOutputTokens is the per-call generation budget.
	MaxOutputTokens int

	// SystemPrompt is the fixed instruction prepended to every prompt.
	SystemPrompt string

	// MaxStoredTurns truncates the persisted transcript to its trailing
	// turns on every save. Zero keeps stored history unbounded.
	MaxStoredTurns int
}

// Manager owns conversations: it loads a session's transcript, appends the
// user turn, windows the context, invokes the generation backend, appends
// the assistant turn, and persists the whole transcript back.
//
// Callers must pass a non-empty message; empty-input validation belongs to
// the edge and is not re-checked here.
type Manager struct {
	store        Store
	gen          generate.Generator
	opts         Options
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	sessionLocks map[string]*sync.Mutex
	locksMu      sync.Mutex
}

// NewManager creates a conversation manager. metrics may be nil.
func NewManager(store Store, gen generate.Generator, opts Options, logger zerolog.Logger, m *metrics.Metrics) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}

	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}

	return &Manager{
		store:        store,
		gen:          gen,
		opts:         opts,
		logger:       logger,
		metrics:      m,
		sessionLocks: make(map[string]*sync.Mutex),
	}, nil
}

// sessionLock gets or creates the lock serializing one session's requests
func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	if lock, exists := m.sessionLocks[sessionID]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	m.sessionLocks[sessionID] = lock
	return lock
}

// HandleMessage turns one inbound user message into a generated reply and
// returns it together with the trailing MaxTurns turns of the updated
// transcript. Requests for the same session id are strictly serialized;
// requests for different sessions run concurrently.
//
// On any generation or storage failure the error propagates and nothing
// is persisted for this request.
func (m *Manager) HandleMessage(ctx context.Context, sessionID string, message string) (string, Transcript, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	logger := m.logger.With().Str("session_id", sessionID).Logger()

	transcript, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	transcript = append(transcript, Turn{Role: RoleUser, Content: message})

	window := transcript.Window(m.opts.MaxTurns)
	prompt := BuildPrompt(m.opts.SystemPrompt, window)

	start := time.Now()
	result, err := m.gen.Generate(ctx, generate.Request{
		Model:     m.opts.Model,
		Prompt:    prompt,
		MaxTokens: m.opts.MaxOutputTokens,
	})
	if err != nil {
		if m.metrics != nil {
			m.metrics.GenerationErrors.Inc()
		}
		return "", nil, fmt.Errorf("generation failed: %w", err)
	}
	if m.metrics != nil {
		m.metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	}

	reply := result.Reply()
	transcript = append(transcript, Turn{Role: RoleAssistant, Content: reply})

	persisted := transcript
	if m.opts.MaxStoredTurns > 0 {
		persisted = transcript.Window(m.opts.MaxStoredTurns)
	}

	if err := m.store.Put(ctx, sessionID, persisted); err != nil {
		return "", nil, fmt.Errorf("failed to persist transcript: %w", err)
	}

	if m.metrics != nil {
		m.metrics.ChatTurnsTotal.Add(2)
	}

	logger.Debug().
		Int("transcript_turns", len(transcript)).
		Int("window_turns", len(window)).
		Msg("Message handled")

	return reply, transcript.Window(m.opts.MaxTurns), nil
}

// Options returns the effective options after defaulting.
func (m *Manager) Options() Options {
	return m.opts
}
