package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harun/edgechat/pkg/generate"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store that counts reads and writes.
type fakeStore struct {
	mu        sync.Mutex
	sessions  map[string]Transcript
	updatedAt map[string]time.Time
	getCalls  int
	putCalls  int
	getErr    error
	putErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:  make(map[string]Transcript),
		updatedAt: make(map[string]time.Time),
	}
}

func (s *fakeStore) Get(ctx context.Context, sessionID string) (Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	out := make(Transcript, len(s.sessions[sessionID]))
	copy(out, s.sessions[sessionID])
	return out, nil
}

func (s *fakeStore) Put(ctx context.Context, sessionID string, transcript Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls++
	if s.putErr != nil {
		return s.putErr
	}
	stored := make(Transcript, len(transcript))
	copy(stored, transcript)
	s.sessions[sessionID] = stored
	s.updatedAt[sessionID] = time.Now()
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	delete(s.updatedAt, sessionID)
	return nil
}

func (s *fakeStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeStore) Stat(ctx context.Context, sessionID string) (SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	transcript, exists := s.sessions[sessionID]
	if !exists {
		return SessionInfo{}, fmt.Errorf("session not found")
	}
	return SessionInfo{
		SessionID: sessionID,
		Turns:     len(transcript),
		UpdatedAt: s.updatedAt[sessionID],
	}, nil
}

func (s *fakeStore) stored(sessionID string) Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionID]
}

// fakeGenerator records prompts and replies with a fixed or computed result.
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	result  generate.Result
	respond func(prompt string) generate.Result
	err     error
	delay   time.Duration
}

func (g *fakeGenerator) Generate(ctx context.Context, request generate.Request) (generate.Result, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, request.Prompt)
	g.mu.Unlock()

	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	if g.err != nil {
		return generate.Result{}, g.err
	}
	if g.respond != nil {
		return g.respond(request.Prompt), nil
	}
	return g.result, nil
}

func (g *fakeGenerator) Provider() string { return "fake" }

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts[len(g.prompts)-1]
}

func newTestManager(t *testing.T, st Store, gen generate.Generator, opts Options) *Manager {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	mgr, err := NewManager(st, gen, opts, logger, nil)
	require.NoError(t, err)
	return mgr
}

func TestNewManagerRequiredDependencies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	_, err := NewManager(nil, &fakeGenerator{}, Options{}, logger, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store is required")

	_, err = NewManager(newFakeStore(), nil, Options{}, logger, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "generator is required")
}

func TestNewManagerDefaults(t *testing.T) {
	mgr := newTestManager(t, newFakeStore(), &fakeGenerator{}, Options{})

	opts := mgr.Options()
	assert.Equal(t, DefaultMaxTurns, opts.MaxTurns)
	assert.Equal(t, DefaultMaxOutputTokens, opts.MaxOutputTokens)
	assert.Equal(t, DefaultSystemPrompt, opts.SystemPrompt)
}

func TestHandleMessage_FirstTurn(t *testing.T) {
	st := newFakeStore()
	gen := &fakeGenerator{result: generate.TextResult("hi there")}
	mgr := newTestManager(t, st, gen, Options{})

	reply, history, err := mgr.HandleMessage(context.Background(), "s1", "hello")
	require.NoError(t, err)

	assert.Equal(t, "hi there", reply)
	require.Len(t, history, 2)
	assert.Equal(t, Turn{Role: RoleUser, Content: "hello"}, history[0])
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "hi there"}, history[1])

	// Prompt for an empty prior history is exactly the preamble plus the
	// single user line and the assistant cue.
	expected := DefaultSystemPrompt + "\n\nConversation:\nUSER: hello\nASSISTANT:"
	assert.Equal(t, expected, gen.lastPrompt())
}

func TestHandleMessage_TranscriptGrowsByTwoPerTurn(t *testing.T) {
	st := newFakeStore()
	gen := &fakeGenerator{result: generate.TextResult("ok")}
	mgr := newTestManager(t, st, gen, Options{})

	const turns = 8
	for i := 0; i < turns; i++ {
		_, _, err := mgr.HandleMessage(context.Background(), "s1", fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	stored := st.stored("s1")
	require.Len(t, stored, 2*turns)

	// Strict chronological append order, user then assistant each turn
	for i := 0; i < turns; i++ {
		assert.Equal(t, RoleUser, stored[2*i].Role)
		assert.Equal(t, fmt.Sprintf("message %d", i), stored[2*i].Content)
		assert.Equal(t, RoleAssistant, stored[2*i+1].Role)
	}
}

func TestHandleMessage_ContextWindow(t *testing.T) {
	st := newFakeStore()

	// Seed 14 prior turns so the post-append transcript is well past the window
	prior := make(Transcript, 0, 14)
	for i := 0; i < 14; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		prior = append(prior, Turn{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}
	require.NoError(t, st.Put(context.Background(), "s1", prior))

	gen := &fakeGenerator{result: generate.TextResult("ok")}
	mgr := newTestManager(t, st, gen, Options{})

	_, history, err := mgr.HandleMessage(context.Background(), "s1", "latest")
	require.NoError(t, err)

	prompt := gen.lastPrompt()

	// Exactly the most recent 10 turns after the user append: turns 5..13
	// plus the new user line.
	assert.NotContains(t, prompt, "turn 4\n")
	for i := 5; i < 14; i++ {
		assert.Contains(t, prompt, fmt.Sprintf("turn %d", i))
	}
	assert.Contains(t, prompt, "USER: latest")

	lines := strings.Split(prompt, "\n")
	turnLines := 0
	for _, line := range lines {
		if strings.HasPrefix(line, "USER: ") || strings.HasPrefix(line, "ASSISTANT: ") {
			turnLines++
		}
	}
	assert.Equal(t, 10, turnLines)

	// History echo is the last 10 turns after both appends
	require.Len(t, history, 10)
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "ok"}, history[9])
	assert.Equal(t, Turn{Role: RoleUser, Content: "latest"}, history[8])
}

func TestHandleMessage_HistoryEchoShortTranscript(t *testing.T) {
	st := newFakeStore()
	gen := &fakeGenerator{result: generate.TextResult("ok")}
	mgr := newTestManager(t, st, gen, Options{})

	for i := 0; i < 3; i++ {
		_, history, err := mgr.HandleMessage(context.Background(), "s1", "msg")
		require.NoError(t, err)
		assert.Len(t, history, 2*(i+1))
	}
}

func TestHandleMessage_GenerationFailureDiscardsTurn(t *testing.T) {
	st := newFakeStore()
	gen := &fakeGenerator{err: fmt.Errorf("backend unavailable")}
	mgr := newTestManager(t, st, gen, Options{})

	_, _, err := mgr.HandleMessage(context.Background(), "s1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation failed")

	// The appended user turn must never reach storage
	assert.Equal(t, 0, st.putCalls)
	assert.Empty(t, st.stored("s1"))
}

func TestHandleMessage_StoreReadFailure(t *testing.T) {
	st := newFakeStore()
	st.getErr = fmt.Errorf("disk error")
	mgr := newTestManager(t, st, &fakeGenerator{result: generate.TextResult("ok")}, Options{})

	_, _, err := mgr.HandleMessage(context.Background(), "s1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load transcript")
	assert.Equal(t, 0, st.putCalls)
}

func TestHandleMessage_StoreWriteFailure(t *testing.T) {
	st := newFakeStore()
	st.putErr = fmt.Errorf("disk full")
	mgr := newTestManager(t, st, &fakeGenerator{result: generate.TextResult("ok")}, Options{})

	_, _, err := mgr.HandleMessage(context.Background(), "s1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist transcript")
}

func TestHandleMessage_SessionIsolation(t *testing.T) {
	st := newFakeStore()
	gen := &fakeGenerator{result: generate.TextResult("ok")}
	mgr := newTestManager(t, st, gen, Options{})

	_, _, err := mgr.HandleMessage(context.Background(), "alice", "alice secret")
	require.NoError(t, err)
	_, historyB, err := mgr.HandleMessage(context.Background(), "bob", "bob question")
	require.NoError(t, err)

	for _, turn := range historyB {
		assert.NotContains(t, turn.Content, "alice secret")
	}
	assert.NotContains(t, gen.lastPrompt(), "alice secret")

	storedA := st.stored("alice")
	require.Len(t, storedA, 2)
	assert.Equal(t, "alice secret", storedA[0].Content)
}

func TestHandleMessage_ConcurrentSameSessionLosesNoUpdate(t *testing.T) {
	st := newFakeStore()
	gen := &fakeGenerator{result: generate.TextResult("ok"), delay: 10 * time.Millisecond}
	mgr := newTestManager(t, st, gen, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _, err := mgr.HandleMessage(context.Background(), "shared", fmt.Sprintf("concurrent %d", n))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Both user turns and both assistant turns must survive
	stored := st.stored("shared")
	require.Len(t, stored, 4)
	contents := []string{stored[0].Content, stored[1].Content, stored[2].Content, stored[3].Content}
	assert.Contains(t, contents, "concurrent 0")
	assert.Contains(t, contents, "concurrent 1")
}

func TestHandleMessage_ConcurrentDistinctSessions(t *testing.T) {
	st := newFakeStore()
	gen := &fakeGenerator{result: generate.TextResult("ok")}
	mgr := newTestManager(t, st, gen, Options{})

	const sessions = 8
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("session-%d", n)
			for j := 0; j < 5; j++ {
				_, _, err := mgr.HandleMessage(context.Background(), sessionID, "msg")
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < sessions; i++ {
		assert.Len(t, st.stored(fmt.Sprintf("session-%d", i)), 10)
	}
}

func TestHandleMessage_NormalizesStructuredReply(t *testing.T) {
	st := newFakeStore()
	gen := &fakeGenerator{
		result: generate.ParseResult([]byte(`{"response":"structured reply"}`)),
	}
	mgr := newTestManager(t, st, gen, Options{})

	reply, _, err := mgr.HandleMessage(context.Background(), "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "structured reply", reply)

	stored := st.stored("s1")
	assert.Equal(t, "structured reply", stored[1].Content)
}

func TestHandleMessage_MaxStoredTurnsTruncates(t *testing.T) {
	st := newFakeStore()
	gen := &fakeGenerator{result: generate.TextResult("ok")}
	mgr := newTestManager(t, st, gen, Options{MaxStoredTurns: 10})

	for i := 0; i < 9; i++ {
		_, _, err := mgr.HandleMessage(context.Background(), "s1", fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	stored := st.stored("s1")
	require.Len(t, stored, 10)
	assert.Equal(t, "message 4", stored[0].Content)
}
