package web

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/harun/edgechat/internal/metrics"
	"github.com/harun/edgechat/pkg/chat"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

//go:embed static/index.html
var indexHTML []byte

// ServerOptions configures the HTTP edge
type ServerOptions struct {
	Host string
	Port int
}

// Server is the HTTP edge: it validates inbound chat requests, forwards
// them to the session router, and serves the static client page.
type Server struct {
	options        ServerOptions
	server         *http.Server
	router         *chat.Router
	metrics        *metrics.Metrics
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a new HTTP edge server. metrics may be nil.
func NewServer(options ServerOptions, router *chat.Router, m *metrics.Metrics, logger zerolog.Logger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 8080
	}
	if options.Host == "" {
		options.Host = "127.0.0.1"
	}

	if router == nil {
		return nil, fmt.Errorf("session router is required")
	}

	return &Server{
		options:   options,
		router:    router,
		metrics:   m,
		logger:    logger,
		startTime: time.Now(),
	}, nil
}

// Start starts the HTTP server and blocks until shutdown
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: s.Handler(),
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting chat server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start chat server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down chat server")

	// Wait for in-flight requests with timeout
	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown chat server: %w", err)
	}

	s.logger.Info().Msg("Chat server stopped")
	return nil
}

// Handler returns the request mux
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// handleIndex serves the client page on the root path only
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" || r.Method != http.MethodGet {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(indexHTML)
}

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Reply   string          `json:"reply"`
	History chat.Transcript `json:"history"`
}

// handleChat handles one chat message
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	if r.Method != http.MethodPost {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	requestID, _ := gonanoid.New()
	logger := s.logger.With().Str("request_id", requestID).Logger()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Debug().Err(err).Msg("Malformed request body")
		s.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		s.trackRequest("bad_request")
		return
	}

	// Reject before any session state is touched
	message := strings.TrimSpace(req.Message)
	if message == "" {
		s.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "empty message"})
		s.trackRequest("bad_request")
		return
	}

	reply, history, err := s.router.Dispatch(r.Context(), req.SessionID, message)
	duration := time.Since(startTime).Milliseconds()

	if err != nil {
		if errors.Is(err, chat.ErrSessionIDRequired) {
			logger.Debug().Msg("Request without session id rejected")
			s.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "session id is required"})
			s.trackRequest("bad_request")
			return
		}

		logger.Error().
			Err(err).
			Str("session_id", req.SessionID).
			Int64("duration", duration).
			Msg("Chat request failed")
		s.sendJSON(w, http.StatusInternalServerError, map[string]string{"error": "request failed"})
		s.trackRequest("error")
		return
	}

	logger.Info().
		Str("session_id", req.SessionID).
		Int("history_turns", len(history)).
		Int64("duration", duration).
		Msg("Chat request completed")

	s.sendJSON(w, http.StatusOK, chatResponse{Reply: reply, History: history})
	s.trackRequest("ok")
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	}

	s.sendJSON(w, http.StatusOK, response)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) trackRequest(status string) {
	if s.metrics != nil {
		s.metrics.ChatRequestsTotal.WithLabelValues(status).Inc()
	}
}
