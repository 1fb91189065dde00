package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/edgechat/internal/metrics"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	// DefaultRetentionAge is how long an idle session is kept.
	DefaultRetentionAge = 7 * 24 * time.Hour

	// DefaultSweepSchedule runs the sweep daily at 03:00.
	DefaultSweepSchedule = "0 3 * * *"
)

// Sweeper deletes sessions that have been idle longer than the retention
// age. Stored transcripts otherwise grow without bound, matching the
// observed behavior of keeping full history while only the context window
// is ever read.
type Sweeper struct {
	store    Store
	maxAge   time.Duration
	schedule cron.Schedule
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	stopCh   chan struct{}
	running  bool
}

// NewSweeper creates a retention sweeper. scheduleExpr is a standard
// five-field cron expression. metrics may be nil.
func NewSweeper(store Store, maxAge time.Duration, scheduleExpr string, logger zerolog.Logger, m *metrics.Metrics) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if maxAge <= 0 {
		maxAge = DefaultRetentionAge
	}
	if scheduleExpr == "" {
		scheduleExpr = DefaultSweepSchedule
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(scheduleExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}

	return &Sweeper{
		store:    store,
		maxAge:   maxAge,
		schedule: schedule,
		logger:   logger,
		metrics:  m,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start runs the sweep loop in the background.
func (s *Sweeper) Start() error {
	if s.running {
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true
	go s.run()

	s.logger.Info().
		Dur("max_age", s.maxAge).
		Msg("Retention sweeper started")

	return nil
}

// Stop stops the sweep loop.
func (s *Sweeper) Stop() error {
	if !s.running {
		return fmt.Errorf("sweeper is not running")
	}
	close(s.stopCh)
	s.running = false

	s.logger.Info().Msg("Retention sweeper stopped")
	return nil
}

func (s *Sweeper) run() {
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-timer.C:
			if _, err := s.SweepNow(context.Background()); err != nil {
				s.logger.Error().Err(err).Msg("Retention sweep failed")
			}
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

// SweepNow deletes idle sessions immediately and returns how many were
// removed.
func (s *Sweeper) SweepNow(ctx context.Context) (int, error) {
	sessions, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	now := time.Now()
	deleted := 0

	for _, sessionID := range sessions {
		info, err := s.store.Stat(ctx, sessionID)
		if err != nil {
			s.logger.Warn().
				Str("session_id", sessionID).
				Err(err).
				Msg("Failed to stat session")
			continue
		}

		age := now.Sub(info.UpdatedAt)
		if age < s.maxAge {
			continue
		}

		if err := s.store.Delete(ctx, sessionID); err != nil {
			s.logger.Error().
				Str("session_id", sessionID).
				Err(err).
				Msg("Failed to delete session")
			continue
		}
		deleted++

		s.logger.Debug().
			Str("session_id", sessionID).
			Dur("age", age).
			Msg("Session deleted")
	}

	if deleted > 0 {
		if s.metrics != nil {
			s.metrics.SessionsPruned.Add(float64(deleted))
		}
		s.logger.Info().
			Int("deleted", deleted).
			Msg("Swept idle sessions")
	}

	return deleted, nil
}

// IsRunning reports whether the sweep loop is active.
func (s *Sweeper) IsRunning() bool {
	return s.running
}
