// Package scheduler runs the periodic account jobs: lot raising and session
// refresh.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/NightStrang6r/FunPayVertex/internal/config"
	"github.com/NightStrang6r/FunPayVertex/internal/funpay"
)

const jobTimeout = 2 * time.Minute

// Scheduler handles scheduled tasks like lot raising and session refresh
type Scheduler struct {
	client   *funpay.Client
	config   *config.Config
	cron     *cron.Cron
	logger   zerolog.Logger
	timezone *time.Location

	mu        sync.Mutex
	cooldowns map[int64]time.Time // category id -> earliest next raise
}

// NewScheduler creates a new scheduler
func NewScheduler(client *funpay.Client, cfg *config.Config, logger zerolog.Logger) (*Scheduler, error) {
	// Load timezone
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", cfg.Timezone, err)
	}

	return &Scheduler{
		client:    client,
		config:    cfg,
		cron:      cron.New(cron.WithLocation(loc)),
		logger:    logger.With().Str("component", "scheduler").Logger(),
		timezone:  loc,
		cooldowns: map[int64]time.Time{},
	}, nil
}

// Start starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info().Msg("Starting scheduler...")

	if s.config.AutoRaise {
		spec := fmt.Sprintf("@every %dm", s.config.RaiseInterval)
		if _, err := s.cron.AddFunc(spec, func() { s.runRaise(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule raise job: %w", err)
		}
		s.logger.Info().Str("schedule", spec).Msg("Scheduled lot raising")
	}

	// FunPay rotates the session cookie; relogin hourly keeps it fresh
	if _, err := s.cron.AddFunc("@every 1h", func() { s.runSessionRefresh(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule session refresh: %w", err)
	}

	s.cron.Start()
	s.logger.Info().Msg("Scheduler started and running")

	// Wait for context cancellation
	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info().Msg("Scheduler stopped")
	return ctx.Err()
}

// runRaise attempts to raise the lots of every category not on cooldown.
func (s *Scheduler) runRaise(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	now := time.Now()
	for _, cat := range s.client.Categories() {
		s.mu.Lock()
		until, onCooldown := s.cooldowns[cat.ID]
		s.mu.Unlock()
		if onCooldown && now.Before(until) {
			continue
		}

		err := s.client.RaiseLots(ctx, cat.ID, cat.Subcategories)
		if err == nil {
			s.logger.Info().
				Int64("category_id", cat.ID).
				Str("category", cat.Name).
				Msg("Lots raised")
			continue
		}

		var raiseErr *funpay.RaiseError
		if errors.As(err, &raiseErr) && raiseErr.WaitTime > 0 {
			// FunPay told us when to come back; honor it
			s.mu.Lock()
			s.cooldowns[cat.ID] = now.Add(time.Duration(raiseErr.WaitTime) * time.Second)
			s.mu.Unlock()
			s.logger.Debug().
				Int64("category_id", cat.ID).
				Int("wait_seconds", raiseErr.WaitTime).
				Msg("Category on raise cooldown")
			continue
		}

		s.logger.Warn().
			Err(err).
			Int64("category_id", cat.ID).
			Str("category", cat.Name).
			Msg("Failed to raise lots")
	}
}

// runSessionRefresh re-runs the login to pick up a fresh session cookie.
func (s *Scheduler) runSessionRefresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	if err := s.client.Login(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Session refresh failed")
		return
	}
	s.logger.Info().Msg("Session refreshed")
}
