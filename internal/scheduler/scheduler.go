// Package scheduler runs the recurring collection pass and the weekly
// identifier refresh.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// PassRunner runs one full collection pass.
type PassRunner interface {
	Run(ctx context.Context) error
}

// CIKRefresher re-syncs company identifiers from the regulator.
type CIKRefresher interface {
	RefreshCIKs(ctx context.Context) (int, error)
}

// Config sets the schedule.
type Config struct {
	// DailyHour and DailyMinute fix the local time of the daily pass.
	DailyHour   int
	DailyMinute int
}

// Scheduler owns the cron instance. Jobs share one background context
// that is canceled on Stop.
type Scheduler struct {
	cron      *cron.Cron
	runner    PassRunner
	refresher CIKRefresher
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New registers the daily collection pass and the Sunday identifier
// refresh.
func New(cfg Config, runner PassRunner, refresher CIKRefresher, logger *zap.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:      cron.New(),
		runner:    runner,
		refresher: refresher,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	daily := fmt.Sprintf("%d %d * * *", cfg.DailyMinute, cfg.DailyHour)
	if _, err := s.cron.AddFunc(daily, s.runPass); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule daily pass: %w", err)
	}

	weekly := fmt.Sprintf("%d %d * * 0", cfg.DailyMinute, cfg.DailyHour)
	if _, err := s.cron.AddFunc(weekly, s.refreshCIKs); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule cik refresh: %w", err)
	}

	return s, nil
}

// Start launches the cron loop in the background.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started")
	s.cron.Start()
}

// Stop cancels running jobs and waits for the cron loop to drain.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runPass() {
	s.logger.Info("scheduled collection pass starting")
	if err := s.runner.Run(s.ctx); err != nil {
		s.logger.Error("scheduled collection pass failed", zap.Error(err))
	}
}

func (s *Scheduler) refreshCIKs() {
	updated, err := s.refresher.RefreshCIKs(s.ctx)
	if err != nil {
		s.logger.Error("scheduled cik refresh failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled cik refresh complete", zap.Int("updated", updated))
}
