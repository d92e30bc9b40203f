// Package scheduler runs the periodic background cycle: photo sync
// followed by AI analysis of queued meals.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// SyncRunner runs one photo sync cycle.
type SyncRunner interface {
	RunSyncCycle(ctx context.Context) error
}

// AnalysisRunner drains the queued-meal analysis backlog.
type AnalysisRunner interface {
	ProcessPendingMeals(ctx context.Context) error
}

// Scheduler owns the periodic job. The inFlight flag enforces the
// single-flight contract the sync engine expects from its caller: a tick
// that fires while the previous cycle still runs is skipped, not queued.
type Scheduler struct {
	engine   SyncRunner
	analysis AnalysisRunner
	interval time.Duration
	log      zerolog.Logger

	cron     gocron.Scheduler
	inFlight atomic.Bool
}

func New(
	engine SyncRunner,
	analysis AnalysisRunner,
	interval time.Duration,
	log zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		engine:   engine,
		analysis: analysis,
		interval: interval,
		log:      log,
	}
}

// Start registers the periodic job and begins ticking. The first run
// fires immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = cron.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.RunCycle(ctx) }),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}

	cron.Start()
	s.cron = cron
	s.log.Info().Dur("interval", s.interval).Msg("background cycle scheduled")
	return nil
}

// Stop shuts the scheduler down. A cycle already running finishes.
func (s *Scheduler) Stop() error {
	if s.cron == nil {
		return nil
	}
	return s.cron.Shutdown()
}

// RunCycle executes one sync + analysis pass unless one is already in
// flight, in which case it reports false and does nothing.
func (s *Scheduler) RunCycle(ctx context.Context) bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Debug().Msg("background cycle still running, tick skipped")
		return false
	}
	defer s.inFlight.Store(false)

	if err := s.engine.RunSyncCycle(ctx); err != nil {
		s.log.Error().Err(err).Msg("photo sync cycle failed")
	}
	if err := s.analysis.ProcessPendingMeals(ctx); err != nil {
		s.log.Error().Err(err).Msg("analysis cycle failed")
	}
	return true
}
