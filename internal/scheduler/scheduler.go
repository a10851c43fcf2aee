// Package scheduler runs the periodic drain on a cron schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"inquiry_server/core/service/inquiry"
)

// Scheduler owns the cron instance driving the batch path.
type Scheduler struct {
	cron    *cron.Cron
	drainer *inquiry.Drainer
	log     zerolog.Logger
}

// New creates a scheduler around the drainer.
func New(drainer *inquiry.Drainer, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		drainer: drainer,
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the drain job under the cron spec (e.g. "@hourly") and
// starts the cron loop.
func (s *Scheduler) Start(spec string) error {
	if spec == "" {
		spec = "@hourly"
	}

	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		s.log.Info().Msg("scheduled drain starting")

		report, err := s.drainer.Drain(context.Background(), 0)
		if err != nil {
			s.log.Error().Err(err).Msg("scheduled drain failed")
			return
		}

		s.log.Info().
			Int64("fetched", report.Fetched).
			Int64("succeeded", report.Succeeded).
			Int64("failed", report.Failed).
			Dur("elapsed", time.Since(start)).
			Msg("scheduled drain finished")
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("spec", spec).Msg("drain schedule registered")
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}
