package collector

import (
	"context"
	"errors"
	"time"

	"mcnetwork/app/internal/logging"
	"mcnetwork/app/internal/models"
)

// Runner is anything that performs a collection pass
type Runner interface {
	Run(ctx context.Context) (models.RunResult, error)
}

// Scheduler runs collection on a fixed interval. It implements
// suture.Service: Serve blocks until ctx is cancelled.
type Scheduler struct {
	runner   Runner
	interval time.Duration
}

// NewScheduler returns a scheduler that runs immediately and then every interval
func NewScheduler(r Runner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{runner: r, interval: interval}
}

// Serve implements suture.Service
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", s.interval).Msg("collection scheduler started")

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.runner.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrRunInProgress):
		logging.Warn().Msg("skipping scheduled collection: previous run still in progress")
	case ctx.Err() != nil:
	default:
		logging.Error().Err(err).Msg("scheduled collection failed")
	}
}

// String names the service in supervisor logs
func (s *Scheduler) String() string {
	return "collection-scheduler"
}
