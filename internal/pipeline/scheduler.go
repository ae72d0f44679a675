package pipeline

import (
	"context"
	"fmt"

	"github.com/robfig/cron"
	"github.com/rs/zerolog"
)

// defaultSchedule fires the daily cycle at 07:00 local time.
const defaultSchedule = "0 0 7 * * *"

// Scheduler triggers the daily cycle in the orchestrator's timezone.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewScheduler wires the cron trigger to the orchestrator. The schedule
// uses six-field cron syntax with a leading seconds field.
func NewScheduler(orch *Orchestrator, schedule string, logger zerolog.Logger) (*Scheduler, error) {
	if schedule == "" {
		schedule = defaultSchedule
	}

	c := cron.NewWithLocation(orch.location)
	err := c.AddFunc(schedule, func() {
		result := orch.AcceptCycle(context.Background(), false)
		logger.Info().Str("result", string(result)).Msg("scheduled cycle trigger")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	return &Scheduler{
		cron:   c,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Start begins firing triggers.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("scheduler started")
}

// Stop halts future triggers. A cycle already in flight keeps running.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info().Msg("scheduler stopped")
}
