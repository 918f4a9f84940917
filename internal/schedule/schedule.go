// Package schedule fires the daily streak run. Ticks go through the same
// single-flight trigger as the API, so a scheduled run never overlaps a
// manual one; a tick arriving while a run is in flight is skipped, not
// queued.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"streakd/internal/runner"
)

// Firer starts a run, rejecting overlap with runner.ErrRunInFlight.
type Firer interface {
	Fire(ctx context.Context, opts runner.Options) error
}

// Scheduler owns the cron loop for the daily run.
type Scheduler struct {
	log     *zap.Logger
	trigger Firer
	opts    runner.Options
	cron    *cron.Cron

	// OnOutcome observes each tick's acceptance, for metrics.
	OnOutcome func(accepted bool)
}

// New builds a scheduler that fires the given run options once a day at
// clock, a 24-hour "HH:MM" string.
func New(log *zap.Logger, trigger Firer, clock string, opts runner.Options) (*Scheduler, error) {
	spec, err := CronSpec(clock)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{log: log, trigger: trigger, opts: opts, cron: cron.New()}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", clock, err)
	}
	return s, nil
}

// Run starts the cron loop and blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", zap.String("next", s.nextTick()))
	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return ctx.Err()
}

func (s *Scheduler) tick() {
	err := s.trigger.Fire(context.Background(), s.opts)
	switch {
	case errors.Is(err, runner.ErrRunInFlight):
		s.log.Warn("scheduled run skipped, another run is in progress")
	case err != nil:
		s.log.Error("scheduled run failed to start", zap.Error(err))
	default:
		s.log.Info("scheduled run started", zap.String("next", s.nextTick()))
	}
	if s.OnOutcome != nil {
		s.OnOutcome(err == nil)
	}
}

func (s *Scheduler) nextTick() string {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return "never"
	}
	return entries[0].Next.Format("2006-01-02 15:04:05")
}

// CronSpec converts a 24-hour "HH:MM" clock into a daily cron expression.
func CronSpec(clock string) (string, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("schedule time %q: want HH:MM", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("schedule time %q: bad hour", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("schedule time %q: bad minute", clock)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
