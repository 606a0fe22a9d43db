// Package scheduler runs the engine's daily jobs: selection generation for
// every active user and retention cleanup.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oggyb/muzz-matching/internal/domain"
)

// Task is one scheduled unit of work.
type Task func(ctx context.Context) error

type Scheduler struct {
	clock domain.Clock
	loc   *time.Location
	log   *slog.Logger
	after func(time.Duration) <-chan time.Time

	wg sync.WaitGroup
}

func New(clock domain.Clock, loc *time.Location, log *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		clock: clock,
		loc:   loc,
		log:   log.With("component", "scheduler"),
		after: time.After,
	}
}

// Daily runs task every day at hour:minute in the scheduler's location until
// ctx is cancelled. Task errors are logged and do not stop the loop.
func (s *Scheduler) Daily(ctx context.Context, name string, hour, minute int, task Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runDaily(ctx, name, hour, minute, task)
	}()
}

// Wait blocks until every loop started with Daily has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) runDaily(ctx context.Context, name string, hour, minute int, task Task) {
	log := s.log.With("job", name)
	for {
		now := s.clock.Now().In(s.loc)
		next := NextRun(now, hour, minute)
		log.Debug("next run scheduled", "at", next)

		select {
		case <-s.after(next.Sub(now)):
			started := time.Now()
			if err := task(ctx); err != nil {
				log.Error("scheduled job failed", "err", err, "duration", time.Since(started))
				continue
			}
			log.Info("scheduled job done", "duration", time.Since(started))
		case <-ctx.Done():
			return
		}
	}
}

// NextRun returns the first hour:minute strictly after now, in now's location.
func NextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
