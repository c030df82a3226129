package infra

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler runs a task closure on a fixed interval. It is an explicit,
// constructible component: instantiate one per background job at startup and
// own it from the process context. The task runs once immediately on Start,
// then once per tick. A cycle that outlives its interval is never overlapped
// by the next one; late ticks are skipped instead.
type Scheduler struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context)

	busy   atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler for the given task.
func NewScheduler(name string, interval time.Duration, task func(ctx context.Context)) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		task:     task,
	}
}

// Start begins the periodic loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.runOnce(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("Scheduler stopped", slog.String("name", s.name))
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		slog.Warn("Scheduler cycle still running, skipping tick", slog.String("name", s.name))
		return
	}
	defer s.busy.Store(false)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Scheduler task panic recovered",
				slog.String("name", s.name), slog.Any("panic", r))
		}
	}()

	start := time.Now()
	s.task(ctx)

	if elapsed := time.Since(start); elapsed > s.interval {
		slog.Warn("Scheduler cycle exceeded its interval",
			slog.String("name", s.name),
			slog.Duration("elapsed", elapsed),
			slog.Duration("interval", s.interval))
	}
}

// Stop cancels the loop and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
}
