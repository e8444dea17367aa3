// Package schedule runs named tasks on fixed intervals and drains them on shutdown.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is one unit of periodic work. Runs of the same task never overlap.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	tasks []Task
	// grace bounds how long in-flight runs may continue after the scheduler is cancelled.
	grace time.Duration
	log   *slog.Logger
}

func NewScheduler(grace time.Duration, log *slog.Logger, tasks ...Task) *Scheduler {
	return &Scheduler{
		tasks: tasks,
		grace: grace,
		log:   log.With("layer", "schedule", "component", "scheduler"),
	}
}

// Start runs every task immediately and then on its interval until ctx is cancelled. It returns
// once all in-flight runs have finished or the grace period has passed, whichever comes first.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, t := range s.tasks {
		if t.Interval <= 0 {
			return fmt.Errorf("task %s: interval must be positive, got %s", t.Name, t.Interval)
		}
	}

	// runs are detached from ctx so an attempt in flight at shutdown can finish its bookkeeping
	runCtx, cancelRuns := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRuns()

	var wg sync.WaitGroup
	for _, t := range s.tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, runCtx, t)
		}()
	}

	<-ctx.Done()
	s.log.Info("Scheduler stopping, draining in-flight runs", slog.Duration("grace", s.grace))

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case <-drained:
		s.log.Info("Scheduler drained")
	case <-timer.C:
		s.log.Warn("Grace period elapsed, cancelling in-flight runs")
		cancelRuns()
		<-drained
	}
	return nil
}

func (s *Scheduler) loop(ctx, runCtx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		s.runOnce(runCtx, t)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		// a tick and cancellation can be ready together
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t Task) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("Scheduled task panicked", slog.String("task", t.Name), slog.Any("panic", p))
		}
	}()
	if err := t.Run(ctx); err != nil {
		s.log.ErrorContext(ctx, "Scheduled task failed", slog.String("task", t.Name), slog.Any("error", err))
		return
	}
	s.log.DebugContext(ctx, "Scheduled task finished", slog.String("task", t.Name), slog.Duration("took", time.Since(start)))
}
