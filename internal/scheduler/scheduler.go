package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hamed0406/poolwatch/internal/logging"
)

type Scheduler struct {
	Logger     *zap.Logger
	Runner     *Runner
	Spec       string         // standard 5-field cron expression or @descriptor
	Location   *time.Location // schedule is evaluated in this zone
	RunOnStart bool
}

// Run registers the cycle on the schedule and blocks until ctx is cancelled
// and any scheduled cycle has returned.
func (s *Scheduler) Run(ctx context.Context) error {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	cl := logging.NewCronLogger(s.Logger)
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.Spec, func() { _, _ = s.Runner.TryRun(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", s.Spec, err)
	}

	s.Logger.Info("scheduler_started", zap.String("spec", s.Spec), zap.String("tz", loc.String()))
	var initial sync.WaitGroup
	if s.RunOnStart {
		initial.Add(1)
		go func() {
			defer initial.Done()
			_, _ = s.Runner.TryRun(ctx)
		}()
	}
	c.Start()

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	initial.Wait()

	s.Logger.Info("scheduler_stopped")
	return nil
}
