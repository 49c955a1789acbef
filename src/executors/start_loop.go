package executors

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	logger "github.com/sirupsen/logrus"

	"insiderbot/src/strategy"
)

// CycleRunner is the part of the live trader the loop drives.
type CycleRunner interface {
	RunCycle(ctx context.Context, now time.Time) strategy.CycleResult
}

// StartLoop runs trading cycles on the configured cron schedule until ctx is
// cancelled. A cycle still running when the next one is due is skipped.
func StartLoop(ctx context.Context, runner CycleRunner, config Config) error {
	loc := time.Local
	if config.Timezone != "" {
		l, err := time.LoadLocation(config.Timezone)
		if err != nil {
			return fmt.Errorf("load timezone %q: %w", config.Timezone, err)
		}
		loc = l
	}

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(config.Schedule, func() { runCycle(ctx, runner) }); err != nil {
		return fmt.Errorf("register trading cycle %q: %w", config.Schedule, err)
	}

	if config.RunOnStart {
		runCycle(ctx, runner)
	}

	c.Start()
	logger.WithField("schedule", config.Schedule).Info("trading loop started")

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	logger.Info("loop stopped")
	return nil
}

func runCycle(ctx context.Context, runner CycleRunner) {
	if ctx.Err() != nil {
		return
	}
	logger.Info("loop tick")

	res := runner.RunCycle(ctx, time.Now())
	for _, err := range res.Errors {
		logger.WithError(err).Warn("trading cycle error")
	}
}
