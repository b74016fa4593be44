// Package scheduler drives periodic pipeline runs from a cron expression.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"TweetDigest/internal/ports"
)

// CronScheduler runs the job on a standard five-field cron expression in
// the configured location.
type CronScheduler struct {
	spec string
	loc  *time.Location
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler from expression and location.
func NewCronScheduler(spec string, loc *time.Location) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &CronScheduler{spec: spec, loc: loc}
}

// Start registers the job and begins the cron loop. Runs are sequential:
// cron skips overlap only if the job returns before the next tick, which
// matches the single-instance precondition of the pipeline.
func (c *CronScheduler) Start(_ context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}
	if c.cron != nil {
		return nil
	}

	runner := cron.New(cron.WithLocation(c.loc))
	if _, err := runner.AddFunc(c.spec, func() {
		job(time.Now().In(c.loc))
	}); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", c.spec, err)
	}

	c.cron = runner
	c.cron.Start()
	return nil
}

// Stop halts the cron loop, waiting for a running job up to ctx's deadline.
func (c *CronScheduler) Stop(ctx context.Context) error {
	if c.cron == nil {
		return nil
	}

	done := c.cron.Stop()
	c.cron = nil

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
