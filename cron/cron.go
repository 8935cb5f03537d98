// Package cron runs the periodic maintenance of the booking core: expiring
// stale pre-confirmations and draining the job queue.
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/meinhoongagan/clinic-booking/config"
	"github.com/meinhoongagan/clinic-booking/jobs"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	workerBatch = 100
	runTimeout  = 30 * time.Second
)

type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

type Worker interface {
	Work(ctx context.Context, d *jobs.Dispatcher, limit int64) (int, error)
}

// Start schedules the sweep and the worker on the configured schedules and
// starts the scheduler. Stop the returned cron to shut it down.
func Start(cfg *config.Config, sweeper Sweeper, worker Worker, d *jobs.Dispatcher, log *zap.Logger) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(cfg.SweepSchedule, sweepExpired(sweeper, log)); err != nil {
		return nil, fmt.Errorf("schedule expiration sweep: %w", err)
	}
	if worker != nil {
		if _, err := c.AddFunc(cfg.WorkerSchedule, drainQueue(worker, d, log)); err != nil {
			return nil, fmt.Errorf("schedule job worker: %w", err)
		}
	}
	c.Start()
	log.Info("cron scheduler started",
		zap.String("sweep", cfg.SweepSchedule),
		zap.String("worker", cfg.WorkerSchedule),
	)
	return c, nil
}

func sweepExpired(sweeper Sweeper, log *zap.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		n, err := sweeper.SweepExpired(ctx)
		if err != nil {
			log.Error("expiration sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			log.Info("expiration sweep finished", zap.Int("cancelled", n))
		}
	}
}

func drainQueue(worker Worker, d *jobs.Dispatcher, log *zap.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		n, err := worker.Work(ctx, d, workerBatch)
		if err != nil {
			log.Error("job worker failed", zap.Error(err))
			return
		}
		if n > 0 {
			log.Debug("jobs processed", zap.Int("count", n))
		}
	}
}
