package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/meinhoongagan/clinic-booking/config"
	"github.com/meinhoongagan/clinic-booking/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSweeper struct {
	calls int
	err   error
}

func (f *fakeSweeper) SweepExpired(ctx context.Context) (int, error) {
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("no deadline")
	}
	return 2, f.err
}

type fakeWorker struct {
	limit int64
}

func (f *fakeWorker) Work(_ context.Context, _ *jobs.Dispatcher, limit int64) (int, error) {
	f.limit = limit
	return 1, nil
}

func TestStartRejectsBadSchedules(t *testing.T) {
	log := zaptest.NewLogger(t)

	_, err := Start(&config.Config{SweepSchedule: "whenever", WorkerSchedule: "@every 1s"}, &fakeSweeper{}, &fakeWorker{}, jobs.NewDispatcher(log), log)
	assert.Error(t, err)

	_, err = Start(&config.Config{SweepSchedule: "@every 1m", WorkerSchedule: "* *"}, &fakeSweeper{}, &fakeWorker{}, jobs.NewDispatcher(log), log)
	assert.Error(t, err)
}

func TestStartSchedulesBothJobs(t *testing.T) {
	log := zaptest.NewLogger(t)
	c, err := Start(&config.Config{SweepSchedule: "@every 1h", WorkerSchedule: "@every 1h"}, &fakeSweeper{}, &fakeWorker{}, jobs.NewDispatcher(log), log)
	require.NoError(t, err)
	defer c.Stop()
	assert.Len(t, c.Entries(), 2)
}

func TestRunFuncs(t *testing.T) {
	log := zaptest.NewLogger(t)

	sweeper := &fakeSweeper{}
	sweepExpired(sweeper, log)()
	sweeper.err = errors.New("db down")
	sweepExpired(sweeper, log)()
	assert.Equal(t, 2, sweeper.calls)

	worker := &fakeWorker{}
	drainQueue(worker, jobs.NewDispatcher(log), log)()
	assert.Equal(t, int64(workerBatch), worker.limit)
}
