package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/meinhoongagan/clinic-booking/jobs"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	delayedKey = "clinic:jobs:delayed"
	deadKey    = "clinic:jobs:dead"

	defaultMaxAttempts = 5
	retryBackoff       = 30 * time.Second
)

// Connect opens a client from a redis:// URL and checks it answers.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Queue is a delayed job queue on a Redis sorted set scored by run time.
// Jobs that keep failing end up in a dead letter list.
type Queue struct {
	client      *goredis.Client
	log         *zap.Logger
	maxAttempts int
	now         func() time.Time
}

func NewQueue(client *goredis.Client, log *zap.Logger) *Queue {
	return &Queue{client: client, log: log, maxAttempts: defaultMaxAttempts, now: time.Now}
}

var _ jobs.Queue = (*Queue)(nil)

func (q *Queue) Enqueue(ctx context.Context, name string, payload map[string]interface{}, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	return q.push(ctx, jobs.NewJob(name, payload, q.now().Add(delay)))
}

func (q *Queue) push(ctx context.Context, job jobs.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, delayedKey, goredis.Z{
		Score:  float64(job.RunAt.Unix()),
		Member: data,
	}).Err()
}

// Due claims up to limit jobs whose run time has passed. A job is claimed by
// whoever removes it from the set, so concurrent workers never share one.
func (q *Queue) Due(ctx context.Context, limit int64) ([]jobs.Job, error) {
	members, err := q.client.ZRangeByScore(ctx, delayedKey, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.now().Unix(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, err
	}

	var due []jobs.Job
	for _, m := range members {
		removed, err := q.client.ZRem(ctx, delayedKey, m).Result()
		if err != nil {
			return due, err
		}
		if removed == 0 {
			continue
		}
		var job jobs.Job
		if err := json.Unmarshal([]byte(m), &job); err != nil {
			q.log.Error("dropping undecodable job", zap.String("member", m), zap.Error(err))
			continue
		}
		due = append(due, job)
	}
	return due, nil
}

// Work runs the due jobs through d. Failed jobs are retried with a growing
// delay and moved to the dead letter list after the last attempt.
func (q *Queue) Work(ctx context.Context, d *jobs.Dispatcher, limit int64) (int, error) {
	due, err := q.Due(ctx, limit)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, job := range due {
		job.Attempts++
		if err := d.Dispatch(ctx, job); err != nil {
			if job.Attempts >= q.maxAttempts {
				data, _ := json.Marshal(job)
				if err := q.client.LPush(ctx, deadKey, data).Err(); err != nil {
					return done, err
				}
				q.log.Error("job moved to dead letter list", zap.String("job_id", job.ID), zap.String("job", job.Name))
				continue
			}
			job.RunAt = q.now().Add(time.Duration(job.Attempts) * retryBackoff)
			if err := q.push(ctx, job); err != nil {
				return done, err
			}
			continue
		}
		done++
	}
	return done, nil
}

// Pending counts jobs waiting in the delayed set.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, delayedKey).Result()
}

// Dead returns the jobs that exhausted their attempts.
func (q *Queue) Dead(ctx context.Context) ([]jobs.Job, error) {
	members, err := q.client.LRange(ctx, deadKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]jobs.Job, 0, len(members))
	for _, m := range members {
		var job jobs.Job
		if err := json.Unmarshal([]byte(m), &job); err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}
