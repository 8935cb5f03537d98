// Package jobs defines the background work the booking core hands off after
// a transaction commits, and the handlers that carry it out.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	Reminder       = "appointment.reminder"
	Notification   = "appointment.notification"
	SessionSummary = "appointment.session_summary"
)

// Queue accepts jobs for later execution. Enqueue never runs the job inline.
type Queue interface {
	Enqueue(ctx context.Context, name string, payload map[string]interface{}, delay time.Duration) error
}

// Job is one unit of queued work.
type Job struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Payload  map[string]interface{} `json:"payload"`
	RunAt    time.Time              `json:"run_at"`
	Attempts int                    `json:"attempts"`
}

func NewJob(name string, payload map[string]interface{}, runAt time.Time) Job {
	return Job{ID: uuid.NewString(), Name: name, Payload: payload, RunAt: runAt.UTC()}
}

// Uint reads a numeric payload field. JSON round trips turn numbers into
// float64.
func (j Job) Uint(key string) (uint, error) {
	switch v := j.Payload[key].(type) {
	case uint:
		return v, nil
	case int:
		return uint(v), nil
	case int64:
		return uint(v), nil
	case float64:
		return uint(v), nil
	}
	return 0, fmt.Errorf("job %s: payload field %q missing or not a number", j.Name, key)
}

func (j Job) String(key string) string {
	s, _ := j.Payload[key].(string)
	return s
}

type Handler func(ctx context.Context, job Job) error

// Dispatcher routes jobs to their handler by name.
type Dispatcher struct {
	handlers map[string]Handler
	log      *zap.Logger
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{handlers: map[string]Handler{}, log: log}
}

func (d *Dispatcher) Register(name string, h Handler) {
	d.handlers[name] = h
}

func (d *Dispatcher) Dispatch(ctx context.Context, job Job) error {
	h, ok := d.handlers[job.Name]
	if !ok {
		return fmt.Errorf("no handler registered for job %q", job.Name)
	}
	if err := h(ctx, job); err != nil {
		d.log.Warn("job failed",
			zap.String("job_id", job.ID),
			zap.String("job", job.Name),
			zap.Int("attempts", job.Attempts),
			zap.Error(err),
		)
		return err
	}
	d.log.Debug("job done", zap.String("job_id", job.ID), zap.String("job", job.Name))
	return nil
}
