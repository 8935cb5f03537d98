package jobs

import (
	"context"
	"sync"
	"time"
)

// Recorder is an in-memory Queue that keeps what was enqueued. Tests use it
// to assert on side effects; Err makes every Enqueue fail.
type Recorder struct {
	mu   sync.Mutex
	jobs []Job
	Err  error
	now  func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

func (r *Recorder) Enqueue(_ context.Context, name string, payload map[string]interface{}, delay time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.jobs = append(r.jobs, NewJob(name, payload, r.now().Add(delay)))
	return nil
}

// Jobs returns a copy of everything enqueued so far.
func (r *Recorder) Jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Job(nil), r.jobs...)
}

// Named returns the enqueued jobs with the given name.
func (r *Recorder) Named(name string) []Job {
	var out []Job
	for _, j := range r.Jobs() {
		if j.Name == name {
			out = append(out, j)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = nil
}
