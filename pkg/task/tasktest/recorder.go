// Package tasktest provides an in-memory task.Enqueuer for tests.
package tasktest

import (
	"context"
	"sync"

	"github.com/hibiken/asynq"
)

type Recorder struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	// Err, when set, is returned by every Enqueue call.
	Err error
}

func (r *Recorder) Enqueue(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return nil, r.Err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Payload: task.Payload()}, nil
}

// Tasks returns the enqueued tasks, optionally filtered by type.
func (r *Recorder) Tasks(types ...string) []*asynq.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(types) == 0 {
		return append([]*asynq.Task(nil), r.tasks...)
	}

	out := make([]*asynq.Task, 0)
	for _, t := range r.tasks {
		for _, want := range types {
			if t.Type() == want {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
