package task

import (
	"context"
	"errors"
	"fmt"

	"postflow/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// ErrDuplicate is returned when a unique task is already queued.
var ErrDuplicate = errors.New("task already queued")

// Enqueuer is the producer side of the queue. Services depend on it instead
// of *asynq.Client so tests can record tasks in memory.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type asynqEnqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) Enqueuer {
	return &asynqEnqueuer{client: client}
}

func (e *asynqEnqueuer) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := e.client.EnqueueContext(ctx, task, opts...)
	switch {
	case errors.Is(err, asynq.ErrDuplicateTask), errors.Is(err, asynq.ErrTaskIDConflict):
		return nil, ErrDuplicate
	case err != nil:
		return nil, fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}

	logger.FromContext(ctx).Debug("task queued",
		zap.String("task_type", info.Type),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return info, nil
}
