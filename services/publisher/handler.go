package publisher

import (
	"context"
	"errors"
	"fmt"

	"postflow/pkg/errutil"
	"postflow/pkg/logger"
	"postflow/services/post"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Worker consumes post:publish tasks.
type Worker struct {
	orchestrator *Orchestrator
}

func NewWorker(o *Orchestrator) *Worker {
	return &Worker{orchestrator: o}
}

func (w *Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := post.DecodePublishTask(t)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx).With(zap.String("post_id", payload.PostID), zap.String("reason", payload.Reason))

	summary, err := w.orchestrator.Run(ctx, payload.PostID)
	switch {
	case errors.Is(err, ErrPassInProgress):
		log.Debug("pass already running, dropping task")
		return nil
	case errutil.HasStatus(err, errutil.StatusNotFound),
		errutil.HasStatus(err, errutil.StatusInvalidTransition),
		errutil.HasStatus(err, errutil.StatusConflict):
		log.Info("post is not publishable", zap.Error(err))
		return fmt.Errorf("publish %s: %v: %w", payload.PostID, err, asynq.SkipRetry)
	case err != nil:
		return fmt.Errorf("publish %s: %w", payload.PostID, err)
	}

	log.Debug("publish task done",
		zap.String("post_status", string(summary.PostStatus)),
		zap.Bool("settled", summary.Settled),
	)
	return nil
}
