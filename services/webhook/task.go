package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"postflow/pkg/events"
	"postflow/pkg/logger"
	"postflow/pkg/task"
	"postflow/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Delivery is a verified webhook body queued for the worker. Body keeps the
// exact bytes that were signed.
type Delivery struct {
	Platform   string    `json:"platform"`
	Body       []byte    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

func NewDeliveryTask(d Delivery) (*asynq.Task, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.WebhookEvent, payload,
		asynq.Queue(task.QueueDefault),
		asynq.MaxRetry(10),
		asynq.Timeout(30*time.Second),
	), nil
}

// Worker turns queued deliveries into webhook.received events for the inbox
// and notification services.
type Worker struct {
	emitter events.Emitter
}

func NewWorker(emitter events.Emitter) *Worker {
	return &Worker{emitter: emitter}
}

func (w *Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var d Delivery
	if err := json.Unmarshal(t.Payload(), &d); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	data := map[string]any{"platform": d.Platform, "received_at": d.ReceivedAt}
	var body any
	if err := json.Unmarshal(d.Body, &body); err == nil {
		data["payload"] = body
	} else {
		data["raw"] = string(d.Body)
	}

	if err := w.emitter.Emit(ctx, events.Event{
		Name:       events.WebhookReceived,
		SubjectID:  d.Platform,
		Data:       data,
		OccurredAt: d.ReceivedAt,
	}); err != nil {
		return err
	}

	logger.FromContext(ctx).Debug("webhook delivery forwarded",
		zap.String("platform", d.Platform),
		zap.Int("bytes", len(d.Body)),
	)
	return nil
}
