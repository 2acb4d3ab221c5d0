package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"postflow/pkg/logger"
	"postflow/pkg/task"
	"postflow/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Event names emitted on state changes. Downstream inbox and notification
// services subscribe to the matching asynq task types.
const (
	PostStatusChanged       = "post.status_changed"
	PostPublished           = "post.published"
	PostFailed              = "post.failed"
	TargetFailed            = "target.failed"
	CredentialConnected     = "credential.connected"
	CredentialDisconnected  = "credential.disconnected"
	CredentialRefreshFailed = "credential.refresh_failed"
	WebhookReceived         = "webhook.received"
)

var Module = fx.Module("events", fx.Provide(NewEmitter))

type Event struct {
	Name        string         `json:"name"`
	WorkspaceID string         `json:"workspace_id,omitempty"`
	SubjectID   string         `json:"subject_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

type taskEmitter struct {
	enq task.Enqueuer
}

func NewEmitter(enq task.Enqueuer) Emitter {
	return &taskEmitter{enq: enq}
}

// NewTask wraps e in an asynq task of type "event:{name}".
func NewTask(e Event) (*asynq.Task, error) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.EventPrefix+e.Name, payload,
		asynq.Queue(task.QueueLow),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}

func (m *taskEmitter) Emit(ctx context.Context, e Event) error {
	t, err := NewTask(e)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.Name, err)
	}
	if _, err := m.enq.Enqueue(ctx, t); err != nil {
		return fmt.Errorf("emit %s: %w", e.Name, err)
	}
	return nil
}

// Publish emits e and only logs failures. State has already been committed
// when events go out, so a lost event must not undo the change.
func Publish(ctx context.Context, emitter Emitter, e Event) {
	if emitter == nil {
		return
	}
	if err := emitter.Emit(ctx, e); err != nil {
		logger.FromContext(ctx).Warn("failed to emit event",
			zap.String("event", e.Name),
			zap.String("subject_id", e.SubjectID),
			zap.Error(err),
		)
	}
}

// Decode reads an event back from its task payload.
func Decode(t *asynq.Task) (Event, error) {
	var e Event
	if err := json.Unmarshal(t.Payload(), &e); err != nil {
		return Event{}, fmt.Errorf("decode event %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return e, nil
}

// HandleEventTask is the worker side sink for domain events. Delivery to
// inbox and notification services happens outside this process; the worker
// records the event so it shows up in the log pipeline.
func HandleEventTask(ctx context.Context, t *asynq.Task) error {
	e, err := Decode(t)
	if err != nil {
		return err
	}

	logger.FromContext(ctx).Info("event",
		zap.String("event", e.Name),
		zap.String("workspace_id", e.WorkspaceID),
		zap.String("subject_id", e.SubjectID),
		zap.Time("occurred_at", e.OccurredAt),
		zap.Any("data", e.Data),
	)
	return nil
}
