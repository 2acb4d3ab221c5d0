package post

import (
	"encoding/json"
	"fmt"

	"postflow/pkg/task"
	"postflow/pkg/taskname"

	"github.com/hibiken/asynq"
)

// PublishPayload is the body of a post:publish task.
type PublishPayload struct {
	PostID string `json:"post_id"`
	Reason string `json:"reason,omitempty"`
}

// NewPublishTask builds the task that runs one orchestrator pass for postID.
// Target retries are driven by later passes, so the task itself only retries
// on infrastructure errors.
func NewPublishTask(postID, reason string) (*asynq.Task, error) {
	payload, err := json.Marshal(PublishPayload{PostID: postID, Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.PostPublish, payload,
		asynq.Queue(task.QueueCritical),
		asynq.MaxRetry(3),
	), nil
}

func DecodePublishTask(t *asynq.Task) (PublishPayload, error) {
	var p PublishPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if p.PostID == "" {
		return p, fmt.Errorf("decode %s: missing post_id: %w", t.Type(), asynq.SkipRetry)
	}
	return p, nil
}
