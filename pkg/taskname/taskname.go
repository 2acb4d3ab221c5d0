package taskname

const (
	// Publication tasks
	PostPublish = "post:publish"

	// Webhook tasks
	WebhookEvent = "webhook:event"

	// Domain events fan out under this prefix, e.g. "event:post.status_changed".
	EventPrefix = "event:"
)
