package post

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PostStatus string

var (
	StatusDraft      PostStatus = "DRAFT"
	StatusSubmitted  PostStatus = "SUBMITTED"
	StatusApproved   PostStatus = "APPROVED"
	StatusRejected   PostStatus = "REJECTED"
	StatusScheduled  PostStatus = "SCHEDULED"
	StatusPublishing PostStatus = "PUBLISHING"
	StatusPublished  PostStatus = "PUBLISHED"
	StatusFailed     PostStatus = "FAILED"
	StatusCancelled  PostStatus = "CANCELLED"
)

func (s PostStatus) String() string {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected, StatusScheduled,
		StatusPublishing, StatusPublished, StatusFailed, StatusCancelled:
		return string(s)
	default:
		return ""
	}
}

type TargetStatus string

var (
	TargetPending    TargetStatus = "PENDING"
	TargetPublishing TargetStatus = "PUBLISHING"
	TargetPublished  TargetStatus = "PUBLISHED"
	TargetFailed     TargetStatus = "FAILED"
)

func (s TargetStatus) String() string {
	switch s {
	case TargetPending, TargetPublishing, TargetPublished, TargetFailed:
		return string(s)
	default:
		return ""
	}
}

type DecisionType string

var (
	DecisionApproved DecisionType = "APPROVED"
	DecisionRejected DecisionType = "REJECTED"
)

func (d DecisionType) String() string {
	switch d {
	case DecisionApproved, DecisionRejected:
		return string(d)
	default:
		return ""
	}
}

type Post struct {
	ID              string         `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt       time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
	WorkspaceID     string         `gorm:"column:workspace_id;index" json:"workspace_id"`
	AuthorID        string         `gorm:"column:author_id" json:"author_id"`
	Body            string         `gorm:"column:body;type:text" json:"body"`
	Status          PostStatus     `gorm:"column:status;index" json:"status"`
	ScheduledAt     *time.Time     `gorm:"column:scheduled_at;index" json:"scheduled_at,omitempty"`
	Timezone        string         `gorm:"column:timezone" json:"timezone,omitempty"`
	SubmittedAt     *time.Time     `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	PublishedAt     *time.Time     `gorm:"column:published_at" json:"published_at,omitempty"`
	RejectionReason *string        `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`
	Targets         []PostTarget   `gorm:"foreignKey:PostID" json:"targets,omitempty"`
}

// PostTarget is one platform specific publish attempt of a Post. Retries
// reuse the row.
type PostTarget struct {
	ID              string         `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt       time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at" json:"updated_at"`
	PostID          string         `gorm:"column:post_id;uniqueIndex:idx_post_targets_post_credential" json:"post_id"`
	CredentialID    string         `gorm:"column:credential_id;uniqueIndex:idx_post_targets_post_credential" json:"credential_id"`
	Platform        string         `gorm:"column:platform" json:"platform"`
	ContentOverride *string        `gorm:"column:content_override;type:text" json:"content_override,omitempty"`
	Status          TargetStatus   `gorm:"column:status;index" json:"status"`
	ExternalPostID  *string        `gorm:"column:external_post_id" json:"external_post_id,omitempty"`
	ExternalURL     *string        `gorm:"column:external_url" json:"external_url,omitempty"`
	ErrorCode       *string        `gorm:"column:error_code" json:"error_code,omitempty"`
	ErrorMessage    *string        `gorm:"column:error_message" json:"error_message,omitempty"`
	RetryCount      int            `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	PublishedAt     *time.Time     `gorm:"column:published_at" json:"published_at,omitempty"`
	Metrics         datatypes.JSON `gorm:"column:metrics" json:"metrics,omitempty"`
}

// Content is the text this target publishes.
func (t *PostTarget) Content(p *Post) string {
	if t.ContentOverride != nil && *t.ContentOverride != "" {
		return *t.ContentOverride
	}
	return p.Body
}

// ApprovalDecision is never updated except for IsActive, which flips to
// false when a newer decision supersedes it.
type ApprovalDecision struct {
	ID         string       `gorm:"column:id;primaryKey" json:"id"`
	PostID     string       `gorm:"column:post_id;index" json:"post_id"`
	ReviewerID string       `gorm:"column:reviewer_id" json:"reviewer_id"`
	Decision   DecisionType `gorm:"column:decision" json:"decision"`
	Comment    string       `gorm:"column:comment;type:text" json:"comment,omitempty"`
	IsActive   bool         `gorm:"column:is_active;index" json:"is_active"`
	DecidedAt  time.Time    `gorm:"column:decided_at" json:"decided_at"`
}

// Models lists the tables owned by this package.
func Models() []any {
	return []any{&Post{}, &PostTarget{}, &ApprovalDecision{}}
}
