package post

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"postflow/pkg/config"
	"postflow/pkg/errutil"
	"postflow/pkg/events"
	"postflow/pkg/logger"
	"postflow/pkg/task"
	"postflow/services/credential"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ========================================================
// Service Definition
// ========================================================

type Service struct {
	db          *gorm.DB
	node        *snowflake.Node
	cfg         *config.Config
	credentials *credential.Store
	enqueuer    task.Enqueuer
	emitter     events.Emitter
	now         func() time.Time
}

type ServiceParams struct {
	fx.In

	DB          *gorm.DB
	Node        *snowflake.Node
	Config      *config.Config
	Credentials *credential.Store
	Enqueuer    task.Enqueuer
	Emitter     events.Emitter `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		cfg:         p.Config,
		credentials: p.Credentials,
		enqueuer:    p.Enqueuer,
		emitter:     p.Emitter,
		now:         time.Now,
	}
}

type CreateRequest struct {
	WorkspaceID string `json:"-"`
	AuthorID    string `json:"author_id" binding:"required"`
	Body        string `json:"body" binding:"required"`
}

type TargetInput struct {
	CredentialID    string  `json:"credential_id" binding:"required"`
	ContentOverride *string `json:"content_override"`
}

type ScheduleRequest struct {
	ScheduledAt time.Time     `json:"scheduled_at" binding:"required"`
	Timezone    string        `json:"timezone"`
	Targets     []TargetInput `json:"targets"`
}

type DecisionRequest struct {
	ReviewerID string `json:"reviewer_id" binding:"required"`
	Comment    string `json:"comment"`
}

// ========================================================
// Authoring
// ========================================================

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Post, error) {
	if strings.TrimSpace(req.Body) == "" {
		return nil, errutil.ValidationFailed("body is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "body", Message: "required"}))
	}

	p := Post{
		ID:          s.node.Generate().String(),
		WorkspaceID: req.WorkspaceID,
		AuthorID:    req.AuthorID,
		Body:        req.Body,
		Status:      StatusDraft,
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		zap.L().Error("failed to create post", zap.String("workspace_id", req.WorkspaceID), zap.Error(err))
		return nil, err
	}
	return &p, nil
}

func (s *Service) Get(ctx context.Context, workspaceID, id string) (*Post, error) {
	p, err := Load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if p.WorkspaceID != workspaceID {
		return nil, errutil.NotFound("post not found", nil)
	}
	return p, nil
}

// Edit replaces the body of a draft.
func (s *Service) Edit(ctx context.Context, workspaceID, id, body string) (*Post, error) {
	p, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusDraft {
		return nil, errutil.New(errutil.StatusInvalidTransition, "only drafts can be edited")
	}
	if strings.TrimSpace(body) == "" {
		return nil, errutil.ValidationFailed("body is required", nil)
	}

	res := s.db.WithContext(ctx).Model(&Post{}).
		Where("id = ? AND status = ?", p.ID, StatusDraft).
		Update("body", body)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errutil.Conflict("post is no longer a draft", nil)
	}
	p.Body = body
	return p, nil
}

// ========================================================
// Approval workflow
// ========================================================

func (s *Service) Submit(ctx context.Context, workspaceID, id string) (*Post, error) {
	now := s.now().UTC()
	return s.move(ctx, workspaceID, id, StatusSubmitted, map[string]any{"submitted_at": now})
}

func (s *Service) Approve(ctx context.Context, workspaceID, id string, req DecisionRequest) (*Post, error) {
	return s.decide(ctx, workspaceID, id, DecisionApproved, req)
}

func (s *Service) Reject(ctx context.Context, workspaceID, id string, req DecisionRequest) (*Post, error) {
	if strings.TrimSpace(req.Comment) == "" {
		return nil, errutil.ValidationFailed("a rejection needs a reason", nil,
			errutil.WithDetails(errutil.Detail{Field: "comment", Message: "required"}))
	}
	return s.decide(ctx, workspaceID, id, DecisionRejected, req)
}

// ReturnToDraft reopens a rejected post for editing.
func (s *Service) ReturnToDraft(ctx context.Context, workspaceID, id string) (*Post, error) {
	return s.move(ctx, workspaceID, id, StatusDraft, map[string]any{"rejection_reason": nil})
}

func (s *Service) Cancel(ctx context.Context, workspaceID, id string) (*Post, error) {
	return s.move(ctx, workspaceID, id, StatusCancelled, nil)
}

func (s *Service) move(ctx context.Context, workspaceID, id string, to PostStatus, updates map[string]any) (*Post, error) {
	p, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	from := p.Status
	if err := Transition(ctx, s.db, p, to, updates); err != nil {
		return nil, err
	}
	s.applyLocal(p, updates)
	StatusChanged(ctx, s.emitter, p, from)
	return p, nil
}

func (s *Service) applyLocal(p *Post, updates map[string]any) {
	for k, v := range updates {
		switch k {
		case "submitted_at":
			t := v.(time.Time)
			p.SubmittedAt = &t
		case "rejection_reason":
			if r, ok := v.(string); ok {
				p.RejectionReason = &r
			} else {
				p.RejectionReason = nil
			}
		case "scheduled_at":
			t := v.(time.Time)
			p.ScheduledAt = &t
		case "timezone":
			p.Timezone = v.(string)
		}
	}
}

func (s *Service) decide(ctx context.Context, workspaceID, id string, decision DecisionType, req DecisionRequest) (*Post, error) {
	p, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	to := StatusApproved
	updates := map[string]any{}
	if decision == DecisionRejected {
		to = StatusRejected
		updates["rejection_reason"] = req.Comment
	}

	from := p.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := Transition(ctx, tx, p, to, updates); err != nil {
			return err
		}
		if err := tx.Model(&ApprovalDecision{}).
			Where("post_id = ? AND is_active = ?", p.ID, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(&ApprovalDecision{
			ID:         s.node.Generate().String(),
			PostID:     p.ID,
			ReviewerID: req.ReviewerID,
			Decision:   decision,
			Comment:    req.Comment,
			IsActive:   true,
			DecidedAt:  s.now().UTC(),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.applyLocal(p, updates)
	StatusChanged(ctx, s.emitter, p, from)
	return p, nil
}

// ActiveDecision returns the decision currently in force for a post.
func (s *Service) ActiveDecision(ctx context.Context, postID string) (*ApprovalDecision, error) {
	var d ApprovalDecision
	if err := s.db.WithContext(ctx).
		Where("post_id = ? AND is_active = ?", postID, true).
		First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("no active decision", err)
		}
		return nil, err
	}
	return &d, nil
}

// ========================================================
// Publication
// ========================================================

// Schedule moves an approved post to SCHEDULED and attaches its targets.
func (s *Service) Schedule(ctx context.Context, workspaceID, id string, req ScheduleRequest) (*Post, error) {
	if !req.ScheduledAt.After(s.now()) {
		return nil, errutil.ValidationFailed("scheduled_at must be in the future", nil,
			errutil.WithDetails(errutil.Detail{Field: "scheduled_at", Message: "must be in the future"}))
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			return nil, errutil.ValidationFailed("unknown timezone", err,
				errutil.WithDetails(errutil.Detail{Field: "timezone", Message: req.Timezone}))
		}
	}

	p, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	targets, err := s.buildTargets(ctx, p, req.Targets)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 && len(p.Targets) == 0 {
		return nil, errutil.ValidationFailed("at least one target is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "targets", Message: "required"}))
	}

	at := req.ScheduledAt.UTC()
	updates := map[string]any{"scheduled_at": at, "timezone": req.Timezone}
	from := p.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := Transition(ctx, tx, p, StatusScheduled, updates); err != nil {
			return err
		}
		return s.attachTargets(tx, targets)
	})
	if err != nil {
		return nil, err
	}

	s.applyLocal(p, updates)
	StatusChanged(ctx, s.emitter, p, from)
	return s.Get(ctx, workspaceID, id)
}

// PublishNow attaches targets and queues an orchestrator pass. The post
// moves to PUBLISHING when the pass starts. A FAILED post can be sent again
// this way, which also retries targets whose credential had expired.
func (s *Service) PublishNow(ctx context.Context, workspaceID, id string, inputs []TargetInput) (*Post, error) {
	p, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition(p.Status, StatusPublishing); err != nil {
		return nil, err
	}

	targets, err := s.buildTargets(ctx, p, inputs)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 && len(p.Targets) == 0 {
		return nil, errutil.ValidationFailed("at least one target is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "targets", Message: "required"}))
	}
	if err := s.attachTargets(s.db.WithContext(ctx), targets); err != nil {
		return nil, err
	}

	if err := s.EnqueuePublish(ctx, p.ID, "manual"); err != nil {
		return nil, err
	}
	return s.Get(ctx, workspaceID, id)
}

// EnqueuePublish queues a post:publish task, deduplicated per post while a
// pass could still be running.
func (s *Service) EnqueuePublish(ctx context.Context, postID, reason string) error {
	t, err := NewPublishTask(postID, reason)
	if err != nil {
		return err
	}
	_, err = s.enqueuer.Enqueue(ctx, t, asynq.Unique(s.cfg.Publisher.PassTimeout))
	if errors.Is(err, task.ErrDuplicate) {
		logger.FromContext(ctx).Debug("publish already queued", zap.String("post_id", postID))
		return nil
	}
	if err != nil {
		return errutil.Internal("failed to queue publication", err)
	}
	return nil
}

func (s *Service) buildTargets(ctx context.Context, p *Post, inputs []TargetInput) ([]PostTarget, error) {
	out := make([]PostTarget, 0, len(inputs))
	for _, in := range inputs {
		c, err := s.credentials.GetInWorkspace(ctx, p.WorkspaceID, in.CredentialID)
		if err != nil {
			if errutil.HasStatus(err, errutil.StatusNotFound) {
				return nil, errutil.ValidationFailed("unknown credential", err,
					errutil.WithDetails(errutil.Detail{Field: "credential_id", Message: in.CredentialID}))
			}
			return nil, err
		}
		out = append(out, PostTarget{
			ID:              s.node.Generate().String(),
			PostID:          p.ID,
			CredentialID:    c.ID,
			Platform:        c.Platform,
			ContentOverride: in.ContentOverride,
			Status:          TargetPending,
		})
	}
	return out, nil
}

// attachTargets inserts targets, ignoring credentials the post already
// targets.
func (s *Service) attachTargets(tx *gorm.DB, targets []PostTarget) error {
	if len(targets) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}, {Name: "credential_id"}},
		DoNothing: true,
	}).Create(&targets).Error
}

// Delete soft deletes a post. Rows are never hard deleted, published ones
// included.
func (s *Service) Delete(ctx context.Context, workspaceID, id string) error {
	p, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return err
	}
	if p.Status == StatusPublishing {
		return errutil.Conflict(fmt.Sprintf("post %s is being published", p.ID), nil)
	}

	res := s.db.WithContext(ctx).
		Where("id = ? AND status = ?", p.ID, p.Status).
		Delete(&Post{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.Conflict("post changed while deleting", nil)
	}
	return nil
}
