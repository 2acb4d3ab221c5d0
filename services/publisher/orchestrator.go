// Package publisher runs publication passes: it pushes the targets of a Post
// to their platforms and settles the Post from the results.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"postflow/pkg/config"
	"postflow/pkg/errutil"
	"postflow/pkg/events"
	"postflow/pkg/lock"
	"postflow/pkg/logger"
	"postflow/pkg/platform"
	"postflow/pkg/rediskey"
	"postflow/services/credential"
	"postflow/services/post"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ErrPassInProgress is returned by Run when another pass holds the post.
var ErrPassInProgress = errors.New("publisher: a pass is already running for this post")

// TargetResult is the outcome of one target within a pass.
type TargetResult struct {
	TargetID   string            `json:"target_id"`
	Platform   string            `json:"platform"`
	Status     post.TargetStatus `json:"status"`
	ErrorCode  string            `json:"error_code,omitempty"`
	RetryCount int               `json:"retry_count"`
	ExternalID string            `json:"external_id,omitempty"`
}

// PassSummary reports what a pass did. Target failures are recorded here and
// on the target rows, never returned as errors.
type PassSummary struct {
	PostID     string          `json:"post_id"`
	PostStatus post.PostStatus `json:"post_status"`
	Settled    bool            `json:"settled"`
	Attempted  int             `json:"attempted"`
	Published  int             `json:"published"`
	Failed     int             `json:"failed"`
	Permanent  int             `json:"permanent"`
	Results    []TargetResult  `json:"results"`
}

type Orchestrator struct {
	db          *gorm.DB
	cfg         *config.Config
	locker      lock.Locker
	credentials *credential.Store
	refresher   *credential.Refresher
	registry    *platform.Registry
	emitter     events.Emitter
	now         func() time.Time
}

type OrchestratorParams struct {
	fx.In

	DB          *gorm.DB
	Config      *config.Config
	Locker      lock.Locker
	Credentials *credential.Store
	Refresher   *credential.Refresher
	Registry    *platform.Registry
	Emitter     events.Emitter `optional:"true"`
}

func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	return &Orchestrator{
		db:          p.DB,
		cfg:         p.Config,
		locker:      p.Locker,
		credentials: p.Credentials,
		refresher:   p.Refresher,
		registry:    p.Registry,
		emitter:     p.Emitter,
		now:         time.Now,
	}
}

func (o *Orchestrator) ceiling() int {
	if o.cfg.Publisher.MaxAttempts > 0 {
		return o.cfg.Publisher.MaxAttempts
	}
	return 3
}

func (o *Orchestrator) passTimeout() time.Duration {
	if o.cfg.Publisher.PassTimeout > 0 {
		return o.cfg.Publisher.PassTimeout
	}
	return 2 * time.Minute
}

func (o *Orchestrator) callTimeout() time.Duration {
	if o.cfg.Publisher.CallTimeout > 0 {
		return o.cfg.Publisher.CallTimeout
	}
	return 20 * time.Second
}

func (o *Orchestrator) concurrency() int {
	if o.cfg.Publisher.Concurrency > 0 {
		return o.cfg.Publisher.Concurrency
	}
	return 4
}

// Run executes one publication pass for postID. Only one pass per post runs
// at a time across all processes.
func (o *Orchestrator) Run(ctx context.Context, postID string) (*PassSummary, error) {
	release, err := o.locker.TryLock(ctx, rediskey.BuildPostLockKey(postID), o.passTimeout())
	if errors.Is(err, lock.ErrLocked) {
		return nil, ErrPassInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("lock post %s: %w", postID, err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, o.passTimeout())
	defer cancel()
	log := logger.FromContext(ctx).With(zap.String("post_id", postID))

	p, err := post.Load(ctx, o.db, postID)
	if err != nil {
		return nil, err
	}
	ceiling := o.ceiling()
	if p.Status != post.StatusPublishing && !anyEligible(p.Targets, ceiling) {
		return nil, errutil.New(errutil.StatusInvalidTransition, "post has no targets left to publish",
			errutil.WithDetails(errutil.Detail{Field: "status", Message: string(p.Status)}))
	}
	if err := o.begin(ctx, p); err != nil {
		return nil, err
	}

	if err := o.recoverInterrupted(ctx, p); err != nil {
		return nil, err
	}

	eligible := make([]post.PostTarget, 0, len(p.Targets))
	for _, t := range p.Targets {
		if post.Eligible(&t, ceiling) {
			eligible = append(eligible, t)
		}
	}

	results := make([]TargetResult, len(eligible))
	var g errgroup.Group
	g.SetLimit(o.concurrency())
	for i := range eligible {
		g.Go(func() error {
			results[i] = o.attempt(ctx, p, &eligible[i])
			return nil
		})
	}
	_ = g.Wait()

	summary := &PassSummary{PostID: p.ID, Results: results, Attempted: len(results)}
	for _, r := range results {
		switch {
		case r.Status == post.TargetPublished:
			summary.Published++
		case r.ErrorCode == string(errutil.StatusPermanentFailure):
			summary.Permanent++
			summary.Failed++
		case r.Status == post.TargetFailed:
			summary.Failed++
		}
	}

	if err := o.settle(ctx, p, summary); err != nil {
		return nil, err
	}

	log.Info("publication pass finished",
		zap.String("post_status", string(summary.PostStatus)),
		zap.Bool("settled", summary.Settled),
		zap.Int("attempted", summary.Attempted),
		zap.Int("published", summary.Published),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func anyEligible(targets []post.PostTarget, ceiling int) bool {
	for i := range targets {
		if post.Eligible(&targets[i], ceiling) {
			return true
		}
	}
	return false
}

// begin moves the post into PUBLISHING. A post already PUBLISHING is resumed.
func (o *Orchestrator) begin(ctx context.Context, p *post.Post) error {
	if p.Status == post.StatusPublishing {
		return nil
	}
	from := p.Status
	if err := post.Transition(ctx, o.db, p, post.StatusPublishing, nil); err != nil {
		return err
	}
	post.StatusChanged(ctx, o.emitter, p, from)
	return nil
}

// recoverInterrupted fails targets left PUBLISHING by a pass that died. The
// lock guarantees no live pass owns them. The platform may or may not have
// received the call, so it counts as an attempt.
func (o *Orchestrator) recoverInterrupted(ctx context.Context, p *post.Post) error {
	for i := range p.Targets {
		t := &p.Targets[i]
		if t.Status != post.TargetPublishing {
			continue
		}
		logger.FromContext(ctx).Warn("recovering interrupted target",
			zap.String("post_id", p.ID),
			zap.String("target_id", t.ID),
		)
		if err := o.fail(ctx, t, errutil.StatusPlatformPublishError, "previous attempt was interrupted", true); err != nil {
			return err
		}
	}
	return nil
}

// attempt publishes one target. It never returns an error: every outcome is
// written to the target row and reported in the result.
func (o *Orchestrator) attempt(ctx context.Context, p *post.Post, t *post.PostTarget) TargetResult {
	log := logger.FromContext(ctx).With(
		zap.String("post_id", p.ID),
		zap.String("target_id", t.ID),
		zap.String("platform", t.Platform),
	)
	result := func() TargetResult {
		r := TargetResult{TargetID: t.ID, Platform: t.Platform, Status: t.Status, RetryCount: t.RetryCount}
		if t.ErrorCode != nil {
			r.ErrorCode = *t.ErrorCode
		}
		if t.ExternalPostID != nil {
			r.ExternalID = *t.ExternalPostID
		}
		return r
	}

	if err := post.ValidateTargetAttempt(t, o.ceiling()); err != nil {
		log.Debug("target skipped", zap.Error(err))
		return result()
	}

	res := o.db.WithContext(ctx).Model(&post.PostTarget{}).
		Where("id = ? AND status = ?", t.ID, t.Status).
		Update("status", post.TargetPublishing)
	if res.Error != nil || res.RowsAffected == 0 {
		log.Warn("target could not be claimed", zap.Error(res.Error))
		return result()
	}
	t.Status = post.TargetPublishing

	cred, err := o.credentials.Get(ctx, t.CredentialID)
	if err != nil {
		code := errutil.StatusPlatformPublishError
		if errutil.HasStatus(err, errutil.StatusNotFound) {
			code = errutil.StatusPermanentFailure
		}
		o.record(ctx, p, t, code, err, code != errutil.StatusPermanentFailure)
		return result()
	}

	provider, ok := o.registry.Get(platform.Code(cred.Platform))
	if !ok {
		o.record(ctx, p, t, errutil.StatusPermanentFailure,
			fmt.Errorf("platform %s is not configured", cred.Platform), false)
		return result()
	}

	auth, err := o.refresher.Auth(ctx, cred)
	if err != nil {
		if errutil.HasStatus(err, errutil.StatusCredentialExpired) {
			// Waiting on the user to reconnect; not the target's fault.
			o.record(ctx, p, t, errutil.StatusCredentialExpired, err, false)
		} else {
			o.record(ctx, p, t, errutil.StatusPlatformPublishError, err, true)
		}
		return result()
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout())
	pub, err := provider.Publish(callCtx, auth, platform.Content{Text: t.Content(p)})
	cancel()
	if err == nil && (pub == nil || pub.ExternalID == "") {
		err = platform.ErrNoIdentifier
	}
	if err != nil {
		publishAttempts.WithLabelValues(t.Platform, "error").Inc()
		o.record(ctx, p, t, errutil.StatusPlatformPublishError, err, true)
		return result()
	}
	publishAttempts.WithLabelValues(t.Platform, "ok").Inc()

	if err := o.succeed(ctx, t, pub); err != nil {
		log.Error("failed to record publication", zap.String("external_id", pub.ExternalID), zap.Error(err))
	} else {
		log.Info("target published", zap.String("external_id", pub.ExternalID))
	}
	return result()
}

func (o *Orchestrator) succeed(ctx context.Context, t *post.PostTarget, pub *platform.Publication) error {
	if err := post.ValidateTargetTransition(t.Status, post.TargetPublished); err != nil {
		return err
	}

	now := o.now().UTC()
	updates := map[string]any{
		"status":           post.TargetPublished,
		"external_post_id": pub.ExternalID,
		"external_url":     pub.URL,
		"published_at":     now,
		"error_code":       nil,
		"error_message":    nil,
	}
	if len(pub.Metrics) > 0 {
		if raw, err := json.Marshal(pub.Metrics); err == nil {
			updates["metrics"] = raw
		}
	}
	if err := o.db.WithContext(ctx).Model(&post.PostTarget{}).
		Where("id = ? AND status = ?", t.ID, post.TargetPublishing).
		Updates(updates).Error; err != nil {
		return err
	}

	t.Status = post.TargetPublished
	t.ExternalPostID = &pub.ExternalID
	t.ExternalURL = &pub.URL
	t.PublishedAt = &now
	t.ErrorCode, t.ErrorMessage = nil, nil
	return nil
}

// record fails t and emits target.failed.
func (o *Orchestrator) record(ctx context.Context, p *post.Post, t *post.PostTarget, code errutil.CoreStatus, cause error, countAttempt bool) {
	log := logger.FromContext(ctx).With(zap.String("target_id", t.ID), zap.String("platform", t.Platform))
	if err := o.fail(ctx, t, code, cause.Error(), countAttempt); err != nil {
		log.Error("failed to record target failure", zap.Error(err))
		return
	}
	log.Warn("target failed",
		zap.String("error_code", *t.ErrorCode),
		zap.Int("retry_count", t.RetryCount),
		zap.Error(cause),
	)
	events.Publish(ctx, o.emitter, events.Event{
		Name:        events.TargetFailed,
		WorkspaceID: p.WorkspaceID,
		SubjectID:   t.ID,
		Data: map[string]any{
			"post_id":     p.ID,
			"platform":    t.Platform,
			"error_code":  *t.ErrorCode,
			"retry_count": t.RetryCount,
		},
	})
}

// fail moves t from PUBLISHING to FAILED. A counted attempt that reaches the
// ceiling turns the failure permanent.
func (o *Orchestrator) fail(ctx context.Context, t *post.PostTarget, code errutil.CoreStatus, message string, countAttempt bool) error {
	if err := post.ValidateTargetTransition(t.Status, post.TargetFailed); err != nil {
		return err
	}

	retries := t.RetryCount
	if countAttempt {
		retries++
		if retries >= o.ceiling() {
			code = errutil.StatusPermanentFailure
		}
	}
	codeStr := string(code)

	if err := o.db.WithContext(ctx).Model(&post.PostTarget{}).
		Where("id = ? AND status = ?", t.ID, post.TargetPublishing).
		Updates(map[string]any{
			"status":        post.TargetFailed,
			"error_code":    codeStr,
			"error_message": message,
			"retry_count":   retries,
		}).Error; err != nil {
		return err
	}

	t.Status = post.TargetFailed
	t.ErrorCode = &codeStr
	t.ErrorMessage = &message
	t.RetryCount = retries
	return nil
}

// settle reloads the targets and, when the outcome is final, moves the post
// out of PUBLISHING with a compare-and-set.
func (o *Orchestrator) settle(ctx context.Context, p *post.Post, summary *PassSummary) error {
	var targets []post.PostTarget
	if err := o.db.WithContext(ctx).Where("post_id = ?", p.ID).Find(&targets).Error; err != nil {
		return err
	}

	status, settled := post.ResolvePostOutcome(targets, o.ceiling())
	summary.PostStatus = p.Status
	if !settled {
		return nil
	}

	var updates map[string]any
	if status == post.StatusPublished {
		updates = map[string]any{"published_at": o.now().UTC()}
	}
	if err := post.Transition(ctx, o.db, p, status, updates); err != nil {
		if errutil.HasStatus(err, errutil.StatusConflict) {
			logger.FromContext(ctx).Warn("post changed during pass, outcome not applied",
				zap.String("post_id", p.ID),
				zap.String("outcome", string(status)),
			)
			if current, loadErr := post.Load(ctx, o.db, p.ID); loadErr == nil {
				summary.PostStatus = current.Status
			}
			return nil
		}
		return err
	}

	summary.PostStatus = p.Status
	summary.Settled = true
	post.StatusChanged(ctx, o.emitter, p, post.StatusPublishing)

	name := events.PostFailed
	if status == post.StatusPublished {
		name = events.PostPublished
	}
	events.Publish(ctx, o.emitter, events.Event{
		Name:        name,
		WorkspaceID: p.WorkspaceID,
		SubjectID:   p.ID,
		Data:        map[string]any{"targets": len(targets)},
	})
	passOutcomes.WithLabelValues(string(status)).Inc()
	return nil
}
