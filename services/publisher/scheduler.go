package publisher

import (
	"context"
	"errors"
	"time"

	"postflow/pkg/config"
	"postflow/pkg/errutil"
	"postflow/pkg/lock"
	"postflow/pkg/rediskey"
	"postflow/services/post"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sweep reasons, carried on the queued task for the logs.
const (
	ReasonScheduled = "scheduled"
	ReasonRetry     = "retry"
	ReasonResume    = "resume"
)

// Scheduler periodically queues passes for posts that are due: scheduled
// posts whose time has come, posts with targets waiting on a retry, and
// posts left PUBLISHING by a worker that went away.
type Scheduler struct {
	db     *gorm.DB
	cfg    *config.Config
	locker lock.Locker
	posts  *post.Service
	now    func() time.Time
}

type SchedulerParams struct {
	fx.In

	DB     *gorm.DB
	Config *config.Config
	Locker lock.Locker
	Posts  *post.Service
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{db: p.DB, cfg: p.Config, locker: p.Locker, posts: p.Posts, now: time.Now}
}

// StartScheduler runs the sweep loop for the lifetime of the fx app.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

func (s *Scheduler) interval() time.Duration {
	if s.cfg.Publisher.PollInterval > 0 {
		return s.cfg.Publisher.PollInterval
	}
	return 30 * time.Second
}

func (s *Scheduler) batch() int {
	if s.cfg.Publisher.BatchSize > 0 {
		return s.cfg.Publisher.BatchSize
	}
	return 100
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started publication sweep", zap.Duration("interval", s.interval()))

	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

// tick sweeps once, unless another worker is already sweeping.
func (s *Scheduler) tick(ctx context.Context) {
	release, err := s.locker.TryLock(ctx, rediskey.SchedulerLockKey, s.interval())
	if errors.Is(err, lock.ErrLocked) {
		return
	}
	if err != nil {
		zap.L().Error("[Scheduler] failed to take sweep lock", zap.Error(err))
		return
	}
	defer release()

	start := time.Now()
	n, err := s.Sweep(ctx)
	if err != nil {
		zap.L().Error("[Scheduler] sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("[Scheduler] queued publications",
			zap.Int("count", n),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// Sweep queues a pass for every due post and returns how many were queued.
// Duplicate tasks are dropped by the queue.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	queued := 0

	due, err := s.duePosts(ctx, now)
	if err != nil {
		return queued, err
	}
	retry, err := s.retryPosts(ctx)
	if err != nil {
		return queued, err
	}
	stale, err := s.stalePosts(ctx, now)
	if err != nil {
		return queued, err
	}

	seen := make(map[string]struct{})
	for _, batch := range []struct {
		reason string
		ids    []string
	}{
		{ReasonScheduled, due},
		{ReasonRetry, retry},
		{ReasonResume, stale},
	} {
		for _, id := range batch.ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if err := s.posts.EnqueuePublish(ctx, id, batch.reason); err != nil {
				return queued, err
			}
			sweepEnqueued.WithLabelValues(batch.reason).Inc()
			queued++
		}
	}
	return queued, nil
}

func (s *Scheduler) duePosts(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&post.Post{}).
		Where("status = ? AND scheduled_at <= ?", post.StatusScheduled, now).
		Order("scheduled_at ASC").
		Limit(s.batch()).
		Pluck("id", &ids).Error
	return ids, err
}

// retryPosts finds posts holding a target that failed on a platform error
// and still has attempts left. Expired credentials wait for a reconnect.
func (s *Scheduler) retryPosts(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&post.Post{}).
		Joins("JOIN post_targets ON post_targets.post_id = posts.id").
		Where("posts.status IN ?", []post.PostStatus{post.StatusPublishing, post.StatusFailed}).
		Where("post_targets.status = ? AND post_targets.error_code = ? AND post_targets.retry_count < ?",
			post.TargetFailed, string(errutil.StatusPlatformPublishError), s.cfg.Publisher.MaxAttempts).
		Distinct().
		Limit(s.batch()).
		Pluck("posts.id", &ids).Error
	return ids, err
}

// stalePosts finds posts stuck in PUBLISHING for longer than a pass can run.
func (s *Scheduler) stalePosts(ctx context.Context, now time.Time) ([]string, error) {
	timeout := s.cfg.Publisher.PassTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	var ids []string
	err := s.db.WithContext(ctx).Model(&post.Post{}).
		Where("status = ? AND updated_at < ?", post.StatusPublishing, now.Add(-2*timeout)).
		Limit(s.batch()).
		Pluck("id", &ids).Error
	return ids, err
}
