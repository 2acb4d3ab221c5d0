package publisher

import (
	"context"
	"testing"
	"time"

	"postflow/pkg/errutil"
	"postflow/pkg/rediskey"
	"postflow/pkg/taskname"
	"postflow/services/post"

	"github.com/stretchr/testify/require"
)

func (f *fixture) scheduler() *Scheduler {
	return NewScheduler(SchedulerParams{DB: f.db, Config: f.cfg, Locker: f.locker, Posts: f.posts})
}

func queuedReasons(t *testing.T, f *fixture) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for _, task := range f.tasks.Tasks(taskname.PostPublish) {
		payload, err := post.DecodePublishTask(task)
		require.NoError(t, err)
		out[payload.PostID] = payload.Reason
	}
	return out
}

func TestSweepQueuesDueWork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tw := f.credential(t, "twitter", "42", nil)

	schedule := func() *post.Post {
		p := f.approved(t, "scheduled")
		p, err := f.posts.Schedule(ctx, "ws-1", p.ID, post.ScheduleRequest{
			ScheduledAt: time.Now().Add(time.Hour),
			Targets:     []post.TargetInput{{CredentialID: tw.ID}},
		})
		require.NoError(t, err)
		return p
	}
	due := schedule()
	notYet := schedule()

	retry := f.approved(t, "retry")
	require.NoError(t, f.db.Model(&post.Post{}).Where("id = ?", retry.ID).Update("status", post.StatusPublishing).Error)
	require.NoError(t, f.db.Create(&post.PostTarget{
		ID: "target-retry", PostID: retry.ID, CredentialID: tw.ID, Platform: "twitter",
		Status: post.TargetFailed, ErrorCode: ptr(string(errutil.StatusPlatformPublishError)), RetryCount: 1,
	}).Error)

	spent := f.approved(t, "spent")
	require.NoError(t, f.db.Model(&post.Post{}).Where("id = ?", spent.ID).Update("status", post.StatusFailed).Error)
	require.NoError(t, f.db.Create(&post.PostTarget{
		ID: "target-spent", PostID: spent.ID, CredentialID: tw.ID, Platform: "twitter",
		Status: post.TargetFailed, ErrorCode: ptr(string(errutil.StatusPermanentFailure)), RetryCount: 3,
	}).Error)

	expired := f.approved(t, "expired")
	require.NoError(t, f.db.Model(&post.Post{}).Where("id = ?", expired.ID).Update("status", post.StatusFailed).Error)
	require.NoError(t, f.db.Create(&post.PostTarget{
		ID: "target-expired", PostID: expired.ID, CredentialID: tw.ID, Platform: "twitter",
		Status: post.TargetFailed, ErrorCode: ptr(string(errutil.StatusCredentialExpired)),
	}).Error)

	require.NoError(t, f.db.Model(&post.Post{}).Where("id = ?", due.ID).
		Update("scheduled_at", time.Now().UTC().Add(-time.Minute)).Error)

	s := f.scheduler()
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	reasons := queuedReasons(t, f)
	require.Equal(t, ReasonScheduled, reasons[due.ID])
	require.Equal(t, ReasonRetry, reasons[retry.ID])
	require.NotContains(t, reasons, notYet.ID)
	require.NotContains(t, reasons, spent.ID)
	require.NotContains(t, reasons, expired.ID)
}

func TestSweepResumesStalePasses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.approved(t, "stuck")

	require.NoError(t, f.db.Model(&post.Post{}).Where("id = ?", p.ID).
		UpdateColumns(map[string]any{
			"status":     post.StatusPublishing,
			"updated_at": time.Now().UTC().Add(-time.Hour),
		}).Error)

	s := f.scheduler()
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, ReasonResume, queuedReasons(t, f)[p.ID])
}

func TestTickSkipsWhenAnotherWorkerSweeps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.approved(t, "stuck")
	require.NoError(t, f.db.Model(&post.Post{}).Where("id = ?", p.ID).
		UpdateColumns(map[string]any{
			"status":     post.StatusPublishing,
			"updated_at": time.Now().UTC().Add(-time.Hour),
		}).Error)

	release, err := f.locker.TryLock(ctx, rediskey.SchedulerLockKey, time.Minute)
	require.NoError(t, err)

	s := f.scheduler()
	s.tick(ctx)
	require.Empty(t, f.tasks.Tasks(taskname.PostPublish))

	release()
	s.tick(ctx)
	require.Len(t, f.tasks.Tasks(taskname.PostPublish), 1)
}

func ptr[T any](v T) *T { return &v }
