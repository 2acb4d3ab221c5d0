package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock", fx.Provide(New))

// ErrLocked is returned by TryLock when another holder owns the key.
var ErrLocked = errors.New("lock: already held")

// Locker hands out leases backed by redis so that the api and every worker
// process agree on ownership.
type Locker interface {
	// TryLock acquires name once without waiting. The lease expires after ttl
	// even if the returned release func is never called.
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(), err error)
	// WithLock waits for name, runs fn and releases.
	WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error
}

type redisLocker struct {
	rs *redsync.Redsync
}

func New(client *redis.Client) Locker {
	return &redisLocker{rs: redsync.New(goredis.NewPool(client))}
}

func (l *redisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	mutex := l.rs.NewMutex(name, redsync.WithExpiry(ttl), redsync.WithTries(1))

	if err := mutex.TryLockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return nil, ErrLocked
		}
		return nil, err
	}

	return func() { unlock(mutex) }, nil
}

func (l *redisLocker) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	mutex := l.rs.NewMutex(name, redsync.WithExpiry(ttl))

	if err := mutex.LockContext(ctx); err != nil {
		return err
	}
	defer unlock(mutex)

	return fn(ctx)
}

func unlock(mutex *redsync.Mutex) {
	// A fresh context: the caller's may already be cancelled and the lease
	// should still be handed back.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := mutex.UnlockContext(ctx); err != nil {
		zap.L().Warn("failed to unlock mutex", zap.String("name", mutex.Name()), zap.Error(err))
	}
}
