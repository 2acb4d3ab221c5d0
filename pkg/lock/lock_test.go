package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newLocker(t *testing.T) (Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestTryLockExcludesSecondHolder(t *testing.T) {
	l, _ := newLocker(t)
	ctx := context.Background()

	release, err := l.TryLock(ctx, "lock:post:1", time.Minute)
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "lock:post:1", time.Minute)
	require.ErrorIs(t, err, ErrLocked)

	other, err := l.TryLock(ctx, "lock:post:2", time.Minute)
	require.NoError(t, err)
	other()

	release()

	again, err := l.TryLock(ctx, "lock:post:1", time.Minute)
	require.NoError(t, err)
	again()
}

func TestTryLockExpires(t *testing.T) {
	l, mr := newLocker(t)
	ctx := context.Background()

	_, err := l.TryLock(ctx, "lock:post:1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	release, err := l.TryLock(ctx, "lock:post:1", time.Second)
	require.NoError(t, err)
	release()
}

func TestWithLockSerializes(t *testing.T) {
	l, _ := newLocker(t)
	ctx := context.Background()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(ctx, "lock:credential:1", 5*time.Second, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					cur := atomic.LoadInt32(&maxInside)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
}
