package redis

import (
	"context"
	"time"

	"postflow/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(New),
)

const (
	pingAttempts = 5
	pingBackoff  = 3 * time.Second
)

// New returns the shared client used for oauth state, locks and the asynq
// queue. An unreachable server at boot is logged, not fatal: go-redis
// connects lazily and readiness reports the outage.
func New(lc fx.Lifecycle, c *config.Config) *redis.Client {
	log := zap.L().With(
		zap.String("addr", c.Redis.Addr),
		zap.Int("db", c.Redis.DB),
		zap.Int("pool_size", c.Redis.PoolSize),
	)

	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	})

	if err := waitReady(rdb, log); err != nil {
		log.Error("[Redis] giving up on ping, continuing with lazy connect", zap.Error(err))
	} else {
		log.Info("[Redis] Connected to Redis")
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})

	return rdb
}

func waitReady(rdb *redis.Client, log *zap.Logger) error {
	var err error
	for i := 1; i <= pingAttempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err = rdb.Ping(ctx).Err()
		cancel()
		if err == nil {
			return nil
		}
		if i < pingAttempts {
			log.Warn("[Redis] Redis not ready, retrying", zap.Int("attempt", i), zap.Duration("backoff", pingBackoff), zap.Error(err))
			time.Sleep(pingBackoff)
		}
	}
	return err
}
