package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"postflow/pkg/config"
	"postflow/pkg/db"
	"postflow/pkg/events"
	"postflow/pkg/gen"
	"postflow/pkg/health"
	"postflow/pkg/lock"
	"postflow/pkg/logger"
	"postflow/pkg/otelcol"
	"postflow/pkg/platform/providers"
	"postflow/pkg/profiling"
	"postflow/pkg/redis"
	"postflow/pkg/sealer"
	"postflow/pkg/server"
	"postflow/pkg/task"
	"postflow/services/credential"
	"postflow/services/oauth"
	"postflow/services/post"
	"postflow/services/webhook"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		lock.Module,
		sealer.Module,
		task.Client,
		events.Module,
		providers.Module,
		health.Module,
		fx.Invoke(migrate),

		credential.Module,
		post.Module,
		post.Gateway,
		oauth.Module,
		oauth.Gateway,
		webhook.Gateway,

		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})

func migrate(cfg *config.Config, conn *gorm.DB) error {
	models := append(post.Models(), credential.Models()...)
	return db.Migrate(cfg, conn, models...)
}
