package main

import (
	"log"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

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
	"postflow/pkg/taskname"
	"postflow/services/credential"
	"postflow/services/post"
	"postflow/services/publisher"
	"postflow/services/webhook"
)

// The worker serves no api routes; its http server only carries health and
// metrics.
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
		task.Server,
		events.Module,
		providers.Module,
		health.Module,

		credential.Module,
		post.Module,
		publisher.Module,
		publisher.Consumer,
		webhook.Consumer,
		fx.Invoke(registerEventSink),

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

func registerEventSink(mux *asynq.ServeMux) {
	mux.HandleFunc(taskname.EventPrefix, events.HandleEventTask)
}
