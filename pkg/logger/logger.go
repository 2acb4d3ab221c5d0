package logger

import (
	"context"
	"fmt"

	"postflow/pkg/config"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Module = fx.Module("zap",
	fx.Provide(
		New,
	),
)

type ConfigParams struct {
	fx.In
	Cfg *config.Config
}

// New builds the process logger and installs it as the zap global. The
// development console encoder is used unless APP_ENV is production, where
// logs are JSON with severity and timestamp keys.
func New(p ConfigParams) (*zap.Logger, error) {
	zc := buildConfig(p.Cfg)

	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if p.Cfg != nil {
		log = log.With(
			zap.String("env", p.Cfg.AppEnv),
			zap.String("service_name", p.Cfg.AppName),
		)
	}

	zap.ReplaceGlobals(log)
	return log, nil
}

func buildConfig(cfg *config.Config) zap.Config {
	if cfg == nil || cfg.AppEnv != "production" {
		zc := zap.NewDevelopmentConfig()
		applyLevel(&zc, cfg)
		return zc
	}

	zc := zap.NewProductionConfig()
	zc.Encoding = "json"
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.LevelKey = "severity"
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zc.EncoderConfig.StacktraceKey = "stacktrace"
	zc.EncoderConfig.CallerKey = "caller"
	zc.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	zc.OutputPaths = []string{"stdout"}
	zc.ErrorOutputPaths = []string{"stderr"}
	applyLevel(&zc, cfg)
	return zc
}

func applyLevel(zc *zap.Config, cfg *config.Config) {
	if cfg == nil || cfg.Log.Level == "" {
		return
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.Log.Level); err == nil {
		zc.Level = lvl
	}
}

// FromContext returns the global logger annotated with the trace and span
// ids carried by ctx.
func FromContext(ctx context.Context) *zap.Logger {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return zap.L()
	}
	return zap.L().With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}
