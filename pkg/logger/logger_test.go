package logger

import (
	"context"
	"testing"

	"postflow/pkg/config"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuildConfig(t *testing.T) {
	dev := buildConfig(&config.Config{AppEnv: "development"})
	require.Equal(t, "console", dev.Encoding)
	require.True(t, dev.Development)

	prod := &config.Config{AppEnv: "production"}
	prod.Log.Level = "warn"
	zc := buildConfig(prod)
	require.Equal(t, "json", zc.Encoding)
	require.Equal(t, "severity", zc.EncoderConfig.LevelKey)
	require.Equal(t, zapcore.WarnLevel, zc.Level.Level())

	bad := &config.Config{AppEnv: "production"}
	bad.Log.Level = "chatty"
	require.Equal(t, zapcore.InfoLevel, buildConfig(bad).Level.Level())
}

func TestFromContextAddsTraceIDs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	FromContext(context.Background()).Info("plain")

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1},
		SpanID:  trace.SpanID{2},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	FromContext(ctx).Info("traced")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Empty(t, entries[0].ContextMap())
	require.Equal(t, sc.TraceID().String(), entries[1].ContextMap()["trace_id"])
	require.Equal(t, sc.SpanID().String(), entries[1].ContextMap()["span_id"])
}
