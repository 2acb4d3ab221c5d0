package otelcol

import (
	"context"

	"postflow/pkg/config"
	"postflow/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otel",
	fx.Provide(ProvideTracing),
	fx.Invoke(func(*trace.TracerProvider) {}),
)

func defaultTraceProviderOption(cfg *config.Config) []trace.TracerProviderOption {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		res = resource.Default()
	}
	return []trace.TracerProviderOption{
		trace.WithResource(res),
	}
}

func ProvideTrace(exporter trace.SpanExporter, opts ...trace.TracerProviderOption) *trace.TracerProvider {
	if exporter != nil {
		opts = append(opts, trace.WithBatcher(exporter))
	}
	return trace.NewTracerProvider(opts...)
}

// ProvideTracing installs the global tracer provider. Spans are exported
// over OTLP/HTTP when OTEL.ENABLE is set; otherwise they are still created
// so trace ids reach the logs.
func ProvideTracing(lc fx.Lifecycle, cfg *config.Config) (*trace.TracerProvider, error) {
	var exporter trace.SpanExporter
	if cfg.Otel.Enable {
		exp, err := exporters.ProvideHttp(cfg)
		if err != nil {
			return nil, err
		}
		exporter = exp
	}

	tp := ProvideTrace(exporter, defaultTraceProviderOption(cfg)...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := tp.Shutdown(ctx); err != nil {
				zap.L().Warn("failed to flush traces", zap.Error(err))
			}
			return nil
		},
	})

	return tp, nil
}
