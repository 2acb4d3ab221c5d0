package profiling

import (
	"context"

	"postflow/pkg/config"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("profiling", fx.Invoke(StartProfiling))

// NewConfig describes what this process sends to pyroscope.
func NewConfig(c *config.Config) pyroscope.Config {
	return pyroscope.Config{
		ApplicationName: c.AppName,
		ServerAddress:   c.Pyroscope.Addr,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexDuration,
		},
		Tags: map[string]string{
			"service_name": c.AppName,
			"env":          c.AppEnv,
		},
	}
}

// StartProfiling starts continuous profiling when PYROSCOPE.ENABLE is set.
func StartProfiling(lc fx.Lifecycle, c *config.Config) error {
	if !c.Pyroscope.Enable {
		return nil
	}

	var profiler *pyroscope.Profiler
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			p, err := pyroscope.Start(NewConfig(c))
			if err != nil {
				return err
			}
			profiler = p
			zap.L().Info("pyroscope started", zap.String("addr", c.Pyroscope.Addr))
			return nil
		},
		OnStop: func(context.Context) error {
			if profiler == nil {
				return nil
			}
			return profiler.Stop()
		},
	})
	return nil
}
