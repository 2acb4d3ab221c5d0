// Package providers wires the configured platform clients into a registry.
package providers

import (
	"postflow/pkg/config"
	"postflow/pkg/platform"
	"postflow/pkg/platform/facebook"
	"postflow/pkg/platform/oauth2x"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("platform", fx.Provide(NewRegistry))

// NewRegistry returns a registry holding a provider for every platform that
// has an OAuth client configured.
func NewRegistry(cfg *config.Config) *platform.Registry {
	timeout := cfg.Publisher.CallTimeout

	var list []platform.Provider
	if c, ok := cfg.OAuthClient(string(platform.Facebook)); ok {
		list = append(list, facebook.New(c, timeout))
	}
	if c, ok := cfg.OAuthClient(string(platform.Twitter)); ok {
		list = append(list, oauth2x.New(oauth2x.Twitter, c, timeout))
	}
	if c, ok := cfg.OAuthClient(string(platform.LinkedIn)); ok {
		list = append(list, oauth2x.New(oauth2x.LinkedIn, c, timeout))
	}

	registry := platform.NewRegistry(list...)
	zap.L().Info("platform providers configured", zap.Any("platforms", registry.Codes()))
	return registry
}
