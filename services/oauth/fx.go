package oauth

import (
	"postflow/pkg/server"

	"go.uber.org/fx"
)

var Module = fx.Module("oauth.module",
	fx.Provide(NewStore, NewService),
)

var Gateway = fx.Module("oauth.http",
	fx.Provide(server.AsRoutes(NewHandler)),
)
