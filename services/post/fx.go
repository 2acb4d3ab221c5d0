package post

import (
	"postflow/pkg/server"

	"go.uber.org/fx"
)

var Module = fx.Module("post.module",
	fx.Provide(NewService),
)

var Gateway = fx.Module("post.http",
	fx.Provide(server.AsRoutes(NewHandler)),
)
