package webhook

import (
	"postflow/pkg/server"
	"postflow/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Gateway = fx.Module("webhook.http",
	fx.Provide(server.AsRoutes(NewHandler)),
)

var Consumer = fx.Module("webhook.worker",
	fx.Provide(NewWorker),
	fx.Invoke(func(mux *asynq.ServeMux, w *Worker) {
		mux.Handle(taskname.WebhookEvent, w)
	}),
)
