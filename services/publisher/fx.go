package publisher

import (
	"postflow/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("publisher.module",
	fx.Provide(NewOrchestrator),
)

// Consumer runs passes from the queue and the sweep that feeds it.
var Consumer = fx.Module("publisher.worker",
	fx.Provide(NewWorker, NewScheduler),
	fx.Invoke(func(mux *asynq.ServeMux, w *Worker) {
		mux.Handle(taskname.PostPublish, w)
	}),
	fx.Invoke(StartScheduler),
)
